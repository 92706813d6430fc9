// Package websocket は coder/websocket を domain.Transport として扱うアダプターです。
package websocket

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"crossfire/domain"
)

// MaxFrameSize は1フレームの最大サイズです。
const MaxFrameSize = 1 << 20

type wsTransport struct {
	conn *websocket.Conn
}

// NewTransportFrom は確立済みの接続から Transport を生成します。
func NewTransportFrom(conn *websocket.Conn) domain.Transport {
	conn.SetReadLimit(MaxFrameSize)
	return &wsTransport{conn: conn}
}

// Dial は url のリレーへ接続します。
func Dial(ctx context.Context, url string) (domain.Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewTransportFrom(conn), nil
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("unexpected message type %v", typ)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
