// Package transport はディスパッチャーと外部のリアルタイムトランスポートをつなぐアダプターです。
//
// 送信は Publisher として (code, payload, options) を受け取り、受信したフレームは
// 予約コードも含めて (code, payload) のまま InboundHandler へ転送します。
package transport

import (
	"context"
	"errors"

	"crossfire/event"
)

// ErrNotConnected はルームに参加していない、または切断済みの状態で送信した場合のエラーです。
var ErrNotConnected = errors.New("transport is not connected")

// InboundHandler は受信した (code, payload) を受け取ります。dispatch.Dispatcher が実装します。
type InboundHandler interface {
	OnInboundEvent(ctx context.Context, code byte, payload event.Payload)
}

// InboundHandlerFunc は関数を InboundHandler として扱うためのアダプターです。
type InboundHandlerFunc func(ctx context.Context, code byte, payload event.Payload)

func (f InboundHandlerFunc) OnInboundEvent(ctx context.Context, code byte, payload event.Payload) {
	f(ctx, code, payload)
}

type senderKey struct{}

// WithSender は受信イベントの送信者アクター番号を ctx に付与します。
func WithSender(ctx context.Context, actor int32) context.Context {
	return context.WithValue(ctx, senderKey{}, actor)
}

// SenderFrom は ctx から送信者のアクター番号を取り出します。
// 0 はリレー自身が発行したシステムイベントを表します。
func SenderFrom(ctx context.Context) (int32, bool) {
	actor, ok := ctx.Value(senderKey{}).(int32)
	return actor, ok
}
