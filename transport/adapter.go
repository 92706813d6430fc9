package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"crossfire/domain"
	"crossfire/event"
	"crossfire/wire"
)

// Adapter は domain.Transport 上でイベントを送受信するクライアント側のアダプターです。
// リレーから届くシステムイベントで自身のアクター番号とマスタークライアントを追跡します。
type Adapter struct {
	conn   domain.Transport
	logger *slog.Logger

	mu      sync.RWMutex
	handler InboundHandler
	actor   int32
	master  int32

	joined     chan struct{}
	joinedOnce sync.Once
	closed     atomic.Bool
	seq        atomic.Uint32
}

// AdapterOption は Adapter の設定を変更します。
type AdapterOption func(*Adapter)

// WithAdapterLogger はログ出力先を設定します。
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAdapter(conn domain.Transport, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		conn:   conn,
		logger: slog.Default(),
		joined: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnEvent は受信イベントの転送先を登録します。後から登録したものが優先されます。
func (a *Adapter) OnEvent(h InboundHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// ActorNumber はルーム内での自身のアクター番号を返します。参加前は 0 です。
func (a *Adapter) ActorNumber() int32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.actor
}

// MasterActor は現在のマスタークライアントのアクター番号を返します。
func (a *Adapter) MasterActor() int32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.master
}

// IsMasterClient は自身がマスタークライアントかどうかを返します。
func (a *Adapter) IsMasterClient() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.actor != 0 && a.actor == a.master
}

// WaitJoined はリレーからアクター番号が割り当てられるまで待ちます。
func (a *Adapter) WaitJoined(ctx context.Context) error {
	select {
	case <-a.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish はイベントを1フレームにエンコードしてリレーへ送信します。
func (a *Adapter) Publish(ctx context.Context, kind event.Kind, payload event.Payload, opts event.DeliveryOptions) error {
	if a.closed.Load() {
		return ErrNotConnected
	}
	actor := a.ActorNumber()
	if actor == 0 {
		return ErrNotConnected
	}

	f := wire.NewFrame(byte(kind), payload, opts)
	f.Sender = actor
	f.Seq = uint16(a.seq.Add(1))
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := a.conn.Write(ctx, data); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// Run は接続が閉じられるか ctx がキャンセルされるまで受信ループを実行します。
func (a *Adapter) Run(ctx context.Context) error {
	for {
		data, err := a.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || a.closed.Load() {
				return nil
			}
			a.closed.Store(true)
			return fmt.Errorf("read: %w", err)
		}
		f, err := wire.ParseFrame(data)
		if err != nil {
			a.logger.WarnContext(ctx, "failed to parse frame", "err", err)
			continue
		}
		a.handleFrame(ctx, f)
	}
}

// Close は接続を閉じます。以降の Publish は ErrNotConnected を返します。
func (a *Adapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	return a.conn.Close(domain.CloseNormal, "")
}

func (a *Adapter) handleFrame(ctx context.Context, f *wire.Frame) {
	switch f.Code {
	case wire.CodeJoin:
		a.handleJoin(ctx, f.Payload)
	case wire.CodeMasterChanged:
		master, err := f.Payload.Int32At(0)
		if err != nil {
			a.logger.WarnContext(ctx, "malformed master changed message", "err", err)
			break
		}
		a.mu.Lock()
		a.master = master
		a.mu.Unlock()
		a.logger.DebugContext(ctx, "master client changed", "master", master)
	case wire.CodePing:
		if err := a.conn.Write(ctx, wire.EncodePongMessage(a.ActorNumber())); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WarnContext(ctx, "failed to send pong", "err", err)
		}
	}

	a.mu.RLock()
	h := a.handler
	a.mu.RUnlock()
	if h == nil {
		return
	}
	h.OnInboundEvent(WithSender(ctx, f.Sender), f.Code, f.Payload)
}

// handleJoin は参加通知を処理します。リレーは参加者本人への Join を
// 他のどのフレームよりも先に送るため、最初の Join が自身のアクター番号になります。
func (a *Adapter) handleJoin(ctx context.Context, p event.Payload) {
	actor, err := p.Int32At(0)
	if err != nil {
		a.logger.WarnContext(ctx, "malformed join message", "err", err)
		return
	}
	master, err := p.Int32At(1)
	if err != nil {
		a.logger.WarnContext(ctx, "malformed join message", "err", err)
		return
	}

	a.mu.Lock()
	self := a.actor == 0
	if self {
		a.actor = actor
	}
	a.master = master
	a.mu.Unlock()

	if self {
		a.joinedOnce.Do(func() { close(a.joined) })
		a.logger.InfoContext(ctx, "joined room", "actor", actor, "master", master)
		return
	}
	a.logger.DebugContext(ctx, "peer joined", "actor", actor)
}
