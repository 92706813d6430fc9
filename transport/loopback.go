package transport

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"crossfire/event"
	"crossfire/wire"
)

// Loopback はプロセス内で完結するトランスポートです。
// リレーと同じ配送先ルールを適用し、フレームは wire コーデックを経由して配送されます。
// 配送は Publish を呼んだゴルーチン上で同期的に行われます。
type Loopback struct {
	mu     sync.Mutex
	peers  map[int32]*LoopbackPeer
	next   int32
	logger *slog.Logger
}

func NewLoopback() *Loopback {
	return &Loopback{
		peers:  make(map[int32]*LoopbackPeer),
		logger: slog.Default(),
	}
}

// LoopbackPeer は Loopback に参加した1ピアです。
type LoopbackPeer struct {
	hub   *Loopback
	actor int32

	mu      sync.RWMutex
	handler InboundHandler
	left    bool
}

// Join は新しいピアを参加させ、アクター番号を割り当てます。
// 既存のピアには Join システムイベントが配送されます。
func (l *Loopback) Join(ctx context.Context) *LoopbackPeer {
	l.mu.Lock()
	l.next++
	p := &LoopbackPeer{hub: l, actor: l.next}
	l.peers[p.actor] = p
	master := l.masterLocked()
	others := l.othersLocked(p.actor)
	l.mu.Unlock()

	l.deliver(ctx, others, wire.EncodeJoinMessage(p.actor, master))
	return p
}

func (l *Loopback) leave(ctx context.Context, actor int32) {
	l.mu.Lock()
	before := l.masterLocked()
	delete(l.peers, actor)
	after := l.masterLocked()
	rest := l.othersLocked(0)
	l.mu.Unlock()

	l.deliver(ctx, rest, wire.EncodeLeaveMessage(actor))
	if before != after && after != 0 {
		l.deliver(ctx, rest, wire.EncodeMasterChangedMessage(after))
	}
}

// masterLocked は最小のアクター番号を返します。
func (l *Loopback) masterLocked() int32 {
	var master int32
	for actor := range l.peers {
		if master == 0 || actor < master {
			master = actor
		}
	}
	return master
}

func (l *Loopback) othersLocked(exclude int32) []*LoopbackPeer {
	out := make([]*LoopbackPeer, 0, len(l.peers))
	for actor, p := range l.peers {
		if actor != exclude {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *LoopbackPeer) int { return int(a.actor - b.actor) })
	return out
}

func (l *Loopback) receivers(sender int32, group event.ReceiverGroup) []*LoopbackPeer {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch group {
	case event.ReceiverAll:
		return l.othersLocked(0)
	case event.ReceiverMasterClient:
		if p, ok := l.peers[l.masterLocked()]; ok {
			return []*LoopbackPeer{p}
		}
		return nil
	default:
		return l.othersLocked(sender)
	}
}

func (l *Loopback) deliver(ctx context.Context, peers []*LoopbackPeer, data []byte) {
	for _, p := range peers {
		f, err := wire.ParseFrame(data)
		if err != nil {
			l.logger.ErrorContext(ctx, "loopback frame corrupted", "err", err)
			return
		}
		p.receive(ctx, f)
	}
}

// ActorNumber はアクター番号を返します。
func (p *LoopbackPeer) ActorNumber() int32 {
	return p.actor
}

// IsMasterClient はこのピアが最小のアクター番号を持つかどうかを返します。
func (p *LoopbackPeer) IsMasterClient() bool {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	return p.hub.masterLocked() == p.actor
}

// OnEvent は受信イベントの転送先を登録します。
func (p *LoopbackPeer) OnEvent(h InboundHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Publish はフレームをエンコードし、配送先グループの各ピアへ同期的に配送します。
func (p *LoopbackPeer) Publish(ctx context.Context, kind event.Kind, payload event.Payload, opts event.DeliveryOptions) error {
	p.mu.RLock()
	left := p.left
	p.mu.RUnlock()
	if left {
		return ErrNotConnected
	}

	f := wire.NewFrame(byte(kind), payload, opts)
	f.Sender = p.actor
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	p.hub.deliver(ctx, p.hub.receivers(p.actor, opts.Receivers), data)
	return nil
}

// Leave はピアを離脱させます。残ったピアには Leave と、必要なら MasterChanged が配送されます。
func (p *LoopbackPeer) Leave(ctx context.Context) {
	p.mu.Lock()
	if p.left {
		p.mu.Unlock()
		return
	}
	p.left = true
	p.mu.Unlock()
	p.hub.leave(ctx, p.actor)
}

func (p *LoopbackPeer) receive(ctx context.Context, f *wire.Frame) {
	p.mu.RLock()
	h, left := p.handler, p.left
	p.mu.RUnlock()
	if h == nil || left {
		return
	}
	h.OnInboundEvent(WithSender(ctx, f.Sender), f.Code, f.Payload)
}
