package relay

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"crossfire/domain"
	"crossfire/event"
	"crossfire/wire"
)

type RoomID string

func (id RoomID) String() string { return string(id) }

// Room は1つのルームの参加者を管理し、フレームを配送先グループに従って中継します。
// 状態は Run のゴルーチンだけが変更します。
type Room struct {
	ID RoomID

	pubsub   PubSub
	msgCh    <-chan Message
	maxPeers int
	logger   *slog.Logger
	metrics  *Metrics

	actors    map[domain.SessionID]int32
	sessions  map[int32]domain.SessionID
	nextActor int32
	master    int32
}

// RoomOption は Room の設定を変更します。
type RoomOption func(*Room)

func WithMaxPeers(n int) RoomOption {
	return func(r *Room) {
		r.maxPeers = n
	}
}

func WithRoomLogger(logger *slog.Logger) RoomOption {
	return func(r *Room) {
		r.logger = logger
	}
}

func WithRoomMetrics(m *Metrics) RoomOption {
	return func(r *Room) {
		r.metrics = m
	}
}

// NewRoom はルームを生成し、ルームのトピックを購読します。
// 購読は Run より前に完了しているため、生成直後に送られた参加メッセージも失われません。
func NewRoom(id RoomID, pubsub PubSub, opts ...RoomOption) *Room {
	r := &Room{
		ID:       id,
		pubsub:   pubsub,
		logger:   slog.Default(),
		actors:   make(map[domain.SessionID]int32),
		sessions: make(map[int32]domain.SessionID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	r.msgCh = pubsub.Subscribe(roomTopic(id))
	return r
}

// Run は ctx がキャンセルされるまでメッセージを順に処理します。
func (r *Room) Run(ctx context.Context) error {
	defer r.pubsub.Unsubscribe(roomTopic(r.ID), r.msgCh)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.msgCh:
			if !ok {
				return nil
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Room) handleMessage(ctx context.Context, msg Message) {
	switch msg.Kind {
	case msgJoin:
		r.join(ctx, msg.SessionID)
	case msgLeave:
		r.leave(ctx, msg.SessionID)
	case msgData:
		r.relay(ctx, msg.SessionID, msg.Data)
	default:
		r.logger.WarnContext(ctx, "unexpected room message", "room", r.ID, "kind", msg.Kind)
	}
}

func (r *Room) join(ctx context.Context, sid domain.SessionID) {
	if _, ok := r.actors[sid]; ok {
		return
	}
	if r.maxPeers > 0 && len(r.actors) >= r.maxPeers {
		r.logger.WarnContext(ctx, "room is full", "room", r.ID, "sessionID", sid)
		r.sendTo(ctx, sid, Message{Kind: msgClose, Reason: domain.CloseReasonRoomFull})
		return
	}

	r.nextActor++
	actor := r.nextActor
	r.actors[sid] = actor
	r.sessions[actor] = sid
	if r.master == 0 {
		r.master = actor
	}

	// 参加者本人への Join は他のどのフレームよりも先に届く
	joinMsg := wire.EncodeJoinMessage(actor, r.master)
	r.sendTo(ctx, sid, Message{Kind: msgData, Data: joinMsg, Reliable: true})
	for _, other := range r.members() {
		if other == actor {
			continue
		}
		r.sendTo(ctx, sid, Message{Kind: msgData, Data: wire.EncodeJoinMessage(other, r.master), Reliable: true})
		r.sendTo(ctx, r.sessions[other], Message{Kind: msgData, Data: joinMsg, Reliable: true})
	}
	r.logger.InfoContext(ctx, "actor joined", "room", r.ID, "sessionID", sid, "actor", actor, "master", r.master)
}

func (r *Room) leave(ctx context.Context, sid domain.SessionID) {
	actor, ok := r.actors[sid]
	if !ok {
		return
	}
	delete(r.actors, sid)
	delete(r.sessions, actor)
	r.broadcast(ctx, 0, wire.EncodeLeaveMessage(actor), true)
	r.logger.InfoContext(ctx, "actor left", "room", r.ID, "sessionID", sid, "actor", actor)

	if actor != r.master {
		return
	}
	r.master = 0
	if members := r.members(); len(members) > 0 {
		r.master = members[0]
		r.metrics.MasterChanges.Inc()
		r.broadcast(ctx, 0, wire.EncodeMasterChangedMessage(r.master), true)
		r.logger.InfoContext(ctx, "master client changed", "room", r.ID, "master", r.master)
	}
}

// relay は送信者のアクター番号を刻印し、配送先グループへフレームを中継します。
func (r *Room) relay(ctx context.Context, sid domain.SessionID, data []byte) {
	actor, ok := r.actors[sid]
	if !ok {
		r.metrics.Frames.WithLabelValues(frameRejected).Inc()
		r.logger.WarnContext(ctx, "frame from session not in room", "room", r.ID, "sessionID", sid)
		return
	}
	header, err := wire.ParseHeader(data)
	if err != nil {
		r.metrics.Frames.WithLabelValues(frameRejected).Inc()
		r.logger.WarnContext(ctx, "failed to parse header", "sessionID", sid, "err", err)
		return
	}
	if event.Kind(header.Code).IsReserved() {
		r.metrics.Frames.WithLabelValues(frameRejected).Inc()
		r.logger.WarnContext(ctx, "peer sent reserved code", "sessionID", sid, "code", header.Code)
		return
	}
	if err := wire.SetSender(data, actor); err != nil {
		r.metrics.Frames.WithLabelValues(frameRejected).Inc()
		return
	}

	reliable := header.Reliable()
	switch header.Receivers {
	case event.ReceiverAll:
		r.broadcast(ctx, 0, data, reliable)
	case event.ReceiverOthers:
		r.broadcast(ctx, actor, data, reliable)
	case event.ReceiverMasterClient:
		if r.master != 0 {
			r.sendTo(ctx, r.sessions[r.master], Message{Kind: msgData, Data: data, Reliable: reliable})
		}
	default:
		r.metrics.Frames.WithLabelValues(frameRejected).Inc()
		r.logger.WarnContext(ctx, "unknown receiver group", "sessionID", sid, "receivers", header.Receivers)
		return
	}
	r.metrics.Frames.WithLabelValues(frameRelayed).Inc()
}

// broadcast は exclude 以外の全参加者へ data を送ります。exclude が 0 の場合は全員に送ります。
func (r *Room) broadcast(ctx context.Context, exclude int32, data []byte, reliable bool) {
	for _, actor := range r.members() {
		if actor == exclude {
			continue
		}
		r.sendTo(ctx, r.sessions[actor], Message{Kind: msgData, Data: data, Reliable: reliable})
	}
}

func (r *Room) sendTo(ctx context.Context, sid domain.SessionID, msg Message) {
	err := r.pubsub.Publish(ctx, sessionTopic(sid), msg)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrTopicFull) {
		r.logger.WarnContext(ctx, "publish to session failed", "sessionID", sid, "err", err)
		return
	}
	r.metrics.Frames.WithLabelValues(frameDropped).Inc()
	if msg.Reliable {
		// 到達保証付きのフレームを渡せないセッションは切断する
		r.logger.WarnContext(ctx, "session cannot keep up with reliable frames", "sessionID", sid)
		r.disconnect(ctx, sid)
	}
}

func (r *Room) disconnect(ctx context.Context, sid domain.SessionID) {
	// 購読チャネルが満杯のため切断要求も届かない可能性がある。
	// 先にルームから外し、エンドポイント側は書き込みキューの溢れで自ら切断する。
	r.leave(ctx, sid)
	_ = r.pubsub.Publish(ctx, sessionTopic(sid), Message{Kind: msgClose, Reason: domain.CloseReasonBackpressure})
}

// members はアクター番号を昇順で返します。
func (r *Room) members() []int32 {
	out := make([]int32, 0, len(r.sessions))
	for actor := range r.sessions {
		out = append(out, actor)
	}
	slices.Sort(out)
	return out
}
