package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"crossfire/domain"
	"crossfire/event"
	"crossfire/wire"
)

var (
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrBackpressure は書き込みキューが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write queue is full")
)

// EndpointConfig はセッションエンドポイントの動作パラメーターです。
type EndpointConfig struct {
	PingInterval time.Duration
	IdleTimeout  time.Duration
	WriteQueue   int
	Logger       *slog.Logger
	Metrics      *Metrics
}

// SessionEndpoint は1接続の受信・送信・死活監視を行い、ルームとの間でフレームを中継します。
type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session *domain.Session
	conn    domain.Transport
	pubsub  PubSub
	roomID  RoomID
	cfg     EndpointConfig
	logger  *slog.Logger

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *domain.Session, conn domain.Transport, pubsub PubSub, roomID RoomID, cfg EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || conn == nil || pubsub == nil || roomID == "" {
		return nil, ErrInitializationFailed
	}
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionEndpoint{
		ctx:     ctx,
		cancel:  cancel,
		session: session,
		conn:    conn,
		pubsub:  pubsub,
		roomID:  roomID,
		cfg:     cfg,
		logger:  cfg.Logger.With("sessionID", session.ID().String(), "room", roomID.String()),
		ctrlCh:  make(chan endpointEvent, 16),
		writeCh: make(chan []byte, cfg.WriteQueue),
	}, nil
}

// Run はセッションが閉じられるか ctx がキャンセルされるまでループを実行します。
func (se *SessionEndpoint) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { se.close(domain.CloseReasonShutdown) })
	defer stop()

	// 自分宛のメッセージを購読してからルームに参加する
	topic := sessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(topic)
	defer se.pubsub.Unsubscribe(topic, msgCh)

	se.cfg.Metrics.Sessions.Inc()
	defer se.cfg.Metrics.Sessions.Dec()

	if err := se.pubsub.Publish(se.ctx, roomTopic(se.roomID), Message{Kind: msgJoin, SessionID: se.session.ID(), Reliable: true}); err != nil {
		se.close(domain.CloseReasonBackpressure)
		return err
	}
	defer func() {
		// 離脱通知はエンドポイントのコンテキスト終了後に送る
		if err := se.pubsub.Publish(context.Background(), roomTopic(se.roomID), Message{Kind: msgLeave, SessionID: se.session.ID()}); err != nil {
			se.logger.Warn("failed to notify room of leave", "err", err)
		}
	}()

	heartbeat := NewHeartbeatService(se.cfg.PingInterval, se.session, se.writeCh, se.logger)

	eg, egCtx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(egCtx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(egCtx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(egCtx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(egCtx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(egCtx)
		return nil
	})
	return eg.Wait()
}

// Send は data を書き込みキューに積みます。満杯の場合は ErrBackpressure を返します。
func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close はセッションの終了を要求します。
func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, reason: domain.CloseReasonClient})
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if idle, reason := se.session.IsIdle(se.cfg.IdleTimeout, se.cfg.PingInterval > 0); idle {
				se.logger.InfoContext(ctx, "session idle", "reason", reason)
				se.handleControlEvent(ctx, endpointEvent{kind: evClose, reason: domain.CloseReasonIdle})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			}
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.conn.Write(ctx, data); err != nil {
				if ctx.Err() == nil {
					se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				}
				return
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はルームからのメッセージを writeCh に転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if msg.Kind == msgClose {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, reason: msg.Reason})
				continue
			}
			if err := se.Send(msg.Data); err != nil {
				se.cfg.Metrics.Frames.WithLabelValues(frameDropped).Inc()
				if msg.Reliable {
					se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, reason: domain.CloseReasonBackpressure})
					continue
				}
				se.logger.WarnContext(ctx, "subscribeLoop: writeCh full, frame dropped")
			}
		}
	}
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	header, err := wire.ParseHeader(data)
	if err != nil {
		se.cfg.Metrics.Frames.WithLabelValues(frameRejected).Inc()
		se.logger.WarnContext(ctx, "failed to parse header", "err", err)
		return
	}
	switch {
	case header.Code == wire.CodePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	case event.Kind(header.Code).IsReserved():
		se.cfg.Metrics.Frames.WithLabelValues(frameRejected).Inc()
		se.logger.WarnContext(ctx, "peer sent reserved code", "code", header.Code)
	default:
		err := se.pubsub.Publish(ctx, roomTopic(se.roomID), Message{
			Kind:      msgData,
			SessionID: se.session.ID(),
			Data:      data,
			Reliable:  header.Reliable(),
		})
		if errors.Is(err, ErrTopicFull) {
			se.cfg.Metrics.Frames.WithLabelValues(frameDropped).Inc()
			if header.Reliable() {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, reason: domain.CloseReasonBackpressure})
				return
			}
			se.logger.WarnContext(ctx, "room queue full, frame dropped", "code", header.Code)
		}
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		se.close(ev.reason)
	case evPong:
		se.session.TouchPong()
	case evReadError:
		se.logger.InfoContext(ctx, "read failed", "err", ev.err)
		se.close(domain.CloseReasonReadError)
	case evWriteError:
		se.logger.InfoContext(ctx, "write failed", "err", ev.err)
		se.close(domain.CloseReasonWriteError)
	default:
		se.logger.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}

func (se *SessionEndpoint) close(reason domain.CloseReason) {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.session.Close(reason)
	se.cfg.Metrics.Disconnects.WithLabelValues(reason.String()).Inc()
	if err := se.conn.Close(reason.StatusCode(), reason.String()); err != nil {
		se.logger.Debug("close transport failed", "err", err)
	}
	se.logger.Info("session closed", "reason", reason, "lastWrite", se.session.LastWrite())
	se.cancel()
}
