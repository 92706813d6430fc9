package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// roomEntry は実行中のルームと、それを参照しているセッション数です。
type roomEntry struct {
	room   *Room
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// RoomManager はルームを必要になった時点で生成・起動し、最後のセッションが離れたら停止します。
type RoomManager struct {
	mu     sync.Mutex
	rooms  map[RoomID]*roomEntry
	pubsub PubSub
	opts   []RoomOption

	eg      *errgroup.Group
	ctx     context.Context
	logger  *slog.Logger
	metrics *Metrics
}

// NewRoomManager は ctx が生きている間ルームを実行するマネージャーを生成します。
func NewRoomManager(ctx context.Context, pubsub PubSub, logger *slog.Logger, metrics *Metrics, opts ...RoomOption) *RoomManager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	eg, ctx := errgroup.WithContext(ctx)
	return &RoomManager{
		rooms:   make(map[RoomID]*roomEntry),
		pubsub:  pubsub,
		opts:    append([]RoomOption{WithRoomLogger(logger), WithRoomMetrics(metrics)}, opts...),
		eg:      eg,
		ctx:     ctx,
		logger:  logger,
		metrics: metrics,
	}
}

// Acquire は id のルームを返します。存在しない場合は生成して起動します。
// 返された release はセッション終了時に1度だけ呼び出す必要があります。
// 参照がなくなったルームは停止され、一覧から取り除かれます。
func (m *RoomManager) Acquire(id RoomID) (*Room, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rooms[id]
	if !ok {
		e = m.start(id)
		m.rooms[id] = e
	}
	e.refs++

	var once sync.Once
	return e.room, func() {
		once.Do(func() { m.release(id, e) })
	}
}

func (m *RoomManager) start(id RoomID) *roomEntry {
	ctx, cancel := context.WithCancel(m.ctx)
	e := &roomEntry{
		room:   NewRoom(id, m.pubsub, m.opts...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.metrics.Rooms.Inc()
	m.eg.Go(func() error {
		defer close(e.done)
		defer m.metrics.Rooms.Dec()
		m.logger.InfoContext(ctx, "room started", "room", id)
		return e.room.Run(ctx)
	})
	return e
}

func (m *RoomManager) release(id RoomID, e *roomEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	// 同じ ID の新しいルームが購読を始める前に古いルームの購読解除を待つ
	e.cancel()
	<-e.done
	if m.rooms[id] == e {
		delete(m.rooms, id)
	}
	m.logger.InfoContext(m.ctx, "room stopped", "room", id)
}

// Rooms は起動済みのルームIDを返します。
func (m *RoomManager) Rooms() []RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]RoomID, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Wait は全ルームの終了を待ちます。
func (m *RoomManager) Wait() error {
	return m.eg.Wait()
}
