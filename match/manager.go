// Package match はイベントカタログを使ってマッチの進行を同期します。
//
// マスタークライアントがプレイヤー一覧・タイマー・キル数の判定を持ち、
// 他のピアはマスターが配布するイベントをそのまま反映します。
package match

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"crossfire/dispatch"
	"crossfire/event"
	"crossfire/transport"
)

// SpawnPoints はマップあたりのスポーン地点の数です。
const SpawnPoints = 8

// Peer はルーム内での自身の立場を返します。transport.Adapter と transport.LoopbackPeer が実装します。
type Peer interface {
	ActorNumber() int32
	IsMasterClient() bool
}

type Config struct {
	MatchLength time.Duration
	KillTarget  int32
	MapIndex    int32
	Perpetual   bool
	// EndingDuration はマッチ終了から次のマッチまでの待ち時間です。
	EndingDuration time.Duration
}

// Manager は1ピア分のマッチ状態を保持します。
type Manager struct {
	dispatcher *dispatch.Dispatcher
	peer       Peer
	name       string
	logger     *slog.Logger

	mu        sync.Mutex
	settings  event.MatchSettings
	ending    time.Duration
	state     event.MatchState
	remaining time.Duration
	players   map[int32]*event.PlayerInfo
	spawns    map[int32]int32
	subs      []*dispatch.Subscription
}

func NewManager(d *dispatch.Dispatcher, peer Peer, name string, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EndingDuration <= 0 {
		cfg.EndingDuration = 10 * time.Second
	}
	m := &Manager{
		dispatcher: d,
		peer:       peer,
		name:       name,
		logger:     logger,
		settings: event.MatchSettings{
			MapIndex:    cfg.MapIndex,
			MatchLength: int32(cfg.MatchLength / time.Second),
			KillTarget:  cfg.KillTarget,
			Perpetual:   cfg.Perpetual,
		},
		ending:    cfg.EndingDuration,
		state:     event.MatchWaiting,
		remaining: cfg.MatchLength,
		players:   make(map[int32]*event.PlayerInfo),
		spawns:    make(map[int32]int32),
	}
	m.subs = []*dispatch.Subscription{
		dispatch.Subscribe(d, m.onNewPlayer),
		dispatch.Subscribe(d, m.onListPlayers),
		dispatch.Subscribe(d, m.onUpdateStat),
		dispatch.Subscribe(d, m.onNextMatch),
		dispatch.Subscribe(d, m.onTimerSync),
		dispatch.Subscribe(d, m.onMatchSettings),
		dispatch.Subscribe(d, m.onCreatePlayer),
	}
	return m
}

// Start はマッチに参加します。マスターは設定を配布してマッチを開始します。
func (m *Manager) Start(ctx context.Context) {
	if m.peer.IsMasterClient() {
		m.mu.Lock()
		settings := m.settings
		m.state = event.MatchPlaying
		m.remaining = time.Duration(settings.MatchLength) * time.Second
		m.mu.Unlock()
		m.dispatcher.SendEvent(ctx, settings)
	}
	m.dispatcher.SendEvent(ctx, event.NewPlayer{Name: m.name})
}

// Close は全ハンドラーの登録を解除します。
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Tick はマスターのタイマーを elapsed だけ進め、残り時間を配布します。マスター以外では何もしません。
func (m *Manager) Tick(ctx context.Context, elapsed time.Duration) {
	if !m.peer.IsMasterClient() {
		return
	}
	m.mu.Lock()
	var next bool
	switch m.state {
	case event.MatchPlaying:
		m.remaining -= elapsed
		if m.remaining <= 0 {
			m.remaining = m.ending
			m.state = event.MatchEnding
		}
	case event.MatchEnding:
		m.remaining -= elapsed
		if m.remaining <= 0 {
			m.remaining = 0
			next = m.settings.Perpetual
		}
	}
	timer := event.TimerSync{Remaining: int32(m.remaining / time.Second), State: m.state}
	m.mu.Unlock()

	if next {
		m.dispatcher.SendEvent(ctx, event.NextMatch{})
		return
	}
	m.dispatcher.SendEvent(ctx, timer)
}

// ReportKill は killer のキルと victim のデスを全員に通知します。
func (m *Manager) ReportKill(ctx context.Context, killer, victim int32) {
	m.dispatcher.SendEvent(ctx, event.UpdateStat{Actor: killer, Stat: event.StatKills, Amount: 1})
	m.dispatcher.SendEvent(ctx, event.UpdateStat{Actor: victim, Stat: event.StatDeaths, Amount: 1})
}

// Players はアクター番号順のプレイヤー一覧を返します。
func (m *Manager) Players() []event.PlayerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerListLocked()
}

func (m *Manager) State() event.MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remaining はマッチまたは終了待ちの残り時間です。
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

func (m *Manager) Settings() event.MatchSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SpawnIndex は actor に割り当てられたスポーン地点を返します。
func (m *Manager) SpawnIndex(actor int32) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.spawns[actor]
	return idx, ok
}

func (m *Manager) playerListLocked() []event.PlayerInfo {
	out := make([]event.PlayerInfo, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b event.PlayerInfo) int { return int(a.Actor - b.Actor) })
	return out
}

func (m *Manager) onNewPlayer(ctx context.Context, ev event.NewPlayer) {
	if !m.peer.IsMasterClient() {
		return
	}
	actor, ok := transport.SenderFrom(ctx)
	if !ok || actor == 0 {
		m.logger.WarnContext(ctx, "new player without sender", "name", ev.Name)
		return
	}

	m.mu.Lock()
	if _, exists := m.players[actor]; !exists {
		m.players[actor] = &event.PlayerInfo{Name: ev.Name, Actor: actor}
	}
	list := event.ListPlayers{State: m.state, Players: m.playerListLocked()}
	create := event.CreatePlayer{Actor: actor, SpawnIndex: (actor - 1) % SpawnPoints}
	settings := m.settings
	timer := event.TimerSync{Remaining: int32(m.remaining / time.Second), State: m.state}
	m.mu.Unlock()

	// 新しいピアは設定と残り時間をまだ知らない
	others := event.DeliveryOptions{Receivers: event.ReceiverOthers, Reliable: true}
	m.logger.InfoContext(ctx, "player joined match", "name", ev.Name, "actor", actor)
	m.dispatcher.SendEvent(ctx, list)
	m.dispatcher.SendEvent(ctx, event.WithOptions(settings, others))
	m.dispatcher.SendEvent(ctx, event.WithOptions(timer, others))
	m.dispatcher.SendEvent(ctx, create)
}

func (m *Manager) onListPlayers(_ context.Context, ev event.ListPlayers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ev.State
	m.players = make(map[int32]*event.PlayerInfo, len(ev.Players))
	for _, p := range ev.Players {
		m.players[p.Actor] = &p
	}
}

func (m *Manager) onUpdateStat(ctx context.Context, ev event.UpdateStat) {
	m.mu.Lock()
	p, ok := m.players[ev.Actor]
	if !ok {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "stat for unknown actor", "actor", ev.Actor)
		return
	}
	switch ev.Stat {
	case event.StatKills:
		p.Kills += ev.Amount
	case event.StatDeaths:
		p.Deaths += ev.Amount
	default:
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "unknown stat", "stat", ev.Stat)
		return
	}
	reached := ev.Stat == event.StatKills &&
		m.state == event.MatchPlaying &&
		m.settings.KillTarget > 0 &&
		p.Kills >= m.settings.KillTarget
	if !reached || !m.peer.IsMasterClient() {
		m.mu.Unlock()
		return
	}
	m.state = event.MatchEnding
	m.remaining = m.ending
	kills := p.Kills
	timer := event.TimerSync{Remaining: int32(m.remaining / time.Second), State: m.state}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "kill target reached", "actor", ev.Actor, "kills", kills)
	m.dispatcher.SendEvent(ctx, timer)
}

func (m *Manager) onNextMatch(ctx context.Context, _ event.NextMatch) {
	m.mu.Lock()
	for _, p := range m.players {
		p.Kills, p.Deaths = 0, 0
	}
	m.state = event.MatchPlaying
	m.remaining = time.Duration(m.settings.MatchLength) * time.Second
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "next match started")
}

func (m *Manager) onTimerSync(_ context.Context, ev event.TimerSync) {
	if m.peer.IsMasterClient() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = time.Duration(ev.Remaining) * time.Second
	m.state = ev.State
}

func (m *Manager) onMatchSettings(_ context.Context, ev event.MatchSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = ev
}

func (m *Manager) onCreatePlayer(_ context.Context, ev event.CreatePlayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawns[ev.Actor] = ev.SpawnIndex
}
