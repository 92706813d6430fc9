package event

import "fmt"

// MatchState はマッチの進行状態です。
type MatchState uint8

const (
	MatchWaiting MatchState = iota
	MatchPlaying
	MatchEnding
)

func (s MatchState) String() string {
	switch s {
	case MatchWaiting:
		return "waiting"
	case MatchPlaying:
		return "playing"
	case MatchEnding:
		return "ending"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// NextMatch は次のマッチの開始を通知します。ペイロードは空です。
type NextMatch struct{}

func (NextMatch) Kind() Kind               { return KindNextMatch }
func (NextMatch) Options() DeliveryOptions { return reliableToAll }
func (NextMatch) Payload() Payload         { return Payload{} }

// DecodeNextMatch はペイロードから NextMatch を復元します。
func DecodeNextMatch(p Payload) (Event, error) {
	if err := p.expectLen(KindNextMatch, 0); err != nil {
		return nil, err
	}
	return NextMatch{}, nil
}

// TimerSync はマスタークライアントの残り時間を同期します。
// 毎秒送られるため到達保証なしで配送します。
//
//	remaining int32 (秒)
//	state     byte
type TimerSync struct {
	Remaining int32
	State     MatchState
}

func (TimerSync) Kind() Kind               { return KindTimerSync }
func (TimerSync) Options() DeliveryOptions { return unreliableToAll }
func (e TimerSync) Payload() Payload       { return Payload{e.Remaining, byte(e.State)} }

// DecodeTimerSync はペイロードから TimerSync を復元します。
func DecodeTimerSync(p Payload) (Event, error) {
	if err := p.expectLen(KindTimerSync, 2); err != nil {
		return nil, err
	}
	remaining, err := p.Int32At(0)
	if err != nil {
		return nil, err
	}
	state, err := p.ByteAt(1)
	if err != nil {
		return nil, err
	}
	return TimerSync{Remaining: remaining, State: MatchState(state)}, nil
}

// MatchSettings はマッチのルール設定を配布します。
//
//	mapIndex    int32
//	matchLength int32 (秒)
//	killTarget  int32
//	perpetual   bool
type MatchSettings struct {
	MapIndex    int32
	MatchLength int32
	KillTarget  int32
	// Perpetual が true の場合、マッチ終了後に自動で次のマッチを開始します。
	Perpetual bool
}

func (MatchSettings) Kind() Kind               { return KindMatchSettings }
func (MatchSettings) Options() DeliveryOptions { return reliableToAll }

func (e MatchSettings) Payload() Payload {
	return Payload{e.MapIndex, e.MatchLength, e.KillTarget, e.Perpetual}
}

// DecodeMatchSettings はペイロードから MatchSettings を復元します。
func DecodeMatchSettings(p Payload) (Event, error) {
	if err := p.expectLen(KindMatchSettings, 4); err != nil {
		return nil, err
	}
	var (
		ev  MatchSettings
		err error
	)
	if ev.MapIndex, err = p.Int32At(0); err != nil {
		return nil, err
	}
	if ev.MatchLength, err = p.Int32At(1); err != nil {
		return nil, err
	}
	if ev.KillTarget, err = p.Int32At(2); err != nil {
		return nil, err
	}
	if ev.Perpetual, err = p.BoolAt(3); err != nil {
		return nil, err
	}
	return ev, nil
}
