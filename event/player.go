package event

import "fmt"

// NewPlayer は新しいプレイヤーがマッチに参加したことを通知します。
//
//	name string
type NewPlayer struct {
	Name string
}

func (NewPlayer) Kind() Kind               { return KindNewPlayer }
func (NewPlayer) Options() DeliveryOptions { return reliableToAll }
func (e NewPlayer) Payload() Payload       { return Payload{e.Name} }

// DecodeNewPlayer はペイロードから NewPlayer を復元します。
func DecodeNewPlayer(p Payload) (Event, error) {
	if err := p.expectLen(KindNewPlayer, 1); err != nil {
		return nil, err
	}
	name, err := p.StringAt(0)
	if err != nil {
		return nil, err
	}
	return NewPlayer{Name: name}, nil
}

// PlayerInfo はプレイヤー一覧の1エントリです。
type PlayerInfo struct {
	Name   string
	Actor  int32
	Kills  int32
	Deaths int32
}

const playerInfoFields = 4

// ListPlayers はマスタークライアントが保持するプレイヤー一覧とマッチ状態を配布します。
//
//	state   byte
//	players (name string, actor int32, kills int32, deaths int32)*
type ListPlayers struct {
	State   MatchState
	// Players が空の場合、nil と空スライスは同じペイロードになり、復元時は nil になります。
	Players []PlayerInfo
}

func (ListPlayers) Kind() Kind               { return KindListPlayers }
func (ListPlayers) Options() DeliveryOptions { return reliableToAll }

func (e ListPlayers) Payload() Payload {
	p := make(Payload, 0, 1+len(e.Players)*playerInfoFields)
	p = append(p, byte(e.State))
	for _, pl := range e.Players {
		p = append(p, pl.Name, pl.Actor, pl.Kills, pl.Deaths)
	}
	return p
}

// DecodeListPlayers はペイロードから ListPlayers を復元します。
// プレイヤーが0人の場合 Players は nil です。
func DecodeListPlayers(p Payload) (Event, error) {
	if len(p) == 0 || (len(p)-1)%playerInfoFields != 0 {
		return nil, fmt.Errorf("%w: %s got %d values", ErrPayloadShape, KindListPlayers, len(p))
	}
	state, err := p.ByteAt(0)
	if err != nil {
		return nil, err
	}
	ev := ListPlayers{State: MatchState(state)}
	count := (len(p) - 1) / playerInfoFields
	if count > 0 {
		ev.Players = make([]PlayerInfo, 0, count)
	}
	for i := 1; i < len(p); i += playerInfoFields {
		var pl PlayerInfo
		if pl.Name, err = p.StringAt(i); err != nil {
			return nil, err
		}
		if pl.Actor, err = p.Int32At(i + 1); err != nil {
			return nil, err
		}
		if pl.Kills, err = p.Int32At(i + 2); err != nil {
			return nil, err
		}
		if pl.Deaths, err = p.Int32At(i + 3); err != nil {
			return nil, err
		}
		ev.Players = append(ev.Players, pl)
	}
	return ev, nil
}

// Stat は UpdateStat で更新する統計値の種別です。
type Stat uint8

const (
	StatKills Stat = iota
	StatDeaths
)

func (s Stat) String() string {
	switch s {
	case StatKills:
		return "kills"
	case StatDeaths:
		return "deaths"
	default:
		return fmt.Sprintf("stat(%d)", uint8(s))
	}
}

// UpdateStat はプレイヤーのキル数・デス数の増減を通知します。
//
//	actor  int32
//	stat   byte
//	amount int32
type UpdateStat struct {
	Actor  int32
	Stat   Stat
	Amount int32
}

func (UpdateStat) Kind() Kind               { return KindUpdateStat }
func (UpdateStat) Options() DeliveryOptions { return reliableToAll }
func (e UpdateStat) Payload() Payload       { return Payload{e.Actor, byte(e.Stat), e.Amount} }

// DecodeUpdateStat はペイロードから UpdateStat を復元します。
func DecodeUpdateStat(p Payload) (Event, error) {
	if err := p.expectLen(KindUpdateStat, 3); err != nil {
		return nil, err
	}
	actor, err := p.Int32At(0)
	if err != nil {
		return nil, err
	}
	stat, err := p.ByteAt(1)
	if err != nil {
		return nil, err
	}
	amount, err := p.Int32At(2)
	if err != nil {
		return nil, err
	}
	return UpdateStat{Actor: actor, Stat: Stat(stat), Amount: amount}, nil
}

// CreatePlayer はアクターのスポーン位置を通知します。
//
//	actor      int32
//	spawnIndex int32
type CreatePlayer struct {
	Actor      int32
	SpawnIndex int32
}

func (CreatePlayer) Kind() Kind               { return KindCreatePlayer }
func (CreatePlayer) Options() DeliveryOptions { return reliableToAll }
func (e CreatePlayer) Payload() Payload       { return Payload{e.Actor, e.SpawnIndex} }

// DecodeCreatePlayer はペイロードから CreatePlayer を復元します。
func DecodeCreatePlayer(p Payload) (Event, error) {
	if err := p.expectLen(KindCreatePlayer, 2); err != nil {
		return nil, err
	}
	actor, err := p.Int32At(0)
	if err != nil {
		return nil, err
	}
	spawn, err := p.Int32At(1)
	if err != nil {
		return nil, err
	}
	return CreatePlayer{Actor: actor, SpawnIndex: spawn}, nil
}
