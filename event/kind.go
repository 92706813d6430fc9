package event

import "fmt"

// Kind はイベント種別を表す1バイトのコードです。
// 0〜199 はアプリケーション用、200 以上はトランスポートのシステムイベント用に予約されています。
type Kind uint8

const (
	KindNewPlayer Kind = iota
	KindListPlayers
	KindUpdateStat
	KindNextMatch
	KindTimerSync
	KindMatchSettings
	KindCreatePlayer
)

// MaxApplicationKind はアプリケーションが使用できる最大のコードです。
const MaxApplicationKind Kind = 199

// IsReserved はトランスポート予約領域 (>= 200) のコードかどうかを返します。
func (k Kind) IsReserved() bool {
	return k > MaxApplicationKind
}

func (k Kind) String() string {
	switch k {
	case KindNewPlayer:
		return "NewPlayer"
	case KindListPlayers:
		return "ListPlayers"
	case KindUpdateStat:
		return "UpdateStat"
	case KindNextMatch:
		return "NextMatch"
	case KindTimerSync:
		return "TimerSync"
	case KindMatchSettings:
		return "MatchSettings"
	case KindCreatePlayer:
		return "CreatePlayer"
	}
	if k.IsReserved() {
		return fmt.Sprintf("reserved(%d)", uint8(k))
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
