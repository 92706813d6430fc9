package event

import (
	"errors"
	"fmt"
)

// ErrUnknownKind はカタログに存在しない種別をデコードしようとした場合に返されます。
var ErrUnknownKind = errors.New("event kind is not in the catalog")

// Kinds はカタログに含まれる全種別です。
var Kinds = []Kind{
	KindNewPlayer,
	KindListPlayers,
	KindUpdateStat,
	KindNextMatch,
	KindTimerSync,
	KindMatchSettings,
	KindCreatePlayer,
}

// Decoders はカタログの全種別に対するデコーダー表を新しく作って返します。
// 呼び出し側が変更しても他に影響しないよう毎回コピーを返します。
func Decoders() map[Kind]Decoder {
	return map[Kind]Decoder{
		KindNewPlayer:     DecodeNewPlayer,
		KindListPlayers:   DecodeListPlayers,
		KindUpdateStat:    DecodeUpdateStat,
		KindNextMatch:     DecodeNextMatch,
		KindTimerSync:     DecodeTimerSync,
		KindMatchSettings: DecodeMatchSettings,
		KindCreatePlayer:  DecodeCreatePlayer,
	}
}

// Decode はカタログのデコーダーで kind のペイロードを復元します。
func Decode(kind Kind, p Payload) (Event, error) {
	dec, ok := Decoders()[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return dec(p)
}
