// Package event はネットワーク越しに送受信するアプリケーションイベントのカタログです。
//
// 各イベント種別は1つの具象型と、ペイロードへのエンコード/デコード関数の組を持ちます。
// 新しい種別を追加するときは Kind の定数、具象型、Decoders のエントリを1つずつ追加します。
package event

// Event は1回分のイベント発生を表します。
// Kind は値レシーバで実装し、ゼロ値からでも種別を取得できるようにします。
type Event interface {
	Kind() Kind
	Options() DeliveryOptions
	Payload() Payload
}

// Decoder はペイロードから型付きイベントを復元します。
type Decoder func(Payload) (Event, error)

// DecoderProvider はカタログ外のイベントが自身の Decoder を提供するためのインターフェースです。
// ディスパッチャーは未登録の種別を初めて送信したときにこれを取り込みます。
type DecoderProvider interface {
	Decoder() Decoder
}

// Unwrap は WithOptions などでラップされたイベントの元のイベントを返します。
func Unwrap(ev Event) Event {
	for {
		u, ok := ev.(interface{ Unwrap() Event })
		if !ok {
			return ev
		}
		ev = u.Unwrap()
	}
}
