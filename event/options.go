package event

// ReceiverGroup はイベントの配送先グループです。
type ReceiverGroup uint8

const (
	// ReceiverOthers は送信者以外の全ピアに配送します。
	ReceiverOthers ReceiverGroup = iota
	// ReceiverAll は送信者を含む全ピアに配送します。
	ReceiverAll
	// ReceiverMasterClient はマスタークライアントのみに配送します。
	ReceiverMasterClient
)

func (g ReceiverGroup) String() string {
	switch g {
	case ReceiverOthers:
		return "others"
	case ReceiverAll:
		return "all"
	case ReceiverMasterClient:
		return "master"
	default:
		return "unknown"
	}
}

// Valid は既知の配送先グループかどうかを返します。
func (g ReceiverGroup) Valid() bool {
	return g <= ReceiverMasterClient
}

// DeliveryOptions は1回の送信に対する配送オプションです。
type DeliveryOptions struct {
	Receivers ReceiverGroup
	// Reliable が true の場合、到達保証・順序保証ありで配送されます。
	Reliable bool
}

var (
	reliableToAll   = DeliveryOptions{Receivers: ReceiverAll, Reliable: true}
	unreliableToAll = DeliveryOptions{Receivers: ReceiverAll, Reliable: false}
)

type withOptions struct {
	Event
	opts DeliveryOptions
}

func (w withOptions) Options() DeliveryOptions { return w.opts }
func (w withOptions) Unwrap() Event            { return w.Event }

// WithOptions は ev の配送オプションだけを差し替えたイベントを返します。
func WithOptions(ev Event, opts DeliveryOptions) Event {
	if w, ok := ev.(withOptions); ok {
		ev = w.Event
	}
	return withOptions{Event: ev, opts: opts}
}
