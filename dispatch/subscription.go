package dispatch

import (
	"sync"

	"crossfire/event"
)

// Subscription は RegisterHandler で登録したハンドラーの登録解除トークンです。
type Subscription struct {
	dispatcher *Dispatcher
	kind       event.Kind
	id         uint64
	once       sync.Once
}

// Kind は登録先の種別を返します。
func (s *Subscription) Kind() event.Kind {
	return s.kind
}

// Unsubscribe はハンドラーの登録を解除します。複数回呼んでも安全です。
// 配送中のイベントに対しては、解除前に取得したスナップショットに従って呼ばれる可能性があります。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.dispatcher.unregister(s.kind, s.id)
	})
}
