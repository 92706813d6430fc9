package relay

import "crossfire/domain"

type endpointEventKind uint8

const (
	// unknown
	unknown endpointEventKind = iota

	// I/O
	evPong       // pong を受信した
	evReadError  // 読み込みに失敗した
	evWriteError // 書き込みに失敗した

	// ctrl
	evClose // セッション終了
)

type endpointEvent struct {
	kind   endpointEventKind
	reason domain.CloseReason
	err    error
}
