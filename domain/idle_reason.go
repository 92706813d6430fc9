package domain

import "fmt"

type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdlePong     IdleReason = 1 << 1
	IdleDisabled IdleReason = 1 << 7 // timeout<=0 のとき
)

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	switch r {
	case IdleNone:
		return "none"
	case IdleDisabled:
		return "disabled"
	case IdleRead:
		return "read"
	case IdlePong:
		return "pong"
	case IdleRead | IdlePong:
		return "read|pong"
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}

// CloseReason はセッションが閉じられた理由です。
type CloseReason uint8

const (
	CloseReasonNone CloseReason = iota
	CloseReasonClient
	CloseReasonIdle
	CloseReasonBackpressure
	CloseReasonReadError
	CloseReasonWriteError
	CloseReasonRoomFull
	CloseReasonShutdown
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonNone:
		return "none"
	case CloseReasonClient:
		return "client"
	case CloseReasonIdle:
		return "idle"
	case CloseReasonBackpressure:
		return "backpressure"
	case CloseReasonReadError:
		return "read_error"
	case CloseReasonWriteError:
		return "write_error"
	case CloseReasonRoomFull:
		return "room_full"
	case CloseReasonShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}

// StatusCode は理由に対応する接続終了コードを返します。
func (r CloseReason) StatusCode() int32 {
	switch r {
	case CloseReasonClient, CloseReasonNone:
		return CloseNormal
	case CloseReasonShutdown:
		return CloseGoingAway
	case CloseReasonBackpressure, CloseReasonRoomFull:
		return ClosePolicy
	default:
		return CloseInternalError
	}
}
