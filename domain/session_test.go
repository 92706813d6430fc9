package domain

import (
	"testing"
	"time"
)

// TestNewSession_InitializesTimestamps は NewSession がタイムスタンプを初期化することを確認します。
func TestNewSession_InitializesTimestamps(t *testing.T) {
	s := NewSession()

	if s.lastRead.Load() == 0 {
		t.Errorf("lastRead is not initialized")
	}
	if s.lastWrite.Load() == 0 {
		t.Errorf("lastWrite is not initialized")
	}
	if s.lastPong.Load() == 0 {
		t.Errorf("lastPong is not initialized")
	}
	if s.ID().IsZero() {
		t.Errorf("session ID is zero")
	}
}

func TestSession_TouchWrite(t *testing.T) {
	s := NewSession()
	s.lastWrite.Store(time.Now().Add(-time.Minute).UnixNano())
	before := s.LastWrite()

	s.TouchWrite()
	if !s.LastWrite().After(before) {
		t.Errorf("LastWrite = %v, want after %v", s.LastWrite(), before)
	}
}

func TestSession_IDsAreUnique(t *testing.T) {
	a, b := NewSession(), NewSession()
	if a.ID() == b.ID() {
		t.Errorf("duplicate session ID %s", a.ID())
	}
}

func TestSession_IsIdle(t *testing.T) {
	s := NewSession()
	stale := time.Now().Add(-time.Minute).UnixNano()

	if idle, reason := s.IsIdle(0, true); idle || reason != IdleDisabled {
		t.Errorf("IsIdle(0) = %v, %s", idle, reason)
	}
	if idle, _ := s.IsIdle(time.Second, true); idle {
		t.Error("fresh session reported idle")
	}

	s.lastRead.Store(stale)
	idle, reason := s.IsIdle(time.Second, true)
	if !idle || reason != IdleRead {
		t.Errorf("IsIdle = %v, %s; want true, read", idle, reason)
	}

	s.lastPong.Store(stale)
	if _, reason := s.IsIdle(time.Second, true); reason.String() != "read|pong" {
		t.Errorf("reason = %s, want read|pong", reason)
	}

	s.TouchRead()
	s.TouchPong()
	if idle, _ := s.IsIdle(time.Second, true); idle {
		t.Error("session idle after touch")
	}
}

// ping を送っていない間は pong の途絶を idle とみなさない
func TestSession_IsIdleWithoutPings(t *testing.T) {
	s := NewSession()
	s.lastPong.Store(time.Now().Add(-time.Minute).UnixNano())

	if idle, reason := s.IsIdle(time.Second, false); idle {
		t.Errorf("IsIdle(pings=false) = true, %s; want false", reason)
	}
	if idle, reason := s.IsIdle(time.Second, true); !idle || reason != IdlePong {
		t.Errorf("IsIdle(pings=true) = %v, %s; want true, pong", idle, reason)
	}

	s.lastRead.Store(time.Now().Add(-time.Minute).UnixNano())
	if idle, reason := s.IsIdle(time.Second, false); !idle || reason != IdleRead {
		t.Errorf("IsIdle(pings=false) = %v, %s; want true, read", idle, reason)
	}
}

func TestSession_CloseOnce(t *testing.T) {
	s := NewSession()
	if !s.Close(CloseReasonIdle) {
		t.Fatal("first Close returned false")
	}
	if s.Close(CloseReasonClient) {
		t.Error("second Close returned true")
	}
	if s.CloseReason() != CloseReasonIdle {
		t.Errorf("CloseReason = %s, want idle", s.CloseReason())
	}
	if !s.IsClosed() {
		t.Error("IsClosed = false")
	}
}

func TestCloseReason_StatusCode(t *testing.T) {
	tests := []struct {
		reason CloseReason
		want   int32
	}{
		{CloseReasonClient, CloseNormal},
		{CloseReasonShutdown, CloseGoingAway},
		{CloseReasonBackpressure, ClosePolicy},
		{CloseReasonRoomFull, ClosePolicy},
		{CloseReasonReadError, CloseInternalError},
	}
	for _, tt := range tests {
		if got := tt.reason.StatusCode(); got != tt.want {
			t.Errorf("%s.StatusCode() = %d, want %d", tt.reason, got, tt.want)
		}
	}
}
