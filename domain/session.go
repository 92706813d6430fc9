// Package domain はリレーとクライアントが共有する接続・セッションの基本型です。
package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionID はリレー上の1接続を識別します。
type SessionID uuid.UUID

func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// IsZero は未割り当ての ID かどうかを返します。
func (id SessionID) IsZero() bool {
	return id == SessionID(uuid.Nil)
}

// Session は1接続の論理的な状態を表す構造体です。
// 最終アクティビティ時刻はループ間で共有されるためアトミックに更新します。
type Session struct {
	id SessionID

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// lifecycle
	closed      atomic.Bool
	closeReason atomic.Uint32
}

func NewSession() *Session {
	s := &Session{
		id: NewSessionID(),
	}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	s.lastPong.Store(now)
	return s
}

func (s *Session) ID() SessionID {
	return s.id
}

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

// LastWrite は最後に書き込みが成功した時刻を返します。
func (s *Session) LastWrite() time.Time {
	return unixNanoToTime(s.lastWrite.Load())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

// Close はセッションを閉じた状態にします。最初の呼び出しのみ true を返し、理由が記録されます。
func (s *Session) Close(reason CloseReason) bool {
	if s.closed.CompareAndSwap(false, true) {
		s.closeReason.Store(uint32(reason))
		return true
	}
	return false
}

func (s *Session) CloseReason() CloseReason {
	return CloseReason(s.closeReason.Load())
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// IsIdle は読み込み・pong のいずれかが timeout を超えて途絶えているかを返します。
// pong は pings が true (ping を送信している) の場合のみ判定に含めます。書き込みは含めません。
func (s *Session) IsIdle(timeout time.Duration, pings bool) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if s.IsReadIdle(timeout) {
		reason |= IdleRead
	}
	if pings && s.IsPongIdle(timeout) {
		reason |= IdlePong
	}
	return reason != IdleNone, reason
}

func (s *Session) IsReadIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastRead.Load()), timeout)
}

func (s *Session) IsPongIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastPong.Load()), timeout)
}

func isIdleSince(last time.Time, timeout time.Duration) bool {
	return time.Since(last) > timeout
}

func unixNanoToTime(nano int64) time.Time {
	return time.Unix(0, nano)
}
