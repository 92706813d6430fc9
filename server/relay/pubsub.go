package relay

import (
	"context"
	"errors"
	"sync"

	"crossfire/domain"
)

// ErrTopicFull は購読者のチャネルが満杯でメッセージを渡せなかった場合のエラーです。
var ErrTopicFull = errors.New("subscriber channel is full")

type Topic string

func roomTopic(id RoomID) Topic {
	return Topic("room:" + string(id))
}

func sessionTopic(id domain.SessionID) Topic {
	return Topic("session:" + id.String())
}

type messageKind uint8

const (
	msgData messageKind = iota
	msgJoin
	msgLeave
	msgClose
)

func (k messageKind) String() string {
	switch k {
	case msgData:
		return "data"
	case msgJoin:
		return "join"
	case msgLeave:
		return "leave"
	case msgClose:
		return "close"
	default:
		return "unknown"
	}
}

// Message はトピック上を流れる1メッセージです。
type Message struct {
	Kind      messageKind
	SessionID domain.SessionID
	Data      []byte
	// Reliable なフレームを渡せない場合、宛先のセッションは切断されます。
	Reliable bool
	// Reason は msgClose の切断理由です。
	Reason domain.CloseReason
}

// PubSub はルームとセッションエンドポイントをつなぐトピック型のメッセージバスです。
type PubSub interface {
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
	// Publish はブロックせずに全購読者へ配送します。1つでも渡せなかった場合 ErrTopicFull を返します。
	Publish(ctx context.Context, topic Topic, msg Message) error
}

// SimplePubSub はプロセス内で完結する PubSub です。
type SimplePubSub struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Message
	buffer int
}

func NewSimplePubSub(buffer int) *SimplePubSub {
	if buffer <= 0 {
		buffer = 1
	}
	return &SimplePubSub{
		subs:   make(map[Topic][]chan Message),
		buffer: buffer,
	}
}

func (ps *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, ps.buffer)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.subs[topic] = append(ps.subs[topic], ch)
	return ch
}

func (ps *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subs := ps.subs[topic]
	for i, c := range subs {
		if c == ch {
			ps.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(c)
			break
		}
	}
	if len(ps.subs[topic]) == 0 {
		delete(ps.subs, topic)
	}
}

func (ps *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var err error
	for _, ch := range ps.subs[topic] {
		select {
		case ch <- msg:
		default:
			err = ErrTopicFull
		}
	}
	return err
}

// Subscribers は topic の購読者数を返します。
func (ps *SimplePubSub) Subscribers(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subs[topic])
}
