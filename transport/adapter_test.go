package transport_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"crossfire/dispatch"
	"crossfire/domain"
	"crossfire/domain/mocks"
	"crossfire/event"
	"crossfire/transport"
	"crossfire/wire"
)

type inbound struct {
	code    byte
	sender  int32
	payload event.Payload
}

// startAdapter は frames に書き込んだフレームを順に読み出すアダプターを起動する
func startAdapter(t *testing.T) (*transport.Adapter, *mocks.MockTransport, chan<- []byte, <-chan inbound) {
	t.Helper()
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)

	frames := make(chan []byte, 16)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		select {
		case data := <-frames:
			return data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}).AnyTimes()

	a := transport.NewAdapter(tr)
	received := make(chan inbound, 16)
	a.OnEvent(transport.InboundHandlerFunc(func(ctx context.Context, code byte, payload event.Payload) {
		sender, _ := transport.SenderFrom(ctx)
		received <- inbound{code: code, sender: sender, payload: payload}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
	return a, tr, frames, received
}

func waitInbound(t *testing.T, ch <-chan inbound) inbound {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
		return inbound{}
	}
}

func join(t *testing.T, a *transport.Adapter, frames chan<- []byte, received <-chan inbound, actor, master int32) {
	t.Helper()
	frames <- wire.EncodeJoinMessage(actor, master)
	waitInbound(t, received)
}

func TestAdapter_PublishBeforeJoin(t *testing.T) {
	a, _, _, _ := startAdapter(t)

	err := a.Publish(context.Background(), event.KindNewPlayer, event.Payload{"Alice"}, event.DeliveryOptions{})
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestAdapter_TracksActorAndMaster(t *testing.T) {
	a, _, frames, received := startAdapter(t)

	join(t, a, frames, received, 3, 1)
	if err := a.WaitJoined(context.Background()); err != nil {
		t.Fatalf("WaitJoined failed: %v", err)
	}
	if a.ActorNumber() != 3 {
		t.Errorf("ActorNumber = %d, want 3", a.ActorNumber())
	}
	if a.IsMasterClient() {
		t.Error("IsMasterClient = true, want false")
	}

	// 他のピアの参加では自身のアクター番号は変わらない
	join(t, a, frames, received, 4, 1)
	if a.ActorNumber() != 3 {
		t.Errorf("ActorNumber after peer join = %d, want 3", a.ActorNumber())
	}

	frames <- wire.EncodeMasterChangedMessage(3)
	waitInbound(t, received)
	if !a.IsMasterClient() {
		t.Error("IsMasterClient = false after master changed to self")
	}
	if a.MasterActor() != 3 {
		t.Errorf("MasterActor = %d, want 3", a.MasterActor())
	}
}

func TestAdapter_PublishEncodesFrame(t *testing.T) {
	a, tr, frames, received := startAdapter(t)
	join(t, a, frames, received, 2, 2)

	var written []byte
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		written = data
		return nil
	})

	opts := event.DeliveryOptions{Receivers: event.ReceiverAll, Reliable: true}
	if err := a.Publish(context.Background(), event.KindNewPlayer, event.Payload{"Alice"}, opts); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	f, err := wire.ParseFrame(written)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if f.Code != byte(event.KindNewPlayer) {
		t.Errorf("Code = %d, want %d", f.Code, event.KindNewPlayer)
	}
	if f.Options() != opts {
		t.Errorf("Options = %+v, want %+v", f.Options(), opts)
	}
	if f.Sender != 2 {
		t.Errorf("Sender = %d, want 2", f.Sender)
	}
	if f.Seq != 1 {
		t.Errorf("Seq = %d, want 1", f.Seq)
	}
	if !reflect.DeepEqual(f.Payload, event.Payload{"Alice"}) {
		t.Errorf("Payload = %#v", f.Payload)
	}
}

func TestAdapter_PublishRejectsUnsupportedValue(t *testing.T) {
	a, _, frames, received := startAdapter(t)
	join(t, a, frames, received, 1, 1)

	err := a.Publish(context.Background(), event.KindNewPlayer, event.Payload{42}, event.DeliveryOptions{})
	if !errors.Is(err, wire.ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestAdapter_PublishWrapsWriteError(t *testing.T) {
	a, tr, frames, received := startAdapter(t)
	join(t, a, frames, received, 1, 1)

	writeErr := errors.New("broken pipe")
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).Return(writeErr)

	err := a.Publish(context.Background(), event.KindNextMatch, event.Payload{}, event.DeliveryOptions{})
	if !errors.Is(err, writeErr) {
		t.Errorf("expected wrapped write error, got %v", err)
	}
}

func TestAdapter_AnswersPing(t *testing.T) {
	a, tr, frames, received := startAdapter(t)
	join(t, a, frames, received, 5, 1)

	pong := make(chan []byte, 1)
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		pong <- data
		return nil
	})
	frames <- wire.EncodePingMessage()

	if in := waitInbound(t, received); in.code != wire.CodePing {
		t.Errorf("forwarded code = %d, want ping", in.code)
	}
	select {
	case data := <-pong:
		f, err := wire.ParseFrame(data)
		if err != nil {
			t.Fatalf("ParseFrame failed: %v", err)
		}
		if f.Code != wire.CodePong || f.Sender != 5 {
			t.Errorf("pong = code %d sender %d", f.Code, f.Sender)
		}
	case <-time.After(time.Second):
		t.Fatal("no pong written")
	}
}

// 予約コードを含めて受信フレームはそのまま転送される
func TestAdapter_ForwardsFramesVerbatim(t *testing.T) {
	a, _, frames, received := startAdapter(t)
	join(t, a, frames, received, 1, 1)

	f := wire.NewFrame(210, event.Payload{"x", int32(9)}, event.DeliveryOptions{})
	f.Sender = 7
	data, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frames <- data
	frames <- []byte{0x01} // 壊れたフレームは読み飛ばされる
	frames <- wire.EncodeLeaveMessage(7)

	got := waitInbound(t, received)
	want := inbound{code: 210, sender: 7, payload: event.Payload{"x", int32(9)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got := waitInbound(t, received); got.code != wire.CodeLeave {
		t.Errorf("code = %d, want leave", got.code)
	}
}

func TestAdapter_RunReturnsReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).Return(nil, errors.New("connection reset"))

	a := transport.NewAdapter(tr)
	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	err := a.Publish(context.Background(), event.KindNextMatch, nil, event.DeliveryOptions{})
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after read error, got %v", err)
	}
}

func TestAdapter_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Close(domain.CloseNormal, "").Return(nil).Times(1)

	a := transport.NewAdapter(tr)
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	err := a.Publish(context.Background(), event.KindNextMatch, nil, event.DeliveryOptions{})
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

// ディスパッチャーと組み合わせた送受信
func TestAdapter_WithDispatcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	frames := make(chan []byte, 4)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		select {
		case data := <-frames:
			return data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}).AnyTimes()

	a := transport.NewAdapter(tr)
	d := dispatch.New(a)
	a.OnEvent(d)

	type delivery struct {
		ev     event.NewPlayer
		sender int32
	}
	got := make(chan delivery, 1)
	dispatch.Subscribe(d, func(ctx context.Context, ev event.NewPlayer) {
		sender, _ := transport.SenderFrom(ctx)
		got <- delivery{ev: ev, sender: sender}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	frames <- wire.EncodeJoinMessage(1, 1)
	if err := a.WaitJoined(ctx); err != nil {
		t.Fatalf("WaitJoined failed: %v", err)
	}

	written := make(chan []byte, 1)
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, data []byte) error {
		written <- data
		return nil
	})
	d.SendEvent(ctx, event.NewPlayer{Name: "Alice"})

	// リレーからのエコーを模して送信者を刻印して戻す
	data := <-written
	if err := wire.SetSender(data, 2); err != nil {
		t.Fatalf("SetSender failed: %v", err)
	}
	frames <- data

	select {
	case dl := <-got:
		if dl.ev.Name != "Alice" || dl.sender != 2 {
			t.Errorf("got %+v", dl)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
