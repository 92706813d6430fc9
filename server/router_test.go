package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crossfire/dispatch"
	"crossfire/event"
	"crossfire/server"
	"crossfire/server/relay"
	"crossfire/transport"
	wstransport "crossfire/transport/websocket"
)

func startRelay(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reg := prometheus.NewRegistry()
	metrics := relay.NewMetrics(reg)
	ps := relay.NewSimplePubSub(256)
	rooms := relay.NewRoomManager(ctx, ps, nil, metrics)
	cfg := relay.EndpointConfig{WriteQueue: 64, Metrics: metrics}

	srv := httptest.NewUnstartedServer(server.Route(ps, rooms, "default", cfg, reg))
	srv.Config.BaseContext = func(net.Listener) context.Context { return ctx }
	srv.Start()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = rooms.Wait()
	})
	return srv, reg
}

type testClient struct {
	adapter    *transport.Adapter
	dispatcher *dispatch.Dispatcher
}

func connect(t *testing.T, ctx context.Context, srv *httptest.Server, room string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + room
	conn, err := wstransport.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	a := transport.NewAdapter(conn)
	d := dispatch.New(a)
	a.OnEvent(d)
	go func() { _ = a.Run(ctx) }()
	t.Cleanup(func() { _ = a.Close() })

	if err := a.WaitJoined(ctx); err != nil {
		t.Fatalf("WaitJoined: %v", err)
	}
	return &testClient{adapter: a, dispatcher: d}
}

func TestRelay_EndToEnd(t *testing.T) {
	srv, _ := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := connect(t, ctx, srv, "e2e")
	bob := connect(t, ctx, srv, "e2e")

	if !alice.adapter.IsMasterClient() {
		t.Error("first client should be master")
	}
	if bob.adapter.ActorNumber() != 2 {
		t.Errorf("bob actor = %d, want 2", bob.adapter.ActorNumber())
	}

	got := make(chan event.NewPlayer, 1)
	dispatch.Subscribe(bob.dispatcher, func(ctx context.Context, ev event.NewPlayer) {
		if sender, _ := transport.SenderFrom(ctx); sender != 1 {
			t.Errorf("sender = %d, want 1", sender)
		}
		got <- ev
	})
	alice.dispatcher.RegisterHandler(event.KindNewPlayer, func(context.Context, event.Event) {})

	alice.dispatcher.SendEvent(ctx, event.WithOptions(event.NewPlayer{Name: "Alice"}, event.DeliveryOptions{Receivers: event.ReceiverOthers, Reliable: true}))

	select {
	case ev := <-got:
		if ev.Name != "Alice" {
			t.Errorf("Name = %q, want Alice", ev.Name)
		}
	case <-ctx.Done():
		t.Fatal("bob did not receive NewPlayer")
	}
}

func TestRelay_RoomsAreIsolated(t *testing.T) {
	srv, _ := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := connect(t, ctx, srv, "one")
	b := connect(t, ctx, srv, "two")

	if !a.adapter.IsMasterClient() || !b.adapter.IsMasterClient() {
		t.Error("each room should have its own master")
	}
	if a.adapter.ActorNumber() != 1 || b.adapter.ActorNumber() != 1 {
		t.Errorf("actors = %d, %d; want 1, 1", a.adapter.ActorNumber(), b.adapter.ActorNumber())
	}
}

func TestRelay_HealthAndMetrics(t *testing.T) {
	srv, _ := startRelay(t)

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestRelay_HealthListsRooms(t *testing.T) {
	srv, _ := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connect(t, ctx, srv, "beta")
	connect(t, ctx, srv, "alpha")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string   `json:"status"`
		Rooms  []string `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if !slices.Equal(body.Rooms, []string{"alpha", "beta"}) {
		t.Errorf("rooms = %v, want [alpha beta]", body.Rooms)
	}
}

func TestRelay_RoomRemovedAfterLastLeave(t *testing.T) {
	srv, _ := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := connect(t, ctx, srv, "transient")
	if rooms := healthRooms(t, srv); !slices.Equal(rooms, []string{"transient"}) {
		t.Fatalf("rooms = %v, want [transient]", rooms)
	}

	_ = c.adapter.Close()
	deadline := time.Now().Add(3 * time.Second)
	for len(healthRooms(t, srv)) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("room still listed after the last peer left: %v", healthRooms(t, srv))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func healthRooms(t *testing.T, srv *httptest.Server) []string {
	t.Helper()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Rooms []string `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Rooms
}
