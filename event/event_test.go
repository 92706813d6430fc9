package event_test

import (
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"crossfire/event"
)

func genPlayerInfo() *rapid.Generator[event.PlayerInfo] {
	return rapid.Custom(func(t *rapid.T) event.PlayerInfo {
		return event.PlayerInfo{
			Name:   rapid.String().Draw(t, "name"),
			Actor:  rapid.Int32().Draw(t, "actor"),
			Kills:  rapid.Int32().Draw(t, "kills"),
			Deaths: rapid.Int32().Draw(t, "deaths"),
		}
	})
}

func genEvent() *rapid.Generator[event.Event] {
	return rapid.OneOf(
		rapid.Custom(func(t *rapid.T) event.Event {
			return event.NewPlayer{Name: rapid.String().Draw(t, "name")}
		}),
		rapid.Custom(func(t *rapid.T) event.Event {
			players := rapid.SliceOfN(genPlayerInfo(), 0, 8).Draw(t, "players")
			// 0人のプレイヤー一覧は nil として復元される
			if len(players) == 0 {
				players = nil
			}
			return event.ListPlayers{
				State:   event.MatchState(rapid.Byte().Draw(t, "state")),
				Players: players,
			}
		}),
		rapid.Custom(func(t *rapid.T) event.Event {
			return event.UpdateStat{
				Actor:  rapid.Int32().Draw(t, "actor"),
				Stat:   event.Stat(rapid.Byte().Draw(t, "stat")),
				Amount: rapid.Int32().Draw(t, "amount"),
			}
		}),
		rapid.Just[event.Event](event.NextMatch{}),
		rapid.Custom(func(t *rapid.T) event.Event {
			return event.TimerSync{
				Remaining: rapid.Int32().Draw(t, "remaining"),
				State:     event.MatchState(rapid.Byte().Draw(t, "state")),
			}
		}),
		rapid.Custom(func(t *rapid.T) event.Event {
			return event.MatchSettings{
				MapIndex:    rapid.Int32().Draw(t, "map"),
				MatchLength: rapid.Int32().Draw(t, "length"),
				KillTarget:  rapid.Int32().Draw(t, "target"),
				Perpetual:   rapid.Bool().Draw(t, "perpetual"),
			}
		}),
		rapid.Custom(func(t *rapid.T) event.Event {
			return event.CreatePlayer{
				Actor:      rapid.Int32().Draw(t, "actor"),
				SpawnIndex: rapid.Int32().Draw(t, "spawn"),
			}
		}),
	)
}

func TestCatalogRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ev := genEvent().Draw(t, "event")

		decoded, err := event.Decode(ev.Kind(), ev.Payload())
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", ev.Kind(), err)
		}
		if !reflect.DeepEqual(decoded, ev) {
			t.Fatalf("decoded = %#v, want %#v", decoded, ev)
		}
	})
}

func TestCatalogRoundTripBoundaries(t *testing.T) {
	tests := []struct {
		name string
		ev   event.Event
	}{
		{"empty name", event.NewPlayer{Name: ""}},
		{"unicode name", event.NewPlayer{Name: "プレイヤー"}},
		{"no players", event.ListPlayers{State: event.MatchWaiting}},
		{"negative actor", event.ListPlayers{
			State:   event.MatchEnding,
			Players: []event.PlayerInfo{{Name: "", Actor: -1, Kills: 0, Deaths: -5}},
		}},
		{"zero stat", event.UpdateStat{}},
		{"negative amount", event.UpdateStat{Actor: -7, Stat: event.StatDeaths, Amount: -1}},
		{"next match", event.NextMatch{}},
		{"timer zero", event.TimerSync{}},
		{"settings", event.MatchSettings{MapIndex: 2, MatchLength: 180, KillTarget: 10, Perpetual: true}},
		{"create player", event.CreatePlayer{Actor: 0, SpawnIndex: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := event.Decode(tt.ev.Kind(), tt.ev.Payload())
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.ev) {
				t.Errorf("decoded = %#v, want %#v", decoded, tt.ev)
			}
		})
	}
}

func TestListPlayersEmptyDecodesToNil(t *testing.T) {
	empty := event.ListPlayers{State: event.MatchPlaying, Players: []event.PlayerInfo{}}
	none := event.ListPlayers{State: event.MatchPlaying}

	if !reflect.DeepEqual(empty.Payload(), none.Payload()) {
		t.Fatalf("payloads differ: %#v vs %#v", empty.Payload(), none.Payload())
	}
	decoded, err := event.Decode(event.KindListPlayers, empty.Payload())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got := decoded.(event.ListPlayers)
	if got.Players != nil {
		t.Errorf("Players = %#v, want nil", got.Players)
	}
	if got.State != event.MatchPlaying {
		t.Errorf("State = %v, want playing", got.State)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    event.Kind
		payload event.Payload
	}{
		{"new player missing name", event.KindNewPlayer, event.Payload{}},
		{"new player wrong type", event.KindNewPlayer, event.Payload{int32(1)}},
		{"list players empty", event.KindListPlayers, event.Payload{}},
		{"list players partial entry", event.KindListPlayers, event.Payload{byte(0), "a", int32(1)}},
		{"list players wrong state type", event.KindListPlayers, event.Payload{int32(0)}},
		{"update stat too long", event.KindUpdateStat, event.Payload{int32(1), byte(0), int32(1), int32(1)}},
		{"update stat int stat", event.KindUpdateStat, event.Payload{int32(1), int32(0), int32(1)}},
		{"next match with values", event.KindNextMatch, event.Payload{"x"}},
		{"timer sync swapped", event.KindTimerSync, event.Payload{byte(1), int32(30)}},
		{"settings missing flag", event.KindMatchSettings, event.Payload{int32(0), int32(0), int32(0)}},
		{"create player string", event.KindCreatePlayer, event.Payload{"1", int32(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := event.Decode(tt.kind, tt.payload)
			if !errors.Is(err, event.ErrPayloadShape) {
				t.Errorf("expected ErrPayloadShape, got %v", err)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := event.Decode(event.Kind(42), event.Payload{})
	if !errors.Is(err, event.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodersCoverCatalog(t *testing.T) {
	decoders := event.Decoders()
	if len(decoders) != len(event.Kinds) {
		t.Fatalf("decoders = %d, kinds = %d", len(decoders), len(event.Kinds))
	}
	for _, k := range event.Kinds {
		if _, ok := decoders[k]; !ok {
			t.Errorf("no decoder for %s", k)
		}
		if k.IsReserved() {
			t.Errorf("%s is in the reserved range", k)
		}
	}
}

func TestDecodersReturnsCopy(t *testing.T) {
	d := event.Decoders()
	delete(d, event.KindNewPlayer)

	if _, ok := event.Decoders()[event.KindNewPlayer]; !ok {
		t.Error("mutating the returned table changed the catalog")
	}
}

func TestKindIsReserved(t *testing.T) {
	tests := []struct {
		kind event.Kind
		want bool
	}{
		{0, false},
		{199, false},
		{200, true},
		{255, true},
	}
	for _, tt := range tests {
		if got := tt.kind.IsReserved(); got != tt.want {
			t.Errorf("Kind(%d).IsReserved() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	tests := []struct {
		ev   event.Event
		want event.DeliveryOptions
	}{
		{event.NewPlayer{}, event.DeliveryOptions{Receivers: event.ReceiverAll, Reliable: true}},
		{event.ListPlayers{}, event.DeliveryOptions{Receivers: event.ReceiverAll, Reliable: true}},
		{event.TimerSync{}, event.DeliveryOptions{Receivers: event.ReceiverAll, Reliable: false}},
	}
	for _, tt := range tests {
		if got := tt.ev.Options(); got != tt.want {
			t.Errorf("%s.Options() = %+v, want %+v", tt.ev.Kind(), got, tt.want)
		}
	}
}

func TestWithOptions(t *testing.T) {
	opts := event.DeliveryOptions{Receivers: event.ReceiverMasterClient, Reliable: true}
	ev := event.WithOptions(event.NewPlayer{Name: "Alice"}, opts)

	if ev.Kind() != event.KindNewPlayer {
		t.Errorf("Kind = %s, want NewPlayer", ev.Kind())
	}
	if ev.Options() != opts {
		t.Errorf("Options = %+v, want %+v", ev.Options(), opts)
	}
	if !reflect.DeepEqual(ev.Payload(), event.Payload{"Alice"}) {
		t.Errorf("Payload = %v", ev.Payload())
	}

	// 二重に包んでも最後のオプションだけが残る
	again := event.WithOptions(ev, event.DeliveryOptions{Receivers: event.ReceiverOthers})
	if again.Options().Receivers != event.ReceiverOthers {
		t.Errorf("Receivers = %s, want others", again.Options().Receivers)
	}
	if _, ok := event.Unwrap(again).(event.NewPlayer); !ok {
		t.Errorf("Unwrap = %T, want event.NewPlayer", event.Unwrap(again))
	}
}
