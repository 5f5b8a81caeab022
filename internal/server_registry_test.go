package internal

import (
	"testing"
	"time"
)

func TestRegistryJoinDefaults(t *testing.T) {
	registry := NewRegistry()
	user := registry.Join("0123456789", "  ", "")
	if user.Nickname != "User-012345" {
		t.Fatalf("unexpected nickname %q", user.Nickname)
	}
	if user.Color != DefaultColor {
		t.Fatalf("unexpected color %q", user.Color)
	}
	if got, ok := registry.Lookup("0123456789"); !ok || got != user {
		t.Fatalf("lookup returned %+v, %v", got, ok)
	}
}

func TestRegistryRosterOrderAndLeave(t *testing.T) {
	registry := NewRegistry()
	clock := time.Unix(1000, 0)
	registry.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	registry.Join("c", "carol", "")
	registry.Join("a", "alice", "")
	registry.Join("b", "bob", "")

	roster := registry.Roster()
	if len(roster) != 3 || roster[0].ID != "c" || roster[1].ID != "a" || roster[2].ID != "b" {
		t.Fatalf("expected join order c,a,b, got %+v", roster)
	}

	// rejoin keeps the slot
	registry.Join("c", "caroline", "#000000")
	roster = registry.Roster()
	if roster[0].ID != "c" || roster[0].Nickname != "caroline" {
		t.Fatalf("rejoin moved or kept stale identity: %+v", roster[0])
	}

	if user, ok := registry.Leave("a"); !ok || user.Nickname != "alice" {
		t.Fatalf("leave returned %+v, %v", user, ok)
	}
	if _, ok := registry.Leave("a"); ok {
		t.Fatal("second leave should report false")
	}
	if _, ok := registry.Leave("never-joined"); ok {
		t.Fatal("leave of unknown id should report false")
	}
	if registry.Len() != 2 {
		t.Fatalf("expected 2 users, got %d", registry.Len())
	}
}
