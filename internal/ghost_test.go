package internal

import (
	"errors"
	"testing"
)

func stamped(userID string, op Operation) RelayedOperation {
	return RelayedOperation{
		Stamp: Stamp{UserID: userID, Nickname: "nick-" + userID, Color: "#e74c3c", Timestamp: 1},
		Op:    op,
	}
}

func TestReconcilerAddMoveResizeDelete(t *testing.T) {
	draws := 0
	r := NewReconciler(RendererFunc(func() { draws++ }))
	r.SetSelf("me")

	if !r.Apply(stamped("u1", AddMaterial{MaterialID: "material-1", MaterialURL: "/uploads/a.png", X: 10, Y: 20, Width: 100, Height: 50})) {
		t.Fatal("add should change state")
	}
	key := GhostID("u1", "material-1")
	ghost, ok := r.Get(key)
	if !ok {
		t.Fatalf("ghost %s missing", key)
	}
	if ghost.UserID != "u1" || ghost.Nickname != "nick-u1" || ghost.UserColor != "#e74c3c" || ghost.URL != "/uploads/a.png" {
		t.Fatalf("unexpected ghost %+v", ghost)
	}

	r.Apply(stamped("u1", MoveMaterial{MaterialID: "material-1", X: 300, Y: 400}))
	r.Apply(stamped("u1", ResizeMaterial{MaterialID: "material-1", Width: 10, Height: 5}))
	ghost, _ = r.Get(key)
	if ghost.X != 300 || ghost.Y != 400 || ghost.Width != 10 || ghost.Height != 5 {
		t.Fatalf("move/resize not applied: %+v", ghost)
	}

	if !r.Apply(stamped("u1", DeleteMaterial{MaterialID: "material-1"})) {
		t.Fatal("delete should change state")
	}
	if r.Len() != 0 {
		t.Fatalf("expected no ghosts, got %d", r.Len())
	}
	if draws != 4 {
		t.Fatalf("expected one redraw per change, got %d", draws)
	}
}

func TestReconcilerIgnoresUnknownAndSelf(t *testing.T) {
	r := NewReconciler(nil)
	r.SetSelf("me")

	if r.Apply(stamped("u1", MoveMaterial{MaterialID: "material-7", X: 1, Y: 1})) {
		t.Fatal("move of unknown ghost should be ignored")
	}
	if r.Apply(stamped("u1", ResizeMaterial{MaterialID: "material-7", Width: 1, Height: 1})) {
		t.Fatal("resize of unknown ghost should be ignored")
	}
	if r.Apply(stamped("u1", DeleteMaterial{MaterialID: "material-7"})) {
		t.Fatal("delete of unknown ghost should be ignored")
	}
	if r.Apply(stamped("me", AddMaterial{MaterialID: "material-1"})) {
		t.Fatal("own operations must not create ghosts")
	}
	if r.Apply(stamped("u1", BackgroundChanged{BackgroundURL: "https://img"})) {
		t.Fatal("background changes do not touch ghosts")
	}
	if r.Len() != 0 {
		t.Fatalf("expected no ghosts, got %d", r.Len())
	}
}

func TestReconcilerRepeatedAddReplaces(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(stamped("u1", AddMaterial{MaterialID: "material-1", X: 1}))
	r.Apply(stamped("u2", AddMaterial{MaterialID: "material-1", X: 2}))
	r.Apply(stamped("u1", AddMaterial{MaterialID: "material-1", X: 3}))

	ghosts := r.Ghosts()
	if len(ghosts) != 2 {
		t.Fatalf("expected one ghost per owner, got %d", len(ghosts))
	}
	// the re-added ghost moves to the top
	if ghosts[0].UserID != "u2" || ghosts[1].UserID != "u1" || ghosts[1].X != 3 {
		t.Fatalf("unexpected order %+v", ghosts)
	}
	if ghosts[0].ZIndex != 0 || ghosts[1].ZIndex != 1 {
		t.Fatalf("unexpected z-order %d,%d", ghosts[0].ZIndex, ghosts[1].ZIndex)
	}
}

func TestReconcilerRemoveUserClearsOnlyTheirGhosts(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(stamped("u1", AddMaterial{MaterialID: "material-1"}))
	r.Apply(stamped("u2", AddMaterial{MaterialID: "material-1"}))
	r.Apply(stamped("u1", AddMaterial{MaterialID: "material-2"}))

	if removed := r.RemoveUser("u1"); removed != 2 {
		t.Fatalf("expected 2 ghosts removed, got %d", removed)
	}
	if removed := r.RemoveUser("u1"); removed != 0 {
		t.Fatalf("second removal should be a no-op, got %d", removed)
	}
	ghosts := r.Ghosts()
	if len(ghosts) != 1 || ghosts[0].UserID != "u2" {
		t.Fatalf("unexpected survivors %+v", ghosts)
	}
}

// Two users editing, one leaves: the other's ghosts stay.
func TestReconcilerSessionScenario(t *testing.T) {
	r := NewReconciler(nil)
	r.SetSelf("carol")

	events := []ServerEvent{
		PeerJoined{Peer: UserInfo{UserID: "carol", Nickname: "carol"}, Self: true},
		OperationReceived{Op: stamped("alice", AddMaterial{MaterialID: "material-1", X: 10, Y: 10, Width: 50, Height: 50})},
		OperationReceived{Op: stamped("bob", AddMaterial{MaterialID: "material-1", X: 500, Y: 500, Width: 80, Height: 80})},
		OperationReceived{Op: stamped("alice", MoveMaterial{MaterialID: "material-1", X: 100, Y: 120})},
		OperationReceived{Op: stamped("carol", DeleteMaterial{MaterialID: "material-1"})},
		PeerLeft{UserID: "bob"},
	}
	for _, event := range events {
		r.HandleEvent(event)
	}

	ghosts := r.Ghosts()
	if len(ghosts) != 1 {
		t.Fatalf("expected only alice's ghost, got %+v", ghosts)
	}
	if ghosts[0].ID != GhostID("alice", "material-1") || ghosts[0].X != 100 || ghosts[0].Y != 120 {
		t.Fatalf("unexpected ghost %+v", ghosts[0])
	}

	if !r.HandleEvent(Disconnected{Err: errors.New("gone")}) {
		t.Fatal("disconnect should clear ghosts")
	}
	if r.Len() != 0 {
		t.Fatalf("expected no ghosts after disconnect, got %d", r.Len())
	}
}

func TestGhostLabel(t *testing.T) {
	cases := []struct {
		ghost GhostMaterial
		want  string
	}{
		{GhostMaterial{UserID: "abcdef123", Nickname: "alice"}, "alice"},
		{GhostMaterial{UserID: "abcdef123"}, "abcdef"},
		{GhostMaterial{}, "User"},
	}
	for _, tc := range cases {
		if got := tc.ghost.Label(); got != tc.want {
			t.Fatalf("label of %+v = %q, want %q", tc.ghost, got, tc.want)
		}
	}
}
