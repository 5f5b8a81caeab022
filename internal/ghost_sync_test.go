package internal

import "testing"

// applyNext feeds the next synchronizer event into the reconciler.
func applyNext(t *testing.T, s *Synchronizer, ghosts *Reconciler) ServerEvent {
	t.Helper()
	event := nextEvent(t, s)
	ghosts.HandleEvent(event)
	return event
}

func TestGhostsFollowPeerOverRelay(t *testing.T) {
	_, ts := startTestServer(t, ServerOptions{})
	alice := connectSynchronizer(t, joinURL(ts), "alice", "#ff0000")
	bob := connectSynchronizer(t, joinURL(ts), "bob", "#00ff00")
	ghosts := NewReconciler(nil)
	ghosts.SetSelf(bob.SelfID())
	key := GhostID(alice.SelfID(), "m1")
	if key != "ghost-"+alice.SelfID()+"-m1" {
		t.Fatalf("unexpected ghost id %q", key)
	}

	if err := alice.EmitAdd(AddMaterial{MaterialID: "m1", MaterialURL: "/uploads/m1.png", X: 100, Y: 100, Width: 50, Height: 50}); err != nil {
		t.Fatalf("emit add: %v", err)
	}
	if _, ok := applyNext(t, bob, ghosts).(OperationReceived); !ok {
		t.Fatal("bob expected alice's add")
	}
	ghost, ok := ghosts.Get(key)
	if !ok {
		t.Fatalf("no ghost %s after add", key)
	}
	if ghost.X != 100 || ghost.Y != 100 || ghost.Width != 50 || ghost.Height != 50 {
		t.Fatalf("unexpected geometry %+v", ghost.Material)
	}
	if ghost.UserColor != "#ff0000" || ghost.Label() != "alice" {
		t.Fatalf("unexpected owner styling %+v", ghost)
	}

	if err := alice.EmitMove(MoveMaterial{MaterialID: "m1", X: 150, Y: 160}); err != nil {
		t.Fatalf("emit move: %v", err)
	}
	if err := alice.EmitMove(MoveMaterial{MaterialID: "m1", X: 300, Y: 310}); err != nil {
		t.Fatalf("emit move: %v", err)
	}
	applyNext(t, bob, ghosts)
	applyNext(t, bob, ghosts)
	if ghost, _ := ghosts.Get(key); ghost.X != 300 || ghost.Y != 310 {
		t.Fatalf("expected the last move to win, ghost at (%v,%v)", ghost.X, ghost.Y)
	}

	if err := alice.EmitResize(ResizeMaterial{MaterialID: "m1", Width: 80, Height: 40}); err != nil {
		t.Fatalf("emit resize: %v", err)
	}
	applyNext(t, bob, ghosts)
	if ghost, _ := ghosts.Get(key); ghost.Width != 80 || ghost.Height != 40 {
		t.Fatalf("resize not applied: %+v", ghost.Material)
	}

	if err := alice.EmitDelete(DeleteMaterial{MaterialID: "m1"}); err != nil {
		t.Fatalf("emit delete: %v", err)
	}
	applyNext(t, bob, ghosts)
	if ghosts.Len() != 0 {
		t.Fatalf("expected no ghosts after delete, got %d", ghosts.Len())
	}

	if err := alice.EmitAdd(AddMaterial{MaterialID: "m2", MaterialURL: "/uploads/m2.png", Width: 10, Height: 10}); err != nil {
		t.Fatalf("emit add: %v", err)
	}
	applyNext(t, bob, ghosts)
	if ghosts.Len() != 1 {
		t.Fatalf("expected alice's second ghost, got %d", ghosts.Len())
	}

	aliceID := alice.SelfID()
	if err := alice.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	left, ok := applyNext(t, bob, ghosts).(PeerLeft)
	if !ok || left.UserID != aliceID {
		t.Fatalf("bob expected alice to leave, got %#v", left)
	}
	if ghosts.Len() != 0 {
		t.Fatalf("alice's ghosts outlived the session: %+v", ghosts.Ghosts())
	}
}
