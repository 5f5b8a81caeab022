package internal

import (
	"errors"
	"testing"
)

type recordingEmitter struct {
	ops []Operation
	err error
}

func (e *recordingEmitter) EmitAdd(op AddMaterial) error       { return e.record(op) }
func (e *recordingEmitter) EmitMove(op MoveMaterial) error     { return e.record(op) }
func (e *recordingEmitter) EmitResize(op ResizeMaterial) error { return e.record(op) }
func (e *recordingEmitter) EmitDelete(op DeleteMaterial) error { return e.record(op) }
func (e *recordingEmitter) EmitBackgroundChanged(op BackgroundChanged) error {
	return e.record(op)
}

func (e *recordingEmitter) record(op Operation) error {
	e.ops = append(e.ops, op)
	return e.err
}

func TestCanvasAddScalesAndCenters(t *testing.T) {
	emitter := &recordingEmitter{}
	canvas := NewCanvas(emitter, nil)

	m := canvas.Add("/uploads/wide.png", 960, 540, 1000, 250)
	if m.ID != "material-1" {
		t.Fatalf("unexpected id %s", m.ID)
	}
	if m.Width != 500 || m.Height != 125 {
		t.Fatalf("expected 500x125 after fitting, got %vx%v", m.Width, m.Height)
	}
	if m.X != 710 || m.Y != 477.5 {
		t.Fatalf("expected centered at drop point, got (%v,%v)", m.X, m.Y)
	}

	second := canvas.Add("/uploads/small.png", 100, 100, 40, 40)
	if second.ID != "material-2" || second.Width != 40 || second.ZIndex != 1 {
		t.Fatalf("unexpected second material %+v", second)
	}

	add, ok := emitter.ops[0].(AddMaterial)
	if !ok || add.MaterialID != "material-1" || add.Width != 500 || add.X != 710 {
		t.Fatalf("unexpected emitted add %#v", emitter.ops[0])
	}
}

func TestCanvasMoveClampsToBounds(t *testing.T) {
	emitter := &recordingEmitter{}
	canvas := NewCanvas(emitter, nil)
	m := canvas.Add("a.png", 100, 100, 200, 100)

	moved, ok := canvas.Move(m.ID, 5000, -30)
	if !ok {
		t.Fatal("move failed")
	}
	if moved.X != CanvasWidth-200 || moved.Y != 0 {
		t.Fatalf("expected clamped position, got (%v,%v)", moved.X, moved.Y)
	}
	move := emitter.ops[len(emitter.ops)-1].(MoveMaterial)
	if move.X != moved.X || move.Y != moved.Y {
		t.Fatalf("emitted %+v, local %+v", move, moved)
	}

	if _, ok := canvas.Move("material-99", 1, 1); ok {
		t.Fatal("moving an unknown id should fail")
	}
}

func TestCanvasResizeAndDelete(t *testing.T) {
	emitter := &recordingEmitter{}
	canvas := NewCanvas(emitter, nil)
	a := canvas.Add("a.png", 100, 100, 100, 100)
	b := canvas.Add("b.png", 300, 300, 100, 100)

	if _, ok := canvas.Resize(a.ID, 0, 10); ok {
		t.Fatal("non-positive sizes must be rejected")
	}
	if resized, ok := canvas.Resize(a.ID, 640, 20); !ok || resized.Width != 640 {
		t.Fatalf("resize failed: %+v", resized)
	}

	if !canvas.Delete(a.ID) {
		t.Fatal("delete failed")
	}
	if canvas.Delete(a.ID) {
		t.Fatal("second delete should fail")
	}
	left, _ := canvas.Get(b.ID)
	if left.ZIndex != 0 {
		t.Fatalf("expected z-index to be compacted, got %d", left.ZIndex)
	}

	kinds := []string{}
	for _, op := range emitter.ops {
		kinds = append(kinds, op.Kind())
	}
	want := []string{EventAddMaterial, EventAddMaterial, EventResizeMaterial, EventDeleteMaterial}
	if len(kinds) != len(want) {
		t.Fatalf("emitted %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("emitted %v, want %v", kinds, want)
		}
	}
}

func TestCanvasClearEmitsNothing(t *testing.T) {
	emitter := &recordingEmitter{}
	draws := 0
	canvas := NewCanvas(emitter, RendererFunc(func() { draws++ }))
	canvas.Add("a.png", 100, 100, 10, 10)
	canvas.SetBackground("https://example.com/bg.png")
	before := len(emitter.ops)

	canvas.Clear()
	if canvas.Count() != 0 {
		t.Fatalf("expected empty canvas, got %d", canvas.Count())
	}
	if len(emitter.ops) != before {
		t.Fatalf("clear emitted %d operations", len(emitter.ops)-before)
	}
	if canvas.Background() != "https://example.com/bg.png" {
		t.Fatal("clear should keep the background")
	}
	if draws != 3 {
		t.Fatalf("expected 3 redraws, got %d", draws)
	}
	if next := canvas.Add("b.png", 10, 10, 10, 10); next.ID != "material-2" {
		t.Fatalf("ids must not be reused after clear, got %s", next.ID)
	}
}

func TestCanvasKeepsLocalEditsWhenOffline(t *testing.T) {
	canvas := NewCanvas(&recordingEmitter{err: ErrNotConnected}, nil)
	canvas.Add("a.png", 100, 100, 10, 10)
	canvas.Add("b.png", 100, 100, 10, 10)
	if canvas.Count() != 2 {
		t.Fatalf("expected 2 local materials, got %d", canvas.Count())
	}

	failing := NewCanvas(&recordingEmitter{err: errors.New("broken pipe")}, nil)
	if m := failing.Add("a.png", 1, 1, 10, 10); m.ID != "material-1" || failing.Count() != 1 {
		t.Fatal("send failures must not undo local edits")
	}
}

func TestCanvasMaterialAtPicksTopmost(t *testing.T) {
	canvas := NewCanvas(nil, nil)
	canvas.Add("a.png", 100, 100, 100, 100)
	top := canvas.Add("b.png", 120, 120, 100, 100)

	hit, ok := canvas.MaterialAt(110, 110)
	if !ok || hit.ID != top.ID {
		t.Fatalf("expected %s, got %+v", top.ID, hit)
	}
	if _, ok := canvas.MaterialAt(1900, 1000); ok {
		t.Fatal("expected no material at an empty spot")
	}
}
