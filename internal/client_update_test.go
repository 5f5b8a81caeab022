package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newOfflineModel(t *testing.T, joinURL string) *TUIModel {
	t.Helper()
	model, err := NewTUIModel(joinURL, "alice", "#ff0000")
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	return model
}

func lastNotice(model *TUIModel) string {
	if len(model.notices) == 0 {
		return ""
	}
	return model.notices[len(model.notices)-1]
}

func TestAtCommandReportsTopmostMaterial(t *testing.T) {
	model := newOfflineModel(t, "ws://127.0.0.1:1/join")
	model.canvas.Add("/uploads/a.png", 100, 100, 100, 100)
	top := model.canvas.Add("/uploads/b.png", 120, 120, 100, 100)

	model.runCommand(command{kind: cmdAt, x: 110, y: 110})
	if notice := lastNotice(model); !strings.Contains(notice, top.ID) || !strings.Contains(notice, "/uploads/b.png") {
		t.Fatalf("expected %s in %q", top.ID, notice)
	}
	model.runCommand(command{kind: cmdAt, x: 1900, y: 1000})
	if notice := lastNotice(model); !strings.Contains(notice, "none of your materials") {
		t.Fatalf("unexpected notice %q", notice)
	}
}

func TestDiscardCommandRemovesFromLibrary(t *testing.T) {
	_, ts := startTestServer(t, ServerOptions{Assets: newTestAssets(t)})
	model := newOfflineModel(t, joinURL(ts))

	path := filepath.Join(t.TempDir(), "leaf.png")
	if err := os.WriteFile(path, pngBytes(t, 12, 12), 0o644); err != nil {
		t.Fatal(err)
	}
	uploaded, err := model.api.uploadMaterial(path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, cmd := model.runCommand(command{kind: cmdDiscard, arg: uploaded.Filename})
	if cmd == nil {
		t.Fatal("expected a discard command")
	}
	model.Update(cmd())
	if notice := lastNotice(model); !strings.Contains(notice, "removed "+uploaded.Filename) {
		t.Fatalf("unexpected notice %q", notice)
	}
	if entries, err := model.api.listMaterials(); err != nil || len(entries) != 0 {
		t.Fatalf("expected an empty library, got %+v, %v", entries, err)
	}

	_, cmd = model.runCommand(command{kind: cmdDiscard, arg: uploaded.Filename})
	model.Update(cmd())
	if notice := lastNotice(model); !strings.Contains(notice, "discard:") {
		t.Fatalf("expected a discard error, got %q", notice)
	}
}

func TestExportCommandEmbedsUploadedImages(t *testing.T) {
	_, ts := startTestServer(t, ServerOptions{Assets: newTestAssets(t)})
	model := newOfflineModel(t, joinURL(ts))

	path := filepath.Join(t.TempDir(), "leaf.png")
	if err := os.WriteFile(path, pngBytes(t, 12, 12), 0o644); err != nil {
		t.Fatal(err)
	}
	uploaded, err := model.api.uploadMaterial(path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	model.canvas.Add(uploaded.URL, 300, 300, 12, 12)

	out := filepath.Join(t.TempDir(), "canvas.pdf")
	_, cmd := model.runCommand(command{kind: cmdExport, arg: out})
	model.Update(cmd())
	if notice := lastNotice(model); !strings.Contains(notice, "exported 1 material(s)") {
		t.Fatalf("unexpected notice %q", notice)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("/Subtype /Image")) {
		t.Fatal("expected the uploaded image inside the PDF")
	}
}
