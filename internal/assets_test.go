package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"ghostcanvas/internal/storage"
)

func TestAssetStoreSaveOpenDelete(t *testing.T) {
	assets := newTestAssets(t)
	ctx := context.Background()
	content := pngBytes(t, 4, 4)

	material, err := assets.Save(ctx, "../../etc/flower.png", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(filepath.Join(assets.dir, material.Filename)) != assets.dir {
		t.Fatalf("stored outside the upload dir: %s", material.Filename)
	}
	if material.OriginalName != "flower.png" || material.SizeBytes != int64(len(content)) || material.SHA256 == "" {
		t.Fatalf("unexpected material %+v", material)
	}

	file, meta, err := assets.Open(ctx, material.Filename)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stored, _ := io.ReadAll(file)
	file.Close()
	if !bytes.Equal(stored, content) || meta.ID != material.ID {
		t.Fatal("stored material does not match the upload")
	}

	if err := assets.Delete(ctx, material.Filename); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := assets.Open(ctx, material.Filename); !errors.Is(err, storage.ErrMaterialNotFound) {
		t.Fatalf("expected ErrMaterialNotFound after delete, got %v", err)
	}
	if err := assets.Delete(ctx, material.Filename); !errors.Is(err, storage.ErrMaterialNotFound) {
		t.Fatalf("expected ErrMaterialNotFound on second delete, got %v", err)
	}
}

func TestAssetStoreRejectsNonPNG(t *testing.T) {
	assets := newTestAssets(t)
	if _, err := assets.Save(context.Background(), "a.png", bytes.NewReader([]byte("GIF89a...."))); !errors.Is(err, ErrNotPNG) {
		t.Fatalf("expected ErrNotPNG, got %v", err)
	}
	entries, err := os.ReadDir(assets.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left files behind: %v", entries)
	}
}

func TestAssetStoreListSkipsMissingFiles(t *testing.T) {
	assets := newTestAssets(t)
	ctx := context.Background()
	kept, err := assets.Save(ctx, "kept.png", bytes.NewReader(pngBytes(t, 3, 3)))
	if err != nil {
		t.Fatal(err)
	}
	gone, err := assets.Save(ctx, "gone.png", bytes.NewReader(pngBytes(t, 5, 5)))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(assets.dir, gone.Filename)); err != nil {
		t.Fatal(err)
	}

	entries, err := assets.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != kept.Filename {
		t.Fatalf("unexpected entries %+v", entries)
	}

	// re-uploading the missing bytes stores a fresh copy
	again, err := assets.Save(ctx, "gone.png", bytes.NewReader(pngBytes(t, 5, 5)))
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(assets.dir, again.Filename)); err != nil {
		t.Fatalf("fresh copy missing: %v", err)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	cases := map[string]string{"a/b": "a_b", `c\d`: "c_d", "..": "material", "  ": "material", "tree": "tree"}
	for in, want := range cases {
		if got := sanitizePathComponent(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
