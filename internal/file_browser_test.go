package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListPNGFiles(t *testing.T) {
	dir := t.TempDir()
	for name, size := range map[string]int{"b.png": 10, "A.PNG": 2048, "notes.txt": 5, ".hidden.png": 1} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := listPNGFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].Name != "A.PNG" || files[1].Name != "b.png" {
		t.Fatalf("unexpected files %+v", files)
	}
	if files[0].Size != 2048 || files[0].Path != filepath.Join(dir, "A.PNG") {
		t.Fatalf("unexpected entry %+v", files[0])
	}
	if _, err := listPNGFiles(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{12: "12 B", 2048: "2.0 KB", 3 * 1024 * 1024: "3.0 MB"}
	for in, want := range cases {
		if got := formatFileSize(in); got != want {
			t.Fatalf("formatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
