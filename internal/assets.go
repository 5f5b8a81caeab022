package internal

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ghostcanvas/internal/storage"
)

// ErrNotPNG is returned when an upload does not sniff as a PNG image.
var ErrNotPNG = errors.New("only PNG files are allowed")

// MaterialEntry is one item of the material library as served to clients.
type MaterialEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Name     string `json:"name"`
}

// AssetStore keeps uploaded PNGs on disk and catalogs them in sqlite.
type AssetStore struct {
	dir   string
	store *storage.Store
	now   func() time.Time
}

func NewAssetStore(dir string, store *storage.Store) (*AssetStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &AssetStore{dir: dir, store: store, now: time.Now}, nil
}

// Save sniffs, stores and catalogs one upload. An upload whose bytes match an
// existing material returns that material instead of writing a second copy.
func (a *AssetStore) Save(ctx context.Context, originalName string, src io.Reader) (storage.Material, error) {
	reader := bufio.NewReaderSize(src, 512)
	head, err := reader.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return storage.Material{}, fmt.Errorf("read upload: %w", err)
	}
	if http.DetectContentType(head) != "image/png" {
		return storage.Material{}, ErrNotPNG
	}

	id := uuid.NewString()
	filename := storedName(originalName, id)
	finalPath := filepath.Join(a.dir, filename)
	tmp, err := os.CreateTemp(a.dir, ".upload-*")
	if err != nil {
		return storage.Material{}, fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storage.Material{}, fmt.Errorf("save file: %w", err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))

	existing, err := a.store.FindMaterialBySHA256(ctx, sum)
	if err != nil {
		return storage.Material{}, err
	}
	if existing != nil {
		if _, statErr := os.Stat(filepath.Join(a.dir, existing.Filename)); statErr == nil {
			return *existing, nil
		}
		// catalog row without a file; drop it and store the fresh copy
		_ = a.store.DeleteMaterial(ctx, existing.Filename)
	}

	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return storage.Material{}, fmt.Errorf("save file: %w", err)
	}
	material := storage.Material{
		ID:           id,
		Filename:     filename,
		OriginalName: filepath.Base(originalName),
		SizeBytes:    written,
		SHA256:       sum,
		CreatedAt:    a.now(),
	}
	if err := a.store.CreateMaterial(ctx, material); err != nil {
		_ = os.Remove(finalPath)
		return storage.Material{}, err
	}
	return material, nil
}

// List returns the library entries for every cataloged material still on disk.
func (a *AssetStore) List(ctx context.Context) ([]MaterialEntry, error) {
	materials, err := a.store.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]MaterialEntry, 0, len(materials))
	for _, m := range materials {
		if _, err := os.Stat(filepath.Join(a.dir, m.Filename)); err != nil {
			continue
		}
		entries = append(entries, MaterialEntry{
			Filename: m.Filename,
			URL:      MaterialURL(m.Filename),
			Name:     strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename)),
		})
	}
	return entries, nil
}

// Open returns the stored file for a cataloged filename.
func (a *AssetStore) Open(ctx context.Context, filename string) (*os.File, *storage.Material, error) {
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return nil, nil, storage.ErrMaterialNotFound
	}
	material, err := a.store.GetMaterialByFilename(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	if material == nil {
		return nil, nil, storage.ErrMaterialNotFound
	}
	file, err := os.Open(filepath.Join(a.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, storage.ErrMaterialNotFound
		}
		return nil, nil, err
	}
	return file, material, nil
}

// Delete drops the catalog row and the stored file.
func (a *AssetStore) Delete(ctx context.Context, filename string) error {
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return storage.ErrMaterialNotFound
	}
	if err := a.store.DeleteMaterial(ctx, filename); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(a.dir, filename)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MaterialURL is the path a stored material is served under.
func MaterialURL(filename string) string {
	return "/uploads/" + url.PathEscape(filename)
}

func storedName(originalName, id string) string {
	base := filepath.Base(originalName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = sanitizePathComponent(base)
	return fmt.Sprintf("%s-%s.png", base, id)
}

func sanitizePathComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "material"
	}
	return s
}
