package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle that catalogs uploaded materials.
type Store struct {
	db *sql.DB
}

// Material is one row of the materials table. Filename is the stored name on disk.
type Material struct {
	ID           string
	Filename     string
	OriginalName string
	SizeBytes    int64
	SHA256       string
	CreatedAt    time.Time
}

// ErrMaterialExists is returned when a filename is already cataloged.
var ErrMaterialExists = errors.New("material already exists")

// ErrMaterialNotFound is returned by DeleteMaterial for unknown filenames.
var ErrMaterialNotFound = errors.New("material not found")

// NewStore opens the SQLite database at path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "ghostcanvas.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

// Migrate creates the schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS materials (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			sha256 TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_materials_created ON materials(created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateMaterial records a stored upload. CreatedAt is filled in when zero.
func (s *Store) CreateMaterial(ctx context.Context, m Material) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials(id, filename, original_name, size_bytes, sha256, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		m.ID, m.Filename, m.OriginalName, m.SizeBytes, m.SHA256, m.CreatedAt.UTC())
	if err != nil {
		if isConstraintError(err) {
			return ErrMaterialExists
		}
		return err
	}
	return nil
}

// ListMaterials returns the catalog, newest first.
func (s *Store) ListMaterials(ctx context.Context) ([]Material, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, original_name, size_bytes, sha256, created_at FROM materials ORDER BY created_at DESC, filename ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Filename, &m.OriginalName, &m.SizeBytes, &m.SHA256, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// GetMaterialByFilename returns nil, nil when the filename is not cataloged.
func (s *Store) GetMaterialByFilename(ctx context.Context, filename string) (*Material, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, original_name, size_bytes, sha256, created_at FROM materials WHERE filename = ?`, filename)
	var m Material
	if err := row.Scan(&m.ID, &m.Filename, &m.OriginalName, &m.SizeBytes, &m.SHA256, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// FindMaterialBySHA256 lets the asset store skip writing an identical upload twice.
func (s *Store) FindMaterialBySHA256(ctx context.Context, sum string) (*Material, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, original_name, size_bytes, sha256, created_at FROM materials WHERE sha256 = ? ORDER BY created_at ASC LIMIT 1`, sum)
	var m Material
	if err := row.Scan(&m.ID, &m.Filename, &m.OriginalName, &m.SizeBytes, &m.SHA256, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, filename string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE filename = ?`, filename)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintCode
	}
	return false
}
