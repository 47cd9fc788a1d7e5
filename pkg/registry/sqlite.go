// pkg/registry/sqlite.go - sqlite-backed registry and content-metadata store.

package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/windowsadmins/cimianshop/pkg/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS titles (
	id      INTEGER PRIMARY KEY,
	base_id INTEGER NOT NULL,
	kind    INTEGER NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	name    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_titles_base ON titles(base_id);

CREATE TABLE IF NOT EXISTS meta_keys (
	storage INTEGER NOT NULL,
	id      INTEGER NOT NULL,
	kind    INTEGER NOT NULL,
	version INTEGER NOT NULL,
	PRIMARY KEY (storage, id, kind, version)
);
`

// SQLite implements Registry and MetaDB on a single database file.
type SQLite struct {
	Path string
}

// NewSQLite returns a store backed by the database at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{Path: path}
}

func (s *SQLite) open() (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	db, err := sql.Open("sqlite3", s.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Open starts a registry session.
func (s *SQLite) Open() (Titles, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	return &sqliteTitles{db: db}, nil
}

// OpenMeta opens the content-metadata view of one storage.
func (s *SQLite) OpenMeta(storage Storage) (MetaReader, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	return &sqliteMeta{db: db, storage: storage}, nil
}

// ErrKindConflict is returned when a record would change the kind of an
// existing title.
var ErrKindConflict = errors.New("title already recorded with another kind")

// AddTitle records installed content. Base records use their own id as BaseID.
// An existing title is only updated when the kind matches.
func (s *SQLite) AddTitle(rec Record, name string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	base := rec.BaseID
	if rec.Kind == catalog.KindBase {
		base = rec.ID
	}
	res, err := db.Exec(
		`INSERT INTO titles (id, base_id, kind, version, name) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET base_id = excluded.base_id,
		 version = excluded.version, name = excluded.name
		 WHERE titles.kind = excluded.kind`,
		int64(rec.ID), int64(base), rec.Kind.Code(), int64(rec.Version), name,
	)
	if err != nil {
		return fmt.Errorf("insert title %s: %w", catalog.FormatTitleID(rec.ID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("insert title %s as %s: %w", catalog.FormatTitleID(rec.ID), rec.Kind, ErrKindConflict)
	}
	return nil
}

// AddMetaKey records a content-metadata key on a storage.
func (s *SQLite) AddMetaKey(storage Storage, key MetaKey) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(
		`INSERT OR IGNORE INTO meta_keys (storage, id, kind, version) VALUES (?, ?, ?, ?)`,
		int(storage), int64(key.ID), key.Kind.Code(), int64(key.Version),
	)
	if err != nil {
		return fmt.Errorf("insert meta key %s: %w", catalog.FormatTitleID(key.ID), err)
	}
	return nil
}

type sqliteTitles struct {
	db *sql.DB
}

func (t *sqliteTitles) ListBases(offset, limit int) ([]uint64, error) {
	rows, err := t.db.Query(
		`SELECT id FROM titles WHERE kind = ? ORDER BY id LIMIT ? OFFSET ?`,
		catalog.KindBase.Code(), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list bases: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return ids, fmt.Errorf("scan base: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

func (t *sqliteTitles) IsInstalled(base uint64) (bool, error) {
	var n int
	err := t.db.QueryRow(
		`SELECT COUNT(*) FROM titles WHERE id = ? AND kind = ?`,
		int64(base), catalog.KindBase.Code(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup base %s: %w", catalog.FormatTitleID(base), err)
	}
	return n > 0, nil
}

func (t *sqliteTitles) UpdateVersion(base uint64) (uint32, error) {
	var v sql.NullInt64
	err := t.db.QueryRow(
		`SELECT MAX(version) FROM titles WHERE base_id = ? AND kind = ?`,
		int64(base), catalog.KindUpdate.Code(),
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("lookup update version %s: %w", catalog.FormatTitleID(base), err)
	}
	if !v.Valid {
		return 0, nil
	}
	return uint32(v.Int64), nil
}

func (t *sqliteTitles) ContentMeta(base uint64) ([]Record, error) {
	rows, err := t.db.Query(
		`SELECT id, base_id, kind, version FROM titles WHERE base_id = ? AND kind != ? ORDER BY id`,
		int64(base), catalog.KindBase.Code(),
	)
	if err != nil {
		return nil, fmt.Errorf("list content meta: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id, baseID, kind, version int64
		if err := rows.Scan(&id, &baseID, &kind, &version); err != nil {
			return out, fmt.Errorf("scan content meta: %w", err)
		}
		out = append(out, Record{
			ID:      uint64(id),
			BaseID:  uint64(baseID),
			Kind:    catalog.KindFromCode(kind),
			Version: uint32(version),
		})
	}
	return out, rows.Err()
}

func (t *sqliteTitles) Name(id uint64, kind catalog.Kind) string {
	var name string
	err := t.db.QueryRow(`SELECT name FROM titles WHERE id = ?`, int64(id)).Scan(&name)
	if err == nil && name != "" {
		return name
	}
	return fallbackName(id, kind)
}

func (t *sqliteTitles) Close() error {
	return t.db.Close()
}

type sqliteMeta struct {
	db      *sql.DB
	storage Storage
}

func (m *sqliteMeta) LatestKey(id uint64) (MetaKey, bool, error) {
	var kind, version int64
	err := m.db.QueryRow(
		`SELECT kind, version FROM meta_keys WHERE storage = ? AND id = ? ORDER BY version DESC LIMIT 1`,
		int(m.storage), int64(id),
	).Scan(&kind, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return MetaKey{}, false, nil
	}
	if err != nil {
		return MetaKey{}, false, fmt.Errorf("latest meta key %s: %w", catalog.FormatTitleID(id), err)
	}
	return MetaKey{ID: id, Kind: catalog.KindFromCode(kind), Version: uint32(version)}, true, nil
}

func (m *sqliteMeta) Close() error {
	return m.db.Close()
}

func fallbackName(id uint64, kind catalog.Kind) string {
	switch kind {
	case catalog.KindUpdate:
		return "Update " + catalog.FormatTitleID(id)
	case catalog.KindAddOn:
		return "Add-on " + catalog.FormatTitleID(id)
	default:
		return catalog.FormatTitleID(id)
	}
}
