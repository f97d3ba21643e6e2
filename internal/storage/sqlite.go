package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kwhalen/projectmap/internal/record"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record or meta key does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database holding the local project cache and the
// sync metadata key/value table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "projectmap.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Projects ---

const upsertProjectSQL = `
	INSERT INTO projects (id, name, phase, address, lat, lng, last_modified, all_fields, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		phase = excluded.phase,
		address = excluded.address,
		lat = excluded.lat,
		lng = excluded.lng,
		last_modified = excluded.last_modified,
		all_fields = excluded.all_fields,
		updated_at = excluded.updated_at`

// UpsertProject inserts or overwrites a single project keyed by id.
func (s *Store) UpsertProject(p record.Project) error {
	args, err := projectArgs(p)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(upsertProjectSQL, args...); err != nil {
		return fmt.Errorf("upserting project %s: %w", p.ID, err)
	}
	return nil
}

// UpsertProjects upserts each project by id. Nothing is deleted.
func (s *Store) UpsertProjects(projects []record.Project) error {
	for _, p := range projects {
		if err := s.UpsertProject(p); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAll deletes every cached project and inserts the given set. This is
// the only operation that removes stale records. It runs in a single
// transaction, so readers never observe the intermediate empty state.
func (s *Store) ReplaceAll(projects []record.Project) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM projects"); err != nil {
		return fmt.Errorf("clearing projects: %w", err)
	}
	for _, p := range projects {
		args, err := projectArgs(p)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(upsertProjectSQL, args...); err != nil {
			return fmt.Errorf("inserting project %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	return nil
}

// AllProjectsSortedByName returns every cached project ordered by name, then id.
func (s *Store) AllProjectsSortedByName() ([]record.Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, phase, address, lat, lng, last_modified, all_fields
		FROM projects ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var out []record.Project
	for rows.Next() {
		var (
			p         record.Project
			lat, lng  sql.NullFloat64
			allFields string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Phase, &p.Address, &lat, &lng, &p.LastModified, &allFields); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		if lat.Valid {
			p.Lat = &lat.Float64
		}
		if lng.Valid {
			p.Lng = &lng.Float64
		}
		if allFields != "" && allFields != "{}" {
			fields := record.NewFields()
			if err := json.Unmarshal([]byte(allFields), fields); err != nil {
				return nil, fmt.Errorf("decoding fields for %s: %w", p.ID, err)
			}
			p.AllFields = fields
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProjects returns the number of cached projects.
func (s *Store) CountProjects() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}

func projectArgs(p record.Project) ([]any, error) {
	var lat, lng any
	if p.Lat != nil {
		lat = *p.Lat
	}
	if p.Lng != nil {
		lng = *p.Lng
	}
	allFields := "{}"
	if p.AllFields != nil {
		b, err := json.Marshal(p.AllFields)
		if err != nil {
			return nil, fmt.Errorf("encoding fields for %s: %w", p.ID, err)
		}
		allFields = string(b)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return []any{p.ID, p.Name, p.Phase, p.Address, lat, lng, p.LastModified, allFields, now}, nil
}

// --- Sync metadata ---

// SetMeta writes a sync metadata key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("setting meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a sync metadata key. Returns ErrNotFound when the key has
// never been written.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting meta %s: %w", key, err)
	}
	return value, nil
}
