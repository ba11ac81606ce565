package persist

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/snonux/meaningbot/internal/entry"
)

//go:embed schema.sql
var schema string

const (
	metaSchemaVersion    = "schema_version"
	metaLastDecayCheck   = "last_decay_check"
	metaDistancesUpdated = "distances_updated"
)

// SQLiteBackend stores snapshots in a SQLite database
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory databases alive between calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Load reads the full snapshot. An empty database yields an empty state.
func (b *SQLiteBackend) Load() (*State, error) {
	state := NewState()

	meta, err := b.loadMeta()
	if err != nil {
		return state, err
	}
	state.LastDecayCheck = fromUnix(meta[metaLastDecayCheck])
	state.DistancesUpdated = fromUnix(meta[metaDistancesUpdated])

	rows, err := b.db.Query("SELECT id, confidence, last_modified FROM entries")
	if err != nil {
		return state, fmt.Errorf("query entries: %w", err)
	}
	for rows.Next() {
		var (
			id         string
			confidence float64
			modified   float64
		)
		if err := rows.Scan(&id, &confidence, &modified); err != nil {
			rows.Close()
			return state, fmt.Errorf("scan entry: %w", err)
		}
		state.Entries[id] = &entry.Entry{
			ID:           id,
			Languages:    make(map[string][]string),
			Confidence:   confidence,
			Context:      entry.Context{Emotion: make(map[string]float64)},
			LastModified: fromUnix(modified),
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate entries: %w", err)
	}
	if len(state.Entries) > 0 && meta[metaSchemaVersion] < SchemaVersion {
		state.Migrated = true
	}

	if err := b.loadVariants(state); err != nil {
		return state, err
	}
	if err := b.loadEmotions(state); err != nil {
		return state, err
	}
	if err := b.loadDistances(state); err != nil {
		return state, err
	}
	return state, nil
}

func (b *SQLiteBackend) loadMeta() (map[string]float64, error) {
	rows, err := b.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func (b *SQLiteBackend) loadVariants(state *State) error {
	rows, err := b.db.Query("SELECT entry_id, lang, text FROM variants ORDER BY entry_id, lang, position")
	if err != nil {
		return fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, lang, text string
		if err := rows.Scan(&id, &lang, &text); err != nil {
			return fmt.Errorf("scan variant: %w", err)
		}
		if e, ok := state.Entries[id]; ok {
			e.Languages[lang] = append(e.Languages[lang], text)
		}
	}
	return rows.Err()
}

func (b *SQLiteBackend) loadEmotions(state *State) error {
	rows, err := b.db.Query("SELECT entry_id, tag, weight FROM emotions")
	if err != nil {
		return fmt.Errorf("query emotions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		var weight float64
		if err := rows.Scan(&id, &tag, &weight); err != nil {
			return fmt.Errorf("scan emotion: %w", err)
		}
		if e, ok := state.Entries[id]; ok {
			e.Context.Emotion[tag] = weight
		}
	}
	return rows.Err()
}

func (b *SQLiteBackend) loadDistances(state *State) error {
	rows, err := b.db.Query("SELECT a, b, weight FROM distances")
	if err != nil {
		return fmt.Errorf("query distances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a, c string
		var weight float64
		if err := rows.Scan(&a, &c, &weight); err != nil {
			return fmt.Errorf("scan distance: %w", err)
		}
		if state.Distances[a] == nil {
			state.Distances[a] = make(map[string]float64)
		}
		state.Distances[a][c] = weight
	}
	return rows.Err()
}

// Save replaces the stored snapshot inside a single transaction
func (b *SQLiteBackend) Save(state *State) (err error) {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, table := range []string{"variants", "emotions", "entries", "distances", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := map[string]float64{
		metaSchemaVersion:    SchemaVersion,
		metaLastDecayCheck:   toUnix(state.LastDecayCheck),
		metaDistancesUpdated: toUnix(state.DistancesUpdated),
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}

	for id, e := range state.Entries {
		if _, err := tx.Exec(
			"INSERT INTO entries (id, confidence, last_modified) VALUES (?, ?, ?)",
			id, e.Confidence, toUnix(e.LastModified),
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", id, err)
		}
		for lang, variants := range e.Languages {
			for pos, text := range variants {
				if _, err := tx.Exec(
					"INSERT INTO variants (entry_id, lang, position, text) VALUES (?, ?, ?, ?)",
					id, lang, pos, text,
				); err != nil {
					return fmt.Errorf("insert variant of %s: %w", id, err)
				}
			}
		}
		for tag, weight := range e.Context.Emotion {
			if _, err := tx.Exec(
				"INSERT INTO emotions (entry_id, tag, weight) VALUES (?, ?, ?)",
				id, tag, weight,
			); err != nil {
				return fmt.Errorf("insert emotion of %s: %w", id, err)
			}
		}
	}

	for a, row := range state.Distances {
		for c, weight := range row {
			if _, err := tx.Exec(
				"INSERT INTO distances (a, b, weight) VALUES (?, ?, ?)",
				a, c, weight,
			); err != nil {
				return fmt.Errorf("insert distance %s-%s: %w", a, c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
