package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"codeberg.org/snonux/meaningbot/internal/entry"
)

// JSONBackend stores the dictionary and the distance graph in two JSON files
type JSONBackend struct {
	dictionaryPath string
	distancePath   string
}

// NewJSONBackend creates a backend for the two given files
func NewJSONBackend(dictionaryPath, distancePath string) *JSONBackend {
	return &JSONBackend{dictionaryPath: dictionaryPath, distancePath: distancePath}
}

type dictionaryMeta struct {
	SchemaVersion  int     `json:"schema_version"`
	Updated        float64 `json:"updated,omitempty"`
	LastDecayCheck float64 `json:"last_decay_check,omitempty"`
}

type dictionaryFile struct {
	Meta    dictionaryMeta             `json:"meta"`
	Entries map[string]json.RawMessage `json:"entries"`
}

type entryContext struct {
	Emotion map[string]float64 `json:"emotion"`
}

type entryRecord struct {
	Languages    map[string][]string `json:"languages"`
	Confidence   *float64            `json:"confidence,omitempty"`
	Context      json.RawMessage     `json:"context,omitempty"`
	LastModified float64             `json:"last_modified"`
}

type distanceFile struct {
	Meta struct {
		Updated float64 `json:"updated"`
	} `json:"meta"`
	Distances map[string]map[string]float64 `json:"distances"`
}

// Load reads both files. A missing file yields empty defaults; an unreadable
// one is reported while the other file is still loaded.
func (b *JSONBackend) Load() (*State, error) {
	state := NewState()
	var errs []error

	if err := b.loadDictionary(state); err != nil {
		errs = append(errs, err)
	}
	if err := b.loadDistances(state); err != nil {
		errs = append(errs, err)
	}
	return state, errors.Join(errs...)
}

func (b *JSONBackend) loadDictionary(state *State) error {
	data, err := os.ReadFile(b.dictionaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read dictionary: %w", err)
	}

	var file dictionaryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse dictionary %s: %w", b.dictionaryPath, err)
	}

	state.LastDecayCheck = fromUnix(file.Meta.LastDecayCheck)
	if file.Meta.SchemaVersion < SchemaVersion {
		state.Migrated = true
	}

	var errs []error
	for id, raw := range file.Entries {
		e, migrated, err := decodeEntry(id, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if migrated {
			state.Migrated = true
		}
		state.Entries[id] = e
	}
	return errors.Join(errs...)
}

// decodeEntry reads one entry, upgrading older shapes: a bare string
// context (such as "unknown") or a context without an emotion map becomes an
// empty emotion map, and a missing confidence becomes the initial one.
func decodeEntry(id string, raw json.RawMessage) (*entry.Entry, bool, error) {
	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("entry %s: %w", id, err)
	}

	migrated := false
	e := &entry.Entry{
		ID:           id,
		Languages:    rec.Languages,
		Confidence:   entry.InitialConfidence,
		Context:      entry.Context{Emotion: make(map[string]float64)},
		LastModified: fromUnix(rec.LastModified),
	}
	if rec.Confidence != nil {
		e.Confidence = *rec.Confidence
	} else {
		migrated = true
	}

	ctx := bytes.TrimSpace(rec.Context)
	switch {
	case len(ctx) == 0 || bytes.Equal(ctx, []byte("null")) || ctx[0] != '{':
		migrated = true
	default:
		var c entryContext
		if err := json.Unmarshal(ctx, &c); err != nil {
			return nil, false, fmt.Errorf("entry %s context: %w", id, err)
		}
		if c.Emotion == nil {
			migrated = true
		}
		for tag, w := range c.Emotion {
			e.Context.Emotion[tag] = w
		}
	}
	return e, migrated, nil
}

func (b *JSONBackend) loadDistances(state *State) error {
	data, err := os.ReadFile(b.distancePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read distances: %w", err)
	}

	var file distanceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse distances %s: %w", b.distancePath, err)
	}
	if file.Distances != nil {
		state.Distances = file.Distances
	}
	state.DistancesUpdated = fromUnix(file.Meta.Updated)
	return nil
}

// Save rewrites both files atomically
func (b *JSONBackend) Save(state *State) error {
	dict := struct {
		Meta    dictionaryMeta         `json:"meta"`
		Entries map[string]entryRecord `json:"entries"`
	}{
		Meta: dictionaryMeta{
			SchemaVersion:  SchemaVersion,
			Updated:        toUnix(latestModification(state.Entries)),
			LastDecayCheck: toUnix(state.LastDecayCheck),
		},
		Entries: make(map[string]entryRecord, len(state.Entries)),
	}
	for id, e := range state.Entries {
		conf := e.Confidence
		ctx, err := json.Marshal(entryContext{Emotion: nonNil(e.Context.Emotion)})
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", id, err)
		}
		dict.Entries[id] = entryRecord{
			Languages:    e.Languages,
			Confidence:   &conf,
			Context:      ctx,
			LastModified: toUnix(e.LastModified),
		}
	}
	if err := writeJSON(b.dictionaryPath, dict); err != nil {
		return fmt.Errorf("failed to write dictionary: %w", err)
	}

	var dist distanceFile
	dist.Meta.Updated = toUnix(state.DistancesUpdated)
	dist.Distances = state.Distances
	if dist.Distances == nil {
		dist.Distances = map[string]map[string]float64{}
	}
	if err := writeJSON(b.distancePath, dist); err != nil {
		return fmt.Errorf("failed to write distances: %w", err)
	}
	return nil
}

// Close is a no-op for files
func (b *JSONBackend) Close() error {
	return nil
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

// writeJSON encodes v with two-space indentation, keeping non-ASCII text
// readable, and replaces path through a rename
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
