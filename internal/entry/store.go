package entry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when an entry id is unknown
	ErrNotFound = errors.New("entry not found")

	// ErrNoOp is returned when merging an entry into itself
	ErrNoOp = errors.New("merge of an entry into itself")
)

// firstIDBase is the id issued ids count up from; the first id is 1001
const firstIDBase = 1000

// MergeBonus is added to the larger confidence of a merged pair
const MergeBonus = 0.1

// Store holds the learned entries in memory. Reads hand out copies so
// scoring never observes a half-applied mutation.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewStore creates an empty entry store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for last_modified
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load replaces the whole content of the store. Entries failing validation
// are skipped and reported in the returned error; valid ones are kept.
func (s *Store) Load(entries map[string]*Entry) error {
	loaded := make(map[string]*Entry, len(entries))
	var errs []error
	for id, e := range entries {
		if e == nil {
			continue
		}
		c := e.Clone()
		c.ID = id
		if c.Context.Emotion == nil {
			c.Context.Emotion = make(map[string]float64)
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded[id] = c
	}

	s.mu.Lock()
	s.entries = loaded
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Create learns a new entry from a source text and its translations and
// returns the new id. The id is one above the largest numeric id currently
// stored (1000 when there is none). Translations for the source language or
// with empty text are ignored.
func (s *Store) Create(sourceLang, sourceText string, translations map[string]string) (string, error) {
	sourceText = strings.TrimSpace(sourceText)
	if sourceLang == "" || sourceText == "" {
		return "", fmt.Errorf("source language and text are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.Itoa(s.maxIDLocked() + 1)
	e := &Entry{
		ID:           id,
		Languages:    map[string][]string{sourceLang: {sourceText}},
		Confidence:   InitialConfidence,
		Context:      Context{Emotion: make(map[string]float64)},
		LastModified: s.now(),
	}
	for lang, text := range translations {
		text = strings.TrimSpace(text)
		if lang == "" || lang == sourceLang || text == "" {
			continue
		}
		e.Languages[lang] = []string{text}
	}
	s.entries[id] = e
	return id, nil
}

func (s *Store) maxIDLocked() int {
	highest := firstIDBase
	for id := range s.entries {
		if n, ok := numericID(id); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// AppendVariant adds text as a new variant of lang. It reports false when
// the variant was already known, in which case only last_modified changes.
func (s *Store) AppendVariant(id, lang, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if lang == "" || text == "" {
		return false, fmt.Errorf("language and text are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, fmt.Errorf("append variant to %s: %w", id, ErrNotFound)
	}
	e.LastModified = s.now()
	if e.HasVariant(lang, text) {
		return false, nil
	}
	e.Languages[lang] = append(e.Languages[lang], text)
	return true, nil
}

// Merge folds source into target and deletes source. Target keeps its own
// variant order (and so its canonical variants) and gains the variants it
// did not have. Its confidence becomes min(max(source, target)+0.1, 1).
func (s *Store) Merge(sourceID, targetID string) error {
	if sourceID == targetID {
		return fmt.Errorf("merge %s into %s: %w", sourceID, targetID, ErrNoOp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.entries[sourceID]
	if !ok {
		return fmt.Errorf("merge source %s: %w", sourceID, ErrNotFound)
	}
	dst, ok := s.entries[targetID]
	if !ok {
		return fmt.Errorf("merge target %s: %w", targetID, ErrNotFound)
	}

	for lang, variants := range src.Languages {
		for _, v := range variants {
			if !dst.HasVariant(lang, v) {
				dst.Languages[lang] = append(dst.Languages[lang], v)
			}
		}
	}
	for tag, w := range src.Context.Emotion {
		if w > dst.Context.Emotion[tag] {
			dst.Context.Emotion[tag] = w
		}
	}

	conf := src.Confidence
	if dst.Confidence > conf {
		conf = dst.Confidence
	}
	dst.Confidence = min(conf+MergeBonus, 1.0)
	dst.LastModified = s.now()

	delete(s.entries, sourceID)
	return nil
}

// Delete removes an entry
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(s.entries, id)
	return nil
}

// Update runs fn on the stored entry under the write lock and stamps
// last_modified. fn must keep the entry valid.
func (s *Store) Update(id string, fn func(e *Entry)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	fn(e)
	e.LastModified = s.now()
	return e.Clone(), nil
}

// ForEach runs fn on every stored entry under the write lock. Unlike Update
// it does not touch last_modified.
func (s *Store) ForEach(fn func(e *Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		fn(e)
	}
}

// Get returns a copy of an entry
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Candidates returns copies of every entry that has a variant in lang,
// ordered by id
func (s *Store) Candidates(lang string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if e.HasLanguage(lang) {
			ids = append(ids, id)
		}
	}
	SortIDs(ids)

	out := make([]*Entry, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id].Clone()
	}
	return out
}

// FindByVariant returns the ids of entries having text as a variant in any
// language, ordered by id
func (s *Store) FindByVariant(text string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.entries {
		if len(e.LanguagesOf(text)) > 0 {
			ids = append(ids, id)
		}
	}
	SortIDs(ids)
	return ids
}

// IDs returns every stored id in order
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// Snapshot returns a deep copy of every entry keyed by id
func (s *Store) Snapshot() map[string]*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Entry, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.Clone()
	}
	return out
}

// Len returns the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
