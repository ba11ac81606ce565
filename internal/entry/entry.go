package entry

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// InitialConfidence is the confidence of a freshly learned entry
const InitialConfidence = 0.3

// Context holds the signals an entry was confirmed with
type Context struct {
	// Emotion maps an emotion tag to a weight in [0,1]
	Emotion map[string]float64 `json:"emotion"`
}

// Entry is one learned meaning
type Entry struct {
	ID string `json:"id"`

	// Languages maps a language code to its variants. The first variant is
	// the canonical one.
	Languages map[string][]string `json:"languages"`

	Confidence   float64   `json:"confidence"`
	Context      Context   `json:"context"`
	LastModified time.Time `json:"last_modified"`
}

// Clone returns a deep copy of the entry
func (e *Entry) Clone() *Entry {
	c := &Entry{
		ID:           e.ID,
		Languages:    make(map[string][]string, len(e.Languages)),
		Confidence:   e.Confidence,
		Context:      Context{Emotion: make(map[string]float64, len(e.Context.Emotion))},
		LastModified: e.LastModified,
	}
	for lang, variants := range e.Languages {
		c.Languages[lang] = append([]string(nil), variants...)
	}
	for tag, w := range e.Context.Emotion {
		c.Context.Emotion[tag] = w
	}
	return c
}

// HasLanguage reports whether the entry has at least one variant for lang
func (e *Entry) HasLanguage(lang string) bool {
	return len(e.Languages[lang]) > 0
}

// HasVariant reports whether text is already a variant for lang
func (e *Entry) HasVariant(lang, text string) bool {
	for _, v := range e.Languages[lang] {
		if v == text {
			return true
		}
	}
	return false
}

// LanguagesOf returns every language in which text is a variant, sorted
func (e *Entry) LanguagesOf(text string) []string {
	var langs []string
	for lang := range e.Languages {
		if e.HasVariant(lang, text) {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// Canonical maps every language to its canonical (first) variant
func (e *Entry) Canonical() map[string]string {
	out := make(map[string]string, len(e.Languages))
	for lang, variants := range e.Languages {
		if len(variants) > 0 {
			out[lang] = variants[0]
		}
	}
	return out
}

// Validate checks the structural invariants of an entry
func (e *Entry) Validate() error {
	hasVariant := false
	for lang, variants := range e.Languages {
		if lang == "" {
			return fmt.Errorf("entry %s: empty language code", e.ID)
		}
		if len(variants) > 0 {
			hasVariant = true
		}
	}
	if !hasVariant {
		return fmt.Errorf("entry %s: no language has a variant", e.ID)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("entry %s: confidence %v outside [0,1]", e.ID, e.Confidence)
	}
	return nil
}

// numericID parses a numeric entry id
func numericID(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortIDs orders ids numerically, non-numeric ids last in lexical order
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aok := numericID(ids[i])
		b, bok := numericID(ids[j])
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return ids[i] < ids[j]
		}
	})
}
