// Package channels maps chat channels to the language spoken in them
package channels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"codeberg.org/snonux/meaningbot/internal/fallback"
)

// ErrUnsupportedLanguage is returned when linking a channel to a language the
// bot cannot translate
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Link is the configuration of one channel
type Link struct {
	Lang    string `json:"lang" yaml:"lang"`
	Webhook string `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

// Links holds every linked channel
type Links struct {
	mu    sync.RWMutex
	path  string
	links map[string]Link
}

// New creates an empty set of links saved to path
func New(path string) *Links {
	return &Links{path: path, links: make(map[string]Link)}
}

// Load reads the links file. Both the JSON layout and YAML are accepted; a
// missing file yields no links.
func Load(path string) (*Links, error) {
	l := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read channel links: %w", err)
	}
	if err := yaml.Unmarshal(data, &l.links); err != nil {
		return nil, fmt.Errorf("failed to parse channel links %s: %w", path, err)
	}
	if l.links == nil {
		l.links = make(map[string]Link)
	}
	return l, nil
}

// SourceLanguage returns the language of a channel
func (l *Links) SourceLanguage(channelID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	link, ok := l.links[channelID]
	if !ok || link.Lang == "" {
		return "", false
	}
	return link.Lang, true
}

// Get returns the link of a channel
func (l *Links) Get(channelID string) (Link, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	link, ok := l.links[channelID]
	return link, ok
}

// Channels returns the linked channel ids, sorted
func (l *Links) Channels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.links))
	for id := range l.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set links a channel to a language
func (l *Links) Set(channelID string, link Link) error {
	if !IsSupported(link.Lang) {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, link.Lang)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links[channelID] = link
	return nil
}

// Remove unlinks a channel and reports whether it was linked
func (l *Links) Remove(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.links[channelID]
	delete(l.links, channelID)
	return ok
}

// Save writes the links back to their file. Files ending in .yaml or .yml
// are written as YAML, everything else as JSON.
func (l *Links) Save() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(l.links)
	default:
		data, err = json.MarshalIndent(l.links, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode channel links: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write channel links: %w", err)
	}
	return nil
}

// IsSupported reports whether lang is one of the translated languages
func IsSupported(lang string) bool {
	for _, l := range fallback.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}
