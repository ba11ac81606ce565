// Package journal keeps an append-only log of resolved translations
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DayLayout is the day stamp format of a record
const DayLayout = "2006:01:02"

// Record is one resolved translation
type Record struct {
	Timestamp    int64             `json:"timestamp"`
	Time         string            `json:"time"`
	Word         map[string]string `json:"word"`
	MeaningID    string            `json:"meaning_id,omitempty"`
	Emotion      string            `json:"emotion,omitempty"`
	ResolutionID string            `json:"resolution_id,omitempty"`
	Source       string            `json:"source"`
}

// NewRecord stamps a record with the given time
func NewRecord(at time.Time, word map[string]string) Record {
	return Record{
		Timestamp: at.Unix(),
		Time:      at.Format(DayLayout),
		Word:      word,
	}
}

// Journal records resolutions
type Journal interface {
	Write(rec Record) error
	Close() error
}

// JSONL appends records to a file, one JSON object per line
type JSONL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONL opens (or creates) the journal at path
func NewJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &JSONL{path: path, file: f}, nil
}

// Write appends one record
func (j *JSONL) Write(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}
	data = append(data, '\n')

	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Close closes the journal file
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}

// Read returns every record written on or after since. Malformed lines are
// skipped.
func Read(path string, since time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Timestamp < since.Unix() {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	return records, nil
}

// Nop discards every record
type Nop struct{}

// Write does nothing
func (Nop) Write(Record) error { return nil }

// Close does nothing
func (Nop) Close() error { return nil }
