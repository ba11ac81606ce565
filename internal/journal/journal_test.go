package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestJSONL_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "translate_logs.jsonl")
	j, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("NewJSONL failed: %v", err)
	}

	day1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(48 * time.Hour)

	first := NewRecord(day1, map[string]string{"en": "hello", "ja": "こんにちは"})
	first.MeaningID = "1001"
	first.Source = "cache"
	second := NewRecord(day2, map[string]string{"en": "bye"})
	second.Source = "fallback"

	for _, rec := range []Record{first, second} {
		if err := j.Write(rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if first.Time != "2025:03:01" {
		t.Errorf("Expected day stamp 2025:03:01, got %s", first.Time)
	}

	all, err := Read(path, time.Time{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff([]Record{first, second}, all); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	recent, err := Read(path, day1.Add(time.Hour))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Source != "fallback" {
		t.Errorf("Expected only the second record, got %+v", recent)
	}
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	content := "{\"timestamp\":1,\"time\":\"1970:01:01\",\"word\":{\"en\":\"a\"},\"source\":\"cache\"}\nnot json\n\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := Read(path, time.Time{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestRead_MissingFile(t *testing.T) {
	records, err := Read(filepath.Join(t.TempDir(), "none.jsonl"), time.Time{})
	if err != nil || records != nil {
		t.Errorf("Expected nil, nil for a missing journal, got %v, %v", records, err)
	}
}
