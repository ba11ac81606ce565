package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"codeberg.org/snonux/meaningbot/internal/channels"
	"codeberg.org/snonux/meaningbot/internal/entry"
	"codeberg.org/snonux/meaningbot/internal/journal"
	"codeberg.org/snonux/meaningbot/internal/persist"
	"codeberg.org/snonux/meaningbot/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var start = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type fixture struct {
	engine   *Engine
	fallback *testutil.MockFallback
	backend  *persist.Memory
	clock    *testutil.Clock
}

func newFixture(t *testing.T, seed *persist.State) *fixture {
	t.Helper()
	f := &fixture{
		fallback: testutil.NewMockFallback(map[string]map[string]string{
			"hello":  {"ja": "こんにちは", "ko": "안녕하세요", "zh": "你好"},
			"thanks": {"ja": "ありがとう", "ko": "고마워"},
		}),
		backend: persist.NewMemory(seed),
		clock:   testutil.NewClock(start),
	}
	f.engine = New(DefaultConfig(), Options{
		Backend:  f.backend,
		Fallback: f.fallback,
		Logger:   zaptest.NewLogger(t),
		Now:      f.clock.Now,
		Rand:     rand.New(rand.NewSource(1)),
	})
	t.Cleanup(func() { f.engine.Close() })
	return f
}

func seededState(entries ...*entry.Entry) *persist.State {
	state := persist.NewState()
	for _, e := range entries {
		state.Entries[e.ID] = e
	}
	return state
}

func helloEntry() *entry.Entry {
	return &entry.Entry{
		ID:         "1001",
		Languages:  map[string][]string{"en": {"hello"}},
		Confidence: 0.3,
		Context:    entry.Context{Emotion: map[string]float64{}},
	}
}

func TestResolve_EmptyStoreLearnsFromFallback(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.engine.Resolve(context.Background(), Message{Text: "hello", SourceLang: "en", ChannelID: "c1", Author: "alice"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Cached {
		t.Error("Expected a fallback resolution")
	}
	if res.MeaningID != "1001" {
		t.Errorf("Expected new meaning 1001, got %q", res.MeaningID)
	}
	if calls := f.fallback.Calls(); len(calls) != 1 || calls[0].Text != "hello" || calls[0].SourceLang != "en" {
		t.Errorf("Expected one fallback call for hello/en, got %+v", calls)
	}

	want := map[string]string{"en": "hello", "ja": "こんにちは", "ko": "안녕하세요", "zh": "你好"}
	if diff := cmp.Diff(want, res.Translations); diff != "" {
		t.Errorf("translations mismatch (-want +got):\n%s", diff)
	}

	learned, ok := f.engine.Lookup("1001")
	if !ok {
		t.Fatal("learned entry missing")
	}
	if diff := cmp.Diff([]string{"hello"}, learned.Languages["en"]); diff != "" {
		t.Errorf("en variants mismatch (-want +got):\n%s", diff)
	}
	if learned.Confidence != entry.InitialConfidence {
		t.Errorf("Expected confidence %v, got %v", entry.InitialConfidence, learned.Confidence)
	}

	window := f.engine.Window("c1")
	if len(window) != 1 {
		t.Fatalf("Expected one window entry, got %d", len(window))
	}
	if window[0].MeaningID != "" {
		t.Errorf("fallback resolutions are logged without a meaning id, got %q", window[0].MeaningID)
	}
	if window[0].Author != "alice" || window[0].Content != "hello" {
		t.Errorf("unexpected window entry %+v", window[0])
	}
}

func TestResolve_CacheHitBumpsConfidence(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	res, err := f.engine.Resolve(context.Background(), Message{Text: "hello", SourceLang: "en", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Cached || res.MeaningID != "1001" {
		t.Fatalf("Expected cache hit on 1001, got %+v", res)
	}
	if res.Similarity != 1.0 {
		t.Errorf("Expected similarity 1.0, got %v", res.Similarity)
	}
	if len(f.fallback.Calls()) != 0 {
		t.Error("fallback must not be called on a hit")
	}

	got, _ := f.engine.Lookup("1001")
	if got.Confidence < 0.32 {
		t.Errorf("Expected confidence >= 0.32, got %v", got.Confidence)
	}
	if !approx(got.Confidence, 0.35) {
		t.Errorf("Expected exact-match bonus to give 0.35, got %v", got.Confidence)
	}

	window := f.engine.Window("c1")
	if len(window) != 1 || window[0].MeaningID != "1001" {
		t.Errorf("Expected window entry for 1001, got %+v", window)
	}
}

func TestResolve_DissimilarTextFallsBack(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	res, err := f.engine.Resolve(context.Background(), Message{Text: "thanks", SourceLang: "en", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Cached {
		t.Error("dissimilar text must not resolve to the cached entry")
	}
	if res.MeaningID != "1002" {
		t.Errorf("Expected new meaning 1002, got %q", res.MeaningID)
	}
}

func TestResolve_EmptyFallbackLearnsNothing(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.engine.Resolve(context.Background(), Message{Text: "unknown words", SourceLang: "en", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MeaningID != "" {
		t.Errorf("Expected no meaning, got %q", res.MeaningID)
	}
	if diff := cmp.Diff(map[string]string{"en": "unknown words"}, res.Translations); diff != "" {
		t.Errorf("translations mismatch (-want +got):\n%s", diff)
	}
	if n := f.engine.Stats().Entries; n != 0 {
		t.Errorf("Expected no entries, got %d", n)
	}
	if len(f.engine.Window("c1")) != 1 {
		t.Error("the message must still be logged")
	}
}

func TestResolve_EmptyText(t *testing.T) {
	f := newFixture(t, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := f.engine.Resolve(context.Background(), Message{Text: text, SourceLang: "en", ChannelID: "c1"}); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Resolve(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
	if len(f.fallback.Calls()) != 0 || len(f.engine.Window("c1")) != 0 {
		t.Error("blank messages must be ignored entirely")
	}
}

func TestResolve_WithoutFallback(t *testing.T) {
	e := New(DefaultConfig(), Options{Logger: zaptest.NewLogger(t)})
	defer e.Close()

	res, err := e.Resolve(context.Background(), Message{Text: "hello", SourceLang: "en", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.MeaningID != "" || e.Stats().Entries != 0 {
		t.Errorf("Expected nothing learned without a fallback, got %+v", res)
	}
}

func TestResolve_ConsecutiveHitsBuildDistance(t *testing.T) {
	thanks := &entry.Entry{
		ID:         "1002",
		Languages:  map[string][]string{"en": {"thanks"}},
		Confidence: 0.3,
		Context:    entry.Context{Emotion: map[string]float64{}},
	}
	f := newFixture(t, seededState(helloEntry(), thanks))
	ctx := context.Background()

	for _, text := range []string{"hello", "thanks"} {
		res, err := f.engine.Resolve(ctx, Message{Text: text, SourceLang: "en", ChannelID: "c1"})
		if err != nil {
			t.Fatalf("Resolve(%s) failed: %v", text, err)
		}
		if !res.Cached {
			t.Fatalf("Expected %s to be cached", text)
		}
	}

	if w := f.engine.Weight("1001", "1002"); !approx(w, 0.1) {
		t.Errorf("Expected weight 0.1, got %v", w)
	}
	if w := f.engine.Weight("1002", "1001"); !approx(w, 0.1) {
		t.Errorf("Expected symmetric weight 0.1, got %v", w)
	}

	// another channel does not link to c1's history
	if _, err := f.engine.Resolve(ctx, Message{Text: "hello", SourceLang: "en", ChannelID: "c2"}); err != nil {
		t.Fatal(err)
	}
	if w := f.engine.Weight("1001", "1002"); !approx(w, 0.1) {
		t.Errorf("Expected weight to stay 0.1, got %v", w)
	}
}

type staticChannels map[string]string

func (s staticChannels) SourceLanguage(id string) (string, bool) {
	lang, ok := s[id]
	return lang, ok
}

func TestResolveInChannel(t *testing.T) {
	e := New(DefaultConfig(), Options{
		Fallback: testutil.NewMockFallback(map[string]map[string]string{"こんにちは": {"en": "hello"}}),
		Channels: staticChannels{"jp-room": "ja"},
		Logger:   zaptest.NewLogger(t),
	})
	defer e.Close()

	res, err := e.ResolveInChannel(context.Background(), Message{Text: "こんにちは", ChannelID: "jp-room"})
	if err != nil {
		t.Fatalf("ResolveInChannel failed: %v", err)
	}
	if res.Translations["en"] != "hello" {
		t.Errorf("Expected en translation, got %v", res.Translations)
	}

	if _, err := e.ResolveInChannel(context.Background(), Message{Text: "hi", ChannelID: "nowhere"}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
}

func TestResolveInChannel_LinksFile(t *testing.T) {
	path := filepath.Join(testutil.CreateTestDirectory(t), "channel_links.json")
	testutil.CreateTestFile(t, path, []byte(`{"42": {"lang": "ko", "webhook": "hook"}}`))
	links, err := channels.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	fallback := testutil.NewMockFallback(nil)
	e := New(DefaultConfig(), Options{Fallback: fallback, Channels: links, Logger: zaptest.NewLogger(t)})
	defer e.Close()

	if _, err := e.ResolveInChannel(context.Background(), Message{Text: "안녕", ChannelID: "42"}); err != nil {
		t.Fatalf("ResolveInChannel failed: %v", err)
	}
	if calls := fallback.Calls(); len(calls) != 1 || calls[0].SourceLang != "ko" {
		t.Errorf("Expected a ko fallback call, got %+v", calls)
	}
}

func TestDispute(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	got, err := f.engine.Dispute("1001")
	if err != nil {
		t.Fatalf("Dispute failed: %v", err)
	}
	if !approx(got.Confidence, 0.25) {
		t.Errorf("Expected confidence 0.25, got %v", got.Confidence)
	}

	if _, err := f.engine.Dispute("9999"); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordFeedback_Clamps(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	tests := []struct {
		delta float64
		want  float64
	}{
		{5, 1.0},
		{-0.4, 0.6},
		{-10, 0.0},
	}
	for _, tt := range tests {
		got, err := f.engine.RecordFeedback("1001", tt.delta)
		if err != nil {
			t.Fatalf("RecordFeedback(%v) failed: %v", tt.delta, err)
		}
		if !approx(got.Confidence, tt.want) {
			t.Errorf("after delta %v: confidence %v, want %v", tt.delta, got.Confidence, tt.want)
		}
	}
}

func TestApplyCorrection(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	got, err := f.engine.ApplyCorrection("1001", "ja", "やあ!")
	if err != nil {
		t.Fatalf("ApplyCorrection failed: %v", err)
	}
	if diff := cmp.Diff([]string{"やあ!"}, got.Languages["ja"]); diff != "" {
		t.Errorf("ja variants mismatch (-want +got):\n%s", diff)
	}
	if !approx(got.Confidence, 0.42) {
		t.Errorf("Expected confidence 0.42, got %v", got.Confidence)
	}
	if !approx(got.Context.Emotion["excited"], 0.2) {
		t.Errorf("Expected excited weight 0.2, got %v", got.Context.Emotion)
	}

	for i := 0; i < 5; i++ {
		got, err = f.engine.ApplyCorrection("1001", "ja", "やあ!")
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(got.Languages["ja"]) != 1 {
		t.Errorf("duplicate corrections must not add variants, got %v", got.Languages["ja"])
	}
	if got.Context.Emotion["excited"] != 1.0 || got.Confidence != 1.0 {
		t.Errorf("Expected weights capped at 1.0, got confidence %v emotion %v", got.Confidence, got.Context.Emotion)
	}

	if _, err := f.engine.ApplyCorrection("9999", "ja", "x"); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.engine.ApplyCorrection("1001", "ja", " "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
}

func TestDisputeAndCorrectText(t *testing.T) {
	greeting := &entry.Entry{
		ID:         "1002",
		Languages:  map[string][]string{"en": {"hi"}, "ja": {"こんにちは"}},
		Confidence: 0.5,
		Context:    entry.Context{Emotion: map[string]float64{}},
	}
	hello := helloEntry()
	hello.Languages["ja"] = []string{"こんにちは"}
	f := newFixture(t, seededState(hello, greeting))

	flagged, err := f.engine.DisputeText("こんにちは")
	if err != nil {
		t.Fatalf("DisputeText failed: %v", err)
	}
	if diff := cmp.Diff([]string{"1001", "1002"}, flagged); diff != "" {
		t.Errorf("flagged ids mismatch (-want +got):\n%s", diff)
	}
	if e, _ := f.engine.Lookup("1002"); !approx(e.Confidence, 0.45) {
		t.Errorf("Expected 0.45, got %v", e.Confidence)
	}

	corrected, err := f.engine.CorrectText("こんにちは", "こんちは")
	if err != nil {
		t.Fatalf("CorrectText failed: %v", err)
	}
	if corrected.ID != "1001" {
		t.Errorf("Expected the lowest id to be corrected, got %s", corrected.ID)
	}
	if diff := cmp.Diff([]string{"こんにちは", "こんちは"}, corrected.Languages["ja"]); diff != "" {
		t.Errorf("ja variants mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.engine.CorrectText("never seen", "x"); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMergeMeanings(t *testing.T) {
	hi := &entry.Entry{
		ID:         "1002",
		Languages:  map[string][]string{"en": {"hi"}, "ja": {"やあ"}},
		Confidence: 0.6,
		Context:    entry.Context{Emotion: map[string]float64{}},
	}
	f := newFixture(t, seededState(helloEntry(), hi))

	merged, err := f.engine.MergeMeanings("1002", "1001")
	if err != nil {
		t.Fatalf("MergeMeanings failed: %v", err)
	}
	want := map[string][]string{"en": {"hello", "hi"}, "ja": {"やあ"}}
	if diff := cmp.Diff(want, merged.Languages); diff != "" {
		t.Errorf("languages mismatch (-want +got):\n%s", diff)
	}
	if !approx(merged.Confidence, 0.7) {
		t.Errorf("Expected confidence 0.7, got %v", merged.Confidence)
	}
	if _, ok := f.engine.Lookup("1002"); ok {
		t.Error("source meaning must be gone")
	}

	if _, err := f.engine.MergeMeanings("1001", "1001"); !errors.Is(err, entry.ErrNoOp) {
		t.Errorf("Expected ErrNoOp, got %v", err)
	}
	if _, err := f.engine.MergeMeanings("1001", "4242"); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDecay(t *testing.T) {
	f := newFixture(t, seededState(helloEntry()))

	if _, ran, _ := f.engine.Decay(f.clock.Now()); ran {
		t.Error("the first call only starts the clock")
	}

	f.clock.Advance(30 * time.Minute)
	if _, ran, _ := f.engine.Decay(f.clock.Now()); ran {
		t.Error("decay must not run twice within an hour")
	}

	f.clock.Advance(7*24*time.Hour - 30*time.Minute)
	factor, ran, err := f.engine.Decay(f.clock.Now())
	if err != nil || !ran {
		t.Fatalf("Expected a decay pass, got ran=%v err=%v", ran, err)
	}
	if !approx(factor, 0.5) {
		t.Errorf("Expected factor 0.5 after one half-life, got %v", factor)
	}
	if e, _ := f.engine.Lookup("1001"); !approx(e.Confidence, 0.15) {
		t.Errorf("Expected confidence 0.15, got %v", e.Confidence)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	dir := testutil.CreateTestDirectory(t)
	dictPath := filepath.Join(dir, "dictionaries", "translate.json")
	distPath := filepath.Join(dir, "dictionaries", "meaning_distance.json")
	journalPath := filepath.Join(dir, "logs", "translate_logs.jsonl")

	j, err := journal.NewJSONL(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	fallback := testutil.NewMockFallback(map[string]map[string]string{
		"hello": {"ja": "こんにちは"},
		"bye":   {"ja": "さようなら"},
	})
	first := New(DefaultConfig(), Options{
		Backend:          persist.NewJSONBackend(dictPath, distPath),
		Fallback:         fallback,
		Journal:          j,
		Logger:           zaptest.NewLogger(t),
		SnapshotInterval: time.Hour,
	})
	ctx := context.Background()
	for _, text := range []string{"hello", "bye", "hello", "bye"} {
		if _, err := first.Resolve(ctx, Message{Text: text, SourceLang: "en", ChannelID: "c1"}); err != nil {
			t.Fatalf("Resolve(%s) failed: %v", text, err)
		}
	}
	before := first.Entries()
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := first.Resolve(ctx, Message{Text: "hello", SourceLang: "en"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	second := New(DefaultConfig(), Options{
		Backend: persist.NewJSONBackend(dictPath, distPath),
		Logger:  zaptest.NewLogger(t),
	})
	defer second.Close()

	opts := cmp.Comparer(func(a, b time.Time) bool { return a.Sub(b).Abs() < time.Millisecond })
	if diff := cmp.Diff(before, second.Entries(), opts); diff != "" {
		t.Errorf("entries mismatch after reload (-want +got):\n%s", diff)
	}
	if w := second.Weight("1001", "1002"); !approx(w, 0.1) {
		t.Errorf("Expected persisted distance 0.1, got %v", w)
	}

	records, err := journal.Read(journalPath, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("Expected 4 journal records, got %d", len(records))
	}
	if records[0].Source != SourceFallback || records[2].Source != SourceCache {
		t.Errorf("unexpected journal sources: %s, %s", records[0].Source, records[2].Source)
	}
}

func TestMigratedStateIsWrittenBack(t *testing.T) {
	seed := seededState(helloEntry())
	seed.Migrated = true
	backend := persist.NewMemory(seed)

	e := New(DefaultConfig(), Options{Backend: backend, Logger: zaptest.NewLogger(t)})
	if backend.Saves() != 1 {
		t.Errorf("Expected the migrated state to be saved once, got %d saves", backend.Saves())
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentResolve(t *testing.T) {
	fallback := testutil.NewMockFallback(nil)
	fallback.Default = map[string]string{"ja": "訳"}
	e := New(DefaultConfig(), Options{
		Fallback:         fallback,
		Logger:           zaptest.NewLogger(t),
		SnapshotInterval: 10 * time.Millisecond,
	})
	defer e.Close()

	const goroutines, perGoroutine = 8, 10
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				msg := Message{
					Text:       fmt.Sprintf("%d-%d", g, i),
					SourceLang: "en",
					ChannelID:  fmt.Sprintf("channel-%d", g),
				}
				if _, err := e.Resolve(context.Background(), msg); err != nil {
					t.Errorf("Resolve failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	entries := e.Entries()
	if len(entries) != goroutines*perGoroutine {
		t.Fatalf("Expected %d entries, got %d", goroutines*perGoroutine, len(entries))
	}
	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}
	sort.Strings(ids)
	for i, id := range ids {
		if want := fmt.Sprint(1001 + i); id != want {
			t.Fatalf("Expected contiguous ids, got %s at %d", id, i)
		}
	}
	if got := e.Stats().Channels; got != goroutines {
		t.Errorf("Expected %d channels, got %d", goroutines, got)
	}
}
