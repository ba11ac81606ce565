// Package engine resolves inbound messages to learned meanings.
//
// An Engine owns the entry store, the per-channel context windows, the
// meaning distance graph and the confidence controller. Every mutation of
// the store or the graph goes through a single writer lock; scoring reads
// copies and the fallback translator is called without holding it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codeberg.org/snonux/meaningbot/internal/confidence"
	"codeberg.org/snonux/meaningbot/internal/contextlog"
	"codeberg.org/snonux/meaningbot/internal/distance"
	"codeberg.org/snonux/meaningbot/internal/emotion"
	"codeberg.org/snonux/meaningbot/internal/entry"
	"codeberg.org/snonux/meaningbot/internal/journal"
	"codeberg.org/snonux/meaningbot/internal/persist"
	"codeberg.org/snonux/meaningbot/internal/scorer"
)

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("engine closed")

	// ErrUnknownChannel is returned when a channel has no linked language
	ErrUnknownChannel = errors.New("channel has no linked language")

	// ErrEmptyText is returned for messages that are blank after trimming
	ErrEmptyText = errors.New("empty text")
)

// CorrectionEmotionBonus is added to the corrected text's emotion weight
const CorrectionEmotionBonus = 0.2

// Resolution sources recorded in the journal
const (
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Fallback translates text that no learned meaning covers. It never fails;
// missing languages are unavailable.
type Fallback interface {
	Translate(ctx context.Context, text, sourceLang string) map[string]string
}

// LanguageResolver looks up the language spoken in a channel
type LanguageResolver interface {
	SourceLanguage(channelID string) (string, bool)
}

// Config tunes the engine
type Config struct {
	HalfLife       time.Duration
	WindowCapacity int
	// MinSimilarity is the similarity an entry must exceed to be a candidate
	MinSimilarity float64
	// Seed seeds the selector; zero seeds from the clock
	Seed int64
}

// DefaultConfig returns the default tuning
func DefaultConfig() Config {
	return Config{
		HalfLife:       confidence.DefaultHalfLife,
		WindowCapacity: contextlog.DefaultCapacity,
		MinSimilarity:  scorer.SimilarityThreshold,
	}
}

// Options are the collaborators of an engine. Every field is optional.
type Options struct {
	Backend          persist.Backend
	Fallback         Fallback
	Journal          journal.Journal
	Channels         LanguageResolver
	Logger           *zap.Logger
	SnapshotInterval time.Duration
	Now              func() time.Time
	Rand             *rand.Rand
}

// Message is one inbound chat message
type Message struct {
	Text        string
	SourceLang  string
	ChannelID   string
	Author      string
	ReplyAuthor string
}

// Result is how a message was resolved
type Result struct {
	// Translations maps every known language to its text, the source
	// language included
	Translations map[string]string
	// MeaningID is the resolved entry, or the entry learned from the
	// fallback. It is empty when nothing could be learned.
	MeaningID  string
	Emotion    emotion.Tag
	Cached     bool
	Similarity float64
	// ResolutionID identifies this resolution in logs and the journal
	ResolutionID string
}

// Stats summarizes the learned state
type Stats struct {
	Entries        int
	Channels       int
	DistanceRows   int
	LastDecayCheck time.Time
}

// Engine is the meaning-resolution engine
type Engine struct {
	// mu serializes mutations of the store and the graph
	mu sync.Mutex

	store      *entry.Store
	graph      *distance.Graph
	tracker    *contextlog.Tracker
	controller *confidence.Controller
	scorer     scorer.Scorer
	selector   *scorer.Selector

	fallback Fallback
	journal  journal.Journal
	channels LanguageResolver
	snap     *persist.Snapshotter
	logger   *zap.Logger
	now      func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates an engine and loads its state from opts.Backend. Unreadable
// storage starts empty.
func New(cfg Config, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Backend == nil {
		opts.Backend = persist.NewMemory(nil)
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Rand == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = opts.Now().UnixNano()
		}
		opts.Rand = rand.New(rand.NewSource(seed))
	}

	e := &Engine{
		store:    entry.NewStore(),
		graph:    distance.NewGraph(),
		scorer:   scorer.Scorer{MinSimilarity: cfg.MinSimilarity},
		selector: scorer.NewSelector(opts.Rand),
		fallback: opts.Fallback,
		journal:  opts.Journal,
		channels: opts.Channels,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	e.store.SetClock(opts.Now)
	e.graph.SetClock(opts.Now)
	e.tracker = contextlog.NewTracker(cfg.WindowCapacity, e.graph)

	state := persist.LoadOrEmpty(opts.Backend, e.logger)
	if err := e.store.Load(state.Entries); err != nil {
		e.logger.Warn("skipped invalid entries", zap.Error(err))
	}
	e.graph.Load(state.Distances, state.DistancesUpdated)
	e.controller = confidence.NewController(cfg.HalfLife, state.LastDecayCheck)

	e.snap = persist.NewSnapshotter(opts.Backend, e.snapshot, opts.SnapshotInterval, e.logger)
	e.snap.Start()

	e.logger.Info("engine started",
		zap.Int("entries", e.store.Len()),
		zap.Int("distance_rows", e.graph.Len()),
		zap.Bool("migrated", state.Migrated))
	if state.Migrated {
		e.snap.MarkDirty()
	}
	return e
}

// snapshot copies the persisted state. It must not be called with mu held.
func (e *Engine) snapshot() *persist.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := persist.NewState()
	state.Entries = e.store.Snapshot()
	state.Distances, state.DistancesUpdated = e.graph.Snapshot()
	state.LastDecayCheck = e.controller.LastDecayCheck()
	return state
}

// Resolve resolves a message in its source language. A cached meaning is
// chosen by weighted sampling over the candidates; without one the fallback
// translates the text and the result is learned as a new entry.
func (e *Engine) Resolve(ctx context.Context, msg Message) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if msg.SourceLang == "" {
		return nil, fmt.Errorf("source language is required")
	}

	e.maybeDecay()

	now := e.now()
	tag := emotion.Classify(text)
	res := &Result{Emotion: tag, ResolutionID: uuid.NewString()}
	logger := e.logger.With(
		zap.String("resolution_id", res.ResolutionID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("source_lang", msg.SourceLang))

	query := scorer.Query{
		Text:        text,
		SourceLang:  msg.SourceLang,
		ChannelID:   msg.ChannelID,
		ReplyAuthor: msg.ReplyAuthor,
		Emotion:     tag,
	}
	signals := scorer.Signals{
		Window:   e.tracker.RecentWindow(msg.ChannelID),
		Usage:    e.tracker.UsageCounts(msg.ChannelID),
		Distance: e.graph,
	}
	candidates := e.scorer.Score(query, e.store.Candidates(msg.SourceLang), signals)

	if picked, err := e.selector.Select(candidates); err == nil {
		if hit, ok := e.applyHit(msg, text, tag, now, picked); ok {
			res.Translations = hit.Canonical()
			res.MeaningID = hit.ID
			res.Cached = true
			res.Similarity = picked.Similarity
			logger.Debug("resolved from cache",
				zap.String("meaning_id", hit.ID),
				zap.Float64("similarity", picked.Similarity),
				zap.Float64("score", picked.Score),
				zap.Int("candidates", len(candidates)))
			e.snap.MarkDirty()
			e.record(now, res, SourceCache)
			return res, nil
		}
	}

	translations := e.translate(ctx, text, msg.SourceLang)

	e.mu.Lock()
	if len(translations) > 0 {
		id, err := e.store.Create(msg.SourceLang, text, translations)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("failed to learn entry: %w", err)
		}
		res.MeaningID = id
	}
	e.tracker.Append(msg.ChannelID, contextlog.LogEntry{
		Timestamp: now,
		Content:   text,
		Emotion:   tag,
		Author:    msg.Author,
	})
	e.mu.Unlock()

	res.Translations = make(map[string]string, len(translations)+1)
	for lang, t := range translations {
		res.Translations[lang] = t
	}
	res.Translations[msg.SourceLang] = text

	if res.MeaningID != "" {
		logger.Info("learned new meaning",
			zap.String("meaning_id", res.MeaningID),
			zap.Int("languages", len(res.Translations)))
		e.snap.MarkDirty()
	} else {
		logger.Warn("fallback returned no translations")
	}
	e.record(now, res, SourceFallback)
	return res, nil
}

// applyHit bumps the picked entry and logs the message against it. It
// reports false when the entry vanished since scoring.
func (e *Engine) applyHit(msg Message, text string, tag emotion.Tag, now time.Time, picked scorer.Candidate) (*entry.Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bonus := confidence.HitBonusFor(picked.Similarity)
	hit, err := e.store.Update(picked.Entry.ID, func(en *entry.Entry) {
		confidence.Adjust(en, bonus)
	})
	if err != nil {
		return nil, false
	}
	e.tracker.Append(msg.ChannelID, contextlog.LogEntry{
		Timestamp: now,
		Content:   text,
		MeaningID: hit.ID,
		Emotion:   tag,
		Author:    msg.Author,
	})
	return hit, true
}

func (e *Engine) translate(ctx context.Context, text, sourceLang string) map[string]string {
	if e.fallback == nil {
		return nil
	}
	return e.fallback.Translate(ctx, text, sourceLang)
}

func (e *Engine) record(now time.Time, res *Result, source string) {
	rec := journal.NewRecord(now, res.Translations)
	rec.MeaningID = res.MeaningID
	rec.Emotion = string(res.Emotion)
	rec.ResolutionID = res.ResolutionID
	rec.Source = source
	if err := e.journal.Write(rec); err != nil {
		e.logger.Warn("failed to write journal", zap.Error(err))
	}
}

// ResolveInChannel resolves a message in the language linked to its channel
func (e *Engine) ResolveInChannel(ctx context.Context, msg Message) (*Result, error) {
	if e.channels == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, msg.ChannelID)
	}
	lang, ok := e.channels.SourceLanguage(msg.ChannelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, msg.ChannelID)
	}
	msg.SourceLang = lang
	return e.Resolve(ctx, msg)
}

// RecordFeedback adjusts the confidence of a meaning by delta
func (e *Engine) RecordFeedback(meaningID string, delta float64) (*entry.Entry, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	e.mu.Lock()
	updated, err := e.store.Update(meaningID, func(en *entry.Entry) {
		confidence.Adjust(en, delta)
	})
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("feedback recorded",
		zap.String("meaning_id", meaningID),
		zap.Float64("delta", delta),
		zap.Float64("confidence", updated.Confidence))
	e.snap.MarkDirty()
	return updated, nil
}

// Dispute flags a meaning as wrong
func (e *Engine) Dispute(meaningID string) (*entry.Entry, error) {
	return e.RecordFeedback(meaningID, confidence.DisputePenalty)
}

// DisputeText flags every meaning having text as a variant and returns the
// flagged ids
func (e *Engine) DisputeText(text string) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	e.mu.Lock()
	var flagged []string
	for _, id := range e.store.FindByVariant(text) {
		if _, err := e.store.Update(id, func(en *entry.Entry) {
			confidence.Adjust(en, confidence.DisputePenalty)
		}); err == nil {
			flagged = append(flagged, id)
		}
	}
	e.mu.Unlock()

	if len(flagged) > 0 {
		e.logger.Info("text disputed", zap.Strings("meaning_ids", flagged))
		e.snap.MarkDirty()
	}
	return flagged, nil
}

// ApplyCorrection records a human correction: correctedText becomes a
// variant of lang, confidence rises and the corrected text's emotion gains
// weight
func (e *Engine) ApplyCorrection(meaningID, lang, correctedText string) (*entry.Entry, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	correctedText = strings.TrimSpace(correctedText)
	if correctedText == "" {
		return nil, ErrEmptyText
	}
	if lang == "" {
		return nil, fmt.Errorf("language is required")
	}

	e.mu.Lock()
	updated, err := e.applyCorrectionLocked(meaningID, lang, correctedText)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("correction applied",
		zap.String("meaning_id", meaningID),
		zap.String("lang", lang),
		zap.Float64("confidence", updated.Confidence))
	e.snap.MarkDirty()
	return updated, nil
}

func (e *Engine) applyCorrectionLocked(meaningID, lang, correctedText string) (*entry.Entry, error) {
	if _, err := e.store.AppendVariant(meaningID, lang, correctedText); err != nil {
		return nil, err
	}
	tag := string(emotion.Classify(correctedText))
	return e.store.Update(meaningID, func(en *entry.Entry) {
		confidence.Adjust(en, confidence.CorrectionBonus)
		if en.Context.Emotion == nil {
			en.Context.Emotion = make(map[string]float64)
		}
		en.Context.Emotion[tag] = confidence.Clamp(en.Context.Emotion[tag] + CorrectionEmotionBonus)
	})
}

// CorrectText applies a correction to the first meaning (by id) having text
// as a variant, in the first language holding it
func (e *Engine) CorrectText(text, correctedText string) (*entry.Entry, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	text = strings.TrimSpace(text)
	correctedText = strings.TrimSpace(correctedText)
	if text == "" || correctedText == "" {
		return nil, ErrEmptyText
	}

	e.mu.Lock()
	var (
		updated *entry.Entry
		err     = fmt.Errorf("no meaning has %q as a variant: %w", text, entry.ErrNotFound)
	)
	for _, id := range e.store.FindByVariant(text) {
		en, ok := e.store.Get(id)
		if !ok {
			continue
		}
		langs := en.LanguagesOf(text)
		if len(langs) == 0 {
			continue
		}
		updated, err = e.applyCorrectionLocked(id, langs[0], correctedText)
		break
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("correction applied", zap.String("meaning_id", updated.ID))
	e.snap.MarkDirty()
	return updated, nil
}

// MergeMeanings folds sourceID into targetID
func (e *Engine) MergeMeanings(sourceID, targetID string) (*entry.Entry, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	e.mu.Lock()
	err := e.store.Merge(sourceID, targetID)
	var merged *entry.Entry
	if err == nil {
		merged, _ = e.store.Get(targetID)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.logger.Info("meanings merged",
		zap.String("source_id", sourceID),
		zap.String("target_id", targetID),
		zap.Float64("confidence", merged.Confidence))
	e.snap.MarkDirty()
	return merged, nil
}

// Decay runs a decay pass at now if the previous one is at least an hour
// old. It returns the applied factor and whether the pass ran.
func (e *Engine) Decay(now time.Time) (float64, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}

	e.mu.Lock()
	before := e.controller.LastDecayCheck()
	factor, ran := e.controller.DecayAll(now, e.store, e.graph, e.tracker)
	changed := !e.controller.LastDecayCheck().Equal(before)
	e.mu.Unlock()

	if ran {
		e.logger.Info("decay pass", zap.Float64("factor", factor))
	}
	// the first call only starts the clock, which is persisted as well
	if changed {
		e.snap.MarkDirty()
	}
	return factor, ran, nil
}

func (e *Engine) maybeDecay() {
	if _, _, err := e.Decay(e.now()); err != nil {
		e.logger.Debug("decay skipped", zap.Error(err))
	}
}

// Lookup returns a copy of a meaning
func (e *Engine) Lookup(meaningID string) (*entry.Entry, bool) {
	return e.store.Get(meaningID)
}

// Entries returns copies of every meaning ordered by id
func (e *Engine) Entries() []*entry.Entry {
	snapshot := e.store.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	entry.SortIDs(ids)

	out := make([]*entry.Entry, len(ids))
	for i, id := range ids {
		out[i] = snapshot[id]
	}
	return out
}

// Window returns the recent context window of a channel
func (e *Engine) Window(channelID string) []contextlog.LogEntry {
	return e.tracker.RecentWindow(channelID)
}

// Weight returns the learned distance weight a->b
func (e *Engine) Weight(a, b string) float64 {
	return e.graph.Weight(a, b)
}

// Stats summarizes the learned state
func (e *Engine) Stats() Stats {
	return Stats{
		Entries:        e.store.Len(),
		Channels:       e.tracker.Channels(),
		DistanceRows:   e.graph.Len(),
		LastDecayCheck: e.controller.LastDecayCheck(),
	}
}

// Flush writes pending changes to the backend now
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.snap.Flush()
}

// Close writes pending changes and releases the backend, the journal and
// the fallback translator. Later calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		var errs []error
		if err := e.snap.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to write final snapshot: %w", err))
		}
		if err := e.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		if c, ok := e.fallback.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("engine closed")
	})
	return e.closeErr
}
