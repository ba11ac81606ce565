package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"codeberg.org/snonux/meaningbot/internal/archive"
	"codeberg.org/snonux/meaningbot/internal/batch"
	"codeberg.org/snonux/meaningbot/internal/channels"
	"codeberg.org/snonux/meaningbot/internal/cli"
	"codeberg.org/snonux/meaningbot/internal/engine"
	"codeberg.org/snonux/meaningbot/internal/entry"
	"codeberg.org/snonux/meaningbot/internal/journal"
	"codeberg.org/snonux/meaningbot/internal/models"
)

// Processor handles the command logic around one engine
type Processor struct {
	flags  *cli.Flags
	engine *engine.Engine
	links  *channels.Links
	logger *zap.Logger
	in     io.Reader
	out    io.Writer
}

// NewProcessor builds the engine and its collaborators from the settings
func NewProcessor(ctx context.Context, flags *cli.Flags, s cli.Settings, logger *zap.Logger) (*Processor, error) {
	links, err := channels.Load(s.ChannelsPath)
	if err != nil {
		return nil, err
	}

	backend, err := NewBackend(s)
	if err != nil {
		return nil, err
	}

	translator, err := NewFallback(ctx, s, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	j, err := journal.NewJSONL(s.JournalPath)
	if err != nil {
		backend.Close()
		if c, ok := translator.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}

	eng := engine.New(EngineConfig(s), engine.Options{
		Backend:          backend,
		Fallback:         translator,
		Journal:          j,
		Channels:         links,
		Logger:           logger,
		SnapshotInterval: s.SnapshotInterval,
	})
	return New(flags, eng, links, logger), nil
}

// New creates a processor around an existing engine
func New(flags *cli.Flags, eng *engine.Engine, links *channels.Links, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if links == nil {
		links = channels.New("")
	}
	return &Processor{
		flags:  flags,
		engine: eng,
		links:  links,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// SetIO replaces the reader used for "-" batches and the output writer
func (p *Processor) SetIO(in io.Reader, out io.Writer) {
	p.in = in
	p.out = out
}

// Close flushes and closes the engine
func (p *Processor) Close() error {
	return p.engine.Close()
}

// ProcessText resolves one message given on the command line
func (p *Processor) ProcessText(ctx context.Context, text string) error {
	msg := engine.Message{
		Text:        text,
		SourceLang:  p.flags.Lang,
		ChannelID:   p.flags.ChannelID,
		Author:      p.flags.Author,
		ReplyAuthor: p.flags.ReplyAuthor,
	}
	res, err := p.resolve(ctx, msg)
	if err != nil {
		return err
	}
	return p.printResult(text, res)
}

func (p *Processor) resolve(ctx context.Context, msg engine.Message) (*engine.Result, error) {
	if msg.SourceLang == "" {
		return p.engine.ResolveInChannel(ctx, msg)
	}
	return p.engine.Resolve(ctx, msg)
}

// BatchSummary counts the outcomes of a batch
type BatchSummary struct {
	Total      int
	Cached     int
	Learned    int
	Unresolved int
	Errors     int
}

// ProcessBatch resolves every message of the batch file, or of the input
// reader when the batch file is "-"
func (p *Processor) ProcessBatch(ctx context.Context) (BatchSummary, error) {
	var (
		messages []batch.Message
		err      error
	)
	if p.flags.BatchFile == "-" {
		messages, err = batch.Parse(p.in)
	} else {
		messages, err = batch.ReadBatchFile(p.flags.BatchFile)
	}
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{Total: len(messages)}
	for i, m := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		msg := engine.Message{
			Text:        m.Text,
			SourceLang:  p.batchLanguage(m),
			ChannelID:   firstNonEmpty(m.ChannelID, p.flags.ChannelID),
			Author:      firstNonEmpty(m.Author, p.flags.Author),
			ReplyAuthor: m.ReplyAuthor,
		}

		if !p.flags.JSONOutput {
			fmt.Fprintf(p.out, "\nProcessing %d/%d: %s\n", i+1, len(messages), m.Text)
		}
		res, err := p.resolve(ctx, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving '%s': %v\n", m.Text, err)
			summary.Errors++
			continue
		}
		switch {
		case res.Cached:
			summary.Cached++
		case res.MeaningID != "":
			summary.Learned++
		default:
			summary.Unresolved++
		}
		if err := p.printResult(m.Text, res); err != nil {
			return summary, err
		}
	}

	if !p.flags.JSONOutput {
		fmt.Fprintf(p.out, "\n=== Batch Processing Summary ===\n")
		fmt.Fprintf(p.out, "Total messages: %d\n", summary.Total)
		fmt.Fprintf(p.out, "From dictionary: %d\n", summary.Cached)
		fmt.Fprintf(p.out, "Learned: %d\n", summary.Learned)
		if summary.Unresolved > 0 {
			fmt.Fprintf(p.out, "Untranslated: %d\n", summary.Unresolved)
		}
		if summary.Errors > 0 {
			fmt.Fprintf(p.out, "Errors: %d\n", summary.Errors)
		}
		fmt.Fprintf(p.out, "================================\n")
	}
	return summary, nil
}

// batchLanguage picks the message's own language, then the language linked
// to its channel, then the command line language
func (p *Processor) batchLanguage(m batch.Message) string {
	if m.Lang != "" {
		return m.Lang
	}
	if lang, ok := p.links.SourceLanguage(m.ChannelID); ok {
		return lang
	}
	return p.flags.Lang
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type resultJSON struct {
	Text         string            `json:"text"`
	MeaningID    string            `json:"meaning_id,omitempty"`
	Cached       bool              `json:"cached"`
	Similarity   float64           `json:"similarity,omitempty"`
	Emotion      string            `json:"emotion"`
	ResolutionID string            `json:"resolution_id"`
	Translations map[string]string `json:"translations"`
}

func (p *Processor) printResult(text string, res *engine.Result) error {
	if p.flags.JSONOutput {
		enc := json.NewEncoder(p.out)
		enc.SetEscapeHTML(false)
		return enc.Encode(resultJSON{
			Text:         text,
			MeaningID:    res.MeaningID,
			Cached:       res.Cached,
			Similarity:   res.Similarity,
			Emotion:      string(res.Emotion),
			ResolutionID: res.ResolutionID,
			Translations: res.Translations,
		})
	}

	switch {
	case res.Cached:
		fmt.Fprintf(p.out, "  ✓ Meaning %s from dictionary (similarity %.2f, %s)\n", res.MeaningID, res.Similarity, res.Emotion)
	case res.MeaningID != "":
		fmt.Fprintf(p.out, "  + Learned meaning %s (%s)\n", res.MeaningID, res.Emotion)
	default:
		fmt.Fprintf(p.out, "  ✗ No translation available (%s)\n", res.Emotion)
	}
	for _, lang := range sortedKeys(res.Translations) {
		fmt.Fprintf(p.out, "    %s: %s\n", lang, res.Translations[lang])
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Feedback adjusts the confidence of a meaning
func (p *Processor) Feedback(id string, delta float64) error {
	e, err := p.engine.RecordFeedback(id, delta)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Meaning %s confidence: %.3f\n", e.ID, e.Confidence)
	return nil
}

// Dispute flags a meaning by id, or every meaning containing the given text
func (p *Processor) Dispute(target string) error {
	if _, ok := p.engine.Lookup(target); ok {
		e, err := p.engine.Dispute(target)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.out, "Meaning %s disputed, confidence: %.3f\n", e.ID, e.Confidence)
		return nil
	}

	ids, err := p.engine.DisputeText(target)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(p.out, "No meaning contains '%s'\n", target)
		return nil
	}
	fmt.Fprintf(p.out, "Disputed meanings: %s\n", strings.Join(ids, ", "))
	return nil
}

// Correct adds a corrected variant. With three arguments they are
// id, language and corrected text; with two, the text to correct and the
// corrected text.
func (p *Processor) Correct(args []string) error {
	var (
		e   *entry.Entry
		err error
	)
	switch len(args) {
	case 3:
		e, err = p.engine.ApplyCorrection(args[0], args[1], args[2])
	case 2:
		e, err = p.engine.CorrectText(args[0], args[1])
	default:
		return fmt.Errorf("expected ID LANG TEXT or TEXT CORRECTED, got %d arguments", len(args))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Meaning %s corrected, confidence: %.3f\n", e.ID, e.Confidence)
	return p.printEntry(e)
}

// Merge folds one meaning into another
func (p *Processor) Merge(sourceID, targetID string) error {
	e, err := p.engine.MergeMeanings(sourceID, targetID)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Merged %s into %s\n", sourceID, targetID)
	return p.printEntry(e)
}

// Decay runs a decay pass now
func (p *Processor) Decay() error {
	factor, ran, err := p.engine.Decay(time.Now())
	if err != nil {
		return err
	}
	if !ran {
		fmt.Fprintf(p.out, "Decay skipped: the previous pass is less than an hour old\n")
		return nil
	}
	fmt.Fprintf(p.out, "Decay applied with factor %.4f\n", factor)
	return nil
}

// Show prints the given meanings, or a summary of all of them
func (p *Processor) Show(ids []string) error {
	if len(ids) == 0 {
		stats := p.engine.Stats()
		fmt.Fprintf(p.out, "Meanings: %d\n", stats.Entries)
		fmt.Fprintf(p.out, "Distance rows: %d\n", stats.DistanceRows)
		if !stats.LastDecayCheck.IsZero() {
			fmt.Fprintf(p.out, "Last decay check: %s\n", stats.LastDecayCheck.Format(time.RFC3339))
		}
		for _, e := range p.engine.Entries() {
			fmt.Fprintf(p.out, "  %s  %.3f  %s\n", e.ID, e.Confidence, summarize(e))
		}
		return nil
	}

	var errs []error
	for _, id := range ids {
		e, ok := p.engine.Lookup(id)
		if !ok {
			errs = append(errs, fmt.Errorf("meaning %s: %w", id, entry.ErrNotFound))
			continue
		}
		if err := p.printEntry(e); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func summarize(e *entry.Entry) string {
	canonical := e.Canonical()
	parts := make([]string, 0, len(canonical))
	for _, lang := range sortedKeys(canonical) {
		parts = append(parts, lang+"="+canonical[lang])
	}
	return strings.Join(parts, " ")
}

func (p *Processor) printEntry(e *entry.Entry) error {
	if p.flags.JSONOutput {
		enc := json.NewEncoder(p.out)
		enc.SetEscapeHTML(false)
		return enc.Encode(e)
	}

	fmt.Fprintf(p.out, "Meaning %s\n", e.ID)
	fmt.Fprintf(p.out, "  confidence: %.3f\n", e.Confidence)
	langs := make([]string, 0, len(e.Languages))
	for lang := range e.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		fmt.Fprintf(p.out, "  %s: %s\n", lang, strings.Join(e.Languages[lang], " | "))
	}
	if len(e.Context.Emotion) > 0 {
		tags := make([]string, 0, len(e.Context.Emotion))
		for tag, w := range e.Context.Emotion {
			tags = append(tags, tag+"="+strconv.FormatFloat(w, 'f', 2, 64))
		}
		sort.Strings(tags)
		fmt.Fprintf(p.out, "  emotion: %s\n", strings.Join(tags, " "))
	}
	if !e.LastModified.IsZero() {
		fmt.Fprintf(p.out, "  last modified: %s\n", e.LastModified.Format(time.RFC3339))
	}
	return nil
}

// ListChannels prints the linked channels
func (p *Processor) ListChannels() {
	ids := p.links.Channels()
	if len(ids) == 0 {
		fmt.Fprintln(p.out, "No linked channels")
		return
	}
	for _, id := range ids {
		link, _ := p.links.Get(id)
		fmt.Fprintf(p.out, "%s  %s", id, link.Lang)
		if link.Webhook != "" {
			fmt.Fprintf(p.out, "  %s", link.Webhook)
		}
		fmt.Fprintln(p.out)
	}
}

// LinkChannel links a channel to a language and saves the links
func (p *Processor) LinkChannel(id, lang, webhook string) error {
	if err := p.links.Set(id, channels.Link{Lang: lang, Webhook: webhook}); err != nil {
		return err
	}
	if err := p.links.Save(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Linked channel %s to %s\n", id, lang)
	return nil
}

// UnlinkChannel removes a channel link and saves the links
func (p *Processor) UnlinkChannel(id string) error {
	if !p.links.Remove(id) {
		return fmt.Errorf("channel %s is not linked", id)
	}
	if err := p.links.Save(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Unlinked channel %s\n", id)
	return nil
}

// History prints the journal records written since the given time
func History(out io.Writer, path string, since time.Time) error {
	records, err := journal.Read(path, since)
	if err != nil {
		return err
	}
	for _, rec := range records {
		word := make([]string, 0, len(rec.Word))
		for _, lang := range sortedKeys(rec.Word) {
			word = append(word, lang+"="+rec.Word[lang])
		}
		id := rec.MeaningID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(out, "%s  %-8s %-5s %s\n", rec.Time, rec.Source, id, strings.Join(word, " "))
	}
	return nil
}

// Backup copies the store files of the configured backend into a new
// timestamped archive directory
func Backup(out io.Writer, s cli.Settings, now time.Time) error {
	files := []string{s.DictionaryPath, s.DistancesPath}
	if s.Backend == "sqlite" {
		files = []string{s.SQLitePath}
	}
	files = append(files, s.ChannelsPath)

	path, err := archive.Backup(s.ArchiveDir, files, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Dictionary archived to: %s\n", path)
	return nil
}

// ListModels prints the OpenAI chat models usable as fallback translator
func ListModels(ctx context.Context, out io.Writer, s cli.Settings) error {
	return models.NewLister(s.OpenAIKey, s.OpenAIBaseURL).ListAvailableModels(ctx, out, s.OpenAIModel)
}
