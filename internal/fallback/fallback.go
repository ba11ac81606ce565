package fallback

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds one fallback translation
const DefaultTimeout = 15 * time.Second

// SupportedLanguages are the languages the bot translates between
var SupportedLanguages = []string{"ja", "en", "ko", "zh"}

// Provider translates text from sourceLang into its target languages. It may
// return a partial result together with an error describing what failed.
type Provider interface {
	Translate(ctx context.Context, text, sourceLang string) (map[string]string, error)
	Name() string
}

// Targets returns languages without sourceLang
func Targets(languages []string, sourceLang string) []string {
	out := make([]string, 0, len(languages))
	for _, lang := range languages {
		if lang != sourceLang {
			out = append(out, lang)
		}
	}
	return out
}

// Adapter is the engine-facing side of a provider: it applies a timeout,
// drops empty translations and swallows errors into a log line
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAdapter wraps provider. A nil logger discards log output.
func NewAdapter(provider Provider, timeout time.Duration, logger *zap.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{provider: provider, timeout: timeout, logger: logger}
}

// Translate returns the translations the provider managed to produce. It
// never fails; missing languages are unavailable.
func (a *Adapter) Translate(ctx context.Context, text, sourceLang string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	got, err := a.provider.Translate(ctx, text, sourceLang)
	if err != nil {
		a.logger.Warn("fallback translation incomplete",
			zap.String("provider", a.provider.Name()),
			zap.String("source_lang", sourceLang),
			zap.Int("languages", len(got)),
			zap.Error(err))
	}

	out := make(map[string]string, len(got))
	for lang, t := range got {
		if t = strings.TrimSpace(t); t != "" && lang != sourceLang {
			out[lang] = t
		}
	}
	return out
}

// Name returns the wrapped provider name
func (a *Adapter) Name() string {
	return a.provider.Name()
}

// Close releases the provider when it holds resources
func (a *Adapter) Close() error {
	if c, ok := a.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Static is a provider answering from a fixed glossary keyed by source text
type Static map[string]map[string]string

// LoadStatic reads a glossary file of the form {text: {lang: translation}}.
// JSON files are read as YAML.
func LoadStatic(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary: %w", err)
	}
	var s Static
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse glossary %s: %w", path, err)
	}
	if s == nil {
		s = Static{}
	}
	return s, nil
}

// Translate returns the table row for text
func (s Static) Translate(_ context.Context, text, _ string) (map[string]string, error) {
	out := make(map[string]string, len(s[text]))
	for lang, t := range s[text] {
		out[lang] = t
	}
	return out, nil
}

// Name returns "static"
func (s Static) Name() string {
	return "static"
}
