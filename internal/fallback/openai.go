package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey    string
	Model     string   // defaults to gpt-4o-mini
	BaseURL   string   // optional API endpoint override
	Languages []string // defaults to SupportedLanguages
}

// OpenAIProvider translates with one chat completion per target language
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	languages []string
}

// NewOpenAIProvider creates a provider sharing one long-lived client
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not found")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		languages: cfg.Languages,
	}
	if p.model == "" {
		p.model = openai.GPT4oMini
	}
	if len(p.languages) == 0 {
		p.languages = SupportedLanguages
	}
	return p, nil
}

// Translate requests every target language concurrently. A failing language
// does not cancel the others.
func (p *OpenAIProvider) Translate(ctx context.Context, text, sourceLang string) (map[string]string, error) {
	var (
		mu   sync.Mutex
		out  = make(map[string]string)
		errs []error
		g    errgroup.Group
	)

	for _, target := range Targets(p.languages, sourceLang) {
		g.Go(func() error {
			translated, err := p.translateOne(ctx, text, sourceLang, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", target, err))
				return nil
			}
			out[target] = translated
			return nil
		})
	}
	_ = g.Wait()

	return out, errors.Join(errs...)
}

func (p *OpenAIProvider) translateOne(ctx context.Context, text, sourceLang, target string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a professional translation assistant. Translate chat messages naturally and preserve tone and intent.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Translate the following %s message to %s. Respond with only the translation, nothing else.\n\n%s",
					LanguageName(sourceLang), LanguageName(target), text),
			},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no translation returned")
	}

	translation := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translation == "" {
		return "", fmt.Errorf("empty translation returned")
	}
	return translation, nil
}

// Name returns "openai:<model>"
func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

var languageNames = map[string]string{
	"ja": "Japanese",
	"en": "English",
	"ko": "Korean",
	"zh": "Chinese",
}

// LanguageName returns the English name of a language code, or the code
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
