package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini provider
type GeminiConfig struct {
	APIKey    string
	Model     string   // defaults to gemini-2.0-flash
	Languages []string // defaults to SupportedLanguages
}

// GeminiProvider asks Gemini for every target language in one JSON answer
type GeminiProvider struct {
	client    *genai.Client
	model     string
	languages []string
}

// NewGeminiProvider creates a provider holding one long-lived client
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not found")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p := &GeminiProvider{client: client, model: cfg.Model, languages: cfg.Languages}
	if p.model == "" {
		p.model = "gemini-2.0-flash"
	}
	if len(p.languages) == 0 {
		p.languages = SupportedLanguages
	}
	return p, nil
}

// Translate sends one prompt and parses the JSON object it returns
func (p *GeminiProvider) Translate(ctx context.Context, text, sourceLang string) (map[string]string, error) {
	temperature := float32(0.3)
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		genai.Text(buildPrompt(text, sourceLang, p.languages)),
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	return ParseTranslations(resp.Text(), sourceLang, p.languages)
}

// Name returns "gemini:<model>"
func (p *GeminiProvider) Name() string {
	return "gemini:" + p.model
}

func buildPrompt(text, sourceLang string, languages []string) string {
	var sb strings.Builder
	sb.WriteString("You are a professional translation assistant.\n")
	sb.WriteString("Translate the following message naturally.\n")
	sb.WriteString("Preserve tone and intent.\n\n")
	fmt.Fprintf(&sb, "Source language: %s\n", sourceLang)
	fmt.Fprintf(&sb, "Message: %s\n\n", text)
	sb.WriteString("Return JSON only:\n{ ")
	for i, lang := range languages {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q: \"...\"", lang)
	}
	sb.WriteString(" }")
	return sb.String()
}

// ParseTranslations extracts the target languages from a JSON object answer.
// Non-string, empty or missing languages are skipped; a malformed answer
// yields an empty result and an error.
func ParseTranslations(raw, sourceLang string, languages []string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return map[string]string{}, fmt.Errorf("malformed translation payload: %w", err)
	}

	out := make(map[string]string)
	for _, lang := range Targets(languages, sourceLang) {
		if s, ok := parsed[lang].(string); ok && strings.TrimSpace(s) != "" {
			out[lang] = strings.TrimSpace(s)
		}
	}
	return out, nil
}
