package fallback

import (
	"context"
	"errors"
	"strings"
)

// Chain asks providers in order until every target language is covered.
// Later providers only fill in languages the earlier ones missed.
type Chain struct {
	providers []Provider
	languages []string
}

// NewChain creates a chain over providers for the given languages
func NewChain(languages []string, providers ...Provider) *Chain {
	if len(languages) == 0 {
		languages = SupportedLanguages
	}
	return &Chain{providers: providers, languages: languages}
}

// Translate merges provider results, first answer per language wins
func (c *Chain) Translate(ctx context.Context, text, sourceLang string) (map[string]string, error) {
	out := make(map[string]string)
	targets := Targets(c.languages, sourceLang)

	var errs []error
	for _, p := range c.providers {
		if covered(out, targets) {
			break
		}
		got, err := p.Translate(ctx, text, sourceLang)
		if err != nil {
			errs = append(errs, err)
		}
		for lang, t := range got {
			if _, ok := out[lang]; !ok && strings.TrimSpace(t) != "" {
				out[lang] = t
			}
		}
	}

	if covered(out, targets) {
		return out, nil
	}
	return out, errors.Join(errs...)
}

func covered(got map[string]string, targets []string) bool {
	for _, lang := range targets {
		if _, ok := got[lang]; !ok {
			return false
		}
	}
	return true
}

// Name lists the chained providers
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}
