package testutil

import (
	"context"
	"sync"
)

// FallbackCall records one fallback invocation
type FallbackCall struct {
	Text       string
	SourceLang string
}

// MockFallback is a scripted fallback translator
type MockFallback struct {
	mu sync.Mutex

	// Responses maps a source text to the translations returned for it
	Responses map[string]map[string]string
	// Default is returned for texts without a scripted response
	Default map[string]string

	calls []FallbackCall
}

// NewMockFallback creates a mock answering from responses
func NewMockFallback(responses map[string]map[string]string) *MockFallback {
	if responses == nil {
		responses = make(map[string]map[string]string)
	}
	return &MockFallback{Responses: responses}
}

// Translate returns the scripted translations for text
func (m *MockFallback) Translate(ctx context.Context, text, sourceLang string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, FallbackCall{Text: text, SourceLang: sourceLang})

	src, ok := m.Responses[text]
	if !ok {
		src = m.Default
	}
	out := make(map[string]string, len(src))
	for lang, t := range src {
		out[lang] = t
	}
	return out
}

// Calls returns the recorded invocations
func (m *MockFallback) Calls() []FallbackCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FallbackCall(nil), m.calls...)
}
