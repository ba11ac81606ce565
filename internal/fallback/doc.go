// Package fallback translates texts through external machine translation
// services when no learned meaning covers a message. Providers talk to one
// vendor each (Gemini, OpenAI); Breaker and Chain compose them; Adapter is
// the boundary the engine calls, which never fails and returns whatever
// languages could be translated.
package fallback
