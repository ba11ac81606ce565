// Package models lists the OpenAI chat models that can serve as the
// fallback translator for the API key in use.
package models
