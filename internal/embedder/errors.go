package embedder

import "fmt"

// ProviderError wraps a failure returned by (or while reaching) an embedding
// backend. Callers can use errors.As to distinguish provider outages from
// local errors and degrade gracefully instead of failing the whole request.
type ProviderError struct {
	// Provider is the backend name ("openai", "azure", "ollama").
	Provider string
	// Err is the underlying failure.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedder: %s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
