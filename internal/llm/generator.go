// Package llm wraps the generative language model behind a capability
// interface. The core composes prompts and hands them off; it never
// inspects or retries model output beyond surfacing failures.
package llm

import "context"

// Generator produces free-text output for a prompt. Output may be
// non-deterministic across calls; no retry policy is applied here.
type Generator interface {
	// Generate invokes the model with the prompt at the given temperature
	// and returns its raw text output unmodified.
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
	// Model identifies the generative model.
	Model() string
}
