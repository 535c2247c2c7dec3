package content

import "context"

// Prompt is a single generation request sent to the provider.
type Prompt struct {
	System string
	User   string
}

// Generator produces raw structured text for a prompt.
// Failures must be reported as *ProviderError.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}
