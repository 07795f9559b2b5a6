package llm

import (
	"context"
	"sync"
)

// Mock is a scripted Client. It returns Responses in order, repeating the
// last one, and records every prompt it receives.
type Mock struct {
	mu        sync.Mutex
	model     string
	Responses []string
	Err       error
	prompts   []string
}

// NewMock returns a mock that answers with responses.
func NewMock(model string, responses []string) *Mock {
	if model == "" {
		model = "mock-model"
	}
	return &Mock{model: model, Responses: responses}
}

func (m *Mock) Provider() string { return "mock" }
func (m *Mock) Model() string    { return m.model }

func (m *Mock) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if m.Err != nil {
		return Completion{}, m.Err
	}

	text := `{"issues":[]}`
	if n := len(m.Responses); n > 0 {
		idx := len(m.prompts) - 1
		if idx >= n {
			idx = n - 1
		}
		text = m.Responses[idx]
	}
	return Completion{
		Text:         text,
		Model:        m.model,
		InputTokens:  int64(len(prompt) / 4),
		OutputTokens: int64(len(text) / 4),
	}, nil
}

// Prompts returns the prompts received so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
