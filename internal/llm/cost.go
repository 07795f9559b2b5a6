package llm

import (
	"sync"

	"github.com/kushal45/reviewgraph/internal/types"
)

// ModelPricing is the USD price per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var defaultPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// CostTracker accumulates token usage and estimated cost across calls.
// Unknown models are counted with zero cost.
type CostTracker struct {
	mu      sync.Mutex
	pricing map[string]ModelPricing
	usage   types.Usage
}

func NewCostTracker() *CostTracker {
	return &CostTracker{pricing: defaultPricing}
}

// SetPricing overrides the price of model.
func (c *CostTracker) SetPricing(model string, p ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pricing := make(map[string]ModelPricing, len(c.pricing)+1)
	for k, v := range c.pricing {
		pricing[k] = v
	}
	pricing[model] = p
	c.pricing = pricing
}

// Record adds one completion's usage.
func (c *CostTracker) Record(comp Completion) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.usage.Calls++
	c.usage.InputTokens += comp.InputTokens
	c.usage.OutputTokens += comp.OutputTokens
	if p, ok := c.pricing[comp.Model]; ok {
		c.usage.CostUSD += float64(comp.InputTokens)/1e6*p.InputPer1M +
			float64(comp.OutputTokens)/1e6*p.OutputPer1M
	}
}

// Usage returns the totals so far.
func (c *CostTracker) Usage() types.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}
