package cost

import "sync"

// ModelPricing represents the current pricing for a model
type ModelPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
	MaxRequestsPerMinute  int     // Rate limiting
}

// PricingTable contains current Gemini pricing as of 2025
var PricingTable = map[string]ModelPricing{
	"gemini-2.5-flash-preview-05-20": {
		Model:                 "gemini-2.5-flash-preview-05-20",
		InputCostPer1MTokens:  0.15,
		OutputCostPer1MTokens: 0.60,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-2.0-flash": {
		Model:                 "gemini-2.0-flash",
		InputCostPer1MTokens:  0.10,
		OutputCostPer1MTokens: 0.40,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-1.5-flash": {
		Model:                 "gemini-1.5-flash",
		InputCostPer1MTokens:  0.075,
		OutputCostPer1MTokens: 0.30,
		MaxRequestsPerMinute:  1000,
	},
	"gemini-1.5-pro": {
		Model:                 "gemini-1.5-pro",
		InputCostPer1MTokens:  3.50,
		OutputCostPer1MTokens: 10.50,
		MaxRequestsPerMinute:  360,
	},
	"text-embedding-004": {
		Model:                 "text-embedding-004",
		InputCostPer1MTokens:  0.0, // Free tier
		OutputCostPer1MTokens: 0.0,
		MaxRequestsPerMinute:  1500,
	},
}

// PricingFor returns the pricing for a model, defaulting to the cheapest
// flash tier when the model is not in the table.
func PricingFor(model string) ModelPricing {
	if p, ok := PricingTable[model]; ok {
		return p
	}
	return PricingTable["gemini-1.5-flash"]
}

// CallCost computes the USD cost of one call given its token usage.
func CallCost(model string, inputTokens, outputTokens int) float64 {
	p := PricingFor(model)
	return float64(inputTokens)/1e6*p.InputCostPer1MTokens +
		float64(outputTokens)/1e6*p.OutputCostPer1MTokens
}

// Tally accumulates LLM spend across one research job. Safe for
// concurrent use; aggregator shards record into the same tally.
type Tally struct {
	mu           sync.Mutex
	calls        int
	inputTokens  int
	outputTokens int
	costUSD      float64
}

// Add records one call's usage against the tally.
func (t *Tally) Add(model string, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.inputTokens += inputTokens
	t.outputTokens += outputTokens
	t.costUSD += CallCost(model, inputTokens, outputTokens)
}

// Snapshot returns the accumulated totals.
func (t *Tally) Snapshot() (calls, inputTokens, outputTokens int, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.inputTokens, t.outputTokens, t.costUSD
}
