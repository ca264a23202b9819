package llm

// Static price table for cost accounting. Prices are USD per one million
// tokens, split by direction. The table only needs to be accurate enough
// for budget dashboards; it is not a billing source of truth.

type modelPrice struct {
	inputPerMillion  float64
	outputPerMillion float64
}

var modelPrices = map[string]modelPrice{
	"gpt-4o-mini":      {inputPerMillion: 0.15, outputPerMillion: 0.60},
	"gpt-4o":           {inputPerMillion: 2.50, outputPerMillion: 10.00},
	"gpt-4.1-mini":     {inputPerMillion: 0.40, outputPerMillion: 1.60},
	"gpt-4.1":          {inputPerMillion: 2.00, outputPerMillion: 8.00},
	"claude-3-5-haiku": {inputPerMillion: 0.80, outputPerMillion: 4.00},
}

// Unknown models are priced at the most expensive known tier so cost
// estimates err high rather than silently reading zero.
var fallbackPrice = modelPrice{inputPerMillion: 2.50, outputPerMillion: 10.00}

// EstimateCost returns the estimated USD cost of one call from the token
// counts the service reported.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	price, ok := modelPrices[model]
	if !ok {
		price = fallbackPrice
	}
	return float64(promptTokens)/1e6*price.inputPerMillion +
		float64(completionTokens)/1e6*price.outputPerMillion
}
