package cost

import (
	"github.com/shopspring/decimal"
)

// Rate is the provider price in USD per 1,000 tokens.
type Rate struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

func rate(input, output string) Rate {
	return Rate{
		InputPer1K:  decimal.RequireFromString(input),
		OutputPer1K: decimal.RequireFromString(output),
	}
}

// catalog maps model names to rates. Unknown models bill at the default
// row rather than failing, so new models degrade to a conservative price.
var (
	catalog = map[string]Rate{
		"gemini-2.5-flash": rate("0.0003", "0.0025"),
		"gemini-2.5-pro":   rate("0.00125", "0.01"),
		"gemini-2.0-flash": rate("0.0001", "0.0004"),
		"gemini-1.5-flash": rate("0.000075", "0.0003"),
		"gemini-1.5-pro":   rate("0.00125", "0.005"),
	}
	defaultRate = rate("0.001", "0.002")
)

// RateFor returns the catalog row for a model, or the default row.
func RateFor(model string) Rate {
	if r, ok := catalog[model]; ok {
		return r
	}
	return defaultRate
}

// Price computes the USD cost of one call, rounded to six decimals.
func Price(model string, inputTokens, outputTokens int) decimal.Decimal {
	r := RateFor(model)
	thousand := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(int64(inputTokens)).Div(thousand).Mul(r.InputPer1K)
	out := decimal.NewFromInt(int64(outputTokens)).Div(thousand).Mul(r.OutputPer1K)
	return in.Add(out).Round(6)
}

// PriceUSD is Price as a float for record fields and comparisons.
func PriceUSD(model string, inputTokens, outputTokens int) float64 {
	f, _ := Price(model, inputTokens, outputTokens).Float64()
	return f
}
