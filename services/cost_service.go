// services/cost_service.go
package services

import "strings"

type costService struct{}

func NewCostService() CostService {
	return &costService{}
}

// Cost per 1M tokens
var costPerToken = map[string]struct{ input, output float64 }{
	"gpt-4o-mini":              {input: 0.15, output: 0.60},
	"gpt-4o":                   {input: 2.50, output: 10.00},
	"gpt-4.1-mini":             {input: 0.40, output: 1.60},
	"claude-3-opus-20240229":   {input: 15.00, output: 75.00},
	"claude-3-5-haiku-latest":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-20250514": {input: 3.00, output: 15.00},
	"sonar":                    {input: 1.00, output: 1.00},
	"sonar-pro":                {input: 3.00, output: 15.00},
	"gemini-2.0-flash":         {input: 0.10, output: 0.40},
	"gemini-1.5-pro":           {input: 1.25, output: 5.00},
}

// Fallback per platform when the model is not priced
var defaultModelByPlatform = map[string]string{
	"chatgpt":    "gpt-4o-mini",
	"claude":     "claude-3-opus-20240229",
	"perplexity": "sonar",
	"gemini":     "gemini-2.0-flash",
}

func (s *costService) CalculateCost(platform string, model string, inputTokens int, outputTokens int) float64 {
	modelCosts, exists := costPerToken[model]
	if !exists {
		modelCosts, exists = s.lookupPrefix(model)
	}
	if !exists {
		modelCosts = costPerToken[defaultModelByPlatform[strings.ToLower(platform)]]
	}

	inputCost := (float64(inputTokens) / 1_000_000.0) * modelCosts.input
	outputCost := (float64(outputTokens) / 1_000_000.0) * modelCosts.output
	return inputCost + outputCost
}

// lookupPrefix prices dated snapshots ("gpt-4o-mini-2024-07-18") by their base model
func (s *costService) lookupPrefix(model string) (struct{ input, output float64 }, bool) {
	best := ""
	for name := range costPerToken {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return struct{ input, output float64 }{}, false
	}
	return costPerToken[best], true
}
