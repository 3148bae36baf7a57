package perplexity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

const defaultBaseURL = "https://api.perplexity.ai"

// Provider queries Perplexity's OpenAI-compatible chat completions endpoint.
// Perplexity receives the bare prompt with no system instruction.
type Provider struct {
	client  *common.JSONClient
	apiKey  string
	baseURL string
	model   string
	cost    common.CostCalculator
	logger  zerolog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Citations []string `json:"citations"`
	Choices   []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func NewProvider(cfg *config.Config, cost common.CostCalculator) *Provider {
	pc := cfg.Platforms.Perplexity
	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		client:  common.NewJSONClient("perplexity", cfg.Crawl.RequestTimeout),
		apiKey:  pc.APIKey,
		baseURL: baseURL,
		model:   pc.Model,
		cost:    cost,
		logger:  logging.Component("PerplexityProvider"),
	}
}

func (p *Provider) Platform() models.Platform {
	return models.PlatformPerplexity
}

func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) Query(ctx context.Context, prompt string) (*common.QueryResponse, error) {
	p.logger.Debug().Str("model", p.model).Msg("🚀 sending chat completion")

	payload := chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/chat/completions", headers, payload, &resp); err != nil {
		return nil, err
	}
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	} else {
		p.logger.Warn().Str("model", p.model).Msg("perplexity returned no choices")
	}

	out := &common.QueryResponse{
		Text:         text,
		Model:        p.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if p.cost != nil {
		out.Cost = p.cost.CalculateCost("perplexity", p.model, out.InputTokens, out.OutputTokens)
	}

	p.logger.Debug().Int("response_len", len(out.Text)).Int("citations", len(resp.Citations)).Msg("✅ chat completion done")
	return out, nil
}
