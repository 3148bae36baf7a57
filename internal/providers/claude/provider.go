package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

const maxTokens = 2000

// Provider queries Claude through the Anthropic messages API.
// Claude receives the bare prompt with no system instruction.
type Provider struct {
	client *anthropic.Client
	model  string
	cost   common.CostCalculator
	logger zerolog.Logger
}

func NewProvider(cfg *config.Config, cost common.CostCalculator) *Provider {
	pc := cfg.Platforms.Claude
	opts := []option.RequestOption{
		option.WithAPIKey(pc.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Crawl.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Crawl.RequestTimeout))
	}
	if pc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(pc.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Provider{
		client: &client,
		model:  pc.Model,
		cost:   cost,
		logger: logging.Component("ClaudeProvider"),
	}
}

func (p *Provider) Platform() models.Platform {
	return models.PlatformClaude
}

func (p *Provider) Model() string {
	return p.model
}

func (p *Provider) Query(ctx context.Context, prompt string) (*common.QueryResponse, error) {
	p.logger.Debug().Str("model", p.model).Msg("🚀 sending message")

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &common.StatusError{Platform: "claude", StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return nil, fmt.Errorf("claude request failed: %w", err)
	}

	text := extractText(response)
	if text == "" {
		p.logger.Warn().Str("model", p.model).Msg("claude returned no text content")
	}

	inputTokens := int(response.Usage.InputTokens)
	outputTokens := int(response.Usage.OutputTokens)
	out := &common.QueryResponse{
		Text:         text,
		Model:        p.model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	if p.cost != nil {
		out.Cost = p.cost.CalculateCost("claude", p.model, inputTokens, outputTokens)
	}
	return out, nil
}

// extractText joins every text block; tool and thinking blocks are ignored
func extractText(response *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
