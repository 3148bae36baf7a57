package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

const (
	temperature     = 0.7
	maxOutputTokens = 1500
)

// Provider queries Gemini through the generative language API
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	cost     common.CostCalculator
	logger   zerolog.Logger
}

func NewProvider(cfg *config.Config, cost common.CostCalculator) *Provider {
	pc := cfg.Platforms.Gemini
	return &Provider{
		apiKey:   pc.APIKey,
		endpoint: pc.BaseURL,
		model:    pc.Model,
		cost:     cost,
		logger:   logging.Component("GeminiProvider"),
	}
}

func (p *Provider) Platform() models.Platform {
	return models.PlatformGemini
}

func (p *Provider) Model() string {
	return p.model
}

// BuildPrompt prepends the system instruction the way the dashboard's Gemini prompts always have
func BuildPrompt(prompt string) string {
	return common.SystemPrompt + "\n\n질문: " + prompt
}

func (p *Provider) Query(ctx context.Context, prompt string) (*common.QueryResponse, error) {
	opts := []option.ClientOption{option.WithAPIKey(p.apiKey)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxOutputTokens)

	p.logger.Debug().Str("model", p.model).Msg("🚀 generating content")
	resp, err := model.GenerateContent(ctx, genai.Text(BuildPrompt(prompt)))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &common.StatusError{Platform: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := ExtractText(resp)
	if text == "" {
		p.logger.Warn().Str("model", p.model).Msg("gemini returned no text")
	}

	out := &common.QueryResponse{Text: text, Model: p.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if p.cost != nil {
		out.Cost = p.cost.CalculateCost("gemini", p.model, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}

// ExtractText joins the text parts of the first candidate. A missing candidate
// or content yields "", which is stored as an unmentioned answer.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
