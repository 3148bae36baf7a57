package chatgpt

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

const (
	temperature = 0.7
	maxTokens   = 1500
)

// Provider queries ChatGPT through the OpenAI chat completions API
type Provider struct {
	client *openai.Client
	model  string
	cost   common.CostCalculator
	logger zerolog.Logger
}

// NewProvider creates a ChatGPT provider from the current config.
// SDK retries are disabled; the registry guard owns retry policy.
func NewProvider(cfg *config.Config, cost common.CostCalculator) *Provider {
	pc := cfg.Platforms.ChatGPT
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
	client := openai.NewClient(opts...)

	return &Provider{
		client: &client,
		model:  pc.Model,
		cost:   cost,
		logger: logging.Component("ChatGPTProvider"),
	}
}

func (p *Provider) Platform() models.Platform {
	return models.PlatformChatGPT
}

func (p *Provider) Model() string {
	return p.model
}
