package providers

import (
	"context"

	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

// PlatformClient sends one prompt to one upstream chat-completion platform
type PlatformClient interface {
	Query(ctx context.Context, prompt string) (*common.QueryResponse, error)
	Platform() models.Platform
	Model() string
}

// PlatformResult is the outcome of one (prompt, platform) call
type PlatformResult struct {
	Platform models.Platform
	Model    string
	Response *common.QueryResponse
	Err      error
}
