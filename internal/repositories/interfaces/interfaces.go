// internal/repositories/interfaces/interfaces.go
package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/models"
)

// Lookups by ID return (nil, nil) when the row does not exist.

type HospitalRepository interface {
	Create(ctx context.Context, hospital *models.Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hospital, error)
	ListBySubscription(ctx context.Context, status models.SubscriptionStatus) ([]*models.Hospital, error)
}

type PromptRepository interface {
	Create(ctx context.Context, prompt *models.Prompt) error
	CreateBatch(ctx context.Context, prompts []*models.Prompt) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error)
	Update(ctx context.Context, prompt *models.Prompt) error
	Delete(ctx context.Context, id uuid.UUID) error
	ToggleActive(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
}

// ResponseFilter narrows ListRecent; zero values mean no filter
type ResponseFilter struct {
	Platform  models.Platform
	Since     time.Time
	Limit     int
	Mentioned *bool
}

type QueryResultRepository interface {
	Create(ctx context.Context, result *models.QueryResult) error
	// ListByDateRange returns results with from <= response_date < to, joined with prompt fields
	ListByDateRange(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]*models.QueryResult, error)
	ListRecent(ctx context.Context, hospitalID uuid.UUID, filter ResponseFilter) ([]*models.QueryResult, error)
	// ListGaps returns responses that do not mention the hospital but do name competitors
	ListGaps(ctx context.Context, hospitalID uuid.UUID, limit int) ([]*models.QueryResult, error)
	ListByIDs(ctx context.Context, hospitalID uuid.UUID, ids []uuid.UUID) ([]*models.QueryResult, error)
}

type DailyScoreRepository interface {
	Upsert(ctx context.Context, score *models.DailyScore) error
	GetLatest(ctx context.Context, hospitalID uuid.UUID) (*models.DailyScore, error)
	// GetLatestBetween returns the newest score with from <= score_date < to
	GetLatestBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) (*models.DailyScore, error)
	ListSince(ctx context.Context, hospitalID uuid.UUID, since time.Time) ([]*models.DailyScore, error)
}

type CompetitorRepository interface {
	Create(ctx context.Context, competitor *models.Competitor) error
	CreateBatch(ctx context.Context, competitors []*models.Competitor) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Competitor, error)
	ListActive(ctx context.Context, hospitalID uuid.UUID) ([]*models.Competitor, error)
	// ListNames returns every competitor name for the hospital, active or not
	ListNames(ctx context.Context, hospitalID uuid.UUID) ([]string, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	UpsertScore(ctx context.Context, score *models.CompetitorScore) error
	ListRecentScores(ctx context.Context, competitorID uuid.UUID, limit int) ([]models.CompetitorScore, error)
}

type CrawlJobRepository interface {
	Create(ctx context.Context, job *models.CrawlJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error)
	// RecordResult stores the result and bumps completed_count in one transaction
	RecordResult(ctx context.Context, jobID uuid.UUID, result *models.QueryResult) error
	// RecordFailure bumps failed_count with a single atomic update
	RecordFailure(ctx context.Context, jobID uuid.UUID) error
	// Complete stamps completed_at and derives the terminal status from the counters
	Complete(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error)
	Fail(ctx context.Context, jobID uuid.UUID, message string) error
	// SetTotals corrects the expected counts when execution sees a different prompt or platform set
	SetTotals(ctx context.Context, jobID uuid.UUID, totalPrompts, totalItems int) error
	ListRecent(ctx context.Context, limit int) ([]*models.CrawlJob, error)
}
