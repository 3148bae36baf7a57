// services/interfaces.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
	"github.com/patientsignal/signal-workflows/internal/repositories/postgresql"
	"github.com/patientsignal/signal-workflows/internal/search"
)

var (
	ErrHospitalNotFound    = errors.New("hospital not found")
	ErrJobNotFound         = errors.New("crawl job not found")
	ErrNoActivePrompts     = errors.New("hospital has no active prompts")
	ErrPromptNotFound      = errors.New("prompt not found")
	ErrCompetitorNotFound  = errors.New("competitor not found")
	ErrForbidden           = errors.New("resource belongs to another hospital")
	ErrInvalidInput        = errors.New("invalid input")
	ErrSearchNotConfigured = errors.New("search is not configured")
)

// RepositoryManager manages all database repositories
type RepositoryManager struct {
	HospitalRepo   interfaces.HospitalRepository
	PromptRepo     interfaces.PromptRepository
	ResponseRepo   interfaces.QueryResultRepository
	DailyScoreRepo interfaces.DailyScoreRepository
	CompetitorRepo interfaces.CompetitorRepository
	CrawlJobRepo   interfaces.CrawlJobRepository
}

// NewRepositoryManager creates a new repository manager with all repositories
func NewRepositoryManager(db *database.Client) *RepositoryManager {
	return &RepositoryManager{
		HospitalRepo:   postgresql.NewHospitalRepo(db),
		PromptRepo:     postgresql.NewPromptRepo(db),
		ResponseRepo:   postgresql.NewQueryResultRepo(db),
		DailyScoreRepo: postgresql.NewDailyScoreRepo(db),
		CompetitorRepo: postgresql.NewCompetitorRepo(db),
		CrawlJobRepo:   postgresql.NewCrawlJobRepo(db),
	}
}

// PlatformQuerier is the part of providers.Registry the crawl pipeline uses
type PlatformQuerier interface {
	Status() map[models.Platform]bool
	Available(requested []models.Platform) []models.Platform
	QueryAllPlatforms(ctx context.Context, prompt string, platforms []models.Platform) []providers.PlatformResult
}

// ResultIndexer receives results after they are stored; it must not fail the caller
type ResultIndexer interface {
	Index(ctx context.Context, results []*models.QueryResult)
}

// Alerter reports crawl problems to operators
type Alerter interface {
	ReportJobFailure(ctx context.Context, hospital *models.Hospital, job *models.CrawlJob) error
	ReportSweepFailures(ctx context.Context, summary *SweepSummary) error
}

type CostService interface {
	CalculateCost(platform string, model string, inputTokens int, outputTokens int) float64
}

type CrawlService interface {
	PlatformStatus() map[models.Platform]bool
	StartCrawl(ctx context.Context, hospitalID uuid.UUID, platforms []models.Platform) (*models.CrawlJob, error)
	RunJob(ctx context.Context, jobID uuid.UUID, platforms []models.Platform) (*CrawlOutcome, error)
	FailJob(ctx context.Context, jobID uuid.UUID, reason string) error
	ExecuteJob(ctx context.Context, job *models.CrawlJob, hospital *models.Hospital, prompts []*models.Prompt, platforms []models.Platform) (*CrawlOutcome, error)
	SweepTargets(ctx context.Context) ([]*models.Hospital, error)
	RunDailySweep(ctx context.Context) (*SweepSummary, error)
	LastSweep() *SweepSummary
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error)
	RecentJobs(ctx context.Context, limit int) ([]*models.CrawlJob, error)
	ListResponses(ctx context.Context, hospitalID uuid.UUID, platform models.Platform, limit int) ([]*models.QueryResult, error)
	SearchResponses(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]*models.QueryResult, error)
	SimilarResponses(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]*models.QueryResult, error)
}

type ScoreService interface {
	CalculateDailyScore(ctx context.Context, hospitalID uuid.UUID, date time.Time) (int, error)
	GetLatestScore(ctx context.Context, hospitalID uuid.UUID) (*models.DailyScore, error)
	GetScoreHistory(ctx context.Context, hospitalID uuid.UUID, days int) ([]*models.DailyScore, error)
	GetPlatformAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]PlatformAnalysis, error)
	GetSpecialtyAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]SpecialtyAnalysis, error)
	GetWeeklyHighlights(ctx context.Context, hospitalID uuid.UUID) (*WeeklyHighlights, error)
	GetCitationAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]DomainCount, error)
}

type CompetitorService interface {
	Create(ctx context.Context, hospitalID uuid.UUID, name, region string) (*models.Competitor, error)
	List(ctx context.Context, hospitalID uuid.UUID) ([]*models.Competitor, error)
	Remove(ctx context.Context, hospitalID, competitorID uuid.UUID) error
	AutoDetect(ctx context.Context, hospitalID uuid.UUID) (*AutoDetectResult, error)
	GetComparison(ctx context.Context, hospitalID uuid.UUID) (*Comparison, error)
	RecordCompetitorScore(ctx context.Context, competitorID uuid.UUID, day time.Time, score, mentionCount int) error
}

type PromptService interface {
	Create(ctx context.Context, hospitalID uuid.UUID, input PromptInput) (*models.Prompt, error)
	BulkCreate(ctx context.Context, hospitalID uuid.UUID, inputs []PromptInput) (int, error)
	List(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error)
	Update(ctx context.Context, hospitalID, promptID uuid.UUID, input PromptUpdate) (*models.Prompt, error)
	Delete(ctx context.Context, hospitalID, promptID uuid.UUID) error
	ToggleActive(ctx context.Context, hospitalID, promptID uuid.UUID) (*models.Prompt, error)
	GenerateFromPresets(ctx context.Context, hospitalID uuid.UUID, region, specialty string) (int, error)
	GenerateFanouts(ctx context.Context, hospitalID, promptID uuid.UUID) ([]*models.Prompt, error)
}

// CrawlOutcome is the settled state of one crawl job
type CrawlOutcome struct {
	Job        *models.CrawlJob `json:"job"`
	Score      int              `json:"score"`
	ScoreError string           `json:"score_error,omitempty"`
}

// SweepResult is one hospital's line in a sweep summary
type SweepResult struct {
	HospitalID   uuid.UUID `json:"hospitalId"`
	HospitalName string    `json:"hospitalName"`
	PromptCount  int       `json:"promptCount,omitempty"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Score        *int      `json:"score,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type SweepSummary struct {
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	TotalHospitals int           `json:"totalHospitals"`
	SuccessCount   int           `json:"successCount"`
	FailCount      int           `json:"failCount"`
	Results        []SweepResult `json:"results"`
}

type PlatformAnalysis struct {
	Platform       models.Platform `json:"platform"`
	TotalQueries   int             `json:"totalQueries"`
	MentionedCount int             `json:"mentionedCount"`
	MentionRate    float64         `json:"mentionRate"`
	AvgSentiment   float64         `json:"avgSentiment"`
}

type SpecialtyAnalysis struct {
	Category     string  `json:"category"`
	TotalQueries int     `json:"totalQueries"`
	MentionRate  float64 `json:"mentionRate"`
	PositiveRate float64 `json:"positiveRate"`
	Score        int     `json:"score"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type WeeklyHighlights struct {
	CurrentScore   int         `json:"currentScore"`
	ScoreChange    int         `json:"scoreChange"`
	ScoreTrend     string      `json:"scoreTrend"`
	NewMentions    int         `json:"newMentions"`
	TopCompetitors []NameCount `json:"topCompetitors"`
	Insights       []string    `json:"insights"`
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type DetectedCompetitor struct {
	Name         string `json:"name"`
	MentionCount int    `json:"mentionCount"`
}

type AutoDetectResult struct {
	Detected    int                  `json:"detected"`
	Competitors []DetectedCompetitor `json:"competitors"`
}

type ComparisonEntry struct {
	ID             uuid.UUID `json:"id,omitempty"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	MentionCount   int       `json:"mentionCount"`
	IsAutoDetected bool      `json:"isAutoDetected"`
}

// Gap is a response where competitors were recommended and the hospital was not
type Gap struct {
	PromptID             uuid.UUID       `json:"promptId"`
	PromptText           string          `json:"promptText"`
	CompetitorsMentioned []string        `json:"competitorsMentioned"`
	Platform             models.Platform `json:"platform"`
}

type Comparison struct {
	MyHospital  ComparisonEntry   `json:"myHospital"`
	Competitors []ComparisonEntry `json:"competitors"`
	Gaps        []Gap             `json:"gaps"`
}

type PromptInput struct {
	PromptText        string            `json:"promptText"`
	PromptType        models.PromptType `json:"promptType,omitempty"`
	SpecialtyCategory string            `json:"specialtyCategory,omitempty"`
	RegionKeywords    []string          `json:"regionKeywords,omitempty"`
	IsActive          *bool             `json:"isActive,omitempty"`
}

// PromptUpdate carries only the fields being changed
type PromptUpdate struct {
	PromptText        *string   `json:"promptText,omitempty"`
	SpecialtyCategory *string   `json:"specialtyCategory,omitempty"`
	RegionKeywords    *[]string `json:"regionKeywords,omitempty"`
	IsActive          *bool     `json:"isActive,omitempty"`
}

var _ ResultIndexer = (*search.Fanout)(nil)
