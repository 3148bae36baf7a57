// Package search pushes stored query results into the full-text and vector
// indexes and answers lookups against them.
package search

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/metrics"
	"github.com/patientsignal/signal-workflows/internal/models"
)

// ErrDisabled is returned by lookups against an index that is not configured
var ErrDisabled = errors.New("search index is not enabled")

// Indexer accepts freshly persisted results
type Indexer interface {
	Name() string
	Index(ctx context.Context, results []*models.QueryResult) error
}

// Hit is one ranked match from either index
type Hit struct {
	ResponseID uuid.UUID `json:"response_id"`
	Score      float64   `json:"score"`
}

// TextSearcher looks results up by keywords
type TextSearcher interface {
	Search(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]Hit, error)
}

// SimilarSearcher looks results up by meaning
type SimilarSearcher interface {
	Similar(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]Hit, error)
}

// Fanout forwards results to every configured index. Index failures are logged
// and counted but never returned, so a search outage cannot fail a crawl.
type Fanout struct {
	indexers []Indexer
	logger   zerolog.Logger
}

func NewFanout(indexers ...Indexer) *Fanout {
	return &Fanout{indexers: indexers, logger: logging.Component("SearchIndex")}
}

func (f *Fanout) Enabled() bool {
	return f != nil && len(f.indexers) > 0
}

func (f *Fanout) Index(ctx context.Context, results []*models.QueryResult) {
	if !f.Enabled() || len(results) == 0 {
		return
	}
	for _, idx := range f.indexers {
		if err := idx.Index(ctx, results); err != nil {
			metrics.IndexFailures.WithLabelValues(idx.Name()).Inc()
			f.logger.Warn().Err(err).Str("index", idx.Name()).Int("results", len(results)).Msg("failed to index results")
		}
	}
}

// document is the flattened form shared by both indexes
type document struct {
	ID           string   `json:"id"`
	HospitalID   string   `json:"hospital_id"`
	PromptID     string   `json:"prompt_id"`
	Platform     string   `json:"platform"`
	PromptText   string   `json:"prompt_text"`
	ResponseText string   `json:"response_text"`
	IsMentioned  bool     `json:"is_mentioned"`
	Competitors  []string `json:"competitors"`
	ResponseDate int64    `json:"response_date"`
}

func toDocument(r *models.QueryResult) document {
	competitors := r.CompetitorsMentioned
	if competitors == nil {
		competitors = []string{}
	}
	return document{
		ID:           r.ID.String(),
		HospitalID:   r.HospitalID.String(),
		PromptID:     r.PromptID.String(),
		Platform:     string(r.Platform),
		PromptText:   r.PromptText,
		ResponseText: r.ResponseText,
		IsMentioned:  r.IsMentioned,
		Competitors:  competitors,
		ResponseDate: r.ResponseDate.Unix(),
	}
}
