package postgresql

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const queryResultSelect = `SELECT r.id, r.hospital_id, r.prompt_id, r.crawl_job_id, r.ai_platform, r.ai_model_version,
	r.response_text, r.is_mentioned, r.mention_position, r.total_recommendations, r.sentiment_score,
	r.sentiment_label, r.cited_sources, r.competitors_mentioned, r.input_tokens, r.output_tokens,
	r.cost, r.response_date,
	COALESCE(p.specialty_category, '') AS specialty_category, COALESCE(p.prompt_text, '') AS prompt_text
FROM ai_responses r
LEFT JOIN prompts p ON p.id = r.prompt_id`

const defaultResponseLimit = 50

type queryResultRepo struct {
	db *database.Client
}

func NewQueryResultRepo(db *database.Client) interfaces.QueryResultRepository {
	return &queryResultRepo{db: db}
}

func insertQueryResult(ctx context.Context, exec sqlx.ExecerContext, q *models.QueryResult) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.ResponseDate.IsZero() {
		q.ResponseDate = time.Now()
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO ai_responses (
			id, hospital_id, prompt_id, crawl_job_id, ai_platform, ai_model_version, response_text,
			is_mentioned, mention_position, total_recommendations, sentiment_score, sentiment_label,
			cited_sources, competitors_mentioned, input_tokens, output_tokens, cost, response_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		q.ID, q.HospitalID, q.PromptID, nullableUUID(q.CrawlJobID), string(q.Platform), q.Model, q.ResponseText,
		q.IsMentioned, nullableInt(q.MentionPosition), nullableInt(q.TotalRecommendations),
		nullableFloat(q.SentimentScore), string(q.SentimentLabel),
		pq.Array(nonNil(q.CitedSources)), pq.Array(nonNil(q.CompetitorsMentioned)),
		q.InputTokens, q.OutputTokens, q.Cost, q.ResponseDate,
	)
	return err
}

func (r *queryResultRepo) Create(ctx context.Context, q *models.QueryResult) error {
	if err := insertQueryResult(ctx, r.db, q); err != nil {
		return fmt.Errorf("failed to create ai response: %w", err)
	}
	return nil
}

func (r *queryResultRepo) selectRows(ctx context.Context, query string, args ...any) ([]*models.QueryResult, error) {
	var rows []queryResultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*models.QueryResult, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *queryResultRepo) ListByDateRange(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]*models.QueryResult, error) {
	out, err := r.selectRows(ctx,
		queryResultSelect+` WHERE r.hospital_id = $1 AND r.response_date >= $2 AND r.response_date < $3 ORDER BY r.response_date`,
		hospitalID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai responses by date: %w", err)
	}
	return out, nil
}

func (r *queryResultRepo) ListRecent(ctx context.Context, hospitalID uuid.UUID, filter interfaces.ResponseFilter) ([]*models.QueryResult, error) {
	where := []string{"r.hospital_id = $1"}
	args := []any{hospitalID}

	if filter.Platform != "" {
		args = append(args, string(filter.Platform))
		where = append(where, fmt.Sprintf("r.ai_platform = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("r.response_date >= $%d", len(args)))
	}
	if filter.Mentioned != nil {
		args = append(args, *filter.Mentioned)
		where = append(where, fmt.Sprintf("r.is_mentioned = $%d", len(args)))
	}

	query := queryResultSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY r.response_date DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	out, err := r.selectRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai responses: %w", err)
	}
	return out, nil
}

func (r *queryResultRepo) ListGaps(ctx context.Context, hospitalID uuid.UUID, limit int) ([]*models.QueryResult, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	out, err := r.selectRows(ctx,
		queryResultSelect+` WHERE r.hospital_id = $1 AND r.is_mentioned = FALSE AND cardinality(r.competitors_mentioned) > 0
		ORDER BY r.response_date DESC LIMIT $2`,
		hospitalID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list gap responses: %w", err)
	}
	return out, nil
}

func (r *queryResultRepo) ListByIDs(ctx context.Context, hospitalID uuid.UUID, ids []uuid.UUID) ([]*models.QueryResult, error) {
	if len(ids) == 0 {
		return []*models.QueryResult{}, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	out, err := r.selectRows(ctx,
		queryResultSelect+` WHERE r.hospital_id = $1 AND r.id = ANY($2::uuid[])`,
		hospitalID, pq.Array(strIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai responses by id: %w", err)
	}

	// keep the caller's ranking
	order := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		return order[out[i].ID] < order[out[j].ID]
	})
	return out, nil
}
