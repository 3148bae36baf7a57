package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const competitorColumns = `id, hospital_id, competitor_name, competitor_region, is_auto_detected, is_active, created_at`

type competitorRepo struct {
	db *database.Client
}

func NewCompetitorRepo(db *database.Client) interfaces.CompetitorRepository {
	return &competitorRepo{db: db}
}

func insertCompetitor(ctx context.Context, exec sqlx.ExecerContext, c *models.Competitor) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	_, err := exec.ExecContext(ctx,
		`INSERT INTO competitors (`+competitorColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.HospitalID, c.CompetitorName, c.CompetitorRegion, c.IsAutoDetected, c.IsActive, c.CreatedAt,
	)
	return err
}

func (r *competitorRepo) Create(ctx context.Context, c *models.Competitor) error {
	if err := insertCompetitor(ctx, r.db, c); err != nil {
		return fmt.Errorf("failed to create competitor: %w", err)
	}
	return nil
}

func (r *competitorRepo) CreateBatch(ctx context.Context, competitors []*models.Competitor) (int, error) {
	if len(competitors) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range competitors {
		if err := insertCompetitor(ctx, tx, c); err != nil {
			return 0, fmt.Errorf("failed to create competitor %q: %w", c.CompetitorName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit competitors: %w", err)
	}
	return len(competitors), nil
}

func (r *competitorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	var c models.Competitor
	err := r.db.GetContext(ctx, &c, `SELECT `+competitorColumns+` FROM competitors WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get competitor %s: %w", id, err)
	}
	return &c, nil
}

func (r *competitorRepo) ListActive(ctx context.Context, hospitalID uuid.UUID) ([]*models.Competitor, error) {
	var out []*models.Competitor
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+competitorColumns+` FROM competitors WHERE hospital_id = $1 AND is_active = TRUE ORDER BY created_at`,
		hospitalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	return out, nil
}

func (r *competitorRepo) ListNames(ctx context.Context, hospitalID uuid.UUID) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, `SELECT competitor_name FROM competitors WHERE hospital_id = $1`, hospitalID); err != nil {
		return nil, fmt.Errorf("failed to list competitor names: %w", err)
	}
	return names, nil
}

func (r *competitorRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE competitors SET is_active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate competitor %s: %w", id, err)
	}
	return nil
}

func (r *competitorRepo) UpsertScore(ctx context.Context, s *models.CompetitorScore) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO competitor_scores (id, competitor_id, score_date, overall_score, mention_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (competitor_id, score_date) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			mention_count = EXCLUDED.mention_count`,
		s.ID, s.CompetitorID, s.ScoreDate.Format(dateLayout), s.OverallScore, s.MentionCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert competitor score: %w", err)
	}
	return nil
}

func (r *competitorRepo) ListRecentScores(ctx context.Context, competitorID uuid.UUID, limit int) ([]models.CompetitorScore, error) {
	var out []models.CompetitorScore
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, competitor_id, score_date, overall_score, mention_count
		 FROM competitor_scores WHERE competitor_id = $1 ORDER BY score_date DESC LIMIT $2`,
		competitorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitor scores: %w", err)
	}
	return out, nil
}
