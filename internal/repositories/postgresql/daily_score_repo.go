package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const dailyScoreColumns = `id, hospital_id, score_date, overall_score, platform_scores, specialty_scores, mention_count, positive_ratio, created_at`

type dailyScoreRepo struct {
	db *database.Client
}

func NewDailyScoreRepo(db *database.Client) interfaces.DailyScoreRepository {
	return &dailyScoreRepo{db: db}
}

// Upsert writes the row for (hospital, day), overwriting every value of an earlier run
func (r *dailyScoreRepo) Upsert(ctx context.Context, s *models.DailyScore) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	platformScores, err := json.Marshal(s.PlatformScores)
	if err != nil {
		return fmt.Errorf("failed to encode platform scores: %w", err)
	}
	specialtyScores, err := json.Marshal(s.SpecialtyScores)
	if err != nil {
		return fmt.Errorf("failed to encode specialty scores: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO daily_scores (id, hospital_id, score_date, overall_score, platform_scores, specialty_scores, mention_count, positive_ratio)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (hospital_id, score_date) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			platform_scores = EXCLUDED.platform_scores,
			specialty_scores = EXCLUDED.specialty_scores,
			mention_count = EXCLUDED.mention_count,
			positive_ratio = EXCLUDED.positive_ratio`,
		s.ID, s.HospitalID, s.ScoreDate.Format(dateLayout), s.OverallScore,
		platformScores, specialtyScores, s.MentionCount, s.PositiveRatio,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily score: %w", err)
	}
	return nil
}

func (r *dailyScoreRepo) getOne(ctx context.Context, query string, args ...any) (*models.DailyScore, error) {
	var row dailyScoreRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

func (r *dailyScoreRepo) GetLatest(ctx context.Context, hospitalID uuid.UUID) (*models.DailyScore, error) {
	score, err := r.getOne(ctx,
		`SELECT `+dailyScoreColumns+` FROM daily_scores WHERE hospital_id = $1 ORDER BY score_date DESC LIMIT 1`,
		hospitalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest daily score: %w", err)
	}
	return score, nil
}

func (r *dailyScoreRepo) GetLatestBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) (*models.DailyScore, error) {
	score, err := r.getOne(ctx,
		`SELECT `+dailyScoreColumns+` FROM daily_scores
		 WHERE hospital_id = $1 AND score_date >= $2 AND score_date < $3
		 ORDER BY score_date DESC LIMIT 1`,
		hospitalID, from.Format(dateLayout), to.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily score in range: %w", err)
	}
	return score, nil
}

func (r *dailyScoreRepo) ListSince(ctx context.Context, hospitalID uuid.UUID, since time.Time) ([]*models.DailyScore, error) {
	var rows []dailyScoreRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+dailyScoreColumns+` FROM daily_scores WHERE hospital_id = $1 AND score_date >= $2 ORDER BY score_date`,
		hospitalID, since.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily scores: %w", err)
	}

	out := make([]*models.DailyScore, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
