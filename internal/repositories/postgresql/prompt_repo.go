package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const promptColumns = `id, hospital_id, prompt_text, prompt_type, specialty_category, region_keywords, is_active, created_at, updated_at`

type promptRepo struct {
	db *database.Client
}

func NewPromptRepo(db *database.Client) interfaces.PromptRepository {
	return &promptRepo{db: db}
}

func insertPrompt(ctx context.Context, exec sqlx.ExecerContext, p *models.Prompt) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PromptType == "" {
		p.PromptType = models.PromptTypeCustom
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := exec.ExecContext(ctx,
		`INSERT INTO prompts (`+promptColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.HospitalID, p.PromptText, p.PromptType, p.SpecialtyCategory,
		pq.Array(nonNil(p.RegionKeywords)), p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *promptRepo) Create(ctx context.Context, p *models.Prompt) error {
	if err := insertPrompt(ctx, r.db, p); err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	return nil
}

func (r *promptRepo) CreateBatch(ctx context.Context, prompts []*models.Prompt) (int, error) {
	if len(prompts) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range prompts {
		if err := insertPrompt(ctx, tx, p); err != nil {
			return 0, fmt.Errorf("failed to create prompt: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prompts: %w", err)
	}
	return len(prompts), nil
}

func (r *promptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	var row promptRow
	err := r.db.GetContext(ctx, &row, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (r *promptRepo) ListByHospital(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE hospital_id = $1`
	if onlyActive {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	var rows []promptRow
	if err := r.db.SelectContext(ctx, &rows, query, hospitalID); err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	out := make([]*models.Prompt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (r *promptRepo) Update(ctx context.Context, p *models.Prompt) error {
	p.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE prompts
		 SET prompt_text = $2, prompt_type = $3, specialty_category = $4, region_keywords = $5, is_active = $6, updated_at = $7
		 WHERE id = $1`,
		p.ID, p.PromptText, p.PromptType, p.SpecialtyCategory, pq.Array(nonNil(p.RegionKeywords)), p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update prompt %s: %w", p.ID, err)
	}
	return nil
}

func (r *promptRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete prompt %s: %w", id, err)
	}
	return nil
}

func (r *promptRepo) ToggleActive(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	var row promptRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE prompts SET is_active = NOT is_active, updated_at = now() WHERE id = $1 RETURNING `+promptColumns,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle prompt %s: %w", id, err)
	}
	return row.toModel(), nil
}
