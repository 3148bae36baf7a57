package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const hospitalColumns = `id, name, specialty, region, subscription_status, created_at, updated_at`

type hospitalRepo struct {
	db *database.Client
}

func NewHospitalRepo(db *database.Client) interfaces.HospitalRepository {
	return &hospitalRepo{db: db}
}

func (r *hospitalRepo) Create(ctx context.Context, h *models.Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hospitals (`+hospitalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.Name, h.Specialty, h.Region, h.SubscriptionStatus, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create hospital: %w", err)
	}
	return nil
}

func (r *hospitalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Hospital, error) {
	var h models.Hospital
	err := r.db.GetContext(ctx, &h, `SELECT `+hospitalColumns+` FROM hospitals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital %s: %w", id, err)
	}
	return &h, nil
}

func (r *hospitalRepo) ListBySubscription(ctx context.Context, status models.SubscriptionStatus) ([]*models.Hospital, error) {
	var hospitals []*models.Hospital
	err := r.db.SelectContext(ctx, &hospitals,
		`SELECT `+hospitalColumns+` FROM hospitals WHERE subscription_status = $1 ORDER BY created_at`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", err)
	}
	return hospitals, nil
}
