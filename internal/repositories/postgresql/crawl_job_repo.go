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

const crawlJobColumns = `id, hospital_id, status, total_prompts, total_items, completed_count, failed_count, error_message, started_at, completed_at, created_at`

type crawlJobRepo struct {
	db *database.Client
}

func NewCrawlJobRepo(db *database.Client) interfaces.CrawlJobRepository {
	return &crawlJobRepo{db: db}
}

func (r *crawlJobRepo) Create(ctx context.Context, job *models.CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO crawl_jobs (`+crawlJobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.HospitalID, job.Status, job.TotalPrompts, job.TotalItems,
		job.CompletedCount, job.FailedCount, job.ErrorMessage, job.StartedAt, job.CompletedAt, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create crawl job: %w", err)
	}
	return nil
}

func (r *crawlJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error) {
	var job models.CrawlJob
	err := r.db.GetContext(ctx, &job, `SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl job %s: %w", id, err)
	}
	return &job, nil
}

func (r *crawlJobRepo) RecordResult(ctx context.Context, jobID uuid.UUID, result *models.QueryResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result.CrawlJobID = &jobID
	if err := insertQueryResult(ctx, tx, result); err != nil {
		return fmt.Errorf("failed to create ai response: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE crawl_jobs SET completed_count = completed_count + 1 WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to update crawl job progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit crawl result: %w", err)
	}
	return nil
}

func (r *crawlJobRepo) RecordFailure(ctx context.Context, jobID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE crawl_jobs SET failed_count = failed_count + 1 WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to record crawl failure: %w", err)
	}
	return nil
}

func (r *crawlJobRepo) Complete(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error) {
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("crawl job %s not found", jobID)
	}

	now := time.Now()
	job.Status = job.TerminalStatus()
	job.CompletedAt = &now

	_, err = r.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET status = $2, completed_at = $3 WHERE id = $1`,
		jobID, job.Status, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete crawl job: %w", err)
	}
	return job, nil
}

func (r *crawlJobRepo) Fail(ctx context.Context, jobID uuid.UUID, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
		jobID, models.JobStatusFailed, message, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark crawl job failed: %w", err)
	}
	return nil
}

func (r *crawlJobRepo) SetTotals(ctx context.Context, jobID uuid.UUID, totalPrompts, totalItems int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE crawl_jobs SET total_prompts = $2, total_items = $3 WHERE id = $1`,
		jobID, totalPrompts, totalItems,
	)
	if err != nil {
		return fmt.Errorf("failed to update crawl job totals: %w", err)
	}
	return nil
}

func (r *crawlJobRepo) ListRecent(ctx context.Context, limit int) ([]*models.CrawlJob, error) {
	var out []*models.CrawlJob
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+crawlJobColumns+` FROM crawl_jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl jobs: %w", err)
	}
	return out, nil
}
