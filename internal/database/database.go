// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/patientsignal/signal-workflows/internal/config"
)

// Client wraps the shared sqlx pool handed to every repository
type Client struct {
	*sqlx.DB
}

// Connect opens the Postgres pool, applies pool limits and pings it
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Client, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{DB: db}, nil
}

// Migrate creates any missing tables and indexes
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("running schema migration: %w", err)
	}
	return nil
}

// Schema is idempotent; every statement uses IF NOT EXISTS
const Schema = `
CREATE TABLE IF NOT EXISTS hospitals (
    id                  UUID PRIMARY KEY,
    name                TEXT NOT NULL,
    specialty           TEXT NOT NULL DEFAULT '',
    region              TEXT NOT NULL DEFAULT '',
    subscription_status TEXT NOT NULL DEFAULT 'TRIAL',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prompts (
    id                 UUID PRIMARY KEY,
    hospital_id        UUID NOT NULL REFERENCES hospitals(id) ON DELETE CASCADE,
    prompt_text        TEXT NOT NULL,
    prompt_type        TEXT NOT NULL DEFAULT 'CUSTOM',
    specialty_category TEXT NOT NULL DEFAULT '',
    region_keywords    TEXT[] NOT NULL DEFAULT '{}',
    is_active          BOOLEAN NOT NULL DEFAULT TRUE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crawl_jobs (
    id              UUID PRIMARY KEY,
    hospital_id     UUID NOT NULL REFERENCES hospitals(id) ON DELETE CASCADE,
    status          TEXT NOT NULL,
    total_prompts   INTEGER NOT NULL DEFAULT 0,
    total_items     INTEGER NOT NULL DEFAULT 0,
    completed_count INTEGER NOT NULL DEFAULT 0,
    failed_count    INTEGER NOT NULL DEFAULT 0,
    error_message   TEXT,
    started_at      TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_responses (
    id                    UUID PRIMARY KEY,
    hospital_id           UUID NOT NULL REFERENCES hospitals(id) ON DELETE CASCADE,
    prompt_id             UUID NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    crawl_job_id          UUID REFERENCES crawl_jobs(id) ON DELETE SET NULL,
    ai_platform           TEXT NOT NULL,
    ai_model_version      TEXT NOT NULL DEFAULT '',
    response_text         TEXT NOT NULL,
    is_mentioned          BOOLEAN NOT NULL DEFAULT FALSE,
    mention_position      INTEGER,
    total_recommendations INTEGER,
    sentiment_score       DOUBLE PRECISION,
    sentiment_label       TEXT NOT NULL DEFAULT 'NEUTRAL',
    cited_sources         TEXT[] NOT NULL DEFAULT '{}',
    competitors_mentioned TEXT[] NOT NULL DEFAULT '{}',
    input_tokens          INTEGER NOT NULL DEFAULT 0,
    output_tokens         INTEGER NOT NULL DEFAULT 0,
    cost                  DOUBLE PRECISION NOT NULL DEFAULT 0,
    response_date         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_scores (
    id               UUID PRIMARY KEY,
    hospital_id      UUID NOT NULL REFERENCES hospitals(id) ON DELETE CASCADE,
    score_date       DATE NOT NULL,
    overall_score    INTEGER NOT NULL,
    platform_scores  JSONB NOT NULL DEFAULT '{}',
    specialty_scores JSONB NOT NULL DEFAULT '{}',
    mention_count    INTEGER NOT NULL DEFAULT 0,
    positive_ratio   DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (hospital_id, score_date)
);

CREATE TABLE IF NOT EXISTS competitors (
    id                UUID PRIMARY KEY,
    hospital_id       UUID NOT NULL REFERENCES hospitals(id) ON DELETE CASCADE,
    competitor_name   TEXT NOT NULL,
    competitor_region TEXT NOT NULL DEFAULT '',
    is_auto_detected  BOOLEAN NOT NULL DEFAULT FALSE,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitor_scores (
    id            UUID PRIMARY KEY,
    competitor_id UUID NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    score_date    DATE NOT NULL,
    overall_score INTEGER NOT NULL,
    mention_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE (competitor_id, score_date)
);

CREATE INDEX IF NOT EXISTS idx_prompts_hospital ON prompts(hospital_id, is_active);
CREATE INDEX IF NOT EXISTS idx_ai_responses_hospital_date ON ai_responses(hospital_id, response_date DESC);
CREATE INDEX IF NOT EXISTS idx_ai_responses_job ON ai_responses(crawl_job_id);
CREATE INDEX IF NOT EXISTS idx_daily_scores_hospital ON daily_scores(hospital_id, score_date DESC);
CREATE INDEX IF NOT EXISTS idx_competitors_hospital ON competitors(hospital_id, is_active);
CREATE INDEX IF NOT EXISTS idx_crawl_jobs_hospital ON crawl_jobs(hospital_id, created_at DESC);
`
