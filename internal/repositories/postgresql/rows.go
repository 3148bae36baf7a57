package postgresql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/patientsignal/signal-workflows/internal/models"
)

// dateLayout is used for DATE columns so the calendar day is taken from the
// caller's zone, not the session zone of the connection.
const dateLayout = "2006-01-02"

type promptRow struct {
	ID                uuid.UUID      `db:"id"`
	HospitalID        uuid.UUID      `db:"hospital_id"`
	PromptText        string         `db:"prompt_text"`
	PromptType        string         `db:"prompt_type"`
	SpecialtyCategory string         `db:"specialty_category"`
	RegionKeywords    pq.StringArray `db:"region_keywords"`
	IsActive          bool           `db:"is_active"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *promptRow) toModel() *models.Prompt {
	return &models.Prompt{
		ID:                r.ID,
		HospitalID:        r.HospitalID,
		PromptText:        r.PromptText,
		PromptType:        models.PromptType(r.PromptType),
		SpecialtyCategory: r.SpecialtyCategory,
		RegionKeywords:    []string(r.RegionKeywords),
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type queryResultRow struct {
	ID                   uuid.UUID       `db:"id"`
	HospitalID           uuid.UUID       `db:"hospital_id"`
	PromptID             uuid.UUID       `db:"prompt_id"`
	CrawlJobID           uuid.NullUUID   `db:"crawl_job_id"`
	Platform             string          `db:"ai_platform"`
	Model                string          `db:"ai_model_version"`
	ResponseText         string          `db:"response_text"`
	IsMentioned          bool            `db:"is_mentioned"`
	MentionPosition      sql.NullInt64   `db:"mention_position"`
	TotalRecommendations sql.NullInt64   `db:"total_recommendations"`
	SentimentScore       sql.NullFloat64 `db:"sentiment_score"`
	SentimentLabel       string          `db:"sentiment_label"`
	CitedSources         pq.StringArray  `db:"cited_sources"`
	CompetitorsMentioned pq.StringArray  `db:"competitors_mentioned"`
	InputTokens          int             `db:"input_tokens"`
	OutputTokens         int             `db:"output_tokens"`
	Cost                 float64         `db:"cost"`
	ResponseDate         time.Time       `db:"response_date"`
	SpecialtyCategory    string          `db:"specialty_category"`
	PromptText           string          `db:"prompt_text"`
}

func (r *queryResultRow) toModel() *models.QueryResult {
	out := &models.QueryResult{
		ID:                   r.ID,
		HospitalID:           r.HospitalID,
		PromptID:             r.PromptID,
		Platform:             models.Platform(r.Platform),
		Model:                r.Model,
		ResponseText:         r.ResponseText,
		IsMentioned:          r.IsMentioned,
		SentimentLabel:       models.SentimentLabel(r.SentimentLabel),
		CitedSources:         []string(r.CitedSources),
		CompetitorsMentioned: []string(r.CompetitorsMentioned),
		InputTokens:          r.InputTokens,
		OutputTokens:         r.OutputTokens,
		Cost:                 r.Cost,
		ResponseDate:         r.ResponseDate,
		SpecialtyCategory:    r.SpecialtyCategory,
		PromptText:           r.PromptText,
	}
	if r.CrawlJobID.Valid {
		id := r.CrawlJobID.UUID
		out.CrawlJobID = &id
	}
	if r.MentionPosition.Valid {
		v := int(r.MentionPosition.Int64)
		out.MentionPosition = &v
	}
	if r.TotalRecommendations.Valid {
		v := int(r.TotalRecommendations.Int64)
		out.TotalRecommendations = &v
	}
	if r.SentimentScore.Valid {
		v := r.SentimentScore.Float64
		out.SentimentScore = &v
	}
	return out
}

type dailyScoreRow struct {
	ID              uuid.UUID `db:"id"`
	HospitalID      uuid.UUID `db:"hospital_id"`
	ScoreDate       time.Time `db:"score_date"`
	OverallScore    int       `db:"overall_score"`
	PlatformScores  []byte    `db:"platform_scores"`
	SpecialtyScores []byte    `db:"specialty_scores"`
	MentionCount    int       `db:"mention_count"`
	PositiveRatio   float64   `db:"positive_ratio"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r *dailyScoreRow) toModel() (*models.DailyScore, error) {
	out := &models.DailyScore{
		ID:              r.ID,
		HospitalID:      r.HospitalID,
		ScoreDate:       r.ScoreDate,
		OverallScore:    r.OverallScore,
		PlatformScores:  map[string]int{},
		SpecialtyScores: map[string]int{},
		MentionCount:    r.MentionCount,
		PositiveRatio:   r.PositiveRatio,
		CreatedAt:       r.CreatedAt,
	}
	if len(r.PlatformScores) > 0 {
		if err := json.Unmarshal(r.PlatformScores, &out.PlatformScores); err != nil {
			return nil, fmt.Errorf("failed to decode platform_scores: %w", err)
		}
	}
	if len(r.SpecialtyScores) > 0 {
		if err := json.Unmarshal(r.SpecialtyScores, &out.SpecialtyScores); err != nil {
			return nil, fmt.Errorf("failed to decode specialty_scores: %w", err)
		}
	}
	return out, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableUUID(v *uuid.UUID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *v, Valid: true}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
