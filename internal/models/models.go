// internal/models/models.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies an upstream chat-completion provider
type Platform string

const (
	PlatformChatGPT    Platform = "CHATGPT"
	PlatformClaude     Platform = "CLAUDE"
	PlatformPerplexity Platform = "PERPLEXITY"
	PlatformGemini     Platform = "GEMINI"
)

// AllPlatforms is the closed set of supported platforms in query order
var AllPlatforms = []Platform{PlatformChatGPT, PlatformClaude, PlatformPerplexity, PlatformGemini}

// ParsePlatform accepts any casing ("chatgpt", "ChatGPT") and reports whether it is supported
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Key is the lowercase form used in score maps
func (p Platform) Key() string {
	return strings.ToLower(string(p))
}

type SentimentLabel string

const (
	SentimentPositive      SentimentLabel = "POSITIVE"
	SentimentNeutral       SentimentLabel = "NEUTRAL"
	SentimentNegative      SentimentLabel = "NEGATIVE"
	SentimentNotApplicable SentimentLabel = "NOT_APPLICABLE" // hospital not mentioned
)

type PromptType string

const (
	PromptTypePreset        PromptType = "PRESET"
	PromptTypeCustom        PromptType = "CUSTOM"
	PromptTypeAutoGenerated PromptType = "AUTO_GENERATED"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// DefaultSpecialty is used when a prompt has no specialty category
const DefaultSpecialty = "기타"

type Hospital struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Specialty          string             `db:"specialty" json:"specialty"`
	Region             string             `db:"region" json:"region"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

type Prompt struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	HospitalID        uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	PromptText        string     `db:"prompt_text" json:"prompt_text"`
	PromptType        PromptType `db:"prompt_type" json:"prompt_type"`
	SpecialtyCategory string     `db:"specialty_category" json:"specialty_category"`
	RegionKeywords    []string   `db:"-" json:"region_keywords"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Analysis is the output of a ResponseAnalyzer
type Analysis struct {
	Platform             Platform       `json:"platform"`
	Model                string         `json:"model"`
	IsMentioned          bool           `json:"is_mentioned"`
	MentionPosition      *int           `json:"mention_position,omitempty"`
	TotalRecommendations *int           `json:"total_recommendations,omitempty"`
	SentimentScore       *float64       `json:"sentiment_score,omitempty"`
	SentimentLabel       SentimentLabel `json:"sentiment_label"`
	CitedSources         []string       `json:"cited_sources"`
	CompetitorsMentioned []string       `json:"competitors_mentioned"`
}

// QueryResult is one persisted outcome of asking a platform a prompt (table ai_responses).
// Rows are immutable once created.
type QueryResult struct {
	ID                   uuid.UUID      `json:"id"`
	HospitalID           uuid.UUID      `json:"hospital_id"`
	PromptID             uuid.UUID      `json:"prompt_id"`
	CrawlJobID           *uuid.UUID     `json:"crawl_job_id,omitempty"`
	Platform             Platform       `json:"platform"`
	Model                string         `json:"model"`
	ResponseText         string         `json:"response_text"`
	IsMentioned          bool           `json:"is_mentioned"`
	MentionPosition      *int           `json:"mention_position,omitempty"`
	TotalRecommendations *int           `json:"total_recommendations,omitempty"`
	SentimentScore       *float64       `json:"sentiment_score,omitempty"`
	SentimentLabel       SentimentLabel `json:"sentiment_label"`
	CitedSources         []string       `json:"cited_sources"`
	CompetitorsMentioned []string       `json:"competitors_mentioned"`
	InputTokens          int            `json:"input_tokens"`
	OutputTokens         int            `json:"output_tokens"`
	Cost                 float64        `json:"cost"`
	ResponseDate         time.Time      `json:"response_date"`

	// Joined from prompts for specialty rollups; not stored on the row
	SpecialtyCategory string `json:"specialty_category,omitempty"`
	PromptText        string `json:"prompt_text,omitempty"`
}

// NewQueryResult builds an unsaved result from an analysis
func NewQueryResult(hospitalID, promptID uuid.UUID, responseText string, a *Analysis, at time.Time) *QueryResult {
	return &QueryResult{
		ID:                   uuid.New(),
		HospitalID:           hospitalID,
		PromptID:             promptID,
		Platform:             a.Platform,
		Model:                a.Model,
		ResponseText:         responseText,
		IsMentioned:          a.IsMentioned,
		MentionPosition:      a.MentionPosition,
		TotalRecommendations: a.TotalRecommendations,
		SentimentScore:       a.SentimentScore,
		SentimentLabel:       a.SentimentLabel,
		CitedSources:         a.CitedSources,
		CompetitorsMentioned: a.CompetitorsMentioned,
		ResponseDate:         at,
	}
}

type DailyScore struct {
	ID              uuid.UUID      `json:"id"`
	HospitalID      uuid.UUID      `json:"hospital_id"`
	ScoreDate       time.Time      `json:"score_date"`
	OverallScore    int            `json:"overall_score"`
	PlatformScores  map[string]int `json:"platform_scores"`
	SpecialtyScores map[string]int `json:"specialty_scores"`
	MentionCount    int            `json:"mention_count"`
	PositiveRatio   float64        `json:"positive_ratio"`
	CreatedAt       time.Time      `json:"created_at"`
}

type Competitor struct {
	ID               uuid.UUID `db:"id" json:"id"`
	HospitalID       uuid.UUID `db:"hospital_id" json:"hospital_id"`
	CompetitorName   string    `db:"competitor_name" json:"competitor_name"`
	CompetitorRegion string    `db:"competitor_region" json:"competitor_region"`
	IsAutoDetected   bool      `db:"is_auto_detected" json:"is_auto_detected"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	RecentScores []CompetitorScore `db:"-" json:"recent_scores,omitempty"`
}

type CompetitorScore struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CompetitorID uuid.UUID `db:"competitor_id" json:"competitor_id"`
	ScoreDate    time.Time `db:"score_date" json:"score_date"`
	OverallScore int       `db:"overall_score" json:"overall_score"`
	MentionCount int       `db:"mention_count" json:"mention_count"`
}

type CrawlJob struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	HospitalID     uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	Status         JobStatus  `db:"status" json:"status"`
	TotalPrompts   int        `db:"total_prompts" json:"total_prompts"`
	TotalItems     int        `db:"total_items" json:"total_items"`
	CompletedCount int        `db:"completed_count" json:"completed_count"`
	FailedCount    int        `db:"failed_count" json:"failed_count"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// TerminalStatus is FAILED only when items were attempted and none succeeded
func (j *CrawlJob) TerminalStatus() JobStatus {
	if j.CompletedCount == 0 && j.FailedCount > 0 {
		return JobStatusFailed
	}
	return JobStatusCompleted
}

// DayWindow returns [local midnight, next local midnight) for t
func DayWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
