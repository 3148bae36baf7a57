// services/competitor_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

const (
	autoDetectSample    = 100
	autoDetectMax       = 10
	recentScoreCount    = 7
	comparisonGapsLimit = 20
)

type competitorService struct {
	repos  *RepositoryManager
	logger zerolog.Logger
}

func NewCompetitorService(repos *RepositoryManager) CompetitorService {
	return &competitorService{
		repos:  repos,
		logger: logging.Component("CompetitorService"),
	}
}

func (s *competitorService) hospital(ctx context.Context, hospitalID uuid.UUID) (*models.Hospital, error) {
	h, err := s.repos.HospitalRepo.GetByID(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hospital: %w", err)
	}
	if h == nil {
		return nil, ErrHospitalNotFound
	}
	return h, nil
}

func (s *competitorService) Create(ctx context.Context, hospitalID uuid.UUID, name, region string) (*models.Competitor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: competitor name is required", ErrInvalidInput)
	}
	if _, err := s.hospital(ctx, hospitalID); err != nil {
		return nil, err
	}

	c := &models.Competitor{
		HospitalID:       hospitalID,
		CompetitorName:   name,
		CompetitorRegion: strings.TrimSpace(region),
		IsActive:         true,
	}
	if err := s.repos.CompetitorRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns active competitors, each with its last week of scores
func (s *competitorService) List(ctx context.Context, hospitalID uuid.UUID) ([]*models.Competitor, error) {
	competitors, err := s.repos.CompetitorRepo.ListActive(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	for _, c := range competitors {
		scores, err := s.repos.CompetitorRepo.ListRecentScores(ctx, c.ID, recentScoreCount)
		if err != nil {
			return nil, err
		}
		c.RecentScores = scores
	}
	return competitors, nil
}

// Remove deactivates the competitor; its score history is kept
func (s *competitorService) Remove(ctx context.Context, hospitalID, competitorID uuid.UUID) error {
	c, err := s.repos.CompetitorRepo.GetByID(ctx, competitorID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCompetitorNotFound
	}
	if c.HospitalID != hospitalID {
		return ErrForbidden
	}
	return s.repos.CompetitorRepo.Deactivate(ctx, competitorID)
}

// AutoDetect counts competitor names in the latest responses and registers the
// most frequent ones the hospital does not already track.
func (s *competitorService) AutoDetect(ctx context.Context, hospitalID uuid.UUID) (*AutoDetectResult, error) {
	hospital, err := s.hospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	responses, err := s.repos.ResponseRepo.ListRecent(ctx, hospitalID, interfaces.ResponseFilter{Limit: autoDetectSample})
	if err != nil {
		return nil, err
	}
	existing, err := s.repos.CompetitorRepo.ListNames(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing)+1)
	for _, name := range existing {
		known[strings.ToLower(name)] = true
	}
	known[strings.ToLower(hospital.Name)] = true

	counts := map[string]int{}
	for _, r := range responses {
		for _, name := range r.CompetitorsMentioned {
			if !known[strings.ToLower(name)] {
				counts[name]++
			}
		}
	}

	top := topCounts(counts, autoDetectMax)
	result := &AutoDetectResult{Competitors: make([]DetectedCompetitor, 0, len(top))}
	if len(top) == 0 {
		return result, nil
	}

	batch := make([]*models.Competitor, 0, len(top))
	for _, nc := range top {
		batch = append(batch, &models.Competitor{
			HospitalID:       hospitalID,
			CompetitorName:   nc.Name,
			CompetitorRegion: hospital.Region,
			IsAutoDetected:   true,
			IsActive:         true,
		})
		result.Competitors = append(result.Competitors, DetectedCompetitor{Name: nc.Name, MentionCount: nc.Count})
	}
	created, err := s.repos.CompetitorRepo.CreateBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	result.Detected = created

	s.logger.Info().Str("hospital", hospital.Name).Int("detected", created).Msg("🔍 competitors auto-detected")
	return result, nil
}

// GetComparison lines up the hospital's latest score against each competitor's
// and lists recent answers that recommended competitors instead.
func (s *competitorService) GetComparison(ctx context.Context, hospitalID uuid.UUID) (*Comparison, error) {
	hospital, err := s.hospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	mine := ComparisonEntry{ID: hospital.ID, Name: hospital.Name}
	latest, err := s.repos.DailyScoreRepo.GetLatest(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		mine.Score = latest.OverallScore
		mine.MentionCount = latest.MentionCount
	}

	competitors, err := s.repos.CompetitorRepo.ListActive(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	entries := make([]ComparisonEntry, 0, len(competitors))
	for _, c := range competitors {
		entry := ComparisonEntry{ID: c.ID, Name: c.CompetitorName, IsAutoDetected: c.IsAutoDetected}
		scores, err := s.repos.CompetitorRepo.ListRecentScores(ctx, c.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			entry.Score = scores[0].OverallScore
			entry.MentionCount = scores[0].MentionCount
		}
		entries = append(entries, entry)
	}

	gapRows, err := s.repos.ResponseRepo.ListGaps(ctx, hospitalID, comparisonGapsLimit)
	if err != nil {
		return nil, err
	}
	gaps := make([]Gap, 0, len(gapRows))
	for _, r := range gapRows {
		gaps = append(gaps, Gap{
			PromptID:             r.PromptID,
			PromptText:           r.PromptText,
			CompetitorsMentioned: r.CompetitorsMentioned,
			Platform:             r.Platform,
		})
	}

	return &Comparison{MyHospital: mine, Competitors: entries, Gaps: gaps}, nil
}

func (s *competitorService) RecordCompetitorScore(ctx context.Context, competitorID uuid.UUID, day time.Time, score, mentionCount int) error {
	dayStart, _ := models.DayWindow(day)
	return s.repos.CompetitorRepo.UpsertScore(ctx, &models.CompetitorScore{
		CompetitorID: competitorID,
		ScoreDate:    dayStart,
		OverallScore: score,
		MentionCount: mentionCount,
	})
}
