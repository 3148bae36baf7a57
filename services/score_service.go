// services/score_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/metrics"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/scoring"
)

const (
	defaultHistoryDays   = 30
	analysisWindowDays   = 30
	topCompetitorsCount  = 5
	topCitationDomains   = 20
	trendUp              = "UP"
	trendDown            = "DOWN"
	trendStable          = "STABLE"
	insightRiseThreshold = 5
	insightHighScore     = 80
	insightLowScore      = 40
	insightMentionCount  = 10
)

type scoreService struct {
	cfg         *config.Config
	repos       *RepositoryManager
	competitors CompetitorService
	weights     scoring.Weights
	loc         *time.Location
	logger      zerolog.Logger
	now         func() time.Time
}

func NewScoreService(cfg *config.Config, repos *RepositoryManager) ScoreService {
	return &scoreService{
		cfg:         cfg,
		repos:       repos,
		competitors: NewCompetitorService(repos),
		weights:     scoring.WeightsFromConfig(cfg.Scoring),
		loc:         cfg.Location(),
		logger:      logging.Component("ScoreService"),
		now:         time.Now,
	}
}

// CalculateDailyScore recomputes the score for the calendar day containing date.
// A day without results yields 0 and leaves the table untouched.
func (s *scoreService) CalculateDailyScore(ctx context.Context, hospitalID uuid.UUID, date time.Time) (int, error) {
	dayStart, dayEnd := models.DayWindow(date.In(s.loc))

	results, err := s.repos.ResponseRepo.ListByDateRange(ctx, hospitalID, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load results for %s: %w", dayStart.Format(time.DateOnly), err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	breakdown := scoring.Compute(results, s.weights)
	if err := s.repos.DailyScoreRepo.Upsert(ctx, breakdown.DailyScore(hospitalID, dayStart)); err != nil {
		return 0, err
	}
	metrics.DailyScoresComputed.Inc()

	s.logger.Info().
		Str("hospital_id", hospitalID.String()).
		Str("date", dayStart.Format(time.DateOnly)).
		Int("score", breakdown.Overall).
		Int("results", breakdown.Total).
		Int("mentions", breakdown.MentionCount).
		Msg("📊 daily score computed")

	s.recordCompetitorScores(ctx, hospitalID, dayStart, results)
	return breakdown.Overall, nil
}

// recordCompetitorScores stores a score per active competitor from the same day's
// results. Failures are logged; the hospital's own score is already saved.
func (s *scoreService) recordCompetitorScores(ctx context.Context, hospitalID uuid.UUID, dayStart time.Time, results []*models.QueryResult) {
	competitors, err := s.repos.CompetitorRepo.ListActive(ctx, hospitalID)
	if err != nil {
		s.logger.Warn().Err(err).Str("hospital_id", hospitalID.String()).Msg("failed to list competitors")
		return
	}
	for _, c := range competitors {
		mentions := 0
		for _, r := range results {
			if strings.Contains(strings.ToLower(r.ResponseText), strings.ToLower(c.CompetitorName)) {
				mentions++
			}
		}
		err := s.competitors.RecordCompetitorScore(ctx, c.ID, dayStart, scoring.MentionRate(mentions, len(results)), mentions)
		if err != nil {
			s.logger.Warn().Err(err).Str("competitor", c.CompetitorName).Msg("failed to record competitor score")
		}
	}
}

// GetLatestScore returns a zero score for hospitals that were never scored
func (s *scoreService) GetLatestScore(ctx context.Context, hospitalID uuid.UUID) (*models.DailyScore, error) {
	score, err := s.repos.DailyScoreRepo.GetLatest(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return &models.DailyScore{
			HospitalID:      hospitalID,
			PlatformScores:  map[string]int{},
			SpecialtyScores: map[string]int{},
		}, nil
	}
	return score, nil
}

func (s *scoreService) GetScoreHistory(ctx context.Context, hospitalID uuid.UUID, days int) ([]*models.DailyScore, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	today, _ := models.DayWindow(s.now().In(s.loc))
	return s.repos.DailyScoreRepo.ListSince(ctx, hospitalID, today.AddDate(0, 0, -days))
}

func (s *scoreService) recent(ctx context.Context, hospitalID uuid.UUID, days int) ([]*models.QueryResult, error) {
	from, to := s.now().AddDate(0, 0, -days), s.now()
	results, err := s.repos.ResponseRepo.ListByDateRange(ctx, hospitalID, from, to.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent results: %w", err)
	}
	return results, nil
}

// GetPlatformAnalysis reports per-platform mention rate and mean sentiment over 30 days
func (s *scoreService) GetPlatformAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]PlatformAnalysis, error) {
	results, err := s.recent(ctx, hospitalID, analysisWindowDays)
	if err != nil {
		return nil, err
	}

	type acc struct {
		total, mentioned, sentimented int
		sentimentSum                  float64
	}
	byPlatform := map[models.Platform]*acc{}
	for _, r := range results {
		a, ok := byPlatform[r.Platform]
		if !ok {
			a = &acc{}
			byPlatform[r.Platform] = a
		}
		a.total++
		if r.IsMentioned {
			a.mentioned++
		}
		if r.SentimentScore != nil {
			a.sentimentSum += *r.SentimentScore
			a.sentimented++
		}
	}

	out := []PlatformAnalysis{}
	for _, p := range models.AllPlatforms {
		a, ok := byPlatform[p]
		if !ok {
			continue
		}
		pa := PlatformAnalysis{
			Platform:       p,
			TotalQueries:   a.total,
			MentionedCount: a.mentioned,
			MentionRate:    float64(a.mentioned) / float64(a.total) * 100,
		}
		if a.sentimented > 0 {
			pa.AvgSentiment = a.sentimentSum / float64(a.sentimented)
		}
		out = append(out, pa)
	}
	return out, nil
}

// GetSpecialtyAnalysis rolls the last 30 days up by prompt category. Every
// category the hospital has a prompt for is listed, even without results.
func (s *scoreService) GetSpecialtyAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]SpecialtyAnalysis, error) {
	prompts, err := s.repos.PromptRepo.ListByHospital(ctx, hospitalID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	results, err := s.recent(ctx, hospitalID, analysisWindowDays)
	if err != nil {
		return nil, err
	}

	byPrompt := map[uuid.UUID][]*models.QueryResult{}
	for _, r := range results {
		byPrompt[r.PromptID] = append(byPrompt[r.PromptID], r)
	}

	type acc struct{ total, mentioned, positive int }
	var order []string
	byCategory := map[string]*acc{}
	for _, p := range prompts {
		category := p.SpecialtyCategory
		if category == "" {
			category = models.DefaultSpecialty
		}
		a, ok := byCategory[category]
		if !ok {
			a = &acc{}
			byCategory[category] = a
			order = append(order, category)
		}
		for _, r := range byPrompt[p.ID] {
			a.total++
			if r.IsMentioned {
				a.mentioned++
			}
			if r.SentimentLabel == models.SentimentPositive {
				a.positive++
			}
		}
	}

	out := make([]SpecialtyAnalysis, 0, len(order))
	for _, category := range order {
		a := byCategory[category]
		sa := SpecialtyAnalysis{Category: category, TotalQueries: a.total}
		if a.total > 0 {
			t := float64(a.total)
			sa.MentionRate = float64(a.mentioned) / t * 100
			sa.PositiveRate = float64(a.positive) / t * 100
			sa.Score = int(math.Round((float64(a.mentioned)/t*0.6 + float64(a.positive)/t*0.4) * 100))
		}
		out = append(out, sa)
	}
	return out, nil
}

// GetWeeklyHighlights compares the newest score of the last 7 days with the
// newest score of the 7 days before that.
func (s *scoreService) GetWeeklyHighlights(ctx context.Context, hospitalID uuid.UUID) (*WeeklyHighlights, error) {
	now := s.now().In(s.loc)
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	thisWeek, err := s.repos.DailyScoreRepo.GetLatestBetween(ctx, hospitalID, weekAgo, now.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	lastWeek, err := s.repos.DailyScoreRepo.GetLatestBetween(ctx, hospitalID, twoWeeksAgo, weekAgo)
	if err != nil {
		return nil, err
	}

	current, previous := 0, 0
	if thisWeek != nil {
		current = thisWeek.OverallScore
	}
	if lastWeek != nil {
		previous = lastWeek.OverallScore
	}

	results, err := s.recent(ctx, hospitalID, 7)
	if err != nil {
		return nil, err
	}
	newMentions := 0
	competitorCounts := map[string]int{}
	for _, r := range results {
		if r.IsMentioned {
			newMentions++
		}
		for _, name := range r.CompetitorsMentioned {
			competitorCounts[name]++
		}
	}

	h := &WeeklyHighlights{
		CurrentScore:   current,
		ScoreChange:    current - previous,
		ScoreTrend:     trend(current - previous),
		NewMentions:    newMentions,
		TopCompetitors: topCounts(competitorCounts, topCompetitorsCount),
	}
	h.Insights = insights(h)
	return h, nil
}

func trend(change int) string {
	switch {
	case change > 0:
		return trendUp
	case change < 0:
		return trendDown
	default:
		return trendStable
	}
}

func insights(h *WeeklyHighlights) []string {
	var lines []string
	if h.ScoreChange > insightRiseThreshold {
		lines = append(lines, "🎉 이번 주 AI 가시성 점수가 크게 상승했습니다!")
	} else if h.ScoreChange < -insightRiseThreshold {
		lines = append(lines, "⚠️ 이번 주 AI 가시성 점수가 하락했습니다. 콘텐츠 개선을 고려해보세요.")
	}
	if h.CurrentScore >= insightHighScore {
		lines = append(lines, "✨ 현재 AI 가시성이 매우 우수합니다!")
	} else if h.CurrentScore < insightLowScore {
		lines = append(lines, "📝 AI 가시성 개선이 필요합니다. 콘텐츠 갭 분석을 확인해보세요.")
	}
	if h.NewMentions > insightMentionCount {
		lines = append(lines, fmt.Sprintf("📈 이번 주 %d회 AI에서 언급되었습니다.", h.NewMentions))
	}
	if len(lines) == 0 {
		lines = append(lines, "📊 안정적인 AI 가시성을 유지하고 있습니다.")
	}
	return lines
}

// topCounts sorts by count desc, then name, and keeps n
func topCounts(counts map[string]int, n int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, NameCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// GetCitationAnalysis counts cited registrable domains over 30 days
func (s *scoreService) GetCitationAnalysis(ctx context.Context, hospitalID uuid.UUID) ([]DomainCount, error) {
	results, err := s.recent(ctx, hospitalID, analysisWindowDays)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range results {
		for _, src := range r.CitedSources {
			if domain := citationDomain(src); domain != "" {
				counts[domain]++
			}
		}
	}

	out := make([]DomainCount, 0, len(counts))
	for _, nc := range topCounts(counts, topCitationDomains) {
		out = append(out, DomainCount{Domain: nc.Name, Count: nc.Count})
	}
	return out, nil
}

// citationDomain reduces a URL to its registrable domain ("blog.naver.com" -> "naver.com").
// Unparseable sources yield "".
func citationDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	host = strings.TrimPrefix(host, "www.")
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
