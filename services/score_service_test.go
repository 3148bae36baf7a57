package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientsignal/signal-workflows/internal/models"
)

var seoul = time.FixedZone("KST", 9*60*60)

func newScoreFixture(now time.Time) (*memStore, *scoreService, *models.Hospital) {
	store := newMemStore()
	svc := NewScoreService(testConfig(), store.repos()).(*scoreService)
	svc.loc = seoul
	svc.now = func() time.Time { return now }
	return store, svc, store.addHospital("서울미소치과")
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func addResult(store *memStore, hospitalID, promptID uuid.UUID, platform models.Platform, at time.Time, mentioned bool) *models.QueryResult {
	r := &models.QueryResult{
		ID:                   uuid.New(),
		HospitalID:           hospitalID,
		PromptID:             promptID,
		Platform:             platform,
		IsMentioned:          mentioned,
		CitedSources:         []string{},
		CompetitorsMentioned: []string{},
		SentimentLabel:       models.SentimentNotApplicable,
		ResponseDate:         at,
	}
	store.results = append(store.results, r)
	return r
}

func TestCalculateDailyScoreNoResults(t *testing.T) {
	store, svc, h := newScoreFixture(time.Now())
	score, err := svc.CalculateDailyScore(context.Background(), h.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, score)
	assert.Zero(t, store.upserts)
	assert.Empty(t, store.scores)
}

func TestCalculateDailyScoreUsesLocalDay(t *testing.T) {
	day := time.Date(2024, 3, 2, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(day)
	promptID := uuid.New()

	// 01:00 KST on the 2nd is still the 1st in UTC
	inside := addResult(store, h.ID, promptID, models.PlatformChatGPT, time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC), true)
	inside.MentionPosition = intPtr(1)
	inside.SentimentScore = floatPtr(0)
	inside.CitedSources = []string{"https://a.example", "https://b.example"}
	addResult(store, h.ID, promptID, models.PlatformChatGPT, time.Date(2024, 3, 1, 14, 59, 0, 0, time.UTC), false)

	score, err := svc.CalculateDailyScore(context.Background(), h.ID, day)
	require.NoError(t, err)
	// mention 100, position 100, sentiment 50, citation 40
	assert.Equal(t, 84, score)

	stored := store.scores[scoreKey(h.ID, time.Date(2024, 3, 2, 0, 0, 0, 0, seoul))]
	require.NotNil(t, stored)
	assert.Equal(t, 84, stored.OverallScore)
	assert.Equal(t, map[string]int{"chatgpt": 100}, stored.PlatformScores)
	assert.Equal(t, 1, stored.MentionCount)
}

func TestCalculateDailyScoreIsIdempotent(t *testing.T) {
	day := time.Date(2024, 3, 2, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(day)
	addResult(store, h.ID, uuid.New(), models.PlatformClaude, day.Add(-time.Hour), true)
	addResult(store, h.ID, uuid.New(), models.PlatformClaude, day.Add(-2*time.Hour), false)

	first, err := svc.CalculateDailyScore(context.Background(), h.ID, day)
	require.NoError(t, err)
	second, err := svc.CalculateDailyScore(context.Background(), h.ID, day)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.scores, 1)
	assert.Equal(t, 2, store.upserts)
}

func TestCalculateDailyScoreRecordsCompetitorScores(t *testing.T) {
	day := time.Date(2024, 3, 2, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(day)
	rival := &models.Competitor{ID: uuid.New(), HospitalID: h.ID, CompetitorName: "강남연세치과", IsActive: true}
	store.competitors = append(store.competitors, rival)

	r1 := addResult(store, h.ID, uuid.New(), models.PlatformGemini, day.Add(-time.Hour), true)
	r1.ResponseText = "1. 서울미소치과\n2. 강남연세치과"
	r2 := addResult(store, h.ID, uuid.New(), models.PlatformGemini, day.Add(-time.Hour), false)
	r2.ResponseText = "다른 답변"

	_, err := svc.CalculateDailyScore(context.Background(), h.ID, day)
	require.NoError(t, err)

	got, ok := store.competitorScores[scoreKey(rival.ID, time.Date(2024, 3, 2, 0, 0, 0, 0, seoul))]
	require.True(t, ok)
	assert.Equal(t, 50, got.OverallScore)
	assert.Equal(t, 1, got.MentionCount)
}

type recordedCompetitorScore struct {
	day      time.Time
	score    int
	mentions int
}

// recordingCompetitors captures scores handed to the competitor service
type recordingCompetitors struct {
	CompetitorService
	scores map[uuid.UUID]recordedCompetitorScore
}

func (c *recordingCompetitors) RecordCompetitorScore(ctx context.Context, competitorID uuid.UUID, day time.Time, score, mentionCount int) error {
	c.scores[competitorID] = recordedCompetitorScore{day: day, score: score, mentions: mentionCount}
	return nil
}

func TestCalculateDailyScoreRoutesCompetitorScores(t *testing.T) {
	day := time.Date(2024, 3, 2, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(day)
	recorder := &recordingCompetitors{scores: map[uuid.UUID]recordedCompetitorScore{}}
	svc.competitors = recorder
	rival := &models.Competitor{ID: uuid.New(), HospitalID: h.ID, CompetitorName: "강남연세치과", IsActive: true}
	store.competitors = append(store.competitors, rival)

	r := addResult(store, h.ID, uuid.New(), models.PlatformClaude, day.Add(-time.Hour), true)
	r.ResponseText = "1. 서울미소치과\n2. 강남연세치과"

	_, err := svc.CalculateDailyScore(context.Background(), h.ID, day)
	require.NoError(t, err)

	assert.Equal(t, map[uuid.UUID]recordedCompetitorScore{
		rival.ID: {day: time.Date(2024, 3, 2, 0, 0, 0, 0, seoul), score: 100, mentions: 1},
	}, recorder.scores)
	assert.Empty(t, store.competitorScores, "writes go through the competitor service")
}

func TestGetLatestScoreDefaultsToZero(t *testing.T) {
	_, svc, h := newScoreFixture(time.Now())
	score, err := svc.GetLatestScore(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, score.OverallScore)
	assert.NotNil(t, score.PlatformScores)
}

func TestGetPlatformAnalysis(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(now)
	a := addResult(store, h.ID, uuid.New(), models.PlatformPerplexity, now.AddDate(0, 0, -1), true)
	a.SentimentScore = floatPtr(0.6)
	addResult(store, h.ID, uuid.New(), models.PlatformPerplexity, now.AddDate(0, 0, -2), false)
	addResult(store, h.ID, uuid.New(), models.PlatformChatGPT, now.AddDate(0, 0, -40), true)

	got, err := svc.GetPlatformAnalysis(context.Background(), h.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PlatformPerplexity, got[0].Platform)
	assert.Equal(t, 2, got[0].TotalQueries)
	assert.Equal(t, 1, got[0].MentionedCount)
	assert.InDelta(t, 50.0, got[0].MentionRate, 1e-9)
	assert.InDelta(t, 0.6, got[0].AvgSentiment, 1e-9)
}

func TestGetSpecialtyAnalysis(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(now)
	implant := store.addPrompt(h.ID, "임플란트", "임플란트", true)
	store.addPrompt(h.ID, "교정", "교정", true)
	other := store.addPrompt(h.ID, "일반", "", true)

	r := addResult(store, h.ID, implant.ID, models.PlatformChatGPT, now.Add(-time.Hour), true)
	r.SentimentLabel = models.SentimentPositive
	addResult(store, h.ID, implant.ID, models.PlatformChatGPT, now.Add(-time.Hour), true)
	addResult(store, h.ID, other.ID, models.PlatformChatGPT, now.Add(-time.Hour), false)

	got, err := svc.GetSpecialtyAnalysis(context.Background(), h.ID)
	require.NoError(t, err)
	byCategory := map[string]SpecialtyAnalysis{}
	for _, s := range got {
		byCategory[s.Category] = s
	}
	require.Len(t, byCategory, 3)

	// (2/2*0.6 + 1/2*0.4) * 100
	assert.Equal(t, 80, byCategory["임플란트"].Score)
	assert.InDelta(t, 50.0, byCategory["임플란트"].PositiveRate, 1e-9)
	assert.Equal(t, 0, byCategory["교정"].TotalQueries)
	assert.Equal(t, 0, byCategory["교정"].Score)
	assert.Equal(t, 1, byCategory[models.DefaultSpecialty].TotalQueries)
}

func TestGetWeeklyHighlights(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(now)
	day := func(offset int) time.Time {
		return time.Date(2024, 3, 20+offset, 0, 0, 0, 0, seoul)
	}
	for _, s := range []struct {
		date  time.Time
		score int
	}{
		{day(-10), 40}, {day(-8), 50}, {day(-3), 70}, {day(-1), 62},
	} {
		store.scores[scoreKey(h.ID, s.date)] = &models.DailyScore{HospitalID: h.ID, ScoreDate: s.date, OverallScore: s.score}
	}
	for i := 0; i < 11; i++ {
		r := addResult(store, h.ID, uuid.New(), models.PlatformChatGPT, now.Add(-time.Duration(i)*time.Hour), true)
		r.CompetitorsMentioned = []string{"강남연세치과"}
		if i%2 == 0 {
			r.CompetitorsMentioned = append(r.CompetitorsMentioned, "압구정치과")
		}
	}

	got, err := svc.GetWeeklyHighlights(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, 62, got.CurrentScore)
	assert.Equal(t, 12, got.ScoreChange)
	assert.Equal(t, trendUp, got.ScoreTrend)
	assert.Equal(t, 11, got.NewMentions)
	assert.Equal(t, []NameCount{{Name: "강남연세치과", Count: 11}, {Name: "압구정치과", Count: 6}}, got.TopCompetitors)
	assert.Equal(t, []string{
		"🎉 이번 주 AI 가시성 점수가 크게 상승했습니다!",
		"📈 이번 주 11회 AI에서 언급되었습니다.",
	}, got.Insights)
}

func TestInsights(t *testing.T) {
	tests := []struct {
		name string
		in   WeeklyHighlights
		want []string
	}{
		{
			name: "steady",
			in:   WeeklyHighlights{CurrentScore: 60, ScoreChange: 2},
			want: []string{"📊 안정적인 AI 가시성을 유지하고 있습니다."},
		},
		{
			name: "dropping and low",
			in:   WeeklyHighlights{CurrentScore: 30, ScoreChange: -8},
			want: []string{
				"⚠️ 이번 주 AI 가시성 점수가 하락했습니다. 콘텐츠 개선을 고려해보세요.",
				"📝 AI 가시성 개선이 필요합니다. 콘텐츠 갭 분석을 확인해보세요.",
			},
		},
		{
			name: "excellent",
			in:   WeeklyHighlights{CurrentScore: 80},
			want: []string{"✨ 현재 AI 가시성이 매우 우수합니다!"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.in
			assert.Equal(t, tt.want, insights(&h))
		})
	}
}

func TestGetCitationAnalysis(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, seoul)
	store, svc, h := newScoreFixture(now)
	r := addResult(store, h.ID, uuid.New(), models.PlatformPerplexity, now.Add(-time.Hour), true)
	r.CitedSources = []string{
		"https://blog.naver.com/a/1",
		"https://m.blog.naver.com/b/2",
		"https://www.modoodoc.com/hospital/3",
		"not a url",
	}

	got, err := svc.GetCitationAnalysis(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, []DomainCount{{Domain: "naver.com", Count: 2}, {Domain: "modoodoc.com", Count: 1}}, got)
}

func TestCitationDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.hira.or.kr/ra/hosp":  "hira.or.kr",
		"http://cafe.daum.net/x":          "daum.net",
		"https://localhost:8080/path":     "localhost",
		"":                                "",
		"https://news.example.co.uk/item": "example.co.uk",
	}
	for in, want := range tests {
		assert.Equal(t, want, citationDomain(in), in)
	}
}
