package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/services"
)

// stubCrawl overrides only what a test needs; other calls panic
type stubCrawl struct {
	services.CrawlService
	startErr  error
	started   []models.Platform
	jobs      map[uuid.UUID]*models.CrawlJob
	responses []*models.QueryResult
	lastLimit int
	sweep     *services.SweepSummary
	sweepErr  error
	searchErr error
	failed    map[uuid.UUID]string
}

func (s *stubCrawl) PlatformStatus() map[models.Platform]bool {
	return map[models.Platform]bool{models.PlatformChatGPT: true, models.PlatformGemini: false}
}

func (s *stubCrawl) StartCrawl(ctx context.Context, hospitalID uuid.UUID, platforms []models.Platform) (*models.CrawlJob, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = platforms
	return &models.CrawlJob{ID: uuid.New(), HospitalID: hospitalID, Status: models.JobStatusRunning, TotalPrompts: 3, TotalItems: 12}, nil
}

func (s *stubCrawl) FailJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	if s.failed == nil {
		s.failed = map[uuid.UUID]string{}
	}
	s.failed[jobID] = reason
	return ctx.Err()
}

func (s *stubCrawl) GetJob(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error) {
	if job, ok := s.jobs[jobID]; ok {
		return job, nil
	}
	return nil, services.ErrJobNotFound
}

func (s *stubCrawl) ListResponses(ctx context.Context, hospitalID uuid.UUID, platform models.Platform, limit int) ([]*models.QueryResult, error) {
	s.lastLimit = limit
	var out []*models.QueryResult
	for _, r := range s.responses {
		if platform == "" || r.Platform == platform {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubCrawl) SearchResponses(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]*models.QueryResult, error) {
	return nil, s.searchErr
}

func (s *stubCrawl) RunDailySweep(ctx context.Context) (*services.SweepSummary, error) {
	return s.sweep, s.sweepErr
}

func (s *stubCrawl) LastSweep() *services.SweepSummary { return s.sweep }

type stubScores struct {
	services.ScoreService
	score   int
	err     error
	history int
}

func (s *stubScores) CalculateDailyScore(ctx context.Context, hospitalID uuid.UUID, date time.Time) (int, error) {
	return s.score, s.err
}

func (s *stubScores) GetScoreHistory(ctx context.Context, hospitalID uuid.UUID, days int) ([]*models.DailyScore, error) {
	s.history = days
	return []*models.DailyScore{}, nil
}

type stubCompetitors struct {
	services.CompetitorService
	removeErr error
}

func (s *stubCompetitors) Create(ctx context.Context, hospitalID uuid.UUID, name, region string) (*models.Competitor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, services.ErrInvalidInput
	}
	return &models.Competitor{ID: uuid.New(), HospitalID: hospitalID, CompetitorName: name, CompetitorRegion: region, IsActive: true}, nil
}

func (s *stubCompetitors) Remove(ctx context.Context, hospitalID, competitorID uuid.UUID) error {
	return s.removeErr
}

type stubPrompts struct {
	services.PromptService
	created  []services.PromptInput
	region   string
	toggle   error
	activeIn bool
}

func (s *stubPrompts) List(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error) {
	s.activeIn = onlyActive
	return []*models.Prompt{}, nil
}

func (s *stubPrompts) BulkCreate(ctx context.Context, hospitalID uuid.UUID, inputs []services.PromptInput) (int, error) {
	s.created = inputs
	return len(inputs), nil
}

func (s *stubPrompts) GenerateFromPresets(ctx context.Context, hospitalID uuid.UUID, region, specialty string) (int, error) {
	s.region = region
	return 8, nil
}

func (s *stubPrompts) ToggleActive(ctx context.Context, hospitalID, promptID uuid.UUID) (*models.Prompt, error) {
	return nil, s.toggle
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []*models.CrawlJob
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job *models.CrawlJob, platforms []models.Platform) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return d.err
}

type fixture struct {
	crawl       *stubCrawl
	scores      *stubScores
	competitors *stubCompetitors
	prompts     *stubPrompts
	dispatcher  *recordingDispatcher
	mux         *http.ServeMux
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		crawl:       &stubCrawl{jobs: map[uuid.UUID]*models.CrawlJob{}},
		scores:      &stubScores{},
		competitors: &stubCompetitors{},
		prompts:     &stubPrompts{},
		dispatcher:  &recordingDispatcher{},
		mux:         http.NewServeMux(),
	}
	server := NewServer(cfg, f.crawl, f.scores, f.competitors, f.prompts, f.dispatcher)
	server.now = func() time.Time { return time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC) }
	server.Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestTriggerCrawl(t *testing.T) {
	f := newFixture(t, Config{})
	hospitalID := uuid.New()

	rec := f.do(t, http.MethodPost, "/ai-crawler/crawl/"+hospitalID.String(), `{"platforms":["chatgpt","CLAUDE"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "RUNNING", body["status"])
	assert.Equal(t, float64(3), body["totalPrompts"])
	assert.Equal(t, "크롤링이 시작되었습니다", body["message"])
	assert.Equal(t, []models.Platform{models.PlatformChatGPT, models.PlatformClaude}, f.crawl.started)
	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, body["jobId"], f.dispatcher.jobs[0].ID.String())
}

func TestTriggerCrawlErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		startErr error
		want     int
	}{
		{name: "bad id", path: "/ai-crawler/crawl/not-a-uuid", want: http.StatusBadRequest},
		{name: "unknown platform", path: "/ai-crawler/crawl/" + uuid.NewString(), body: `{"platforms":["bard"]}`, want: http.StatusBadRequest},
		{name: "malformed body", path: "/ai-crawler/crawl/" + uuid.NewString(), body: `{`, want: http.StatusBadRequest},
		{name: "unknown hospital", path: "/ai-crawler/crawl/" + uuid.NewString(), startErr: services.ErrHospitalNotFound, want: http.StatusNotFound},
		{name: "no prompts", path: "/ai-crawler/crawl/" + uuid.NewString(), startErr: services.ErrNoActivePrompts, want: http.StatusBadRequest},
		{name: "store down", path: "/ai-crawler/crawl/" + uuid.NewString(), startErr: errors.New("connection refused"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.crawl.startErr = tt.startErr
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, f.dispatcher.jobs)
		})
	}
}

func TestTriggerCrawlDispatchErrorFailsJob(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatcher.err = errors.New("inngest: 401 unauthorized")

	rec := f.do(t, http.MethodPost, "/ai-crawler/crawl/"+uuid.NewString(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, f.dispatcher.jobs, 1)

	jobID := f.dispatcher.jobs[0].ID
	require.Contains(t, f.crawl.failed, jobID)
	assert.Equal(t, "dispatch failed: inngest: 401 unauthorized", f.crawl.failed[jobID])
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	f := newFixture(t, Config{})
	f.crawl.startErr = errors.New("pq: password authentication failed")
	rec := f.do(t, http.MethodPost, "/ai-crawler/crawl/"+uuid.NewString(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestPlatformStatus(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(t, http.MethodGet, "/ai-crawler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"chatgpt": true, "gemini": false}, decode[map[string]bool](t, rec))
}

func TestGetJob(t *testing.T) {
	f := newFixture(t, Config{})
	job := &models.CrawlJob{ID: uuid.New(), Status: models.JobStatusCompleted, CompletedCount: 4}
	f.crawl.jobs[job.ID] = job

	rec := f.do(t, http.MethodGet, "/ai-crawler/job/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.CrawlJob](t, rec)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 4, got.CompletedCount)

	rec = f.do(t, http.MethodGet, "/ai-crawler/job/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListResponses(t *testing.T) {
	f := newFixture(t, Config{})
	f.crawl.responses = []*models.QueryResult{
		{ID: uuid.New(), Platform: models.PlatformChatGPT},
		{ID: uuid.New(), Platform: models.PlatformClaude},
	}
	hospital := uuid.NewString()

	rec := f.do(t, http.MethodGet, "/ai-crawler/responses/"+hospital+"?platform=claude&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.QueryResult](t, rec), 1)
	assert.Equal(t, 5, f.crawl.lastLimit)

	rec = f.do(t, http.MethodGet, "/ai-crawler/responses/"+hospital+"?platform=bard", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchResponses(t *testing.T) {
	f := newFixture(t, Config{})
	hospital := uuid.NewString()

	rec := f.do(t, http.MethodGet, "/ai-crawler/responses/"+hospital+"/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.crawl.searchErr = services.ErrSearchNotConfigured
	rec = f.do(t, http.MethodGet, "/ai-crawler/responses/"+hospital+"/search?q=임플란트", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCalculateScore(t *testing.T) {
	f := newFixture(t, Config{})
	f.scores.score = 72
	hospitalID := uuid.New()

	rec := f.do(t, http.MethodPost, "/ai-crawler/score/"+hospitalID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, hospitalID.String(), body["hospitalId"])
	assert.Equal(t, float64(72), body["score"])
	assert.Equal(t, "2024-03-02T09:00:00Z", body["date"])
}

func TestDailyCrawlRequiresSecret(t *testing.T) {
	summary := &services.SweepSummary{TotalHospitals: 2, SuccessCount: 2}
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "secret unset", secret: "", header: "anything", want: http.StatusUnauthorized},
		{name: "missing header", secret: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong header", secret: "s3cret", header: "nope", want: http.StatusUnauthorized},
		{name: "match", secret: "s3cret", header: "s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{CronSecret: tt.secret})
			f.crawl.sweep = summary
			var headers []string
			if tt.header != "" {
				headers = []string{"x-cron-secret", tt.header}
			}
			rec := f.do(t, http.MethodPost, "/scheduler/daily-crawl", "", headers...)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				body := decode[map[string]any](t, rec)
				assert.Equal(t, true, body["success"])
				assert.Equal(t, float64(2), body["totalHospitals"])
				assert.Equal(t, "2024-03-02T09:00:00Z", body["timestamp"])
			}
		})
	}
}

func TestDailyCrawlInterrupted(t *testing.T) {
	f := newFixture(t, Config{CronSecret: "s3cret"})
	f.crawl.sweep = &services.SweepSummary{TotalHospitals: 3, SuccessCount: 1}
	f.crawl.sweepErr = context.Canceled

	rec := f.do(t, http.MethodPost, "/scheduler/daily-crawl", "", "x-cron-secret", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(1), body["successCount"])
}

func TestSchedulerStatus(t *testing.T) {
	f := newFixture(t, Config{CronSchedule: "0 18 * * *"})
	rec := f.do(t, http.MethodGet, "/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "0 18 * * *", body["cronSchedule"])
	assert.Nil(t, body["lastSweep"])
}

func TestScoreHistoryDays(t *testing.T) {
	f := newFixture(t, Config{})
	hospital := uuid.NewString()

	f.do(t, http.MethodGet, "/scores/"+hospital+"/history?days=7", "")
	assert.Equal(t, 7, f.scores.history)

	f.do(t, http.MethodGet, "/scores/"+hospital+"/history?days=abc", "")
	assert.Equal(t, 30, f.scores.history)
}

func TestCompetitorRoutes(t *testing.T) {
	f := newFixture(t, Config{})
	hospital := uuid.NewString()

	rec := f.do(t, http.MethodPost, "/competitors/"+hospital, `{"competitorName":"강남연세치과","competitorRegion":"강남"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "강남연세치과", decode[models.Competitor](t, rec).CompetitorName)

	rec = f.do(t, http.MethodPost, "/competitors/"+hospital, `{"competitorName":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.competitors.removeErr = services.ErrForbidden
	rec = f.do(t, http.MethodDelete, "/competitors/"+hospital+"/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.competitors.removeErr = services.ErrCompetitorNotFound
	rec = f.do(t, http.MethodDelete, "/competitors/"+hospital+"/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptRoutes(t *testing.T) {
	f := newFixture(t, Config{})
	hospital := uuid.NewString()

	rec := f.do(t, http.MethodGet, "/prompts/"+hospital+"?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.prompts.activeIn)

	rec = f.do(t, http.MethodPost, "/prompts/"+hospital+"/bulk", `{"prompts":[{"promptText":"강남 임플란트 잘하는 곳"},{"promptText":"강남 교정 추천"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]int{"created": 2}, decode[map[string]int](t, rec))
	assert.Equal(t, "강남 교정 추천", f.prompts.created[1].PromptText)

	rec = f.do(t, http.MethodPost, "/prompts/"+hospital+"/presets", `{"region":"강남"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "강남", f.prompts.region)

	f.prompts.toggle = services.ErrPromptNotFound
	rec = f.do(t, http.MethodPost, "/prompts/"+hospital+"/"+uuid.NewString()+"/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackgroundDispatcherRunsJob(t *testing.T) {
	ran := make(chan uuid.UUID, 1)
	crawl := &runRecorder{ran: ran}
	job := &models.CrawlJob{ID: uuid.New()}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, NewBackgroundDispatcher(crawl).Dispatch(ctx, job, nil))
	cancel()

	select {
	case id := <-ran:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not run")
	}
}

type runRecorder struct {
	services.CrawlService
	ran chan uuid.UUID
}

func (r *runRecorder) RunJob(ctx context.Context, jobID uuid.UUID, platforms []models.Platform) (*services.CrawlOutcome, error) {
	// the request context is already cancelled; the run must not see that
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	r.ran <- jobID
	return &services.CrawlOutcome{}, nil
}
