package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
)

// memStore backs every fake repository so services see one consistent database
type memStore struct {
	mu               sync.Mutex
	hospitals        map[uuid.UUID]*models.Hospital
	prompts          []*models.Prompt
	results          []*models.QueryResult
	scores           map[string]*models.DailyScore
	competitors      []*models.Competitor
	competitorScores map[string]models.CompetitorScore
	jobs             map[uuid.UUID]*models.CrawlJob

	upserts        int
	failRecord     error
	failScoreList  error
	failPromptList error
	failComplete   error
}

func newMemStore() *memStore {
	return &memStore{
		hospitals:        map[uuid.UUID]*models.Hospital{},
		scores:           map[string]*models.DailyScore{},
		competitorScores: map[string]models.CompetitorScore{},
		jobs:             map[uuid.UUID]*models.CrawlJob{},
	}
}

func (m *memStore) repos() *RepositoryManager {
	return &RepositoryManager{
		HospitalRepo:   &fakeHospitalRepo{m},
		PromptRepo:     &fakePromptRepo{m},
		ResponseRepo:   &fakeResultRepo{m},
		DailyScoreRepo: &fakeScoreRepo{m},
		CompetitorRepo: &fakeCompetitorRepo{m},
		CrawlJobRepo:   &fakeJobRepo{m},
	}
}

func (m *memStore) addHospital(name string) *models.Hospital {
	h := &models.Hospital{
		ID:                 uuid.New(),
		Name:               name,
		Specialty:          "DENTAL",
		Region:             "서울 강남",
		SubscriptionStatus: models.SubscriptionActive,
	}
	m.hospitals[h.ID] = h
	return h
}

func (m *memStore) addPrompt(hospitalID uuid.UUID, text, category string, active bool) *models.Prompt {
	p := &models.Prompt{
		ID:                uuid.New(),
		HospitalID:        hospitalID,
		PromptText:        text,
		PromptType:        models.PromptTypeCustom,
		SpecialtyCategory: category,
		IsActive:          active,
		CreatedAt:         time.Now(),
	}
	m.prompts = append(m.prompts, p)
	return p
}

func scoreKey(id uuid.UUID, day time.Time) string {
	return id.String() + "/" + day.Format(time.DateOnly)
}

type fakeHospitalRepo struct{ m *memStore }

func (r *fakeHospitalRepo) Create(ctx context.Context, h *models.Hospital) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	r.m.hospitals[h.ID] = h
	return nil
}

func (r *fakeHospitalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Hospital, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.hospitals[id], nil
}

func (r *fakeHospitalRepo) ListBySubscription(ctx context.Context, status models.SubscriptionStatus) ([]*models.Hospital, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Hospital
	for _, h := range r.m.hospitals {
		if h.SubscriptionStatus == status {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakePromptRepo struct{ m *memStore }

func (r *fakePromptRepo) Create(ctx context.Context, p *models.Prompt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.m.prompts = append(r.m.prompts, p)
	return nil
}

func (r *fakePromptRepo) CreateBatch(ctx context.Context, prompts []*models.Prompt) (int, error) {
	for _, p := range prompts {
		if err := r.Create(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(prompts), nil
}

func (r *fakePromptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.prompts {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePromptRepo) ListByHospital(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failPromptList != nil {
		return nil, r.m.failPromptList
	}
	var out []*models.Prompt
	for _, p := range r.m.prompts {
		if p.HospitalID == hospitalID && (!onlyActive || p.IsActive) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePromptRepo) Update(ctx context.Context, p *models.Prompt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, existing := range r.m.prompts {
		if existing.ID == p.ID {
			cp := *p
			r.m.prompts[i] = &cp
		}
	}
	return nil
}

func (r *fakePromptRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	kept := r.m.prompts[:0]
	for _, p := range r.m.prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	r.m.prompts = kept
	return nil
}

func (r *fakePromptRepo) ToggleActive(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.prompts {
		if p.ID == id {
			p.IsActive = !p.IsActive
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeResultRepo struct{ m *memStore }

func (r *fakeResultRepo) Create(ctx context.Context, q *models.QueryResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.results = append(r.m.results, q)
	return nil
}

func (r *fakeResultRepo) ListByDateRange(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) ([]*models.QueryResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.QueryResult
	for _, q := range r.m.results {
		if q.HospitalID == hospitalID && !q.ResponseDate.Before(from) && q.ResponseDate.Before(to) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeResultRepo) ListRecent(ctx context.Context, hospitalID uuid.UUID, f interfaces.ResponseFilter) ([]*models.QueryResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.QueryResult
	for i := len(r.m.results) - 1; i >= 0; i-- {
		q := r.m.results[i]
		if q.HospitalID != hospitalID || (f.Platform != "" && q.Platform != f.Platform) {
			continue
		}
		out = append(out, q)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeResultRepo) ListGaps(ctx context.Context, hospitalID uuid.UUID, limit int) ([]*models.QueryResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.QueryResult
	for _, q := range r.m.results {
		if q.HospitalID == hospitalID && !q.IsMentioned && len(q.CompetitorsMentioned) > 0 {
			out = append(out, q)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeResultRepo) ListByIDs(ctx context.Context, hospitalID uuid.UUID, ids []uuid.UUID) ([]*models.QueryResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*models.QueryResult{}
	for _, id := range ids {
		for _, q := range r.m.results {
			if q.ID == id && q.HospitalID == hospitalID {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

type fakeScoreRepo struct{ m *memStore }

func (r *fakeScoreRepo) Upsert(ctx context.Context, s *models.DailyScore) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.upserts++
	r.m.scores[scoreKey(s.HospitalID, s.ScoreDate)] = s
	return nil
}

func (r *fakeScoreRepo) sorted(hospitalID uuid.UUID) []*models.DailyScore {
	var out []*models.DailyScore
	for _, s := range r.m.scores {
		if s.HospitalID == hospitalID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScoreDate.Before(out[j].ScoreDate) })
	return out
}

func (r *fakeScoreRepo) GetLatest(ctx context.Context, hospitalID uuid.UUID) (*models.DailyScore, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := r.sorted(hospitalID)
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

func (r *fakeScoreRepo) GetLatestBetween(ctx context.Context, hospitalID uuid.UUID, from, to time.Time) (*models.DailyScore, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var latest *models.DailyScore
	for _, s := range r.sorted(hospitalID) {
		if !s.ScoreDate.Before(from) && s.ScoreDate.Before(to) {
			latest = s
		}
	}
	return latest, nil
}

func (r *fakeScoreRepo) ListSince(ctx context.Context, hospitalID uuid.UUID, since time.Time) ([]*models.DailyScore, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.DailyScore
	for _, s := range r.sorted(hospitalID) {
		if !s.ScoreDate.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeCompetitorRepo struct{ m *memStore }

func (r *fakeCompetitorRepo) Create(ctx context.Context, c *models.Competitor) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.m.competitors = append(r.m.competitors, c)
	return nil
}

func (r *fakeCompetitorRepo) CreateBatch(ctx context.Context, cs []*models.Competitor) (int, error) {
	for _, c := range cs {
		if err := r.Create(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(cs), nil
}

func (r *fakeCompetitorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.competitors {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCompetitorRepo) ListActive(ctx context.Context, hospitalID uuid.UUID) ([]*models.Competitor, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Competitor
	for _, c := range r.m.competitors {
		if c.HospitalID == hospitalID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCompetitorRepo) ListNames(ctx context.Context, hospitalID uuid.UUID) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []string
	for _, c := range r.m.competitors {
		if c.HospitalID == hospitalID {
			out = append(out, c.CompetitorName)
		}
	}
	return out, nil
}

func (r *fakeCompetitorRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.competitors {
		if c.ID == id {
			c.IsActive = false
		}
	}
	return nil
}

func (r *fakeCompetitorRepo) UpsertScore(ctx context.Context, s *models.CompetitorScore) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.competitorScores[scoreKey(s.CompetitorID, s.ScoreDate)] = *s
	return nil
}

func (r *fakeCompetitorRepo) ListRecentScores(ctx context.Context, competitorID uuid.UUID, limit int) ([]models.CompetitorScore, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failScoreList != nil {
		return nil, r.m.failScoreList
	}
	var out []models.CompetitorScore
	for _, s := range r.m.competitorScores {
		if s.CompetitorID == competitorID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScoreDate.After(out[j].ScoreDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeJobRepo struct{ m *memStore }

func (r *fakeJobRepo) Create(ctx context.Context, j *models.CrawlJob) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	cp := *j
	r.m.jobs[j.ID] = &cp
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, ok := r.m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) RecordResult(ctx context.Context, jobID uuid.UUID, q *models.QueryResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failRecord != nil {
		return r.m.failRecord
	}
	id := jobID
	q.CrawlJobID = &id
	r.m.results = append(r.m.results, q)
	r.m.jobs[jobID].CompletedCount++
	return nil
}

func (r *fakeJobRepo) RecordFailure(ctx context.Context, jobID uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.jobs[jobID].FailedCount++
	return nil
}

func (r *fakeJobRepo) Complete(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failComplete != nil {
		return nil, r.m.failComplete
	}
	j := r.m.jobs[jobID]
	now := time.Now()
	j.Status = j.TerminalStatus()
	j.CompletedAt = &now
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) Fail(ctx context.Context, jobID uuid.UUID, message string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j := r.m.jobs[jobID]
	j.Status = models.JobStatusFailed
	j.ErrorMessage = &message
	return nil
}

func (r *fakeJobRepo) SetTotals(ctx context.Context, jobID uuid.UUID, totalPrompts, totalItems int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j := r.m.jobs[jobID]
	j.TotalPrompts = totalPrompts
	j.TotalItems = totalItems
	return nil
}

func (r *fakeJobRepo) ListRecent(ctx context.Context, limit int) ([]*models.CrawlJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.CrawlJob, 0, len(r.m.jobs))
	for _, j := range r.m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeQuerier answers each platform from a table; a missing entry is an upstream error
type fakeQuerier struct {
	mu        sync.Mutex
	available []models.Platform
	answers   map[models.Platform]string
	calls     int
}

func (f *fakeQuerier) Status() map[models.Platform]bool {
	out := map[models.Platform]bool{}
	for _, p := range models.AllPlatforms {
		out[p] = false
	}
	for _, p := range f.available {
		out[p] = true
	}
	return out
}

func (f *fakeQuerier) Available(requested []models.Platform) []models.Platform {
	if len(requested) == 0 {
		return f.available
	}
	var out []models.Platform
	for _, p := range requested {
		for _, a := range f.available {
			if p == a {
				out = append(out, p)
			}
		}
	}
	return out
}

func (f *fakeQuerier) QueryAllPlatforms(ctx context.Context, prompt string, platforms []models.Platform) []providers.PlatformResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([]providers.PlatformResult, 0, len(platforms))
	for _, p := range platforms {
		text, ok := f.answers[p]
		if !ok {
			out = append(out, providers.PlatformResult{Platform: p, Err: errors.New("upstream 503")})
			continue
		}
		out = append(out, providers.PlatformResult{
			Platform: p,
			Model:    "test-model",
			Response: &common.QueryResponse{Text: text, Model: "test-model", InputTokens: 10, OutputTokens: 20, Cost: 0.001},
		})
	}
	return out
}

type recordingAlerter struct {
	jobs   []*models.CrawlJob
	sweeps []*SweepSummary
}

func (a *recordingAlerter) ReportJobFailure(ctx context.Context, h *models.Hospital, j *models.CrawlJob) error {
	a.jobs = append(a.jobs, j)
	return nil
}

func (a *recordingAlerter) ReportSweepFailures(ctx context.Context, s *SweepSummary) error {
	a.sweeps = append(a.sweeps, s)
	return nil
}

type recordingResultIndexer struct {
	mu      sync.Mutex
	indexed int
}

func (r *recordingResultIndexer) Index(ctx context.Context, results []*models.QueryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed += len(results)
}

func testConfig() *config.Config {
	return &config.Config{
		TimeZone: "Asia/Seoul",
		Crawl:    config.CrawlConfig{Concurrency: 2},
		Scoring: config.ScoringConfig{
			MentionWeight:   0.4,
			PositionWeight:  0.3,
			SentimentWeight: 0.2,
			CitationWeight:  0.1,
		},
	}
}
