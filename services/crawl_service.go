// services/crawl_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/patientsignal/signal-workflows/internal/analyzer"
	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/metrics"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers"
	"github.com/patientsignal/signal-workflows/internal/repositories/interfaces"
	"github.com/patientsignal/signal-workflows/internal/search"
)

const defaultResponseLimit = 50

type crawlService struct {
	cfg      *config.Config
	repos    *RepositoryManager
	querier  PlatformQuerier
	analyzer analyzer.ResponseAnalyzer
	scores   ScoreService
	indexer  ResultIndexer
	text     search.TextSearcher
	similar  search.SimilarSearcher
	alerter  Alerter
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	lastSweep *SweepSummary
}

type CrawlOption func(*crawlService)

func WithIndexer(indexer ResultIndexer) CrawlOption {
	return func(s *crawlService) { s.indexer = indexer }
}

func WithTextSearch(t search.TextSearcher) CrawlOption {
	return func(s *crawlService) { s.text = t }
}

func WithSimilarSearch(sim search.SimilarSearcher) CrawlOption {
	return func(s *crawlService) { s.similar = sim }
}

func WithAlerter(a Alerter) CrawlOption {
	return func(s *crawlService) { s.alerter = a }
}

func NewCrawlService(
	cfg *config.Config,
	repos *RepositoryManager,
	querier PlatformQuerier,
	responseAnalyzer analyzer.ResponseAnalyzer,
	scores ScoreService,
	opts ...CrawlOption,
) CrawlService {
	s := &crawlService{
		cfg:      cfg,
		repos:    repos,
		querier:  querier,
		analyzer: responseAnalyzer,
		scores:   scores,
		logger:   logging.Component("CrawlService"),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *crawlService) PlatformStatus() map[models.Platform]bool {
	return s.querier.Status()
}

// StartCrawl creates a RUNNING job for the hospital's active prompts. The caller
// dispatches execution; nothing is queried here.
func (s *crawlService) StartCrawl(ctx context.Context, hospitalID uuid.UUID, platforms []models.Platform) (*models.CrawlJob, error) {
	hospital, err := s.repos.HospitalRepo.GetByID(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hospital: %w", err)
	}
	if hospital == nil {
		return nil, ErrHospitalNotFound
	}

	prompts, err := s.repos.PromptRepo.ListByHospital(ctx, hospitalID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	if len(prompts) == 0 {
		return nil, ErrNoActivePrompts
	}

	return s.createJob(ctx, hospital, prompts, s.querier.Available(platforms))
}

func (s *crawlService) createJob(ctx context.Context, hospital *models.Hospital, prompts []*models.Prompt, available []models.Platform) (*models.CrawlJob, error) {
	started := s.now()
	job := &models.CrawlJob{
		HospitalID:   hospital.ID,
		Status:       models.JobStatusRunning,
		TotalPrompts: len(prompts),
		TotalItems:   len(prompts) * len(available),
		StartedAt:    &started,
		CreatedAt:    started,
	}
	if err := s.repos.CrawlJobRepo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("hospital", hospital.Name).
		Str("job_id", job.ID.String()).
		Int("prompts", job.TotalPrompts).
		Int("platforms", len(available)).
		Msg("🚀 crawl job created")
	return job, nil
}

// RunJob loads a job created by StartCrawl and executes it. A job that has
// already settled is returned as is, so redelivered events do no extra work.
func (s *crawlService) RunJob(ctx context.Context, jobID uuid.UUID, platforms []models.Platform) (*CrawlOutcome, error) {
	job, err := s.repos.CrawlJobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != models.JobStatusRunning {
		return &CrawlOutcome{Job: job}, nil
	}

	hospital, err := s.repos.HospitalRepo.GetByID(ctx, job.HospitalID)
	if err != nil {
		return nil, s.abort(ctx, job.ID, fmt.Errorf("failed to load hospital: %w", err))
	}
	if hospital == nil {
		return nil, s.abort(ctx, job.ID, ErrHospitalNotFound)
	}
	prompts, err := s.repos.PromptRepo.ListByHospital(ctx, hospital.ID, true)
	if err != nil {
		return nil, s.abort(ctx, job.ID, fmt.Errorf("failed to load prompts: %w", err))
	}

	return s.ExecuteJob(ctx, job, hospital, prompts, platforms)
}

// FailJob settles a RUNNING job as FAILED. It is used when the job was created
// but could not be handed to an executor. Settled jobs are left untouched.
func (s *crawlService) FailJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	ctx = context.WithoutCancel(ctx)
	job, err := s.repos.CrawlJobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status != models.JobStatusRunning {
		return nil
	}
	if err := s.repos.CrawlJobRepo.Fail(ctx, jobID, reason); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	metrics.CrawlJobs.WithLabelValues(string(models.JobStatusFailed)).Inc()
	s.logger.Warn().Str("job_id", jobID.String()).Str("reason", reason).Msg("crawl job failed before execution")
	return nil
}

// abort marks the job FAILED with cause and returns cause
func (s *crawlService) abort(ctx context.Context, jobID uuid.UUID, cause error) error {
	if err := s.repos.CrawlJobRepo.Fail(context.WithoutCancel(ctx), jobID, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to mark job failed")
	} else {
		metrics.CrawlJobs.WithLabelValues(string(models.JobStatusFailed)).Inc()
	}
	return cause
}

// ExecuteJob processes prompts in order. For each prompt the available platforms
// are queried concurrently; every success is stored together with the job's
// completed counter and every failure bumps the failed counter. The daily score
// is recomputed once at the end.
func (s *crawlService) ExecuteJob(ctx context.Context, job *models.CrawlJob, hospital *models.Hospital, prompts []*models.Prompt, platforms []models.Platform) (*CrawlOutcome, error) {
	log := s.logger.With().Str("hospital", hospital.Name).Str("job_id", job.ID.String()).Logger()
	available := s.querier.Available(platforms)
	if len(available) == 0 {
		log.Warn().Msg("no platform has a usable credential, job will settle empty")
	}

	// prompts or credentials may have changed since the job was created
	if totalItems := len(prompts) * len(available); job.TotalPrompts != len(prompts) || job.TotalItems != totalItems {
		if err := s.repos.CrawlJobRepo.SetTotals(ctx, job.ID, len(prompts), totalItems); err != nil {
			return nil, s.abort(ctx, job.ID, fmt.Errorf("failed to update job totals: %w", err))
		}
		log.Info().Int("prompts", len(prompts)).Int("items", totalItems).Msg("job totals updated")
		job.TotalPrompts = len(prompts)
		job.TotalItems = totalItems
	}

	scoped := s.analyzerFor(ctx, hospital)
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(ctx, job.ID, fmt.Errorf("crawl cancelled after %d of %d prompts: %w", i, len(prompts), err))
		}
		stored := s.runPrompt(ctx, job, hospital, prompt, available, scoped)
		if s.indexer != nil {
			s.indexer.Index(ctx, stored)
		}
	}

	settled, err := s.repos.CrawlJobRepo.Complete(ctx, job.ID)
	if err != nil {
		return nil, s.abort(ctx, job.ID, fmt.Errorf("failed to complete job: %w", err))
	}
	metrics.CrawlJobs.WithLabelValues(string(settled.Status)).Inc()
	log.Info().
		Str("status", string(settled.Status)).
		Int("completed", settled.CompletedCount).
		Int("failed", settled.FailedCount).
		Msg("✅ crawl job settled")

	if settled.Status == models.JobStatusFailed && s.alerter != nil {
		if err := s.alerter.ReportJobFailure(ctx, hospital, settled); err != nil {
			log.Warn().Err(err).Msg("failed to send job failure alert")
		}
	}

	outcome := &CrawlOutcome{Job: settled}
	score, err := s.scores.CalculateDailyScore(ctx, hospital.ID, s.now())
	if err != nil {
		outcome.ScoreError = err.Error()
		return outcome, fmt.Errorf("failed to calculate daily score: %w", err)
	}
	outcome.Score = score
	return outcome, nil
}

// analyzerFor scopes the analyzer to the hospital's tracked competitor names
func (s *crawlService) analyzerFor(ctx context.Context, hospital *models.Hospital) analyzer.ResponseAnalyzer {
	names, err := s.repos.CompetitorRepo.ListNames(ctx, hospital.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("hospital", hospital.Name).Msg("failed to load competitor names, using suffix matching only")
		return s.analyzer
	}
	return analyzer.ForHospital(s.analyzer, names)
}

func (s *crawlService) runPrompt(ctx context.Context, job *models.CrawlJob, hospital *models.Hospital, prompt *models.Prompt, available []models.Platform, an analyzer.ResponseAnalyzer) []*models.QueryResult {
	if len(available) == 0 {
		return nil
	}
	results := s.querier.QueryAllPlatforms(ctx, prompt.PromptText, available)

	stored := make([]*models.QueryResult, len(results))
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Crawl.Concurrency))
	for i, res := range results {
		g.Go(func() error {
			stored[i] = s.recordResult(ctx, job, hospital, prompt, res, an)
			return nil
		})
	}
	_ = g.Wait()

	out := stored[:0]
	for _, r := range stored {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// recordResult analyzes and stores one platform answer; nil means it was counted as a failure
func (s *crawlService) recordResult(ctx context.Context, job *models.CrawlJob, hospital *models.Hospital, prompt *models.Prompt, res providers.PlatformResult, an analyzer.ResponseAnalyzer) *models.QueryResult {
	log := s.logger.With().Str("job_id", job.ID.String()).Str("platform", string(res.Platform)).Logger()

	if res.Err != nil || res.Response == nil {
		if err := s.repos.CrawlJobRepo.RecordFailure(ctx, job.ID); err != nil {
			log.Error().Err(err).Msg("failed to record crawl failure")
		}
		return nil
	}

	model := res.Response.Model
	if model == "" {
		model = res.Model
	}
	analysis := an.Analyze(ctx, res.Response.Text, hospital.Name, res.Platform, model)

	result := models.NewQueryResult(hospital.ID, prompt.ID, res.Response.Text, analysis, s.now())
	result.InputTokens = res.Response.InputTokens
	result.OutputTokens = res.Response.OutputTokens
	result.Cost = res.Response.Cost
	result.PromptText = prompt.PromptText
	result.SpecialtyCategory = prompt.SpecialtyCategory

	if err := s.repos.CrawlJobRepo.RecordResult(ctx, job.ID, result); err != nil {
		log.Error().Err(err).Msg("❌ failed to store result")
		if err := s.repos.CrawlJobRepo.RecordFailure(ctx, job.ID); err != nil {
			log.Error().Err(err).Msg("failed to record crawl failure")
		}
		return nil
	}
	return result
}

// SweepTargets lists subscribed hospitals that have at least one active prompt
func (s *crawlService) SweepTargets(ctx context.Context) ([]*models.Hospital, error) {
	hospitals, err := s.repos.HospitalRepo.ListBySubscription(ctx, models.SubscriptionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active hospitals: %w", err)
	}
	var out []*models.Hospital
	for _, h := range hospitals {
		prompts, err := s.repos.PromptRepo.ListByHospital(ctx, h.ID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts for %s: %w", h.Name, err)
		}
		if len(prompts) > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

// RunDailySweep crawls every subscribed hospital one after another
func (s *crawlService) RunDailySweep(ctx context.Context) (*SweepSummary, error) {
	hospitals, err := s.repos.HospitalRepo.ListBySubscription(ctx, models.SubscriptionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active hospitals: %w", err)
	}

	summary := &SweepSummary{
		StartedAt:      s.now(),
		TotalHospitals: len(hospitals),
		Results:        []SweepResult{},
	}
	s.logger.Info().Int("hospitals", len(hospitals)).Msg("=== daily sweep started ===")

	for i, hospital := range hospitals {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Err(err).Int("remaining", len(hospitals)-i).Msg("daily sweep cancelled")
			break
		}

		prompts, err := s.repos.PromptRepo.ListByHospital(ctx, hospital.ID, true)
		if err != nil {
			summary.FailCount++
			summary.Results = append(summary.Results, SweepResult{HospitalID: hospital.ID, HospitalName: hospital.Name, Error: err.Error()})
			continue
		}
		if len(prompts) == 0 {
			s.logger.Info().Str("hospital", hospital.Name).Msg("no active prompts, skipping")
			continue
		}

		line := SweepResult{HospitalID: hospital.ID, HospitalName: hospital.Name, PromptCount: len(prompts)}
		outcome, err := s.crawlHospital(ctx, hospital, prompts)
		if outcome != nil && outcome.Job != nil {
			line.Completed = outcome.Job.CompletedCount
			line.Failed = outcome.Job.FailedCount
		}
		if err != nil {
			summary.FailCount++
			line.Error = err.Error()
			s.logger.Error().Err(err).Str("hospital", hospital.Name).Msg("❌ hospital crawl failed")
		} else {
			summary.SuccessCount++
			score := outcome.Score
			line.Score = &score
		}
		summary.Results = append(summary.Results, line)

		if delay := s.cfg.Crawl.SweepDelay; delay > 0 && i < len(hospitals)-1 {
			if err := s.sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	summary.FinishedAt = s.now()
	s.mu.Lock()
	s.lastSweep = summary
	s.mu.Unlock()

	s.logger.Info().Int("success", summary.SuccessCount).Int("failed", summary.FailCount).Msg("=== daily sweep finished ===")
	if summary.FailCount > 0 && s.alerter != nil {
		if err := s.alerter.ReportSweepFailures(ctx, summary); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send sweep alert")
		}
	}
	return summary, ctx.Err()
}

func (s *crawlService) crawlHospital(ctx context.Context, hospital *models.Hospital, prompts []*models.Prompt) (*CrawlOutcome, error) {
	job, err := s.createJob(ctx, hospital, prompts, s.querier.Available(nil))
	if err != nil {
		return nil, err
	}
	return s.ExecuteJob(ctx, job, hospital, prompts, nil)
}

func (s *crawlService) LastSweep() *SweepSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep
}

func (s *crawlService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error) {
	job, err := s.repos.CrawlJobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *crawlService) RecentJobs(ctx context.Context, limit int) ([]*models.CrawlJob, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	return s.repos.CrawlJobRepo.ListRecent(ctx, limit)
}

func (s *crawlService) ListResponses(ctx context.Context, hospitalID uuid.UUID, platform models.Platform, limit int) ([]*models.QueryResult, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	return s.repos.ResponseRepo.ListRecent(ctx, hospitalID, interfaces.ResponseFilter{Platform: platform, Limit: limit})
}

func (s *crawlService) SearchResponses(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]*models.QueryResult, error) {
	if s.text == nil {
		return nil, ErrSearchNotConfigured
	}
	hits, err := s.text.Search(ctx, hospitalID, query, limit)
	if err != nil {
		return nil, err
	}
	return s.repos.ResponseRepo.ListByIDs(ctx, hospitalID, hitIDs(hits))
}

func (s *crawlService) SimilarResponses(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]*models.QueryResult, error) {
	if s.similar == nil {
		return nil, ErrSearchNotConfigured
	}
	hits, err := s.similar.Similar(ctx, hospitalID, query, limit)
	if err != nil {
		return nil, err
	}
	return s.repos.ResponseRepo.ListByIDs(ctx, hospitalID, hitIDs(hits))
}

func hitIDs(hits []search.Hit) []uuid.UUID {
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ResponseID
	}
	return ids
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
