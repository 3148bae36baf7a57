// workflows/crawl_processor.go
package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/services"
)

// EventHospitalCrawl triggers the crawl workflow for one hospital
const EventHospitalCrawl = "hospital.crawl"

// HospitalCrawlEvent carries an existing job id, or none to start a new job
type HospitalCrawlEvent struct {
	HospitalID  string   `json:"hospital_id"`
	JobID       string   `json:"job_id,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	TriggeredBy string   `json:"triggered_by,omitempty"`
}

// NewHospitalCrawlEvent builds the event that runs job for hospital
func NewHospitalCrawlEvent(job *models.CrawlJob, platforms []models.Platform, triggeredBy string) inngestgo.Event {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return inngestgo.Event{
		Name: EventHospitalCrawl,
		Data: map[string]any{
			"hospital_id":  job.HospitalID.String(),
			"job_id":       job.ID.String(),
			"platforms":    names,
			"triggered_by": triggeredBy,
		},
	}
}

type CrawlProcessor struct {
	crawlService services.CrawlService
	notifier     *SlackNotifier
	client       inngestgo.Client
	logger       zerolog.Logger
}

func NewCrawlProcessor(crawlService services.CrawlService, notifier *SlackNotifier) *CrawlProcessor {
	return &CrawlProcessor{
		crawlService: crawlService,
		notifier:     notifier,
		logger:       logging.Component("CrawlProcessor"),
	}
}

func (p *CrawlProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

func (p *CrawlProcessor) CrawlHospital() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "crawl-hospital",
			Name:    "Crawl AI Platforms for One Hospital",
			Retries: inngestgo.IntPtr(1), // a job settles on the first run; retries only cover infra errors
		},
		inngestgo.EventTrigger(EventHospitalCrawl, nil),
		func(ctx context.Context, input inngestgo.Input[HospitalCrawlEvent]) (any, error) {
			data := input.Event.Data
			platforms := ParsePlatforms(data.Platforms)
			p.logger.Info().Str("hospital_id", data.HospitalID).Str("job_id", data.JobID).Msg("=== STARTING HOSPITAL CRAWL ===")

			// Step 1: resolve the job, creating one when the event did not carry it
			jobID, err := step.Run(ctx, "resolve-job", func(ctx context.Context) (string, error) {
				if data.JobID != "" {
					return data.JobID, nil
				}
				hospitalID, err := uuid.Parse(data.HospitalID)
				if err != nil {
					return "", fmt.Errorf("invalid hospital_id %q: %w", data.HospitalID, err)
				}
				job, err := p.crawlService.StartCrawl(ctx, hospitalID, platforms)
				if err != nil {
					return "", err
				}
				return job.ID.String(), nil
			})
			if err != nil {
				p.reportFailure(ctx, data.HospitalID, "resolve-job", err)
				return nil, fmt.Errorf("step 'resolve-job' failed: %w", err)
			}

			// Step 2: run every prompt against every platform and aggregate the day
			outcome, err := step.Run(ctx, "execute-crawl-job", func(ctx context.Context) (*services.CrawlOutcome, error) {
				id, err := uuid.Parse(jobID)
				if err != nil {
					return nil, fmt.Errorf("invalid job_id %q: %w", jobID, err)
				}
				return p.crawlService.RunJob(ctx, id, platforms)
			})
			if err != nil {
				p.reportFailure(ctx, data.HospitalID, "execute-crawl-job", err)
				return nil, fmt.Errorf("step 'execute-crawl-job' failed: %w", err)
			}

			p.logger.Info().
				Str("hospital_id", data.HospitalID).
				Str("job_id", jobID).
				Str("status", string(outcome.Job.Status)).
				Int("score", outcome.Score).
				Msg("=== HOSPITAL CRAWL COMPLETE ===")

			return map[string]any{
				"hospital_id": data.HospitalID,
				"job_id":      jobID,
				"status":      outcome.Job.Status,
				"completed":   outcome.Job.CompletedCount,
				"failed":      outcome.Job.FailedCount,
				"score":       outcome.Score,
			}, nil
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to create crawl-hospital function")
	}
	return fn
}

func (p *CrawlProcessor) reportFailure(ctx context.Context, hospitalID, reason string, err error) {
	if !p.notifier.Enabled() {
		return
	}
	if slackErr := p.notifier.ReportPipelineFailure(ctx, "crawl-hospital", hospitalID, "", reason, err); slackErr != nil {
		p.logger.Warn().Err(slackErr).Msg("failed to report crawl failure to slack")
	}
}

// ParsePlatforms keeps the recognised names; unknown names are dropped
func ParsePlatforms(names []string) []models.Platform {
	var out []models.Platform
	for _, n := range names {
		if p, ok := models.ParsePlatform(n); ok {
			out = append(out, p)
		}
	}
	return out
}

// Dispatch hands a job created by the HTTP API to the crawl-hospital function
func (p *CrawlProcessor) Dispatch(ctx context.Context, job *models.CrawlJob, platforms []models.Platform) error {
	if p.client == nil {
		return fmt.Errorf("inngest client not set")
	}
	id, err := p.client.Send(ctx, NewHospitalCrawlEvent(job, platforms, "api"))
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", EventHospitalCrawl, err)
	}
	p.logger.Info().Str("job_id", job.ID.String()).Str("event_id", id).Msg("crawl job dispatched")
	return nil
}
