// workflows/scheduled_processor.go
package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/services"
)

type ScheduledProcessor struct {
	cfg               *config.Config
	crawlService      services.CrawlService
	competitorService services.CompetitorService
	notifier          *SlackNotifier
	client            inngestgo.Client
	logger            zerolog.Logger
}

func NewScheduledProcessor(cfg *config.Config, crawlService services.CrawlService, competitorService services.CompetitorService, notifier *SlackNotifier) *ScheduledProcessor {
	return &ScheduledProcessor{
		cfg:               cfg,
		crawlService:      crawlService,
		competitorService: competitorService,
		notifier:          notifier,
		logger:            logging.Component("ScheduledProcessor"),
	}
}

func (p *ScheduledProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// DailyCrawlSweep creates a job for every subscribed hospital and hands each one
// to the crawl-hospital function, so one slow hospital never holds up the rest.
func (p *ScheduledProcessor) DailyCrawlSweep() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "daily-crawl-sweep",
			Name: "Daily AI Visibility Crawl Sweep",
		},
		inngestgo.CronTrigger(p.cfg.Crawl.Cron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			now := time.Now().In(p.cfg.Location())

			// Step 1: subscribed hospitals with at least one active prompt
			hospitals, err := step.Run(ctx, "get-sweep-targets", func(ctx context.Context) ([]*models.Hospital, error) {
				return p.crawlService.SweepTargets(ctx)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to get sweep targets: %w", err)
			}

			if len(hospitals) == 0 {
				return map[string]any{
					"execution_date":  now.Format(time.DateOnly),
					"total_hospitals": 0,
					"message":         "No subscribed hospitals with active prompts",
				}, nil
			}

			// Step 2: one job and one event per hospital. Creating the job and sending
			// the event are separate steps so a failed send never creates a second job.
			var dispatched, failed int
			for _, hospital := range hospitals {
				job, err := step.Run(ctx, fmt.Sprintf("start-crawl-%s", hospital.ID), func(ctx context.Context) (*models.CrawlJob, error) {
					return p.crawlService.StartCrawl(ctx, hospital.ID, nil)
				})
				if err != nil {
					failed++
					p.logger.Warn().Err(err).Str("hospital", hospital.Name).Msg("failed to start crawl job")
					continue
				}

				_, err = step.Run(ctx, fmt.Sprintf("send-crawl-%s", hospital.ID), func(ctx context.Context) (string, error) {
					return p.client.Send(ctx, NewHospitalCrawlEvent(job, nil, "daily_sweep"))
				})
				if err != nil {
					failed++
					p.logger.Warn().Err(err).Str("hospital", hospital.Name).Msg("failed to send crawl event")
					sendErr := err
					_, err = step.Run(ctx, fmt.Sprintf("fail-crawl-%s", hospital.ID), func(ctx context.Context) (bool, error) {
						return true, settleUndispatched(ctx, p.crawlService, job, sendErr)
					})
					if err != nil {
						p.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to mark undispatched job failed")
					}
					continue
				}
				dispatched++
			}

			if failed > 0 && p.notifier.Enabled() {
				_ = p.notifier.ReportPipelineFailure(ctx, "daily-crawl-sweep", "", "", "dispatch",
					fmt.Errorf("%d of %d hospitals could not be dispatched", failed, len(hospitals)))
			}

			return map[string]any{
				"execution_date":  now.Format(time.DateOnly),
				"total_hospitals": len(hospitals),
				"dispatched":      dispatched,
				"failed":          failed,
				"message":         fmt.Sprintf("Dispatched %d hospital crawls", dispatched),
			}, nil
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to create daily crawl sweep function")
	}
	return fn
}

// settleUndispatched fails a job whose crawl event was never sent, since no
// crawl-hospital run will ever pick it up
func settleUndispatched(ctx context.Context, crawl services.CrawlService, job *models.CrawlJob, sendErr error) error {
	return crawl.FailJob(ctx, job.ID, "dispatch failed: "+sendErr.Error())
}

// WeeklyCompetitorDetect registers frequently recommended competitors for every
// swept hospital.
func (p *ScheduledProcessor) WeeklyCompetitorDetect() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "weekly-competitor-detect",
			Name: "Weekly Competitor Auto Detection",
		},
		inngestgo.CronTrigger(p.cfg.Crawl.CompetitorCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			hospitals, err := step.Run(ctx, "get-sweep-targets", func(ctx context.Context) ([]*models.Hospital, error) {
				return p.crawlService.SweepTargets(ctx)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to get sweep targets: %w", err)
			}

			detected := map[string]int{}
			for _, hospital := range hospitals {
				result, err := step.Run(ctx, fmt.Sprintf("auto-detect-%s", hospital.ID), func(ctx context.Context) (*services.AutoDetectResult, error) {
					return p.competitorService.AutoDetect(ctx, hospital.ID)
				})
				if err != nil {
					// keep going; one hospital's failure should not block the others
					p.logger.Warn().Err(err).Str("hospital", hospital.Name).Msg("competitor auto-detect failed")
					continue
				}
				detected[hospital.Name] = result.Detected
			}

			return map[string]any{
				"total_hospitals": len(hospitals),
				"detected":        detected,
			}, nil
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to create weekly competitor detect function")
	}
	return fn
}
