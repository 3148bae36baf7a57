// workflows/monitoring.go
package workflows

import (
	"context"
	"fmt"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/patientsignal/signal-workflows/internal/models"
)

const (
	healthSampleSize    = 200
	healthFailureCutoff = 0.2
)

// CrawlHealth summarises the most recent crawl jobs
type CrawlHealth struct {
	Jobs            int                      `json:"jobs"`
	ByStatus        map[models.JobStatus]int `json:"by_status"`
	ItemsCompleted  int                      `json:"items_completed"`
	ItemsFailed     int                      `json:"items_failed"`
	ItemFailureRate float64                  `json:"item_failure_rate"`
	Recommendation  string                   `json:"recommendation"`
}

// WeeklyCrawlHealth reports how many platform calls failed across recent jobs
func (p *ScheduledProcessor) WeeklyCrawlHealth() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "weekly-crawl-health",
			Name: "Analyze Weekly Crawl Health",
		},
		inngestgo.CronTrigger("0 0 * * 0"), // Every Sunday at midnight
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			jobs, err := step.Run(ctx, "get-recent-jobs", func(ctx context.Context) ([]*models.CrawlJob, error) {
				return p.crawlService.RecentJobs(ctx, healthSampleSize)
			})
			if err != nil {
				return nil, err
			}

			health := AnalyzeCrawlHealth(jobs)
			if health.ItemFailureRate > healthFailureCutoff && p.notifier.Enabled() {
				_ = p.notifier.ReportError(ctx, fmt.Errorf(
					"crawl health: %.1f%% of platform calls failed across the last %d jobs",
					health.ItemFailureRate*100, health.Jobs,
				))
			}
			return health, nil
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to create weekly crawl health function")
	}
	return fn
}

func AnalyzeCrawlHealth(jobs []*models.CrawlJob) CrawlHealth {
	h := CrawlHealth{Jobs: len(jobs), ByStatus: map[models.JobStatus]int{}}
	for _, j := range jobs {
		h.ByStatus[j.Status]++
		h.ItemsCompleted += j.CompletedCount
		h.ItemsFailed += j.FailedCount
	}
	if attempted := h.ItemsCompleted + h.ItemsFailed; attempted > 0 {
		h.ItemFailureRate = float64(h.ItemsFailed) / float64(attempted)
	}
	h.Recommendation = healthRecommendation(h)
	return h
}

func healthRecommendation(h CrawlHealth) string {
	switch {
	case h.Jobs == 0:
		return "No crawl jobs ran recently"
	case h.ItemFailureRate < 0.05:
		return "Platform calls are healthy"
	case h.ItemFailureRate < healthFailureCutoff:
		return "Some platform calls fail; check rate limits and quotas"
	}
	return "Many platform calls fail; check credentials and upstream status"
}
