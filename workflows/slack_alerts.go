package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/services"
)

// ErrSlackNotConfigured is returned when no webhook URL is set
var ErrSlackNotConfigured = errors.New("SLACK_WEBHOOK_URL is not set")

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackNotifier posts crawl alerts to an incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

// Enabled is false for a nil notifier or one without a webhook
func (n *SlackNotifier) Enabled() bool {
	return n != nil && n.webhookURL != ""
}

// ReportError posts an error message to the alerts channel
func (n *SlackNotifier) ReportError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !n.Enabled() {
		return ErrSlackNotConfigured
	}

	message := fmt.Sprintf(
		":rotating_light: *Patient Signal Crawl Error*\n"+
			"*Time:* %s\n"+
			"*Error:* ```%s```",
		n.now().UTC().Format(time.RFC3339),
		err.Error(),
	)
	return n.post(ctx, SlackPayload{Text: message})
}

func (n *SlackNotifier) post(ctx context.Context, payload SlackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ReportPipelineFailure reports a workflow failure with its hospital context
func (n *SlackNotifier) ReportPipelineFailure(ctx context.Context, pipeline, hospitalID, hospitalName, reason string, err error) error {
	if err == nil {
		return nil
	}
	if hospitalName == "" {
		hospitalName = "unknown"
	}
	if pipeline == "" {
		pipeline = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}

	return n.ReportError(ctx, fmt.Errorf(
		"pipeline failed: pipeline=%s reason=%s hospital_id=%s hospital_name=%s error=%v",
		pipeline, reason, hospitalID, hospitalName, err,
	))
}

// ReportJobFailure implements services.Alerter
func (n *SlackNotifier) ReportJobFailure(ctx context.Context, hospital *models.Hospital, job *models.CrawlJob) error {
	if !n.Enabled() {
		return nil
	}
	reason := "no platform answered"
	if job.ErrorMessage != nil {
		reason = *job.ErrorMessage
	}
	return n.ReportPipelineFailure(ctx, "crawl-hospital", hospital.ID.String(), hospital.Name, reason,
		fmt.Errorf("job %s finished %s with %d failed items", job.ID, job.Status, job.FailedCount))
}

// ReportSweepFailures implements services.Alerter
func (n *SlackNotifier) ReportSweepFailures(ctx context.Context, summary *services.SweepSummary) error {
	if !n.Enabled() {
		return nil
	}
	var failed []string
	for _, r := range summary.Results {
		if r.Error != "" {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.HospitalName, r.Error))
		}
	}
	return n.ReportError(ctx, fmt.Errorf(
		"daily sweep: %d of %d hospitals failed: %s",
		summary.FailCount, summary.TotalHospitals, strings.Join(failed, "; "),
	))
}

var _ services.Alerter = (*SlackNotifier)(nil)
