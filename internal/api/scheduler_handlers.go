package api

import (
	"net/http"
	"time"

	"github.com/patientsignal/signal-workflows/services"
)

type sweepResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	*services.SweepSummary
}

// dailyCrawl runs the sweep inline; external cron callers authenticate with x-cron-secret
func (s *Server) dailyCrawl(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedCron(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid cron secret"})
		return
	}

	summary, err := s.crawl.RunDailySweep(r.Context())
	if err != nil && summary == nil {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily sweep interrupted")
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		Success:      err == nil,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		SweepSummary: summary,
	})
}

func (s *Server) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "active",
		"cronSchedule": s.cfg.CronSchedule,
		"lastCheck":    s.now().UTC().Format(time.RFC3339),
		"lastSweep":    s.crawl.LastSweep(),
	})
}
