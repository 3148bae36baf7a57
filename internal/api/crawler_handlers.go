package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/patientsignal/signal-workflows/internal/models"
)

type crawlRequest struct {
	Platforms []string `json:"platforms"`
}

type crawlStartedResponse struct {
	JobID        string           `json:"jobId"`
	TotalPrompts int              `json:"totalPrompts"`
	TotalItems   int              `json:"totalItems"`
	Status       models.JobStatus `json:"status"`
	Message      string           `json:"message"`
}

func (s *Server) platformStatus(w http.ResponseWriter, r *http.Request) {
	status := s.crawl.PlatformStatus()
	out := make(map[string]bool, len(status))
	for p, ok := range status {
		out[p.Key()] = ok
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var req crawlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var platforms []models.Platform
	for _, name := range req.Platforms {
		p, ok := models.ParsePlatform(name)
		if !ok {
			badRequest(w, "unknown platform "+name)
			return
		}
		platforms = append(platforms, p)
	}

	job, err := s.crawl.StartCrawl(r.Context(), hospitalID, platforms)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), job, platforms); err != nil {
		// nothing will run the job, so settle it instead of leaving it RUNNING
		if failErr := s.crawl.FailJob(context.WithoutCancel(r.Context()), job.ID, "dispatch failed: "+err.Error()); failErr != nil {
			s.logger.Error().Err(failErr).Str("job_id", job.ID.String()).Msg("failed to mark undispatched job failed")
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, crawlStartedResponse{
		JobID:        job.ID.String(),
		TotalPrompts: job.TotalPrompts,
		TotalItems:   job.TotalItems,
		Status:       job.Status,
		Message:      "크롤링이 시작되었습니다",
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "jobId")
	if !ok {
		return
	}
	job, err := s.crawl.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.crawl.RecentJobs(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var platform models.Platform
	if raw := r.URL.Query().Get("platform"); raw != "" {
		p, ok := models.ParsePlatform(raw)
		if !ok {
			badRequest(w, "unknown platform "+raw)
			return
		}
		platform = p
	}

	results, err := s.crawl.ListResponses(r.Context(), hospitalID, platform, queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) searchResponses(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	results, err := s.crawl.SearchResponses(r.Context(), hospitalID, q, queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) similarResponses(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	results, err := s.crawl.SimilarResponses(r.Context(), hospitalID, q, queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) calculateScore(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	now := s.now()
	score, err := s.scores.CalculateDailyScore(r.Context(), hospitalID, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hospitalId": hospitalID,
		"score":      score,
		"date":       now.UTC().Format(time.RFC3339),
	})
}
