// internal/api/server.go
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/services"
)

const cronSecretHeader = "x-cron-secret"

// Dispatcher hands a freshly created crawl job to whatever executes it
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.CrawlJob, platforms []models.Platform) error
}

// BackgroundDispatcher runs the job in a goroutine of this process
type BackgroundDispatcher struct {
	Crawl  services.CrawlService
	logger zerolog.Logger
}

func NewBackgroundDispatcher(crawl services.CrawlService) *BackgroundDispatcher {
	return &BackgroundDispatcher{Crawl: crawl, logger: logging.Component("BackgroundDispatcher")}
}

func (d *BackgroundDispatcher) Dispatch(ctx context.Context, job *models.CrawlJob, platforms []models.Platform) error {
	// the request context ends with the response; the job must outlive it
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := d.Crawl.RunJob(runCtx, job.ID, platforms); err != nil {
			d.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("background crawl failed")
		}
	}()
	return nil
}

type Config struct {
	CronSecret   string
	CronSchedule string
}

// Server exposes the crawl, score, competitor and prompt operations over HTTP
type Server struct {
	cfg         Config
	crawl       services.CrawlService
	scores      services.ScoreService
	competitors services.CompetitorService
	prompts     services.PromptService
	dispatcher  Dispatcher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewServer(cfg Config, crawl services.CrawlService, scores services.ScoreService, competitors services.CompetitorService, prompts services.PromptService, dispatcher Dispatcher) *Server {
	return &Server{
		cfg:         cfg,
		crawl:       crawl,
		scores:      scores,
		competitors: competitors,
		prompts:     prompts,
		dispatcher:  dispatcher,
		logger:      logging.Component("API"),
		now:         time.Now,
	}
}

// Register adds every route to mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /ai-crawler/status", s.platformStatus)
	mux.HandleFunc("POST /ai-crawler/crawl/{hospitalId}", s.triggerCrawl)
	mux.HandleFunc("GET /ai-crawler/job/{jobId}", s.getJob)
	mux.HandleFunc("GET /ai-crawler/jobs", s.listJobs)
	mux.HandleFunc("GET /ai-crawler/responses/{hospitalId}", s.listResponses)
	mux.HandleFunc("GET /ai-crawler/responses/{hospitalId}/search", s.searchResponses)
	mux.HandleFunc("GET /ai-crawler/responses/{hospitalId}/similar", s.similarResponses)
	mux.HandleFunc("POST /ai-crawler/score/{hospitalId}", s.calculateScore)

	mux.HandleFunc("POST /scheduler/daily-crawl", s.dailyCrawl)
	mux.HandleFunc("GET /scheduler/status", s.schedulerStatus)

	mux.HandleFunc("GET /scores/{hospitalId}/latest", s.latestScore)
	mux.HandleFunc("GET /scores/{hospitalId}/history", s.scoreHistory)
	mux.HandleFunc("GET /scores/{hospitalId}/platforms", s.platformAnalysis)
	mux.HandleFunc("GET /scores/{hospitalId}/specialties", s.specialtyAnalysis)
	mux.HandleFunc("GET /scores/{hospitalId}/weekly", s.weeklyHighlights)
	mux.HandleFunc("GET /scores/{hospitalId}/citations", s.citationAnalysis)

	mux.HandleFunc("GET /competitors/{hospitalId}", s.listCompetitors)
	mux.HandleFunc("POST /competitors/{hospitalId}", s.createCompetitor)
	mux.HandleFunc("DELETE /competitors/{hospitalId}/{competitorId}", s.removeCompetitor)
	mux.HandleFunc("POST /competitors/{hospitalId}/auto-detect", s.autoDetectCompetitors)
	mux.HandleFunc("GET /competitors/{hospitalId}/comparison", s.competitorComparison)

	mux.HandleFunc("GET /prompts/{hospitalId}", s.listPrompts)
	mux.HandleFunc("POST /prompts/{hospitalId}", s.createPrompt)
	mux.HandleFunc("POST /prompts/{hospitalId}/bulk", s.bulkCreatePrompts)
	mux.HandleFunc("POST /prompts/{hospitalId}/presets", s.generatePresets)
	mux.HandleFunc("PATCH /prompts/{hospitalId}/{promptId}", s.updatePrompt)
	mux.HandleFunc("DELETE /prompts/{hospitalId}/{promptId}", s.deletePrompt)
	mux.HandleFunc("POST /prompts/{hospitalId}/{promptId}/toggle", s.togglePrompt)
	mux.HandleFunc("POST /prompts/{hospitalId}/{promptId}/fanouts", s.generateFanouts)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service sentinels to status codes; anything else is a 500
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrHospitalNotFound),
		errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, services.ErrPromptNotFound),
		errors.Is(err, services.ErrCompetitorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNoActivePrompts),
		errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrSearchNotConfigured):
		status = http.StatusNotImplemented
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// pathID parses the named path value, answering 400 itself on failure
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) authorizedCron(r *http.Request) bool {
	if s.cfg.CronSecret == "" {
		return false
	}
	got := r.Header.Get(cronSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.CronSecret)) == 1
}
