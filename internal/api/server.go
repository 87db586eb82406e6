// Package api serves region summaries and scores as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/models"
	"github.com/lox/mpawatch/internal/pipeline"
	"github.com/lox/mpawatch/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Summaries is the pipeline surface the server needs.
type Summaries interface {
	Regions() []models.Region
	Region(id string) (models.Region, error)
	Abundance(ctx context.Context, region models.Region, refresh bool) (*models.AbundanceSummary, error)
	Environmental(ctx context.Context, region models.Region, refresh bool) (*models.EnvironmentalSummary, error)
	Tracking(ctx context.Context, region models.Region, refresh bool) (*models.TrackingSummary, error)
	RegionScore(ctx context.Context, regionID string) (models.CompositeHealthScore, error)
	CachedEntries(ctx context.Context) (int, error)
}

// History exposes stored scores and ingest audit rows.
type History interface {
	GetScoreHistory(ctx context.Context, regionID string, since time.Time) ([]models.CompositeHealthScore, error)
	GetIngestHealth(ctx context.Context, days int) ([]store.IngestHealthSummary, error)
	GetRecentIngestRuns(ctx context.Context, regionID string, limit int) ([]store.IngestRun, error)
	MigrationVersion() (int, error)
}

const (
	defaultHistoryDays = 30
	defaultRunLimit    = 20
	maxRunLimit        = 200
)

type Server struct {
	summaries Summaries
	history   History
	addr      string
	logger    *zap.Logger
}

// NewServer builds a server. history may be nil when no database is
// configured.
func NewServer(summaries Summaries, history History, addr string, logger *zap.Logger) *Server {
	return &Server{
		summaries: summaries,
		history:   history,
		addr:      addr,
		logger:    logging.OrNop(logger),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("GET /api/regions/{id}/abundance", s.handleAbundance)
	mux.HandleFunc("GET /api/regions/{id}/environmental", s.handleEnvironmental)
	mux.HandleFunc("GET /api/regions/{id}/tracking", s.handleTracking)
	mux.HandleFunc("GET /api/regions/{id}/score", s.handleScore)
	mux.HandleFunc("GET /api/regions/{id}/score/history", s.handleScoreHistory)
	mux.HandleFunc("GET /api/regions/{id}/ingest", s.handleIngestRuns)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting server", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status          string                      `json:"status"`
	Regions         int                         `json:"regions"`
	CachedSummaries *int                        `json:"cachedSummaries,omitempty"`
	SchemaVersion   int                         `json:"schemaVersion,omitempty"`
	Ingest          []store.IngestHealthSummary `json:"ingest,omitempty"`
	Errors          []string                    `json:"errors,omitempty"`
}

// handleHealth reports degraded when any fetch in the last day failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:  "ok",
		Regions: len(s.summaries.Regions()),
	}

	// Backends that cannot enumerate entries just omit the count.
	if n, err := s.summaries.CachedEntries(r.Context()); err == nil {
		health.CachedSummaries = &n
	}

	if s.history != nil {
		if v, err := s.history.MigrationVersion(); err != nil {
			health.Status = "error"
			health.Errors = append(health.Errors, err.Error())
		} else {
			health.SchemaVersion = v
		}

		runs, err := s.history.GetIngestHealth(r.Context(), 1)
		if err != nil {
			health.Status = "error"
			health.Errors = append(health.Errors, err.Error())
		}
		for _, h := range runs {
			if h.SuccessRuns < h.TotalRuns {
				health.Status = "degraded"
			}
		}
		health.Ingest = runs
	}

	status := http.StatusOK
	if health.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.summaries.Regions())
}

func (s *Server) handleAbundance(w http.ResponseWriter, r *http.Request) {
	region, ok := s.region(w, r)
	if !ok {
		return
	}
	sum, err := s.summaries.Abundance(r.Context(), region, refresh(r))
	s.respond(w, sum, err)
}

func (s *Server) handleEnvironmental(w http.ResponseWriter, r *http.Request) {
	region, ok := s.region(w, r)
	if !ok {
		return
	}
	sum, err := s.summaries.Environmental(r.Context(), region, refresh(r))
	s.respond(w, sum, err)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	region, ok := s.region(w, r)
	if !ok {
		return
	}
	sum, err := s.summaries.Tracking(r.Context(), region, refresh(r))
	s.respond(w, sum, err)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	sc, err := s.summaries.RegionScore(r.Context(), r.PathValue("id"))
	s.respond(w, sc, err)
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	region, ok := s.region(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, errors.New("score history is not stored"))
		return
	}

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("days must be a positive integer"))
			return
		}
		days = n
	}

	since := time.Now().AddDate(0, 0, -days)
	scores, err := s.history.GetScoreHistory(r.Context(), region.ID, since)
	if scores == nil {
		scores = []models.CompositeHealthScore{}
	}
	s.respond(w, scores, err)
}

// IngestRunView is one audited upstream fetch.
type IngestRunView struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	API            string     `json:"api"`
	Kind           string     `json:"kind"`
	PagesAttempted int64      `json:"pagesAttempted"`
	RecordsParsed  int64      `json:"recordsParsed"`
	RecordsKept    int64      `json:"recordsKept"`
	Complete       bool       `json:"complete"`
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
}

func newIngestRunView(run store.IngestRun) IngestRunView {
	v := IngestRunView{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		API:            run.API,
		Kind:           run.Kind,
		PagesAttempted: run.PagesAttempted.Int64,
		RecordsParsed:  run.RecordsParsed.Int64,
		RecordsKept:    run.RecordsKept.Int64,
		Complete:       run.Complete,
		Success:        run.Success,
		Error:          run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		v.FinishedAt = &run.FinishedAt.Time
	}
	return v
}

// handleIngestRuns lists the region's latest upstream fetches, newest first.
func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	region, ok := s.region(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, errors.New("ingest runs are not stored"))
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.history.GetRecentIngestRuns(r.Context(), region.ID, limit)
	views := make([]IngestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newIngestRunView(run))
	}
	s.respond(w, views, err)
}

func (s *Server) region(w http.ResponseWriter, r *http.Request) (models.Region, bool) {
	region, err := s.summaries.Region(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return models.Region{}, false
	}
	return region, true
}

func refresh(r *http.Request) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return b
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnknownRegion):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrMissingRegionID),
		errors.Is(err, pipeline.ErrInvalidRadius),
		errors.Is(err, pipeline.ErrEmptyBoundary):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
