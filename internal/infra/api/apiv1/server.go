package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/infra/logging"
	"poetry-pipeline/internal/infra/redis"
	"poetry-pipeline/internal/usecase"
)

// Limiter caps submissions per client within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Job struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	CurrentPhase string          `json:"currentPhase"`
	Progress     int             `json:"progress"`
	TotalCost    float64         `json:"totalCost"`
	Params       model.JobParams `json:"params"`
	PoemID       string          `json:"poemId,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	BrokerRef    string          `json:"brokerRef,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

type ActionLog struct {
	ID        string         `json:"id"`
	Phase     string         `json:"phase"`
	Action    string         `json:"action"`
	Input     map[string]any `json:"input"`
	Output    map[string]any `json:"output"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Error struct {
	Error string `json:"error"`
}

// Server serves the operator job API.
type Server struct {
	jobs        usecase.JobUseCase
	limiter     Limiter
	submitLimit int
	log         *zerolog.Logger
}

// NewServer builds the handler set. A nil limiter or a zero submitLimit
// disables submission rate limiting.
func NewServer(jobs usecase.JobUseCase, limiter Limiter, submitLimit int, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{jobs: jobs, limiter: limiter, submitLimit: submitLimit, log: logger}
}

// RegisterAPIV1 mounts the /api/v1 routes on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.ListJobs)
			r.Post("/", s.SubmitJob)
			r.Get("/{id}", s.GetJob)
			r.Get("/{id}/logs", s.GetJobLogs)
			r.Post("/{id}/cancel", s.CancelJob)
			r.Post("/{id}/retry", s.RetryJob)
		})
		r.Get("/queue/status", s.QueueStatus)
		r.Post("/queue/obliterate", s.ObliterateQueue)
	})
}

func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if !s.allowSubmit(w, r) {
		return
	}
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "missing body")
		return
	}
	var params model.JobParams
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	job, err := s.jobs.Submit(r.Context(), params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJob(job))
}

func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJob(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(job))
}

func (s *Server) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.jobs.Logs(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]ActionLog, 0, len(logs))
	for _, l := range logs {
		items = append(items, ActionLog{
			ID:        l.ID,
			Phase:     l.Phase,
			Action:    l.Action,
			Input:     l.Input,
			Output:    l.Output,
			CreatedAt: l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.jobs.Cancel(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "job is not cancellable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelled": true})
}

func (s *Server) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.jobs.Retry(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "only FAILED jobs can be retried")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "retried": true})
}

func (s *Server) QueueStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		adapter.QueueCounts
		Total int64 `json:"total"`
	}{counts, counts.Waiting + counts.Active + counts.Delayed})
}

func (s *Server) ObliterateQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Purge(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	l := logging.With(r.Context(), s.log)
	l.Warn().Msg("queue obliterated by operator")
	writeJSON(w, http.StatusOK, map[string]any{"obliterated": true})
}

func (s *Server) allowSubmit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil || s.submitLimit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), redis.SubmitKey(clientKey(r)), s.submitLimit, time.Minute)
	if err != nil {
		// fail open while the limiter is unreachable
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("submit rate limiter unavailable")
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many submissions, try again later")
		return false
	}
	return true
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toJob(j *model.Job) Job {
	return Job{
		ID:           j.ID,
		Status:       string(j.Status),
		CurrentPhase: j.CurrentPhase,
		Progress:     j.Progress,
		TotalCost:    j.TotalCost,
		Params:       j.Params,
		PoemID:       j.PoemID,
		ErrorMessage: j.ErrorMessage,
		BrokerRef:    j.BrokerRef,
		Attempts:     j.Attempts,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Error{Error: msg})
}
