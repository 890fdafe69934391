package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shadow-sync/internal/checkpoint"
	"shadow-sync/internal/service/status"
	"shadow-sync/internal/service/trigger"
)

type StatusService interface {
	Status(ctx context.Context) (*status.Document, error)
	Statistics(ctx context.Context) (*checkpoint.Statistics, error)
	ReplicationHealth(ctx context.Context) (*status.ReplicationHealth, error)
}

type TriggerService interface {
	Trigger(ctx context.Context) *trigger.TriggerResult
}

type handlers struct {
	status  StatusService
	trigger TriggerService
}

// Router serves the sync endpoints under /api/v1.
func Router(statusSvc StatusService, triggerSvc TriggerService) http.Handler {
	h := &handlers{status: statusSvc, trigger: triggerSvc}

	r := chi.NewRouter()
	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Post("/trigger", h.postTrigger)
		r.Get("/statistics", h.getStatistics)
	})
	r.Get("/replication/health", h.getReplicationHealth)
	return r
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := h.status.Status(r.Context())
	if err != nil {
		writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, doc, http.StatusOK)
}

func (h *handlers) postTrigger(w http.ResponseWriter, r *http.Request) {
	result := h.trigger.Trigger(r.Context())

	switch result.Outcome {
	case trigger.OutcomeStarted:
		writeJSONResponse(w, result, http.StatusAccepted)
	case trigger.OutcomeAlreadyRunning:
		writeJSONResponse(w, result, http.StatusConflict)
	default:
		writeJSONResponse(w, result, http.StatusInternalServerError)
	}
}

func (h *handlers) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.status.Statistics(r.Context())
	if err != nil {
		writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, stats, http.StatusOK)
}

func (h *handlers) getReplicationHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.status.ReplicationHealth(r.Context())
	if err != nil {
		if errors.Is(err, status.ErrReplicationDisabled) {
			writeErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if !report.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, report, code)
}
