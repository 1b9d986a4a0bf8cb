// handler.go provides the HTTP API of the vote aggregator.
//
// Endpoints:
//   - GET|POST /proposal?id=<id>: per-chain tallies, hub first
//   - GET|POST /proposal/total?id=<id>: cross-chain sum
//
// Bad input is answered with 400 before any cache or chain access. A hub read
// failure is a 502, anything else a 500. Error bodies are plain text and
// never carry collaborator error details.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/vote-aggregator/internal/domain/entity"
	"github.com/archon-research/vote-aggregator/internal/ports/inbound"
)

const (
	tracerName = "github.com/archon-research/vote-aggregator/internal/adapters/inbound/http"

	// maxFormBytes bounds POST bodies; the only field is a decimal id.
	maxFormBytes = 1 << 16

	msgMissingID    = "The proposal Id is mandatory. Please provide a valid value."
	msgInvalidID    = "The proposal Id must be a non-negative decimal integer below 2^256."
	msgChainFailure = "Unable to read proposal votes from the hub chain. Please retry later."
	msgInternal     = "Internal server error."
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	service inbound.VoteAggregationService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.VoteAggregationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/proposal", h.Proposal)
	mux.HandleFunc("/proposal/total", h.ProposalTotal)
}

// Proposal serves the per-chain tallies of one proposal.
func (h *Handler) Proposal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "/proposal", func(r *http.Request, id entity.ProposalID) (any, error) {
		return h.service.GetProposalVotes(r.Context(), id)
	})
}

// ProposalTotal serves the cross-chain sum of one proposal.
func (h *Handler) ProposalTotal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "/proposal/total", func(r *http.Request, id entity.ProposalID) (any, error) {
		return h.service.GetProposalTotal(r.Context(), id)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, route string, fetch func(*http.Request, entity.ProposalID) (any, error)) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(tracerName).Start(ctx, r.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		h.respondText(w, http.StatusMethodNotAllowed, "Method not allowed.")
		span.SetAttributes(attribute.Int("http.response.status_code", http.StatusMethodNotAllowed))
		return
	}

	id, msg := h.proposalID(w, r)
	if msg != "" {
		h.respondText(w, http.StatusBadRequest, msg)
		span.SetAttributes(attribute.Int("http.response.status_code", http.StatusBadRequest))
		return
	}
	span.SetAttributes(attribute.String("proposal.id", id.String()))

	body, err := fetch(r, id)
	if err != nil {
		status, msg := errorResponse(err)
		h.logger.Error("request failed",
			"route", route,
			"proposalId", id.String(),
			"status", status,
			"error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		h.respondText(w, status, msg)
		return
	}

	span.SetAttributes(attribute.Int("http.response.status_code", http.StatusOK))
	h.respondJSON(w, http.StatusOK, body)
}

// proposalID reads and validates the id parameter. It returns a client
// message when the id is missing or malformed.
func (h *Handler) proposalID(w http.ResponseWriter, r *http.Request) (entity.ProposalID, string) {
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	}
	raw := strings.TrimSpace(r.FormValue("id"))
	if raw == "" {
		return entity.ProposalID{}, msgMissingID
	}
	id, err := entity.ParseProposalID(raw)
	if err != nil {
		return entity.ProposalID{}, msgInvalidID
	}
	return id, ""
}

// errorResponse maps a service error to a status code and client message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidID
	case errors.Is(err, entity.ErrChainRead):
		return http.StatusBadGateway, msgChainFailure
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
