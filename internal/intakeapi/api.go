// Package intakeapi exposes the intake pipeline over HTTP for the
// front-desk UI: vitals capture, record lookup (by id and by card, the
// deep-link contract), review decisions, and insurer submission.
package intakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/seguravida/intake/internal/review"
	"github.com/seguravida/intake/internal/submit"
	"github.com/seguravida/intake/internal/triage"
	"github.com/seguravida/intake/internal/verify"
)

// IntakeService defines the capture/lookup operations the API needs.
type IntakeService interface {
	Capture(ctx context.Context, subject triage.Subject, vitals triage.Vitals) (*triage.CaptureResult, error)
	Get(ctx context.Context, id string) (*triage.Record, bool, error)
	GetLatestByCard(ctx context.Context, card string) (*triage.Record, bool, error)
	List(ctx context.Context) ([]*triage.Record, error)
	CommonFlags(ctx context.Context) ([]triage.Flag, error)
}

// ReviewService defines the back-office review operations.
type ReviewService interface {
	Open(ctx context.Context, ref review.OpenRef) (*review.View, error)
	Decide(ctx context.Context, id string, flag triage.Flag, decision triage.Decision) (*review.DecideResult, error)
	Finalize(ctx context.Context, id string, decision triage.Decision) (*review.View, error)
}

// SubmitService defines the insurer handoff operation.
type SubmitService interface {
	Submit(ctx context.Context, id string) (*submit.Result, error)
}

// Verifier defines the identity verification proxy.
type Verifier interface {
	Verify(ctx context.Context, vr verify.Request) (*verify.Outcome, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	intake   IntakeService
	reviewer ReviewService
	gateway  SubmitService
	verifier Verifier

	// auth guards the mutating review/submit routes; nil leaves them open.
	auth func(http.Handler) http.Handler
}

// New creates a new API handler. Reviewer, gateway, and verifier are
// optional; their routes respond 503 when absent.
func New(logger log.Logger, intake IntakeService, reviewer ReviewService, gateway SubmitService, verifier Verifier, auth func(http.Handler) http.Handler) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if intake == nil {
		panic(xerrors.New("intake service is required"))
	}
	return &API{
		logger:   logger,
		intake:   intake,
		reviewer: reviewer,
		gateway:  gateway,
		verifier: verifier,
		auth:     auth,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleCapture)
		r.Get("/triage", a.handleList)
		r.Get("/triage/latest", a.handleLatest)
		r.Get("/triage/{id}", a.handleGet)
		r.Get("/flags/common", a.handleCommonFlags)
		r.Post("/verify", a.handleVerify)

		r.Group(func(r chi.Router) {
			if a.auth != nil {
				r.Use(a.auth)
			}
			r.Post("/triage/{id}/flags/{flag}", a.handleDecide)
			r.Post("/triage/{id}/decision", a.handleFinalize)
			r.Post("/triage/{id}/submit", a.handleSubmit)
		})
	})
}

// recordPayload is a record plus its freshly derived flags. Flags are
// always recomputed from vitals at response time, never read from the
// store.
type recordPayload struct {
	*triage.Record
	Flags []triage.Flag `json:"flags"`
}

func newRecordPayload(r *triage.Record) recordPayload {
	return recordPayload{Record: r, Flags: triage.Evaluate(r.Vitals).Sorted()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses: review/submit misses
// are 404 empty states, invalid decisions 400, insurer failures 502, and
// anything else a 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reviewNF *review.NotFoundError
		submitNF *submit.NotFoundError
	)
	switch {
	case errors.As(err, &reviewNF), errors.As(err, &submitNF):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, review.ErrInvalidDecision):
		http.Error(w, `{"error":"decision must be accepted or rejected"}`, http.StatusBadRequest)
	case submit.IsFailed(err):
		a.logger.Warn(r.Context(), "insurer submission failed", "error", err)
		http.Error(w, `{"error":"submission failed"}`, http.StatusBadGateway)
	default:
		a.logger.Error(r.Context(), err, "request failed",
			"path", r.URL.Path)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func spanRecordID(r *http.Request, id string) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("intake.record.id", id))
}
