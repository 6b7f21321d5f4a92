// Package submit hands a triage record off to the external insurer
// endpoint. Submission is one-shot and idempotent: the record's sent flag
// guards re-delivery, and once set it never transitions back.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/seguravida/intake/internal/triage"
)

const httpTimeout = 15 * time.Second

// FailedError reports a submission that did not reach or was refused by
// the insurer endpoint. The record is unchanged; the operator may retry.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "submit: " + e.Reason
}

// NotFoundError reports that the record to submit does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("submit: no record with id %q", e.ID)
}

// Result is the outcome of a successful Submit call.
type Result struct {
	Record *triage.Record

	// AlreadySent means the record had been delivered before and no
	// network call was made.
	AlreadySent bool
}

// Gateway posts triage records to the insurer endpoint and commits the
// sent flag through the store.
type Gateway struct {
	endpoint string
	token    string
	client   *http.Client
	store    triage.Store
	logger   log.Logger
	metrics  *triage.Metrics
}

// New creates a Gateway for the given insurer endpoint. The bearer token
// is optional; an empty value sends unauthenticated requests.
func New(endpoint, token string, store triage.Store, logger log.Logger, metrics *triage.Metrics) *Gateway {
	if store == nil {
		panic(xerrors.New("triage store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = triage.NopMetrics()
	}
	return &Gateway{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: httpTimeout},
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// Submit delivers the record once. An already-sent record short-circuits
// to success without a network call. On remote acceptance the sent flag
// is committed through the store before Submit returns, so a crash
// between remote-accept and local-commit is the one acknowledged
// consistency gap.
func (g *Gateway) Submit(ctx context.Context, id string) (*Result, error) {
	rec, ok, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if rec.Sent {
		g.metrics.SubmissionsTotal.WithLabelValues("already_sent").Inc()
		return &Result{Record: rec, AlreadySent: true}, nil
	}

	if err := g.post(ctx, rec); err != nil {
		g.metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		g.logger.Warn(ctx, "submission failed, record unchanged",
			"record_id", id, "error", err)
		return nil, err
	}

	committed, ok, err := g.store.Update(ctx, id, func(r *triage.Record) error {
		r.Sent = true
		return nil
	})
	if err != nil {
		// remote accepted but the local commit failed: at-least-once from
		// the insurer's point of view, surfaced for the operator
		g.metrics.SubmissionsTotal.WithLabelValues("commit_failed").Inc()
		return nil, fmt.Errorf("record accepted by insurer but local commit failed: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	g.metrics.SubmissionsTotal.WithLabelValues("sent").Inc()
	g.logger.Info(ctx, "record submitted to insurer", "record_id", id)
	return &Result{Record: committed}, nil
}

func (g *Gateway) post(ctx context.Context, rec *triage.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &FailedError{Reason: fmt.Sprintf("marshal record: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return &FailedError{Reason: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return &FailedError{Reason: fmt.Sprintf("post record: %v", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FailedError{Reason: fmt.Sprintf("insurer responded %d", resp.StatusCode)}
	}
	return nil
}

// IsFailed reports whether err is a retryable submission failure.
func IsFailed(err error) bool {
	var fe *FailedError
	return errors.As(err, &fe)
}
