// Package review implements the back-office consultation review workflow:
// loading a captured triage record, re-deriving its flags, and recording
// reviewer decisions. Every decision commits through the store
// immediately; there is no draft state.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/seguravida/intake/internal/triage"
)

// ErrInvalidDecision is returned when a decision value is neither
// "accepted" nor "rejected".
var ErrInvalidDecision = errors.New("review: invalid decision")

// errFlagNotDerived aborts an Update without writing when the target flag
// is not in the record's current derived set.
var errFlagNotDerived = errors.New("review: flag not derived")

// NotFoundError reports that no record resolved for an Open reference.
// Callers surface it as an empty state, never as a fatal failure.
type NotFoundError struct {
	Ref OpenRef
}

func (e *NotFoundError) Error() string {
	if e.Ref.ID != "" {
		return fmt.Sprintf("review: no record with id %q", e.Ref.ID)
	}
	return fmt.Sprintf("review: no record for card %q", e.Ref.Card)
}

// OpenRef identifies the record to open: by ID when set, otherwise by the
// most recent capture for the card number. This mirrors the deep-link
// contract (?open=<id>, ?filter=<card>) of the review panel.
type OpenRef struct {
	ID   string
	Card string
}

// View is a record together with its freshly derived flags. Flags are
// recomputed on every load so they stay consistent when thresholds change.
type View struct {
	Record *triage.Record
	Flags  triage.FlagSet
}

// DecideResult is the outcome of a per-flag decision. Applied is false
// when the flag was not in the derived set and the record was left
// untouched.
type DecideResult struct {
	Record  *triage.Record
	Flags   triage.FlagSet
	Applied bool
}

// Reviewer is the stateful session boundary for consultation review.
type Reviewer struct {
	store   triage.Store
	logger  log.Logger
	metrics *triage.Metrics
	now     func() time.Time
}

// NewReviewer creates a new Reviewer backed by the given store.
func NewReviewer(store triage.Store, logger log.Logger, metrics *triage.Metrics) *Reviewer {
	if store == nil {
		panic(xerrors.New("triage store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = triage.NopMetrics()
	}
	return &Reviewer{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Open loads a record by ID if the reference carries one, falling back to
// the latest capture for the card number. A miss on both returns
// *NotFoundError.
func (rv *Reviewer) Open(ctx context.Context, ref OpenRef) (*View, error) {
	var (
		rec *triage.Record
		ok  bool
		err error
	)
	switch {
	case ref.ID != "":
		rec, ok, err = rv.store.Get(ctx, ref.ID)
	case ref.Card != "":
		rec, ok, err = rv.store.GetLatestByCard(ctx, ref.Card)
	default:
		return nil, &NotFoundError{Ref: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{Ref: ref}
	}
	return &View{Record: rec, Flags: triage.Evaluate(rec.Vitals)}, nil
}

// Decide records an accept/reject verdict for one derived flag. The flag
// must be in the record's current derived set; a decision on any other
// flag is a no-op, tolerating derived-set changes between loads. The
// write commits through the store before Decide returns.
func (rv *Reviewer) Decide(ctx context.Context, id string, flag triage.Flag, decision triage.Decision) (*DecideResult, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}

	at := rv.now().UTC()
	rec, ok, err := rv.store.Update(ctx, id, func(r *triage.Record) error {
		if !triage.Evaluate(r.Vitals).Has(flag) {
			return errFlagNotDerived
		}
		if r.FlagDecisions == nil {
			r.FlagDecisions = make(map[triage.Flag]triage.Decision)
		}
		r.FlagDecisions[flag] = decision
		r.DecisionLog = append(r.DecisionLog, triage.DecisionEvent{At: at, Flag: flag, Decision: decision})
		return nil
	})
	if err != nil && !errors.Is(err, errFlagNotDerived) {
		return nil, fmt.Errorf("commit flag decision: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{Ref: OpenRef{ID: id}}
	}
	if errors.Is(err, errFlagNotDerived) {
		cur, found, gerr := rv.store.Get(ctx, id)
		if gerr != nil {
			return nil, fmt.Errorf("reload record: %w", gerr)
		}
		if !found {
			return nil, &NotFoundError{Ref: OpenRef{ID: id}}
		}
		rv.logger.Info(ctx, "flag decision skipped, flag not derived",
			"record_id", id, "flag", flag)
		return &DecideResult{Record: cur, Flags: triage.Evaluate(cur.Vitals)}, nil
	}

	rv.metrics.FlagDecisionsTotal.WithLabelValues(string(flag), string(decision)).Inc()
	rv.logger.Info(ctx, "flag decision recorded",
		"record_id", id, "flag", flag, "decision", decision)

	return &DecideResult{Record: rec, Flags: triage.Evaluate(rec.Vitals), Applied: true}, nil
}

// Finalize sets the whole-record manager decision. Unresolved flags do
// not block finalization; a reviewer may override them. Re-finalizing is
// allowed and overwrites the verdict, but every decision stays in the
// append-only log.
func (rv *Reviewer) Finalize(ctx context.Context, id string, decision triage.Decision) (*View, error) {
	if !decision.Valid() {
		return nil, ErrInvalidDecision
	}

	at := rv.now().UTC()
	rec, ok, err := rv.store.Update(ctx, id, func(r *triage.Record) error {
		r.ManagerDecision = decision
		r.DecisionLog = append(r.DecisionLog, triage.DecisionEvent{At: at, Decision: decision})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit manager decision: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{Ref: OpenRef{ID: id}}
	}

	rv.metrics.FinalizationsTotal.WithLabelValues(string(decision)).Inc()
	rv.logger.Info(ctx, "consultation finalized",
		"record_id", id, "decision", decision)

	return &View{Record: rec, Flags: triage.Evaluate(rec.Vitals)}, nil
}
