package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// CaptureResult is the outcome of capturing a vitals event.
type CaptureResult struct {
	Record *Record
	Flags  FlagSet
}

// Notifier receives flagged captures. A nil Notifier disables
// notifications.
type Notifier interface {
	Send(ctx context.Context, rec *Record, flags []Flag) error
}

// Service is the business boundary for intake operations.
type Service struct {
	store    Store
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new intake service. The notifier is optional.
func NewService(store Store, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Service{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Capture creates and persists a new triage record for the given subject
// and vitals. Records start unsent with no decisions; the returned flags
// are derived for immediate display and are not stored.
func (s *Service) Capture(ctx context.Context, subject Subject, vitals Vitals) (*CaptureResult, error) {
	rec := &Record{
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Vitals:    vitals,
	}

	start := time.Now()
	if err := s.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append record: %w", err)
	}
	s.metrics.StoreWriteDuration.WithLabelValues("append").Observe(time.Since(start).Seconds())
	s.metrics.CapturesTotal.Inc()

	flags := Evaluate(rec.Vitals)
	for f := range flags {
		s.metrics.FlagsDerivedTotal.WithLabelValues(string(f)).Inc()
	}

	s.logger.Info(ctx, "captured triage record",
		"record_id", rec.ID,
		"card", subject.CardNumber,
		"flags", len(flags),
	)

	// notification failures never fail the capture
	if s.notifier != nil && len(flags) > 0 {
		if err := s.notifier.Send(ctx, rec, flags.Sorted()); err != nil {
			s.logger.Warn(ctx, "flagged capture notification failed",
				"record_id", rec.ID, "error", err)
		}
	}

	return &CaptureResult{Record: rec, Flags: flags}, nil
}

// Get retrieves a record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, bool, error) {
	return s.store.Get(ctx, id)
}

// GetLatestByCard retrieves the most recently appended record for an
// insurance card number.
func (s *Service) GetLatestByCard(ctx context.Context, card string) (*Record, bool, error) {
	return s.store.GetLatestByCard(ctx, card)
}

// List returns all records in append order.
func (s *Service) List(ctx context.Context) ([]*Record, error) {
	return s.store.List(ctx)
}

// CommonFlags derives the flags occurring in more than one stored record.
func (s *Service) CommonFlags(ctx context.Context) ([]Flag, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return CommonFlags(records), nil
}
