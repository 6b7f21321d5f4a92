// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seguravida/intake/internal/triage"
)

var tracer = otel.Tracer("github.com/seguravida/intake/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage records in PostgreSQL. Append order is preserved
// by a sequence column, so latest-by-card lookups do not depend on the
// record timestamp.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, created_at, subject_name, photo_ref, card_number, national_id,
	vitals, sent, flag_decisions, manager_decision, decision_log, invoice`

// Append inserts a new record. A primary key conflict maps to
// triage.ErrDuplicateID.
func (s *Store) Append(ctx context.Context, r *triage.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	vitals, decisions, decisionLog, invoice, err := marshalRecord(r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	query := `INSERT INTO triage_records (
		id, created_at, subject_name, photo_ref, card_number, national_id,
		vitals, sent, flag_decisions, manager_decision, decision_log, invoice
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.Timestamp, r.Subject.Name, r.Subject.PhotoRef, r.Subject.CardNumber, r.Subject.NationalID,
		vitals, r.Sent, decisions, string(r.ManagerDecision), decisionLog, invoice,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return triage.ErrDuplicateID
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// GetLatestByCard retrieves the last-appended record for a card number.
func (s *Store) GetLatestByCard(ctx context.Context, card string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetLatestByCard", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE card_number = $1 ORDER BY seq DESC LIMIT 1`
	r, err := scanRecord(s.pool.QueryRow(ctx, query, card))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Update runs the read-modify-write inside a transaction with the row
// locked, so a single caller's mutation commits without interleaving.
func (s *Store) Update(ctx context.Context, id string, mutate func(*triage.Record) error) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	query := `SELECT ` + recordColumns + ` FROM triage_records WHERE id = $1 FOR UPDATE`
	r, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}

	if err := mutate(r); err != nil {
		return nil, true, err
	}

	vitals, decisions, decisionLog, invoice, err := marshalRecord(r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, true, err
	}

	update := `UPDATE triage_records SET
		created_at = $2, subject_name = $3, photo_ref = $4, card_number = $5, national_id = $6,
		vitals = $7, sent = $8, flag_decisions = $9, manager_decision = $10, decision_log = $11, invoice = $12
	WHERE id = $1`

	if _, err := tx.Exec(ctx, update,
		r.ID, r.Timestamp, r.Subject.Name, r.Subject.PhotoRef, r.Subject.CardNumber, r.Subject.NationalID,
		vitals, r.Sent, decisions, string(r.ManagerDecision), decisionLog, invoice,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, true, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, true, fmt.Errorf("commit: %w", err)
	}
	return r, true, nil
}

// List returns all records in append order.
func (s *Store) List(ctx context.Context) ([]*triage.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM triage_records ORDER BY seq ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*triage.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func marshalRecord(r *triage.Record) (vitals, decisions, decisionLog, invoice []byte, err error) {
	if vitals, err = json.Marshal(r.Vitals); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal vitals: %w", err)
	}
	fd := r.FlagDecisions
	if fd == nil {
		fd = map[triage.Flag]triage.Decision{}
	}
	if decisions, err = json.Marshal(fd); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal flag decisions: %w", err)
	}
	dl := r.DecisionLog
	if dl == nil {
		dl = []triage.DecisionEvent{}
	}
	if decisionLog, err = json.Marshal(dl); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal decision log: %w", err)
	}
	if r.Invoice != nil {
		if invoice, err = json.Marshal(r.Invoice); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal invoice: %w", err)
		}
	}
	return vitals, decisions, decisionLog, invoice, nil
}

func scanRecord(row pgx.Row) (*triage.Record, error) {
	var (
		r               triage.Record
		vitals          []byte
		decisions       []byte
		managerDecision string
		decisionLog     []byte
		invoice         []byte
	)

	err := row.Scan(
		&r.ID, &r.Timestamp, &r.Subject.Name, &r.Subject.PhotoRef, &r.Subject.CardNumber, &r.Subject.NationalID,
		&vitals, &r.Sent, &decisions, &managerDecision, &decisionLog, &invoice,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if err := json.Unmarshal(vitals, &r.Vitals); err != nil {
		return nil, fmt.Errorf("decode vitals: %w", err)
	}
	if err := json.Unmarshal(decisions, &r.FlagDecisions); err != nil {
		return nil, fmt.Errorf("decode flag decisions: %w", err)
	}
	if len(r.FlagDecisions) == 0 {
		r.FlagDecisions = nil
	}
	r.ManagerDecision = triage.Decision(managerDecision)
	if err := json.Unmarshal(decisionLog, &r.DecisionLog); err != nil {
		return nil, fmt.Errorf("decode decision log: %w", err)
	}
	if len(r.DecisionLog) == 0 {
		r.DecisionLog = nil
	}
	if len(invoice) > 0 {
		r.Invoice = &triage.Invoice{}
		if err := json.Unmarshal(invoice, r.Invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
	}
	return &r, nil
}
