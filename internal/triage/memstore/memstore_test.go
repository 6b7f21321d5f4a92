package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seguravida/intake/internal/triage"
)

func TestStore_AppendAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	r := &triage.Record{ID: "t-1", Subject: triage.Subject{Name: "Carlos", CardNumber: "00129384"}}
	if err := s.Append(ctx, r); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, ok, err := s.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if got.ID != "t-1" {
		t.Errorf("ID = %q, want %q", got.ID, "t-1")
	}
	if got.Subject.CardNumber != "00129384" {
		t.Errorf("CardNumber = %q, want %q", got.Subject.CardNumber, "00129384")
	}
}

func TestStore_AppendDuplicateID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Append(ctx, &triage.Record{ID: "t-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := s.Append(ctx, &triage.Record{ID: "t-1"})
	if !errors.Is(err, triage.ErrDuplicateID) {
		t.Errorf("Append duplicate = %v, want ErrDuplicateID", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_GetLatestByCard(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	// three records for the same card; latest means last appended,
	// regardless of the timestamp field
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		r := &triage.Record{
			ID:        fmt.Sprintf("t-%d", i),
			Timestamp: base.Add(-time.Duration(i) * time.Hour), // deliberately decreasing
			Subject:   triage.Subject{CardNumber: "00129384"},
		}
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := s.Append(ctx, &triage.Record{ID: "other", Subject: triage.Subject{CardNumber: "99999999"}}); err != nil {
		t.Fatalf("Append other: %v", err)
	}

	got, ok, err := s.GetLatestByCard(ctx, "00129384")
	if err != nil {
		t.Fatalf("GetLatestByCard: %v", err)
	}
	if !ok {
		t.Fatal("expected a record for the card")
	}
	if got.ID != "t-3" {
		t.Errorf("ID = %q, want %q (last appended)", got.ID, "t-3")
	}
}

func TestStore_GetLatestByCardMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.GetLatestByCard(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetLatestByCard: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown card")
	}
}

func TestStore_UpdateRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	r := &triage.Record{
		ID:      "t-1",
		Subject: triage.Subject{Name: "Ana", CardNumber: "00998877"},
		Vitals:  triage.Vitals{HeartRate: "75"},
		FlagDecisions: map[triage.Flag]triage.Decision{
			triage.FlagTachycardia: triage.DecisionAccepted,
		},
		Invoice: &triage.Invoice{Amount: 1250.50, Status: "pending", Flags: []string{"amount above plan"}},
	}
	if err := s.Append(ctx, r); err != nil {
		t.Fatalf("Append: %v", err)
	}

	updated, ok, err := s.Update(ctx, "t-1", func(rec *triage.Record) error {
		rec.Sent = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}
	if !updated.Sent {
		t.Error("Sent not set on returned record")
	}

	got, _, err := s.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// only the mutated field changed
	if !got.Sent {
		t.Error("Sent not persisted")
	}
	if got.Subject.Name != "Ana" {
		t.Errorf("Subject.Name = %q, want %q", got.Subject.Name, "Ana")
	}
	if got.Vitals.HeartRate != "75" {
		t.Errorf("HeartRate = %q, want %q", got.Vitals.HeartRate, "75")
	}
	if got.FlagDecisions[triage.FlagTachycardia] != triage.DecisionAccepted {
		t.Errorf("FlagDecisions = %v, want tachycardia accepted preserved", got.FlagDecisions)
	}
	if got.Invoice == nil || got.Invoice.Amount != 1250.50 || len(got.Invoice.Flags) != 1 {
		t.Errorf("Invoice = %+v, want preserved", got.Invoice)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Update(context.Background(), "nope", func(*triage.Record) error { return nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_UpdateMutateError(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Append(ctx, &triage.Record{ID: "t-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	boom := errors.New("boom")
	_, ok, err := s.Update(ctx, "t-1", func(rec *triage.Record) error {
		rec.Sent = true
		return boom
	})
	if !ok {
		t.Fatal("expected ok=true for existing record")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want mutate error", err)
	}

	got, _, _ := s.Get(ctx, "t-1")
	if got.Sent {
		t.Error("failed mutation was committed")
	}
}

func TestStore_ListOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := s.Append(ctx, &triage.Record{ID: fmt.Sprintf("t-%d", i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(List) = %d, want 3", len(got))
	}
	for i, r := range got {
		want := fmt.Sprintf("t-%d", i+1)
		if r.ID != want {
			t.Errorf("List[%d].ID = %q, want %q", i, r.ID, want)
		}
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Append(ctx, &triage.Record{ID: "t-1", Subject: triage.Subject{Name: "Carlos"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, _, _ := s.Get(ctx, "t-1")
	got.Subject.Name = "mutated"

	again, _, _ := s.Get(ctx, "t-1")
	if again.Subject.Name != "Carlos" {
		t.Errorf("stored record mutated through returned copy: %q", again.Subject.Name)
	}
}
