package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/seguravida/intake/internal/triage"
	"github.com/seguravida/intake/internal/triage/memstore"
)

func seedRecord(t *testing.T, store triage.Store, r *triage.Record) {
	t.Helper()
	if err := store.Append(context.Background(), r); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestSubmit_DeliversAndCommitsSent(t *testing.T) {
	t.Parallel()

	var (
		posts    atomic.Int64
		gotBody  []byte
		gotCType string
		gotAuth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		gotCType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memstore.New()
	seedRecord(t, store, &triage.Record{
		ID:      "t-1",
		Subject: triage.Subject{Name: "Carlos", CardNumber: "00129384"},
		Vitals:  triage.Vitals{HeartRate: "128", Pressure: "155/98"},
	})
	g := New(srv.URL, "insurer-token", store, nil, nil)

	res, err := g.Submit(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.AlreadySent {
		t.Error("AlreadySent = true on first delivery")
	}
	if !res.Record.Sent {
		t.Error("returned record not marked sent")
	}
	if got := posts.Load(); got != 1 {
		t.Errorf("posts = %d, want 1", got)
	}
	if gotCType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotCType)
	}
	if gotAuth != "Bearer insurer-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}

	// the full record is the payload
	var sent triage.Record
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("decode posted body: %v", err)
	}
	if sent.ID != "t-1" || sent.Subject.CardNumber != "00129384" || sent.Vitals.Pressure != "155/98" {
		t.Errorf("posted record = %+v, want full record", sent)
	}

	got, _, err := store.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Sent {
		t.Error("sent flag not committed to store")
	}
}

func TestSubmit_SecondCallShortCircuits(t *testing.T) {
	t.Parallel()

	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := memstore.New()
	seedRecord(t, store, &triage.Record{ID: "t-1"})
	g := New(srv.URL, "", store, nil, nil)
	ctx := context.Background()

	if _, err := g.Submit(ctx, "t-1"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	res, err := g.Submit(ctx, "t-1")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !res.AlreadySent {
		t.Error("AlreadySent = false on repeat submission")
	}
	if !res.Record.Sent {
		t.Error("repeat submission lost the sent flag")
	}
	if got := posts.Load(); got != 1 {
		t.Errorf("posts = %d, want exactly 1", got)
	}
}

func TestSubmit_RemoteRejectionLeavesRecordRetryable(t *testing.T) {
	t.Parallel()

	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memstore.New()
	seedRecord(t, store, &triage.Record{ID: "t-1"})
	g := New(srv.URL, "", store, nil, nil)
	ctx := context.Background()

	_, err := g.Submit(ctx, "t-1")
	if !IsFailed(err) {
		t.Fatalf("Submit = %v, want FailedError", err)
	}
	got, _, _ := store.Get(ctx, "t-1")
	if got.Sent {
		t.Fatal("failed submission marked the record sent")
	}

	// retry goes through
	res, err := g.Submit(ctx, "t-1")
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if res.AlreadySent || !res.Record.Sent {
		t.Errorf("retry result = %+v, want fresh successful delivery", res)
	}
	if gotPosts := posts.Load(); gotPosts != 2 {
		t.Errorf("posts = %d, want 2", gotPosts)
	}
}

func TestSubmit_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	store := memstore.New()
	seedRecord(t, store, &triage.Record{ID: "t-1"})
	g := New(srv.URL, "", store, nil, nil)

	_, err := g.Submit(context.Background(), "t-1")
	if !IsFailed(err) {
		t.Fatalf("Submit = %v, want FailedError", err)
	}
	got, _, _ := store.Get(context.Background(), "t-1")
	if got.Sent {
		t.Error("unreachable endpoint marked the record sent")
	}
}

func TestSubmit_NotFound(t *testing.T) {
	t.Parallel()

	g := New("http://insurer.invalid", "", memstore.New(), nil, nil)
	_, err := g.Submit(context.Background(), "nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Submit = %v, want *NotFoundError", err)
	}
	if IsFailed(err) {
		t.Error("NotFoundError must not read as retryable failure")
	}
}

func TestSubmit_NoAuthHeaderWithoutToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memstore.New()
	seedRecord(t, store, &triage.Record{ID: "t-1"})
	g := New(srv.URL, "", store, nil, nil)

	if _, err := g.Submit(context.Background(), "t-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want unset", gotAuth)
	}
}
