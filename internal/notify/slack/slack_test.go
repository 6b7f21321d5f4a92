package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seguravida/intake/internal/triage"
)

func flaggedRecord() *triage.Record {
	return &triage.Record{
		ID:        "01JN123",
		Timestamp: time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC),
		Subject:   triage.Subject{Name: "Carlos Mendes", CardNumber: "00129384"},
		Vitals:    triage.Vitals{HeartRate: "128", Pressure: "155/98"},
	}
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	flags := []triage.Flag{triage.FlagHypertension, triage.FlagTachycardia}

	if err := n.Send(context.Background(), flaggedRecord(), flags); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, context = 5 blocks
	if len(blocks) != 5 {
		t.Errorf("blocks count = %d, want 5", len(blocks))
	}

	header, _ := blocks[0].(map[string]any)
	headerText, _ := header["text"].(map[string]any)
	if text, _ := headerText["text"].(string); !strings.Contains(text, "Carlos Mendes") {
		t.Errorf("header = %q, want subject name", text)
	}

	raw, _ := json.Marshal(got)
	payload := string(raw)
	for _, want := range []string{"hypertension", "tachycardia", "00129384", "155/98", "01JN123"} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestSend_NoWebhookIsNoOp(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Send(context.Background(), flaggedRecord(), []triage.Flag{triage.FlagTachycardia}); err != nil {
		t.Fatalf("Send with empty webhook: %v", err)
	}
}

func TestSend_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Send(context.Background(), flaggedRecord(), []triage.Flag{triage.FlagTachycardia})
	if err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status code included", err)
	}
}

func TestSend_BlankVitalsRenderPlaceholder(t *testing.T) {
	t.Parallel()

	var payload string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		raw, _ := json.Marshal(m)
		payload = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := flaggedRecord()
	rec.Vitals.Pressure = "  "
	n := New(srv.URL)
	if err := n.Send(context.Background(), rec, []triage.Flag{triage.FlagTachycardia}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(payload, "n/a") {
		t.Error("blank pressure not rendered as n/a")
	}
}
