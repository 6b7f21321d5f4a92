package intakeapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seguravida/intake/internal/triage"
)

type captureRequest struct {
	Subject triage.Subject `json:"subject"`
	Vitals  triage.Vitals  `json:"vitals"`
}

func (a *API) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	// vitals are blank-tolerant, but a record without a card number can
	// never be found again through the review lookups
	if req.Subject.CardNumber == "" {
		http.Error(w, `{"error":"subject card_number is required"}`, http.StatusBadRequest)
		return
	}

	res, err := a.intake.Capture(r.Context(), req.Subject, req.Vitals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	spanRecordID(r, res.Record.ID)
	writeJSON(w, http.StatusCreated, recordPayload{Record: res.Record, Flags: res.Flags.Sorted()})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	spanRecordID(r, id)

	rec, ok, err := a.intake.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRecordPayload(rec))
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	card := r.URL.Query().Get("card")
	if card == "" {
		http.Error(w, `{"error":"card query parameter is required"}`, http.StatusBadRequest)
		return
	}

	rec, ok, err := a.intake.GetLatestByCard(r.Context(), card)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRecordPayload(rec))
}

type listResponse struct {
	Records []recordPayload `json:"records"`

	// Open echoes the record named by the ?open= deep-link parameter when
	// it resolves; the panel shows it expanded.
	Open *recordPayload `json:"open,omitempty"`
}

// handleList serves the review panel. ?card= narrows to one subject's
// records (the ?filter= deep-link), ?open=<id> resolves one record for
// immediate display. An unresolvable open id is ignored, not an error.
func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := a.intake.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	card := r.URL.Query().Get("card")
	resp := listResponse{Records: make([]recordPayload, 0, len(records))}
	for _, rec := range records {
		if card != "" && rec.Subject.CardNumber != card {
			continue
		}
		resp.Records = append(resp.Records, newRecordPayload(rec))
	}

	if openID := r.URL.Query().Get("open"); openID != "" {
		if rec, ok, err := a.intake.Get(r.Context(), openID); err == nil && ok {
			p := newRecordPayload(rec)
			resp.Open = &p
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type commonFlagsResponse struct {
	Flags []triage.Flag `json:"flags"`
}

func (a *API) handleCommonFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := a.intake.CommonFlags(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if flags == nil {
		flags = []triage.Flag{}
	}
	writeJSON(w, http.StatusOK, commonFlagsResponse{Flags: flags})
}
