package intakeapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seguravida/intake/internal/triage"
)

type decisionRequest struct {
	Decision triage.Decision `json:"decision"`
}

type decideResponse struct {
	recordPayload
	Applied bool `json:"applied"`
}

func (a *API) handleDecide(w http.ResponseWriter, r *http.Request) {
	if a.reviewer == nil {
		http.Error(w, `{"error":"review not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	flag := triage.Flag(chi.URLParam(r, "flag"))
	spanRecordID(r, id)

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	res, err := a.reviewer.Decide(r.Context(), id, flag, req.Decision)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, decideResponse{
		recordPayload: recordPayload{Record: res.Record, Flags: res.Flags.Sorted()},
		Applied:       res.Applied,
	})
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if a.reviewer == nil {
		http.Error(w, `{"error":"review not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	spanRecordID(r, id)

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	view, err := a.reviewer.Finalize(r.Context(), id, req.Decision)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordPayload{Record: view.Record, Flags: view.Flags.Sorted()})
}

type submitResponse struct {
	recordPayload
	AlreadySent bool `json:"already_sent"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if a.gateway == nil {
		http.Error(w, `{"error":"submission not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	spanRecordID(r, id)

	res, err := a.gateway.Submit(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		recordPayload: newRecordPayload(res.Record),
		AlreadySent:   res.AlreadySent,
	})
}
