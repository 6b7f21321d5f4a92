package intakeapi

import (
	"encoding/json"
	"net/http"

	"github.com/seguravida/intake/internal/verify"
)

// handleVerify proxies the identity check to the external face-match
// service so the browser UI never talks to it directly.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if a.verifier == nil {
		http.Error(w, `{"error":"verification not available"}`, http.StatusServiceUnavailable)
		return
	}

	var req verify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.CardNumber == "" {
		http.Error(w, `{"error":"card_number is required"}`, http.StatusBadRequest)
		return
	}

	outcome, err := a.verifier.Verify(r.Context(), req)
	if err != nil {
		a.logger.Warn(r.Context(), "verification call failed", "error", err)
		http.Error(w, `{"error":"verification failed"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}
