package api

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/ethpandaops/perfstor/pkg/api/store"
)

// maxRequestBodySize caps JSON request bodies.
const maxRequestBodySize = 1 << 20

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateRunAPI persists a run posted as JSON and echoes it back with
// its assigned id. A body carrying an id of an existing run replaces it.
func (s *server) handleCreateRunAPI(w http.ResponseWriter, r *http.Request) {
	var run store.Run

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&run); err != nil || uint64(run.ID) > math.MaxInt64 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := s.store.Runs().Save(r.Context(), &run); err != nil {
		s.log.WithError(err).Error("Failed to save run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	s.log.WithField("id", run.ID).
		WithField("test_name", run.TestName).
		Debug("Run saved via API")

	writeJSON(w, http.StatusOK, run)
}
