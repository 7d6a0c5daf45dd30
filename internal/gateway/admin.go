package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
)

// maxBodyBytes caps admin request bodies.
const maxBodyBytes = 1 << 20

// mutationResponse is the body of every state-changing endpoint.
type mutationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// moduleJSON describes one compiled module.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules (for /api/modules).
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult maps a memory.Result onto a mutation response:
// invalid input is 400, a missing row 404, a missing backend 503.
func writeResult(w http.ResponseWriter, res memory.Result) {
	if res.OK {
		writeJSON(w, http.StatusOK, mutationResponse{Success: true})
		return
	}
	writeJSON(w, resultStatus(res.Err), mutationResponse{Error: res.Message()})
}

func resultStatus(err error) int {
	switch {
	case errors.Is(err, memory.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a failed mutation response.
func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, mutationResponse{Error: err.Error()})
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown
// fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

// unavailable reports a dependency that was not wired at Start.
func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, mutationResponse{Error: what + " not available"})
}
