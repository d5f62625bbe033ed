package consent

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type stateResponse struct {
	State       State `json:"state"`
	Initialized bool  `json:"initialized"`
}

type stateRequest struct {
	State string `json:"state"`
}

// Routes returns a router serving the decision held in store:
//
//	GET  /   current decision
//	POST /   {"state":"granted"} records a decision, sets the cookie and applies it
func Routes(m *Manager, store *MemoryStore, cookieName string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		state, err := store.Load(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{State: state, Initialized: m.Initialized()})
	})

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var req stateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		state, err := ParseState(req.State)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.Save(r.Context(), state); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, NewCookie(cookieName, state))

		if err := m.InitializePostHogConsent(r.Context()); err != nil {
			logger.Error("failed to apply PostHog consent", "error", err)
		}
		writeJSON(w, http.StatusOK, stateResponse{State: state, Initialized: m.Initialized()})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
