package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/hub"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.Stats()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string    `json:"status"`
			Stats  hub.Stats `json:"stats"`
		}{"ok", stats})
	}
}

func ListTournaments(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.Tournaments()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetTournament serves the live tournament, falling back to the last
// persisted snapshot.
func GetTournament(h *hub.Hub, st store.SnapshotStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		state, ok, err := h.Tournament(code)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if ok {
			writeJSON(w, http.StatusOK, state)
			return
		}
		rec, err := st.GetTournament(r.Context(), code)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "tournament not found")
		case err != nil:
			log.Error("load tournament", zap.String("code", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load tournament")
		default:
			writeJSON(w, http.StatusOK, rec.State)
		}
	}
}

// GetMatch serves a live room view, or the persisted record once the room
// has been torn down.
func GetMatch(h *hub.Hub, st store.SnapshotStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		view, ok, err := h.Match(id)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if ok {
			writeJSON(w, http.StatusOK, view)
			return
		}
		rec, err := st.GetMatch(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "match not found")
		case err != nil:
			log.Error("load match", zap.String("match", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load match")
		default:
			writeJSON(w, http.StatusOK, rec)
		}
	}
}
