package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/laywatch/history"
	"github.com/hazyhaar/laywatch/layout"
)

// API is the read-only status surface over a running Monitor.
type API struct {
	monitor *Monitor
	hist    *history.Log // nil: history endpoints return 404
}

// NewAPI creates the status API for m.
func NewAPI(m *Monitor, hist *history.Log) *API {
	return &API{monitor: m, hist: hist}
}

// Router builds the HTTP routes.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/v1/stats", a.handleStats)
	r.Get("/v1/layouts", a.handleLayouts)
	r.Get("/v1/snapshots", a.handleSnapshots)
	r.Get("/v1/history", a.handleHistory)
	r.Get("/v1/history/{id}/removals", a.handleRemovals)
	return r
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.Stats())
}

// handleLayouts re-reads the latest snapshot rather than caching the last
// cycle's mapping, so the answer always matches what is on disk.
func (a *API) handleLayouts(w http.ResponseWriter, r *http.Request) {
	store := a.monitor.Store()
	latest, err := store.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if latest == "" {
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": "", "layouts": []layout.Entry{}})
		return
	}
	_, mapping, err := store.Read(r.Context(), latest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": latest,
		"layouts":  mapping.Entries(),
	})
}

func (a *API) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	paths, err := a.monitor.Store().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": paths})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.hist == nil {
		http.NotFound(w, r)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := a.hist.RecentCycles(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": recs})
}

func (a *API) handleRemovals(w http.ResponseWriter, r *http.Request) {
	if a.hist == nil {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	removals, err := a.hist.Removals(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if removals == nil {
		removals = []history.Removal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removals": removals})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
