// Package web exposes the admin HTTP API used in daemon mode.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/winspan/blocksync/internal/runner"
	"github.com/winspan/blocksync/internal/storage"
)

type Api struct {
	runner  *runner.Runner
	history *storage.History // nil when history is disabled
	token   string
}

// BindRoutes attaches the admin API to r. history may be nil.
func BindRoutes(r *chi.Mux, rn *runner.Runner, history *storage.History, token string) {
	api := &Api{runner: rn, history: history, token: token}

	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(60*time.Second))

	r.Get("/api/health", api.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(api.auth)
		pr.Get("/api/status", api.status)
		pr.Get("/api/sources", api.sources)
		pr.Post("/api/run", api.runNow)
		pr.Get("/api/history", api.historyRuns)
		pr.Get("/api/history/{id}/domains", api.historyDomains)
	})
}

func (a *Api) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// empty token disables auth
		if a.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") || strings.TrimPrefix(h, "Bearer ") != a.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"ok": true})
}

func (a *Api) status(w http.ResponseWriter, r *http.Request) {
	last := a.runner.LastSummary()
	if last == nil {
		writeJSON(w, map[string]any{"ran": false})
		return
	}
	writeJSON(w, map[string]any{"ran": true, "last_run": last})
}

func (a *Api) sources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.runner.SourceStatuses())
}

func (a *Api) runNow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := a.runner.RunOnce(ctx)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
	writeJSON(w, summary)
}

func (a *Api) historyRuns(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.history.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (a *Api) historyDomains(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad run id", http.StatusBadRequest)
		return
	}

	blocked, err := a.history.BlockedDomains(id, r.URL.Query().Get("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, blocked)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
