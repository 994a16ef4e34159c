package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/always-cache/shellcache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const adminPrefix = "/.shellcache"

type partitionsResponse struct {
	Precache   string   `json:"precache"`
	Runtime    string   `json:"runtime"`
	Partitions []string `json:"partitions"`
}

// newServer returns the handler for the serve command: request logging,
// the admin endpoints, and the engine for everything else.
func newServer(engine *shellcache.Engine, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))

	r.Route(adminPrefix, func(r chi.Router) {
		r.Get("/partitions", func(w http.ResponseWriter, r *http.Request) {
			names, err := engine.Partitions()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Could not list partitions")
				http.Error(w, "Could not list partitions", http.StatusInternalServerError)
				return
			}
			cfg := engine.Config()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(partitionsResponse{
				Precache:   cfg.PrecacheName(),
				Runtime:    cfg.RuntimeName(),
				Partitions: names,
			})
		})
		r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
			if err := engine.Sync(r.Context(), engine.Config().SyncTag); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("Sync failed")
				http.Error(w, "Sync failed", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/activate", func(w http.ResponseWriter, r *http.Request) {
			if err := engine.Start(r.Context()); err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Activation failed")
				http.Error(w, "Activation failed", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Handle("/*", engine)
	return r
}
