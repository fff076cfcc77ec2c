package api

import (
	"net/http"
	"time"

	gorilla "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handlers) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.HandleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	rec := r.PathPrefix("/recording").Subrouter()
	rec.HandleFunc("/start", h.HandleStart).Methods(http.MethodPost)
	rec.HandleFunc("/stop", h.HandleStop).Methods(http.MethodPost)
	rec.HandleFunc("/status/{sessionID}", h.HandleStatus).Methods(http.MethodGet)
	rec.HandleFunc("/sessions/{sessionID}", h.HandlePurge).Methods(http.MethodDelete)
	rec.HandleFunc("/sessions/{sessionID}/events", h.HandleEvents).Methods(http.MethodGet)

	r.HandleFunc("/ws/events", h.HandleEventsWS).Methods(http.MethodGet)

	return gorilla.RecoveryHandler()(logMiddleware(h.log, r))
}

func logMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request")
	})
}
