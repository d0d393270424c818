package peer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/shittim/core/logx"
	"github.com/gaspardpetit/shittim/internal/hostsdk"
)

const maxBody = 1 << 20

// ServerOptions configures the HTTP surface of a Peer.
type ServerOptions struct {
	AllowedOrigins []string
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// MiddlewareChain returns the middleware applied to every route.
func MiddlewareChain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		requestLogger,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		logx.Log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

// NewServer builds the peer HTTP handler.
func NewServer(p *Peer, opts ServerOptions) http.Handler {
	r := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range MiddlewareChain() {
		r.Use(m)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if p.Draining() {
			status = "draining"
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "sdkConnections": p.Connections()})
	})
	r.Route("/api", func(ar chi.Router) {
		ar.Use(p.refuseWhileDraining, p.inflight.Middleware)
		ar.Post("/{action}", p.handleAction)
	})
	r.Get(hostsdk.Path, p.ServeSDK)
	r.Post("/dev/events/{name}", p.handleEmit)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (p *Peer) refuseWhileDraining(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.Draining() {
			writeError(w, http.StatusServiceUnavailable, "peer is draining")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Peer) handleAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	out, err := p.Handle(r.Context(), action, body)
	switch {
	case errors.Is(err, ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBadPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		p.log.Error().Err(err).Str("action", action).Msg("action failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

// handleEmit pushes the request body as an event, for driving a companion
// by hand during development.
func (p *Peer) handleEmit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body is not JSON")
		return
	}
	n, err := p.Emit(name, json.RawMessage(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "delivered": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
