package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expo-kiosk-service/internal/kiosk"
)

// Kiosk is what the HTTP API needs from the interaction loop.
type Kiosk interface {
	Status() kiosk.Status
	RestartVoice()
}

// Deps groups the handlers the router serves.
type Deps struct {
	Kiosk  Kiosk
	Ready  func() bool
	Voice  http.Handler // panel websocket
	Panels func() bool  // reports whether a panel is connected
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("detector not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			resp := struct {
				kiosk.Status
				PanelConnected bool `json:"panelConnected"`
			}{Status: deps.Kiosk.Status()}
			if deps.Panels != nil {
				resp.PanelConnected = deps.Panels()
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/voice/restart", func(w http.ResponseWriter, _ *http.Request) {
			deps.Kiosk.RestartVoice()
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":      "restarting",
				"requestedAt": time.Now().UTC().Format(time.RFC3339),
			})
		})

		if deps.Voice != nil {
			r.Handle("/voice/ws", deps.Voice)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
