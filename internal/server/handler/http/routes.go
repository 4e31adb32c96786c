package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/middleware"
)

// NewRouter constructs the daemon's HTTP handler.
//
// Parameters:
//
//	keysHandler  - handler for the key management API
//	dataHandler  - handler serving raw data directory files
//	logger       - structured logger for request logging middleware
//	webDir       - directory with the static web UI; empty disables it
//
// Routes:
//
//	GET  /data/{name}   → dataHandler.Serve
//	POST /api/add       → keysHandler.Add
//	POST /api/remove    → keysHandler.Remove
//	POST /api/use       → keysHandler.Use
//	POST /api/refresh   → keysHandler.Refresh
//	GET  /api/status    → keysHandler.Status
//	GET  /api/history   → keysHandler.History
//	GET  /*             → static web UI (when webDir is set)
//
// Middleware chain (applied in order):
//  1. Recoverer               - turns handler panics into 500
//  2. WithRequestLogging      - logs every request
//  3. LoopbackOnly            - rejects non-local peers
func NewRouter(
	keysHandler *KeysHandler,
	dataHandler *DataHandler,
	logger *zap.Logger,
	webDir string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.LoopbackOnly)

	r.Get("/data/{name}", dataHandler.Serve)

	r.Route("/api", func(r chi.Router) {
		r.Post("/add", keysHandler.Add)
		r.Post("/remove", keysHandler.Remove)
		r.Post("/use", keysHandler.Use)
		r.Post("/refresh", keysHandler.Refresh)
		r.Get("/status", keysHandler.Status)
		r.Get("/history", keysHandler.History)
	})

	if webDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(webDir)))
	}

	return r
}
