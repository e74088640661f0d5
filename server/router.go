package server

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router with the bot endpoint, tab pages and sign-in routes.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger, a.Config.Server.DevMode))
	r.Use(CORSMiddleware(a.Config.CORSOrigins(), DefaultCORSAllowedMethods, DefaultCORSAllowedHeaders))
	r.Use(SecurityHeadersMiddleware(a.Config.Server.TLS.HSTSMaxAge, a.Config.Tab.FrameAncestors))

	r.Post("/api/messages", a.handleMessages)
	r.Get("/ping", a.handlePing)
	r.Get("/healthz", a.handleHealthz)

	for _, page := range []string{"tab", "configure", "first", "second", "taskmodule", "youtube", "powerapps", "customform"} {
		r.Get("/"+page, a.pageHandler(page))
	}

	r.Get("/auth/start", a.handleAuthStart)
	r.Get("/auth/end", a.handleAuthEnd)

	if dir := a.Config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			a.Logger.Warn("static dir not found", "path", dir)
		}
	}

	return r
}
