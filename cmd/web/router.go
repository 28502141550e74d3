package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/crucial707/memberportal/internal/auth"
	"github.com/crucial707/memberportal/internal/config"
	"github.com/crucial707/memberportal/internal/handlers"
	"github.com/crucial707/memberportal/internal/middleware"
	"github.com/crucial707/memberportal/internal/render"
	"github.com/crucial707/memberportal/internal/repo"
	"github.com/crucial707/memberportal/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 15 * time.Second

// newRouter wires every route of the portal. db backs the credential store and
// store holds sessions.
func newRouter(db *sql.DB, store handlers.SessionStore, cfg config.Config) (chi.Router, error) {
	renderer, err := render.New()
	if err != nil {
		return nil, err
	}

	authHandler := &handlers.AuthHandler{
		Users:      repo.NewUserRepo(db),
		Hasher:     auth.NewBcryptHasher(cfg.BcryptCost),
		Sessions:   store,
		CookieName: cfg.SessionCookieName,
		SessionTTL: session.DefaultTTL,
		Renderer:   renderer,
	}
	pages := &handlers.PageHandler{
		Sessions:   store,
		CookieName: cfg.SessionCookieName,
		Renderer:   renderer,
		PublicDir:  cfg.PublicDir,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.IsProd()))
	r.Use(chimw.Timeout(requestTimeout))

	// Operational
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public
	r.Get("/", pages.Home)
	r.Get("/logout", authHandler.Logout)
	r.Get("/signup", pages.Signup)
	r.Get("/login", pages.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBytes(middleware.DefaultMaxFormBytes))
		r.Post("/signupSubmit", authHandler.SignupSubmit)
		r.Post("/loginSubmit", authHandler.LoginSubmit)
	})

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(store, cfg.SessionCookieName))
		r.Get("/members", pages.Members)
	})

	// Static files, then 404
	r.NotFound(pages.NotFound)
	r.MethodNotAllowed(pages.NotFound)

	return r, nil
}
