package api

import (
	"net/http"
	"time"

	"guideboard/internal/api/handler"
	"guideboard/internal/api/middleware"
	"guideboard/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

type Deps struct {
	Auth          handler.AuthUseCase
	Profiles      handler.ProfileUseCase
	Principals    middleware.PrincipalLoader
	Jobs          handler.JobUseCase
	Feed          handler.FeedSource
	FeedKeepalive time.Duration
	Logger        *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chiMiddleware.Recoverer)

	// Reads "Authorization: Bearer T" and puts the verified token in context.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		// The feed is long-lived and stays outside the request timeout.
		feedHandler := handler.NewFeedHandler(d.Feed, d.FeedKeepalive, d.Logger)
		v1.Group(func(stream chi.Router) {
			stream.Use(middleware.Authenticator)
			stream.Use(middleware.LoadPrincipal(d.Principals))
			stream.Get("/jobs/feed", feedHandler.Stream)
		})

		v1.Group(func(api chi.Router) {
			api.Use(chiMiddleware.Timeout(requestTimeout))

			authHandler := handler.NewAuthHandler(d.Auth)
			api.Route("/auth", authHandler.RegisterRoutes)

			api.Group(func(authed chi.Router) {
				authed.Use(middleware.Authenticator)
				authed.Use(middleware.LoadPrincipal(d.Principals))

				jobHandler := handler.NewJobHandler(d.Jobs)
				authed.Route("/jobs", jobHandler.RegisterRoutes)

				profileHandler := handler.NewProfileHandler(d.Profiles)
				authed.Route("/profiles", profileHandler.RegisterRoutes)
			})
		})
	})

	return r
}
