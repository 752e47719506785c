package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/transport/http/handlers"
)

type Dependencies struct {
	Moderation   handlers.Moderator
	Verifier     *TokenVerifier
	ServiceToken string
	Logger       *zap.Logger
}

// NewRouter assembles the moderation API surface. Every moderation route sits
// behind the combined service-token/operator-JWT auth middleware.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(deps.Logger))

	healthHandler := handlers.NewHealthHandler()
	moderationHandler := handlers.NewModerationHandler(deps.Moderation, ActorFromContext)

	r.Get("/healthz", healthHandler.Check)

	r.Route("/v1/moderation", func(r chi.Router) {
		r.Use(AuthMiddleware(deps.Verifier, deps.ServiceToken, deps.Logger))
		r.Post("/ban", moderationHandler.Ban)
		r.Post("/tempban", moderationHandler.TempBan)
		r.Post("/unban", moderationHandler.Unban)
		r.Post("/restrict", moderationHandler.Restrict)
		r.Post("/warn", moderationHandler.Warn)
		r.Post("/trust", moderationHandler.Trust)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}
