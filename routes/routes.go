package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/hellonagi/fz99-lounge-sub001/handlers"
	"github.com/hellonagi/fz99-lounge-sub001/middleware"
	"github.com/hellonagi/fz99-lounge-sub001/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	recurringMatchHandler *handlers.RecurringMatchHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/recurring-matches", func(r chi.Router) {
		// Публичные маршруты для просмотра расписаний
		r.Get("/", recurringMatchHandler.ListHandler)
		r.Get("/{recurringMatchID}", recurringMatchHandler.GetByIDHandler)

		// Защищённые маршруты только для администраторов
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate([]byte(jwtSecret)))
			r.Use(middleware.Authorize(models.RoleAdmin))

			r.Post("/", recurringMatchHandler.CreateHandler)
			r.Patch("/{recurringMatchID}", recurringMatchHandler.UpdateHandler)
			r.Patch("/{recurringMatchID}/enabled", recurringMatchHandler.SetEnabledHandler)
			r.Delete("/{recurringMatchID}", recurringMatchHandler.DeleteHandler)
		})
	})
}
