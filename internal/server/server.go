// Пакет server — HTTP-сервер Frontdesk с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на балансировщике.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rlarcher1021/seazwf-sub002/internal/api/handlers"
	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
	"github.com/rlarcher1021/seazwf-sub002/internal/config"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

// Server — HTTP-сервер Frontdesk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth защищает /api/v1, apiKeyAuth — /api/v1/kiosk.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	apiKeyAuth *middleware.APIKeyAuth,
) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, h, jwtAuth, apiKeyAuth),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
// Health, metrics и изображения публичные, остальное — по JWT или API-ключу.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	apiKeyAuth *middleware.APIKeyAuth,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RealIP)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get(h.UploadPrefix()+"/{name}", h.ServeUpload)

	// Киоски и интеграции: только API-ключ с нужным разрешением
	router.Route("/api/v1/kiosk/sites/{siteID}", func(r chi.Router) {
		r.Use(apiKeyAuth.Middleware())
		r.With(middleware.RequirePermission(service.PermSitesRead)).Get("/", h.KioskSite)
		r.With(middleware.RequirePermission(service.PermQuestionsRead)).Get("/questions", h.KioskQuestions)
		r.With(middleware.RequirePermission(service.PermAdsRead)).Get("/ads", h.KioskAds)
		r.With(middleware.RequirePermission(service.PermNotifiersRead)).Get("/notifiers", h.KioskNotifiers)
		r.With(middleware.RequirePermission(service.PermCheckInCreate)).Post("/check-ins", h.RecordCheckIn)
	})

	// Сотрудники: JWT внешнего IdP
	router.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware())
		r.Use(middleware.RequireActor)

		r.Route("/api/v1/questions", func(r chi.Router) {
			r.Get("/", h.ListQuestions)
			r.Post("/", h.CreateQuestion)
			r.Get("/{questionID}", h.GetQuestion)
			r.Patch("/{questionID}", h.UpdateQuestion)
			r.Delete("/{questionID}", h.DeleteQuestion)
		})

		r.Route("/api/v1/ads", func(r chi.Router) {
			r.Get("/", h.ListAds)
			r.Post("/", h.CreateAd)
			r.Get("/{adID}", h.GetAd)
			r.Put("/{adID}", h.UpdateAd)
			r.Delete("/{adID}", h.DeleteAd)
		})

		r.Route("/api/v1/sites", func(r chi.Router) {
			r.Get("/", h.ListSites)
			r.Post("/", h.CreateSite)
			r.Route("/{siteID}", func(r chi.Router) {
				r.Get("/", h.GetSite)
				r.Put("/", h.UpdateSite)

				r.Get("/config", h.GetSiteConfig)
				r.Put("/config/{key}", h.SetSiteConfig)
				r.Delete("/config/{key}", h.DeleteSiteConfig)

				r.Get("/questions", h.ListSiteQuestions)
				r.Post("/questions", h.AssignSiteQuestion)
				r.Delete("/questions/{assignmentID}", h.RemoveSiteQuestion)
				r.Post("/questions/{assignmentID}/toggle", h.ToggleSiteQuestion)
				r.Post("/questions/{assignmentID}/move", h.MoveSiteQuestion)

				r.Get("/ads", h.ListSiteAds)
				r.Post("/ads", h.AssignSiteAd)
				r.Delete("/ads/{assignmentID}", h.RemoveSiteAd)
				r.Post("/ads/{assignmentID}/toggle", h.ToggleSiteAd)
				r.Post("/ads/{assignmentID}/move", h.MoveSiteAd)

				r.Get("/notifiers", h.ListNotifiers)
				r.Post("/notifiers", h.CreateNotifier)
				r.Put("/notifiers/{notifierID}", h.UpdateNotifier)
				r.Delete("/notifiers/{notifierID}", h.DeleteNotifier)
				r.Post("/notifiers/{notifierID}/toggle", h.ToggleNotifier)

				r.Get("/check-ins", h.ListCheckIns)
			})
		})

		r.Route("/api/v1/departments", func(r chi.Router) {
			r.Get("/", h.ListDepartments)
			r.Post("/", h.CreateDepartment)
			r.Get("/{departmentID}", h.GetDepartment)
			r.Patch("/{departmentID}", h.RenameDepartment)
		})

		r.Route("/api/v1/grants", func(r chi.Router) {
			r.Get("/", h.ListGrants)
			r.Post("/", h.CreateGrant)
			r.Put("/{grantID}", h.UpdateGrant)
			r.Delete("/{grantID}", h.DeleteGrant)
		})

		r.Get("/api/v1/vendors", h.ListVendors)
		r.Post("/api/v1/vendors", h.CreateVendor)

		r.Route("/api/v1/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)
			r.Get("/{budgetID}", h.GetBudget)
			r.Put("/{budgetID}", h.UpdateBudget)
			r.Delete("/{budgetID}", h.DeleteBudget)
			r.Get("/{budgetID}/allocations", h.ListAllocations)
			r.Post("/{budgetID}/allocations", h.CreateAllocation)
		})

		r.Route("/api/v1/allocations/{allocationID}", func(r chi.Router) {
			r.Get("/", h.GetAllocation)
			r.Patch("/", h.UpdateAllocation)
			r.Delete("/", h.DeleteAllocation)
		})
		r.Get("/api/v1/reports/allocations", h.AllocationReport)

		r.Get("/api/v1/users/{userID}/finance-access", h.GetFinanceAccess)
		r.Put("/api/v1/users/{userID}/finance-access", h.SetFinanceAccess)

		r.Route("/api/v1/api-keys", func(r chi.Router) {
			r.Get("/", h.ListAPIKeys)
			r.Post("/", h.CreateAPIKey)
			r.Get("/{keyID}", h.GetAPIKey)
			r.Delete("/{keyID}", h.RevokeAPIKey)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
