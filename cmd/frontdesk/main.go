// Точка входа Frontdesk — сервис регистрации посетителей и бюджетного учёта.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт репозитории, сервисы и API handlers, запускает мониторинг
// зависимостей и HTTP-сервер с JWT и API-key middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/rlarcher1021/seazwf-sub002/internal/api/handlers"
	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
	"github.com/rlarcher1021/seazwf-sub002/internal/config"
	"github.com/rlarcher1021/seazwf-sub002/internal/database"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
	"github.com/rlarcher1021/seazwf-sub002/internal/server"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
	"github.com/rlarcher1021/seazwf-sub002/internal/storage/filestore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Frontdesk запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FD_DEPHEALTH_GROUP") == "" {
		logger.Warn("FD_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
	// через тот же пул и замечает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище изображений объявлений
	images, err := filestore.New(cfg.UploadDir, cfg.UploadURLPrefix, cfg.UploadMaxBytes)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища изображений", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	siteRepo := repository.NewSiteRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	schemaMgr := repository.NewSchemaManager(pool, logger)
	adRepo := repository.NewAdRepository(pool)
	notifierRepo := repository.NewNotifierRepository(pool)
	checkInRepo := repository.NewCheckInRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	budgetRepo := repository.NewBudgetRepository(pool)
	allocationRepo := repository.NewAllocationRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 7. Services
	sitesSvc := service.NewSiteService(siteRepo, cfg.SiteConfigCacheSize, cfg.SiteConfigCacheTTL, logger)
	apiKeysSvc := service.NewAPIKeyService(apiKeyRepo, logger)
	svc := handlers.Services{
		Questions:   service.NewQuestionService(questionRepo, schemaMgr, logger),
		Ads:         service.NewAdService(adRepo, images, logger),
		Notifiers:   service.NewNotifierService(notifierRepo, sitesSvc, logger),
		Sites:       sitesSvc,
		CheckIns:    service.NewCheckInService(checkInRepo, questionRepo, siteRepo, sitesSvc, logger),
		Catalogs:    service.NewCatalogService(catalogRepo, logger),
		Budgets:     service.NewBudgetService(budgetRepo, userRepo, logger),
		Allocations: service.NewAllocationService(allocationRepo, budgetRepo, logger),
		APIKeys:     apiKeysSvc,
	}
	resolver := service.NewActorResolver(userRepo, catalogRepo, cfg.FinanceDepartmentSlug, logger)

	// 8. Readiness checkers (PostgreSQL + IdP)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSClientTimeout)
	apiHandler := handlers.NewAPIHandler(handlers.NewHealthHandler(pgChecker, idpChecker), svc, images, logger)

	// 9. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		resolver,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 10. API-key middleware; лимит неудачных попыток — только при заданном Redis
	var limiter middleware.FailLimiter
	if cfg.RedisURL != "" {
		opts, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Error("Некорректный FD_REDIS_URL", slog.String("error", parseErr.Error()))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter = middleware.NewRedisFailLimiter(rdb, cfg.APIKeyFailLimit, cfg.APIKeyFailWindow)
		logger.Info("Лимит неудачных проверок API-ключей включён",
			slog.Int("limit", cfg.APIKeyFailLimit),
			slog.String("window", cfg.APIKeyFailWindow.String()),
		)
	} else {
		logger.Warn("FD_REDIS_URL не задан, лимит неудачных проверок API-ключей отключён")
	}
	apiKeyAuth := middleware.NewAPIKeyAuth(apiKeysSvc, limiter, cfg.APIKeyHeader, logger)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "frontdesk",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, apiKeyAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("Frontdesk остановлен")
}
