package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/clock"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	// 1. Open DB connection pool
	pool, err := pgxpool.New(ctx, buildDSN(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Object storage
	store, err := storage.NewR2Storage(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize object storage")
		return nil, nil, err
	}

	// 3. Rate limiter. Without Redis the limiter is a noop: a missing
	// limiter must never block uploads.
	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid REDIS_URL")
			return nil, nil, err
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts), logger)
	} else {
		logger.Warn().Msg("REDIS_URL not set, rate limiting disabled")
	}

	// 4. Shared plumbing
	validate := validator.New(validator.WithRequiredStructEnabled())
	clk := clock.Real{}

	// 5. Repositories, services, handlers
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	fileRepo := repository.NewFileRepo(pool)
	keyRepo := repository.NewAPIKeyRepo(pool)
	logRepo := repository.NewRequestLogRepo(pool)

	usageSvc := service.NewUsageService(usageRepo, clk, logger)
	subSvc := service.NewSubscriptionService(subRepo, usageSvc, clk, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, subRepo, subSvc, logger)
	fileSvc := service.NewFileService(fileRepo, store, usageSvc, clk, logger)
	keySvc := service.NewAPIKeyService(keyRepo, logger)
	logSvc := service.NewRequestLogService(logRepo, logger)
	sweeperSvc := service.NewSweeperService(fileRepo, subRepo, store, usageSvc, clk, logger)

	fileHandler := handler.NewFileHandler(fileSvc, subSvc, validate, logger)
	usageHandler := handler.NewUsageHandler(usageSvc, subSvc, logger)
	keyHandler := handler.NewAPIKeyHandler(keySvc, subSvc, validate, logger)
	subHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, validate, logger)
	logHandler := handler.NewRequestLogHandler(logSvc, logger)
	cronHandler := handler.NewCronHandler(sweeperSvc, logger)
	healthHandler := handler.NewHealthHandler(pool, store, logger)

	// 6. Middleware chains. Upload admission order: API key, grace-period
	// reject, rate limit; everything else skips the grace check.
	apiKeyAuth := middleware.APIKeyAuth(keySvc)
	requestLog := middleware.RequestLogger(logSvc)
	rateLimit := middleware.RateLimit(limiter, subSvc, logger)
	graceReject := middleware.GraceReject(subSvc)

	authed := func(h http.Handler) http.Handler {
		return apiKeyAuth(requestLog(rateLimit(h)))
	}
	graced := func(h http.Handler) http.Handler {
		return apiKeyAuth(requestLog(graceReject(rateLimit(h))))
	}
	jwtAuth := middleware.JWTAuth(cfg.JWTSecret)
	cronAuth := middleware.CronAuth(cfg.CronSecret)

	// 7. Routes
	apiV1 := http.NewServeMux()
	fileHandler.RegisterRoutes(apiV1, authed, graced)
	usageHandler.RegisterRoutes(apiV1, authed)
	keyHandler.RegisterRoutes(apiV1, jwtAuth)
	subHandler.RegisterRoutes(apiV1, jwtAuth)
	logHandler.RegisterRoutes(apiV1, jwtAuth)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1))
	mux.HandleFunc("POST /webhooks/stripe", stripeSvc.HandleWebhook)
	cronHandler.RegisterRoutes(mux, cronAuth)
	healthHandler.RegisterRoutes(mux)

	// 8. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}

// buildDSN adjusts the connection string for the environment: local
// development disables SSL, and anything behind a transaction pooler needs
// the simple query protocol.
func buildDSN(cfg *config.Config) string {
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	if cfg.Environment != "development" && !strings.Contains(dsn, "default_query_exec_mode") {
		dsn += dsnSeparator(dsn) + "default_query_exec_mode=simple_protocol"
	}
	return dsn
}

func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}
