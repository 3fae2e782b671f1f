package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"perks-admin/internal/analytics"
	"perks-admin/internal/auth"
	"perks-admin/internal/blog"
	"perks-admin/internal/category"
	"perks-admin/internal/config"
	"perks-admin/internal/db"
	"perks-admin/internal/lead"
	"perks-admin/internal/maintenance"
	"perks-admin/internal/media"
	"perks-admin/internal/observability"
	"perks-admin/internal/page"
	"perks-admin/internal/perk"
	"perks-admin/internal/ratelimit"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole application and returns a ready http.Handler. Both
// the long-running server and the serverless entry call it; the latter does
// so once per cold start.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger("perks-admin")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var counters ratelimit.CounterStore = ratelimit.NewMemoryStore()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		counters = ratelimit.NewRedisStore(redisClient, "ratelimit")
	} else {
		logger.Warn("rate_limit_memory_store", map[string]any{
			"detail": "REDIS_URL not set, counters are per-instance",
		})
	}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
		Audience:      cfg.TokenAudience,
	})

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, tokens, cfg.BcryptCost)
	authService.WithLockoutConfig(cfg.LoginMaxAttempts, cfg.LoginLockWindow)
	authHandler := auth.NewHandler(authService)
	gate := auth.NewGate(tokens, authRepo, nil)

	if err := authService.BootstrapAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	categoryHandler := category.NewHandler(category.NewRepository(database))
	perkHandler := perk.NewHandler(perk.NewRepository(database))
	leadRepo := lead.NewRepository(database)
	leadHandler := lead.NewHandler(leadRepo)
	blogHandler := blog.NewHandler(blog.NewRepository(database))
	pageHandler := page.NewHandler(page.NewRepository(database))
	analyticsHandler := analytics.NewHandler(analytics.NewRepository(database), leadRepo)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		leadRepo,
		logger,
		cfg.CronSecret,
		config.EnvDaysOrDefault("LOCKOUT_RETENTION_DAYS", 30),
		config.EnvDaysOrDefault("LEAD_RETENTION_DAYS", 90),
		config.EnvIntOrDefault("CLEANUP_BATCH_SIZE", 500),
	)

	authLimiter := ratelimit.New(counters, ratelimit.Auth(), logger)
	burstLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("burst", time.Second, 5), logger)
	uploadLimiter := ratelimit.New(counters, ratelimit.Upload(), logger)
	categoryCreateLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("category-creation", time.Minute, 20), logger)
	leadSubmitLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("lead-submission", time.Minute, 3), logger)
	partnerSubmitLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("partner-submission", time.Hour, 5), logger)
	searchLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("search", time.Minute, 30), logger)
	analyticsLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("analytics", time.Minute, 60), logger)
	exportLimiter := ratelimit.New(counters, ratelimit.PerEndpoint("export", time.Hour, 10), logger)
	adminTraffic := ratelimit.DynamicByRole(counters, map[auth.Role]int{
		auth.RoleSuperAdmin:    600,
		auth.RoleContentEditor: 300,
		auth.RoleUser:          150,
	}, 60, logger)

	editorRoles := auth.RequireRole(auth.RoleSuperAdmin, auth.RoleContentEditor)
	superAdminOnly := auth.RequireRole(auth.RoleSuperAdmin)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler(database))

	mux.Handle("POST /auth/login", burstLimiter.Middleware(authLimiter.Middleware(http.HandlerFunc(authHandler.Login))))
	mux.Handle("POST /auth/register", authLimiter.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/refresh", gate.VerifyRefreshToken(http.HandlerFunc(authHandler.Refresh)))
	mux.Handle("GET /auth/me", gate.Authenticate(http.HandlerFunc(authHandler.Me)))

	mux.HandleFunc("GET /categories", categoryHandler.List)
	mux.Handle("POST /categories", gate.Authenticate(editorRoles(categoryCreateLimiter.Middleware(http.HandlerFunc(categoryHandler.Create)))))
	mux.Handle("PUT /categories/{id}", gate.Authenticate(editorRoles(http.HandlerFunc(categoryHandler.Update))))
	mux.Handle("DELETE /categories/{id}", gate.Authenticate(superAdminOnly(http.HandlerFunc(categoryHandler.Delete))))

	mux.Handle("GET /perks", gate.Optional(http.HandlerFunc(perkHandler.List)))
	mux.Handle("GET /perks/search", gate.Optional(searchLimiter.Middleware(http.HandlerFunc(perkHandler.Search))))
	mux.Handle("GET /perks/{id}", gate.Optional(http.HandlerFunc(perkHandler.Get)))
	mux.Handle("POST /perks", gate.Authenticate(auth.RequirePermission(auth.PermPerksWrite)(http.HandlerFunc(perkHandler.Create))))
	mux.Handle("PUT /perks/{id}", gate.Authenticate(auth.RequirePermission(auth.PermPerksWrite)(auth.RequireOwnership("created_by")(http.HandlerFunc(perkHandler.Update)))))
	mux.Handle("DELETE /perks/{id}", gate.Authenticate(superAdminOnly(http.HandlerFunc(perkHandler.Delete))))

	mux.Handle("POST /leads", leadSubmitLimiter.Middleware(http.HandlerFunc(leadHandler.SubmitLead)))
	mux.Handle("POST /partners", partnerSubmitLimiter.Middleware(http.HandlerFunc(leadHandler.SubmitPartner)))
	mux.Handle("GET /leads", gate.Authenticate(auth.RequirePermission(auth.PermLeadsManage)(http.HandlerFunc(leadHandler.ListLeads))))
	mux.Handle("GET /partners", gate.Authenticate(auth.RequirePermission(auth.PermLeadsManage)(http.HandlerFunc(leadHandler.ListPartners))))
	mux.Handle("PUT /leads/{id}/status", gate.Authenticate(auth.RequirePermission(auth.PermLeadsManage)(http.HandlerFunc(leadHandler.UpdateStatus))))

	mux.Handle("GET /blog", gate.Optional(http.HandlerFunc(blogHandler.List)))
	mux.Handle("GET /blog/{slug}", gate.Optional(http.HandlerFunc(blogHandler.Get)))
	mux.Handle("POST /blog", gate.Authenticate(auth.RequirePermission(auth.PermBlogWrite)(http.HandlerFunc(blogHandler.Create))))
	mux.Handle("PUT /blog/{id}", gate.Authenticate(auth.RequirePermission(auth.PermBlogWrite)(http.HandlerFunc(blogHandler.Update))))
	mux.Handle("PUT /blog/{id}/published", gate.Authenticate(auth.RequirePermission(auth.PermBlogPublish)(http.HandlerFunc(blogHandler.SetPublished))))
	mux.Handle("DELETE /blog/{id}", gate.Authenticate(auth.RequirePermission(auth.PermBlogWrite)(http.HandlerFunc(blogHandler.Delete))))

	mux.HandleFunc("GET /pages", pageHandler.List)
	mux.HandleFunc("GET /pages/{slug}", pageHandler.Get)
	mux.Handle("PUT /pages", gate.Authenticate(auth.RequirePermission(auth.PermPagesWrite)(http.HandlerFunc(pageHandler.Put))))
	mux.Handle("DELETE /pages/{slug}", gate.Authenticate(auth.RequirePermission(auth.PermPagesWrite)(http.HandlerFunc(pageHandler.Delete))))

	if cfg.CloudinaryURL != "" {
		cloudinaryClient, err := media.NewCloudinary(cfg.CloudinaryURL, config.EnvOrDefault("CLOUDINARY_FOLDER", "perks"))
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		uploadHandler := media.NewUploadHandler(cloudinaryClient)
		mux.Handle("POST /media/upload", gate.Authenticate(auth.RequirePermission(auth.PermMediaUpload)(uploadLimiter.Middleware(http.HandlerFunc(uploadHandler.Upload)))))
	} else {
		logger.Warn("media_upload_disabled", map[string]any{"detail": "CLOUDINARY_URL not set"})
	}

	mux.Handle("GET /analytics/overview", gate.Authenticate(adminTraffic(superAdminOnly(analyticsLimiter.Middleware(http.HandlerFunc(analyticsHandler.Overview))))))
	mux.Handle("GET /analytics/leads/export", gate.Authenticate(adminTraffic(superAdminOnly(exportLimiter.Middleware(http.HandlerFunc(analyticsHandler.ExportLeads))))))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	globalLimiter := ratelimit.New(counters, ratelimit.Global(), logger, ratelimit.WithSkip(ratelimit.SkipPaths("/health")))
	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, globalLimiter.Middleware(mux)))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
