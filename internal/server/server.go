package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/config"
	"storefront-admin/internal/database"
	"storefront-admin/internal/deploy"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/media"
	custommiddleware "storefront-admin/internal/middleware"
	"storefront-admin/internal/reconcile"
	"storefront-admin/internal/repository"
	"storefront-admin/internal/service"
	"storefront-admin/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const eventsTopic = "events"

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	redis   *redis.Client
	remote  repository.Backend
	bus     *broadcast.Channel
	checker *reconcile.Checker
	auto    *deploy.AutoDeployer

	wg sync.WaitGroup
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := localstore.New(rdb, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL, logger)
	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis is not reachable, local collections start empty", zap.Error(err))
	}
	bus := broadcast.New(store, cfg.Redis.KeyPrefix+":"+eventsTopic, logger)

	remote, err := openRemote(ctx, cfg, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	resolver, err := imageResolver(cfg.Media, logger)
	if err != nil {
		rdb.Close()
		remote.Close()
		return nil, err
	}

	modules := admin.Modules{
		Products:       admin.NewProducts(ctx, store, bus, remote, resolver, logger),
		CategoryImages: admin.NewCategoryImages(ctx, store, bus, remote, resolver, cfg.Catalog.Categories, logger),
		Subcategories:  admin.NewSubcategories(ctx, store, bus, logger),
		Coupons:        admin.NewCoupons(ctx, store, bus, logger),
	}

	trigger := deploy.NewTrigger(modules, fileWriter(cfg, logger), store, deploy.Options{
		WebhookURL: cfg.Deploy.WebhookURL,
		DataDir:    cfg.Deploy.DataDir,
		Timeout:    cfg.Deploy.Timeout,
	}, logger)
	auto := deploy.NewAutoDeployer(trigger, store, bus, cfg.Sync.Debounce, logger)

	reconciler := reconcile.NewReconciler(remote, store, bus, modules, trigger, reconcile.Options{
		LockTTL:         cfg.Sync.LockTTL,
		TriggerThrottle: cfg.Sync.TriggerThrottle,
	}, logger)
	checker := reconcile.NewChecker(reconciler, remote, store, bus, reconcile.CheckerOptions{
		StartupDelay: cfg.Sync.StartupDelay,
		PollInterval: cfg.Sync.PollInterval,
		Debounce:     cfg.Sync.Debounce,
	}, logger)

	authService := service.NewAuthService(
		cfg.Admin.Username,
		cfg.Admin.PasswordHash,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
	)
	catalogService := service.NewCatalogService(modules, logger)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "redis": "up", "remote": "up"}
		if err := store.Ping(r.Context()); err != nil {
			status["redis"] = "down"
		}
		if err := remote.Ping(r.Context()); err != nil {
			status["remote"] = "down"
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, status)
	})

	transport.NewFSHandler(afero.NewOsFs(), cfg.FS.Root, cfg.FS.Enabled, logger).RegisterRoutes(router)

	productHandler := transport.NewProductHandler(modules.Products, logger)
	catalogHandler := transport.NewCatalogHandler(modules, catalogService, logger)
	couponHandler := transport.NewCouponHandler(modules.Coupons, catalogService, logger)
	syncHandler := transport.NewSyncHandler(reconciler, checker, trigger, auto, logger)
	authHandler := transport.NewAuthHandler(authService, logger)
	eventsHandler := transport.NewEventsHandler(bus, 0, logger)

	loginLimiter := custommiddleware.RateLimitMiddleware(rdb, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         cfg.Redis.KeyPrefix + ":ratelimit:login",
	}, logger)

	router.Group(func(r chi.Router) {
		r.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

		productHandler.RegisterPublicRoutes(r)
		catalogHandler.RegisterPublicRoutes(r)
		couponHandler.RegisterPublicRoutes(r)
		authHandler.RegisterRoutes(r, loginLimiter)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(custommiddleware.AuthMiddleware(authService, logger))
			r.Use(custommiddleware.RequireAdmin(logger))

			productHandler.RegisterAdminRoutes(r)
			catalogHandler.RegisterAdminRoutes(r)
			couponHandler.RegisterAdminRoutes(r)
			syncHandler.RegisterAdminRoutes(r)
			r.Method(http.MethodGet, "/events", eventsHandler)
		})
	})

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		redis:   rdb,
		remote:  remote,
		bus:     bus,
		checker: checker,
		auto:    auto,
	}, nil
}

// RunBackground starts cross-instance event delivery, the update checker and
// the auto-deployer. They stop when ctx is done; Close waits for them.
func (s *Server) RunBackground(ctx context.Context) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Broadcast subscriber stopped", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.checker.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.auto.Run(ctx)
	}()
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")
	s.wg.Wait()

	var errs []error
	if err := s.remote.Close(); err != nil {
		s.logger.Error("Failed to close remote database", zap.Error(err))
		errs = append(errs, err)
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
		errs = append(errs, err)
	}

	s.logger.Sync()
	return errors.Join(errs...)
}

// openRemote connects the configured hosted database. Without credentials
// the server runs on an in-memory backend so the console still works locally.
func openRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Backend, error) {
	switch cfg.Remote.Driver {
	case "memory":
		logger.Warn("Using in-memory remote backend, data is lost on restart")
		return repository.NewMemoryBackend(), nil

	case "mongo":
		if cfg.Remote.MongoURI == "" {
			logger.Warn("MONGO_URI is not set, falling back to in-memory remote backend")
			return repository.NewMemoryBackend(), nil
		}
		client, err := repository.ConnectMongo(ctx, cfg.Remote.MongoURI)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to MongoDB", zap.String("database", cfg.Remote.MongoDatabase))
		return repository.NewMongoBackend(client, cfg.Remote.MongoDatabase), nil

	case "postgres", "":
		if cfg.Database.User == "" || cfg.Database.Database == "" {
			logger.Warn("Database credentials are not set, falling back to in-memory remote backend")
			return repository.NewMemoryBackend(), nil
		}
		dbService, err := database.New(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("Database health check", zap.Any("health", dbService.Health()))

		if err := database.RunMigrations(ctx, dbService.DB(), "migrations", logger); err != nil {
			dbService.DB().Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Database migrations completed successfully")
		return repository.NewPostgresBackend(dbService.DB()), nil

	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
	}
}

// imageResolver returns nil when no media host is configured, leaving image
// references untouched
func imageResolver(cfg config.MediaConfig, logger *zap.Logger) (admin.ImageResolver, error) {
	if cfg.CloudinaryURL == "" {
		return nil, nil
	}
	resolver, err := media.NewCloudinaryResolver(cfg.CloudinaryURL, cfg.Folder, logger)
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

// fileWriter writes deployment files directly when this instance serves the
// filesystem API, otherwise through the API of the instance that does
func fileWriter(cfg *config.Config, logger *zap.Logger) deploy.FileWriter {
	if cfg.FS.Enabled || cfg.Deploy.FSAPIURL == "" {
		return deploy.NewDirWriter(afero.NewOsFs(), cfg.FS.Root)
	}
	logger.Info("Writing deployment files through filesystem API", zap.String("endpoint", cfg.Deploy.FSAPIURL))
	return deploy.NewFSClient(cfg.Deploy.FSAPIURL, &http.Client{Timeout: cfg.Deploy.Timeout})
}
