package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/keyfunc"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"primetrade-api/api"
	"primetrade-api/config"
	"primetrade-api/domain"
	"primetrade-api/storage"
)

type taskUserStore interface {
	domain.TaskStore
	domain.UserStore
	api.HealthChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()
	// closed in order once the HTTP server has drained
	var closers []gfshutdown.Operation

	var store taskUserStore
	switch cfg.Backend {
	case config.BackendTables:
		tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.TasksTable, cfg.UsersTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = tables
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongo, err := storage.NewMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		closers = append(closers, mongo.Close)
		store = mongo
	}

	var tasks domain.TaskStore = store
	if cfg.RedisConnectionString != "" {
		rc := redis.NewClient(config.RedisOptions(cfg.RedisConnectionString))
		tasks = storage.NewCache(store, rc, cfg.TasksCacheTTL)
		closers = append(closers, func(context.Context) error { return rc.Close() })
		logger.WithField("ttl", cfg.TasksCacheTTL).Info("tasks cache enabled")
	}

	var jwks *keyfunc.JWKS
	if cfg.JWKSURL != "" {
		jwks, err = keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		closers = append(closers, func(context.Context) error {
			jwks.EndBackground()
			return nil
		})
	}
	auth := api.NewAuth([]byte(cfg.JWTSecret), cfg.JWTExpiry, jwks, cfg.JWTAudience, cfg.JWTIssuer)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	closers = append(closers, tp.Shutdown)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echoprometheus.NewMiddleware("primetrade_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e,
		domain.NewTaskService(tasks),
		domain.NewUserService(store, domain.NewPasswordHasher(cfg.BcryptCost), auth),
		auth, store, logger)

	go func() {
		logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend}).Info("server starting")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			errs := []error{e.Shutdown(ctx)}
			for _, closeFn := range closers {
				errs = append(errs, closeFn(ctx))
			}
			return errors.Join(errs...)
		},
	})
	code := <-wait
	logger.WithField("code", code).Info("server stopped")
	os.Exit(code)
}
