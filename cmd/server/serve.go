package main

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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/config"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/handler"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/middleware"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/queue"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/router"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/tracing"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := loadViper()
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if autoMigrate || dialect == database.SQLite {
		if err := database.MigrateUp(db, dialect); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.Redis.Enabled {
		logger.Warn("redis unreachable, rate limiting and response cache disabled", "addr", cfg.Redis.Addr)
	}

	opts := service.Options{
		TxTimeout:    cfg.TxTimeout,
		AnalyticsTTL: cfg.AnalyticsCacheTTL,
		Logger:       logger,
	}
	if pub := queue.NewPublisher(cfg.AMQP, logger); pub != nil {
		opts.Publisher = pub
		if cfg.AMQP.ConsumerEnabled {
			go func() {
				if err := queue.StartStatusConsumer(ctx, cfg.AMQP, logger); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("status consumer stopped", "err", err)
				}
			}()
		}
	}

	events := repository.NewEventRepo(db, dialect)
	regs := service.NewRegistrationService(db, events,
		repository.NewRegistrationRepo(db, dialect),
		repository.NewUserRepo(db, dialect),
		opts)
	purge := func(ctx context.Context) {
		if err := middleware.PurgeResponseCache(ctx, rdb, cfg.Cache.Prefix); err != nil {
			logger.Warn("purge response cache failed", "err", err)
		}
	}

	e := router.NewEcho(logger)
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(requestLogger(logger))
	if tp.Enabled() {
		e.Use(otelecho.Middleware(cfg.Tracing.ServiceName, otelecho.WithTracerProvider(tp.TracerProvider())))
	}
	router.Register(e, router.Deps{
		JWTSecret:     cfg.JWTSecret,
		Health:        handler.Health{DB: db},
		Events:        handler.NewEventHandler(service.NewEventService(db, events, cfg.TxTimeout, regs.InvalidateAnalytics), purge),
		Registrations: handler.NewRegistrationHandler(regs),
		RateLimit:     middleware.RateLimit(cfg.RateLimit, rdb, logger),
		Cache:         middleware.ResponseCache(cfg.Cache, rdb, logger),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "driver", cfg.DB.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// requestLogger writes one structured line per request.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("err", v.Error.Error()))
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
