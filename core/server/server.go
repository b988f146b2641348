package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"calendar-sync/core/cache"
	"calendar-sync/core/config"
	"calendar-sync/core/constants"
	"calendar-sync/core/database"
	"calendar-sync/core/logger"
	"calendar-sync/core/middleware"
	"calendar-sync/core/queue"
	"calendar-sync/modules/calendar"
	calendarService "calendar-sync/modules/calendar/service"
	"calendar-sync/modules/calendar/worker"
	"calendar-sync/modules/notification"
	"calendar-sync/modules/session"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Run starts the HTTP API, the sync worker and the reconcile scheduler, and
// blocks until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, &db); err != nil {
		return err
	}

	redisCache := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	queueName := cfg.CalendarSync.QueueName
	if queueName == "" {
		queueName = constants.QueueCalendar
	}
	queueCfg := queue.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.CalendarSync.WorkerConcurrent,
		Queues:        map[string]int{queueName: 6, constants.QueueDefault: 1},
	}
	queueClient := queue.NewClient(queueCfg)
	defer queueClient.Close()

	dispatcher := worker.NewDispatcher(queueClient, worker.DispatcherOptions{
		Queue:    queueName,
		MaxRetry: cfg.CalendarSync.MaxRetry,
	})

	e := newEcho()
	mw := middleware.NewMiddleware()

	notificationSvc := notification.Init(e.Group("/api/v1/private"), db, mw)
	sessions := session.Init(e, db, mw, dispatcher, cfg.CalendarSync.DefaultTimezone)
	cal := calendar.Init(e, db, redisCache, mw, cfg, calendar.Deps{
		Sources: []calendarService.EntitySource{sessions},
		Alerter: notificationSvc,
		Resync:  dispatcher,
	})

	mux := asynq.NewServeMux()
	cal.Handler.Register(mux)
	workerSrv := queue.NewServer(queueCfg)
	if err := workerSrv.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer workerSrv.Shutdown()

	scheduler := queue.NewScheduler(queueCfg)
	entryID, err := worker.RegisterReconcile(scheduler, cfg.CalendarSync.ReconcileSpec, queueName, cfg.CalendarSync.ReconcileBatch)
	if err != nil {
		return fmt.Errorf("register reconcile: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()
	logger.Info("Server:Scheduler:Started", "entry_id", entryID, "spec", cfg.CalendarSync.ReconcileSpec)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server:Start", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("Server:Shutdown:Start")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server:Shutdown:Error", "error", err)
	}
	return nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURIPath:   true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "path", v.URIPath, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "request_id", v.RequestID}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			logger.Info("HTTP:Request", args...)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
	})
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	return e
}
