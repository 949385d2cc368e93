package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/cache"
	"github.com/iliyamo/card-tracking/internal/config"
	"github.com/iliyamo/card-tracking/internal/database"
	"github.com/iliyamo/card-tracking/internal/encryption"
	"github.com/iliyamo/card-tracking/internal/events"
	"github.com/iliyamo/card-tracking/internal/handler"
	"github.com/iliyamo/card-tracking/internal/logger"
	"github.com/iliyamo/card-tracking/internal/middleware"
	"github.com/iliyamo/card-tracking/internal/queue"
	"github.com/iliyamo/card-tracking/internal/repository"
	"github.com/iliyamo/card-tracking/internal/router"
	"github.com/iliyamo/card-tracking/internal/scheduler"
	"github.com/iliyamo/card-tracking/internal/service"
)

func main() {
	flushCache := flag.Bool("flush-cache", false, "delete every cached key under the configured prefix on startup")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.WithField("env", cfg.Env).Info("starting card tracking")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- MySQL ----
	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("schema setup failed")
	}
	store := repository.NewStore(db)

	// ---- Redis ----
	rdb := config.NewRedisClient(cfg.Cache)
	if rdb == nil {
		log.WithField("addr", cfg.Cache.Addr).Warn("redis unavailable, serving from the database only")
	} else {
		defer rdb.Close()
	}
	var cipher *encryption.Cipher
	if cfg.Cache.EncryptionSecret != "" {
		if cipher, err = encryption.New(cfg.Cache.EncryptionSecret); err != nil {
			log.WithError(err).Fatal("cache cipher setup failed")
		}
	}
	geoCache := cache.New(rdb, cipher, cfg.Cache, log)
	if *flushCache && geoCache.Available() {
		n, err := geoCache.Flush(ctx)
		if err != nil {
			log.WithError(err).Fatal("cache flush failed")
		}
		log.WithField("keys", n).Info("cache flushed")
	}

	// ---- Messaging ----
	publisher := service.EventRouter{Durable: queue.NewPublisher(cfg.Broker.RabbitURL, cfg.Broker.EventsQueue, cfg.Broker.PublishTimeout, log)}
	bus, err := events.Connect(cfg.Broker, log)
	if err != nil {
		log.WithError(err).Warn("nats unavailable, telemetry and ping ingest disabled")
	} else {
		defer bus.Close()
		publisher.Telemetry = bus
	}

	tracking := service.NewTrackingService(store, geoCache, publisher, service.SystemClock{}, log, service.Options{
		LocationTTL: cfg.Cache.LocationTTL,
		GeoIndex:    cfg.Cache.GeoIndex,
		NearbyLimit: cfg.Cache.MaxGeoResults,
	})
	defer tracking.Wait()

	if bus != nil {
		_, err := bus.SubscribePings(cfg.Broker.PingSubject, cfg.Broker.PingQueueGroup, 5*time.Second,
			func(ctx context.Context, p service.Ping) error {
				_, err := tracking.RecordPing(ctx, p)
				return err
			})
		if err != nil {
			log.WithError(err).Warn("ping subscription failed")
		}
	}

	audit := queue.NewAuditConsumer(cfg.Broker.RabbitURL, cfg.Broker.EventsQueue, cfg.Broker.AuditLogPath, log)
	go func() {
		if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("audit consumer stopped")
		}
	}()

	// ---- Scheduler ----
	var schedDone <-chan struct{}
	if cfg.Scheduler.Enabled {
		schedDone = scheduler.New(store, tracking, service.SystemClock{}, cfg.Scheduler, log).Start(ctx)
	} else {
		log.Info("scheduler disabled")
	}

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(logger.Requests(log))
	router.RegisterRoutes(e, router.Deps{
		Cards:        handler.NewCardHandler(tracking, log),
		Appointments: handler.NewAppointmentHandler(tracking, log),
		Ready:        handler.Ready(db, geoCache.Healthy),
		RateLimit:    middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		JWTSecret:    cfg.JWTSecret,
	})

	go func() {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if schedDone != nil {
		waitOrTimeout(schedDone, cfg.Scheduler.TickTimeout, log)
	}
}

func waitOrTimeout(done <-chan struct{}, d time.Duration, log logrus.FieldLogger) {
	select {
	case <-done:
	case <-time.After(d):
		log.Warn("scheduler did not stop in time")
	}
}
