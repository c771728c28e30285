package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-booking/internal/cache"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logger"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(reg)

	deps := service.Deps{Metrics: m, Logger: log}
	var pinger handler.Pinger
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		deps.Tx = repository.NewTxManager(db, cfg.LockWait)
		deps.Showtimes = repository.NewShowtimeLedger(db)
		deps.Seats = repository.NewSeatOccupancyStore(db)
		deps.Bookings = repository.NewBookingStore(db)
		deps.Events = repository.NewEventLedger(db)
		pinger = db
		log.Info("using mysql store", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.Name))
	case config.StoreMemory:
		store := memory.NewStore(cfg.LockWait)
		seedDemo(store)
		deps.Tx = store
		deps.Showtimes = memory.NewShowtimeLedger(store)
		deps.Seats = memory.NewSeatOccupancyStore(store)
		deps.Bookings = memory.NewBookingStore(store)
		deps.Events = memory.NewEventLedger(store)
		log.Warn("using in-memory store; bookings are lost on restart")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and seat map cache disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
		if cfg.SeatMapCache.Enabled {
			deps.SeatMap = cache.NewSeatMap(rdb, cfg.SeatMapCache)
		}
	}

	if cfg.Broker.Enabled {
		pub := queue.NewPublisher(cfg.Broker.URL, log)
		defer pub.Close()
		deps.Notifier = pub
	}

	svc := service.NewReservationService(deps)
	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.NewBookingHandler(svc), router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		Redis:     rdb,
		Metrics:   m,
		Gatherer:  reg,
		DB:        pinger,
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(sctx)
	})
	if cfg.Broker.AuditEnabled {
		consumer := queue.NewAuditConsumer(cfg.Broker.URL, cfg.Broker.AuditLogPath, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

// seedDemo gives the memory store something to book against.
func seedDemo(s *memory.Store) {
	s.AddShowtime(1, 100, 100000)
	s.AddShowtime(2, 40, 75000)
	s.AddEvent(1, 50, 0)
}
