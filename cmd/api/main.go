package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/cache"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/handler"
	messaging "github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/messaging/kafka"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/repository/memory"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/adapter/repository/postgres"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/ports"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/services"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/config"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/database"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/logger"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/metrics"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/retry"
	"github.com/GranFenrir/event-reservation-system-sub000/internal/platform/tracing"
)

type stores struct {
	tx           ports.Transactor
	inventory    ports.InventoryRepository
	reservations ports.ReservationRepository
	settlements  ports.SettlementRepository
	outbox       ports.OutboxRepository
	close        func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: cfg.Otel.ServiceName})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("reservation engine stopped with error")
	}
	log.Info().Msg("reservation engine exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Otel.ServiceName, cfg.Otel.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	// Both stay untyped nil when Redis is off.
	var (
		availability ports.AvailabilityCache
		locker       ports.Locker
	)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("redis connected")

		availability = cache.NewAvailabilityCache(client, cache.DefaultAvailabilityTTL)
		locker = cache.NewLocker(client, lockOwner())
	}

	opts := []services.Option{
		services.WithMetrics(m),
		services.WithHoldDuration(cfg.Reservation.HoldDuration),
		services.WithRetryPolicy(retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		}),
	}
	withLog := func(component string) []services.Option {
		return append(opts[:len(opts):len(opts)], services.WithLogger(logger.Component(log, component)))
	}

	ledger := services.NewInventoryLedger(st.tx, st.inventory, availability, withLog("ledger")...)
	reservationSvc := services.NewReservationService(st.tx, ledger, st.reservations, st.outbox, withLog("reservations")...)
	coordinator := services.NewSettlementCoordinator(st.tx, st.settlements, st.reservations, reservationSvc, withLog("settlement")...)

	sweeper := services.NewExpirySweeper(reservationSvc, st.reservations, locker, services.SweeperConfig{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
		Lease:     cfg.Sweeper.Lease,
	}, withLog("sweeper")...)

	reconciler := services.NewReconciler(st.tx, st.inventory, st.reservations, reservationSvc, locker, services.ReconcilerConfig{
		Interval:    cfg.Reconciler.Interval,
		OrphanGrace: cfg.Reconciler.OrphanGrace,
		BatchSize:   cfg.Reconciler.BatchSize,
		Lease:       cfg.Reconciler.Lease,
	}, withLog("reconciler")...)

	router := handler.NewRouter(handler.RouterConfig{
		Reservations:   handler.NewReservationHandler(reservationSvc, logger.Component(log, "http")),
		Settlements:    handler.NewSettlementHandler(coordinator, logger.Component(log, "http")),
		Inventory:      handler.NewInventoryHandler(ledger, logger.Component(log, "http")),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Metrics:        m,
		Log:            logger.Component(log, "http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })

	if cfg.Kafka.Enabled {
		brokers := cfg.Kafka.BrokerList()

		publisher := messaging.NewPublisher(messaging.NewWriter(brokers, cfg.Kafka.EventsTopic), logger.Component(log, "publisher"))
		defer publisher.Close()

		relay := services.NewOutboxRelay(st.outbox, publisher, services.RelayConfig{
			Interval:     cfg.Outbox.Interval,
			BatchSize:    cfg.Outbox.BatchSize,
			ClaimTimeout: cfg.Outbox.ClaimTimeout,
		}, withLog("outbox")...)

		consumer := messaging.NewSettlementConsumer(
			messaging.NewReader(brokers, cfg.Kafka.SettlementTopic, cfg.Kafka.GroupID),
			coordinator,
			messaging.ConsumerConfig{},
			logger.Component(log, "settlement-consumer"),
		)
		defer consumer.Close()

		g.Go(func() error { return relay.Run(gctx) })
		g.Go(func() error { return consumer.Run(gctx) })
	} else {
		log.Warn().Msg("kafka disabled: events stay in the outbox and settlements arrive over http only")
	}

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.App.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		store := memory.NewStore(nil)
		return &stores{
			tx:           store,
			inventory:    store.Inventory(),
			reservations: store.Reservations(),
			settlements:  store.Settlements(),
			outbox:       store.Outbox(),
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.NewPostgresDB(ctx, database.Config{
		DSN:             cfg.DB.DSN(),
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnectAttempts: cfg.DB.ConnectAttempts,
	}, logger.Component(log, "database"))
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &stores{
		tx:           postgres.NewTxManager(db, cfg.DB.LockTimeout),
		inventory:    postgres.NewInventoryRepository(db),
		reservations: postgres.NewReservationRepository(db),
		settlements:  postgres.NewSettlementRepository(db),
		outbox:       postgres.NewOutboxRepository(db),
		close:        db.Close,
	}, nil
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()
}
