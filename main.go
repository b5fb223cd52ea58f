package main

import (
	"context"
	"fmt"
	"ms-booking/internal/booking_api"
	"ms-booking/internal/broadcast"
	"ms-booking/internal/catalog"
	"ms-booking/internal/catalog/catalog_api"
	catalogdb "ms-booking/internal/catalog/db"
	"ms-booking/internal/checkout"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/inventory"
	"ms-booking/internal/kafka"
	"ms-booking/internal/ledger"
	ledgerdb "ms-booking/internal/ledger/db"
	"ms-booking/internal/ledger/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/reservation"
	"ms-booking/internal/utils"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

// requestLogger logs every request once it completes.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

type healthReport struct {
	Status          string          `json:"status"`
	Instance        string          `json:"instance"`
	ActiveHolds     int             `json:"active_holds"`
	PendingBookings int             `json:"pending_bookings"`
	Broadcast       broadcast.Stats `json:"broadcast"`
	RelayDropped    uint64          `json:"relay_dropped"`
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("APP", "Verifying database connections")
	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	catalogService := catalog.NewService(&catalogdb.DB{Bun: bunDB}, logger)

	var seatStore inventory.Store = inventory.NewMemoryStore()
	if cfg.Redis.Enabled {
		redisClient := connectRedis(ctx, cfg.Redis, logger)
		defer redisClient.Close()
		seatStore = inventory.NewRedisStore(redisClient, logger)
		logger.Info("REDIS", "Seat states shared through Redis")
	} else {
		logger.Info("APP", "Seat states kept in memory (single instance)")
	}
	seatInventory := inventory.New(catalogService, seatStore)

	events := broadcast.New(cfg.Broadcast.SubscriberBuffer)
	sinks := broadcast.Fanout{events}

	var relay *kafka.SeatRelay
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.SeatTopic}, cfg.Kafka.Partitions, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()
		relay = kafka.NewSeatRelay(producer, cfg.Kafka.SeatTopic, cfg.Server.InstanceID, cfg.Kafka.QueueSize, logger)
		sinks = append(sinks, relay)
		go relay.Run(ctx)

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.SeatTopic, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		go relay.Forward(ctx, consumer, events)
		logger.Info("KAFKA", "Seat event relay initialized successfully")
	}

	coordinator := reservation.NewCoordinator(seatInventory, sinks, logger, cfg.Reservation,
		reservation.WithOrigin(cfg.Server.InstanceID))
	go coordinator.Run(ctx)

	var notifier ledger.Notifier = notify.Noop{}
	if cfg.RabbitMQ.Enabled {
		publisher := notify.NewRabbitPublisher(notify.AMQPDialer(cfg.RabbitMQ.URL), cfg.RabbitMQ.Queue, logger)
		defer publisher.Close()
		notifier = publisher
		logger.Info("RABBITMQ", fmt.Sprintf("Booking notifications published to %s", cfg.RabbitMQ.Queue))
	}

	bookings := ledger.New(&ledgerdb.DB{Bun: bunDB}, coordinator, notifier, logger, cfg.Ledger)
	go bookings.RunReconciler(ctx)

	bookingHandler := &booking_api.Handler{
		Reservations:   coordinator,
		Checkout:       checkout.NewService(coordinator, bookings, logger),
		Bookings:       bookings,
		Events:         events,
		QR:             qr.NewGenerator(cfg.QR.Secret),
		Logger:         logger,
		ResyncInterval: cfg.Broadcast.ResyncInterval,
	}
	catalogHandler := catalog_api.NewHandler(catalogService, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{
			Status:          "ok",
			Instance:        cfg.Server.InstanceID,
			ActiveHolds:     coordinator.ActiveHolds(),
			PendingBookings: bookings.Pending(),
			Broadcast:       events.Stats(),
		}
		if relay != nil {
			report.RelayDropped = relay.Dropped()
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("healthy", report))
	})

	catalogHandler.RegisterRoutes(r)
	logger.Info("ROUTER", "Screening routes registered under /api/screenings")
	bookingHandler.RegisterRoutes(r)
	logger.Info("ROUTER", "Hold and booking routes registered under /api/holds and /api/bookings")

	// Request contexts end when shutdown starts so open SSE streams let go.
	baseCtx, stopRequests := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(stopRequests)

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Booking Service shutdown complete")
	}
	cancel()
	if n := bookings.Reconcile(ctxShutdown); n > 0 {
		logger.Error("PERSISTENCE", fmt.Sprintf("%d bookings left unreconciled at shutdown", n))
	}
}
