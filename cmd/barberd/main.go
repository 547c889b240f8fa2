package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barberos/barberos/internal/booking"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/handlers"
	"github.com/barberos/barberos/internal/outbox"
	"github.com/barberos/barberos/internal/resync"
	"github.com/barberos/barberos/internal/storage"
	"github.com/barberos/barberos/libs/config"
	"github.com/barberos/barberos/libs/db"
	"github.com/barberos/barberos/libs/httpx"
	"github.com/barberos/barberos/libs/kafkax"
	otelx "github.com/barberos/barberos/libs/otel"
	"github.com/barberos/barberos/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "barberd")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	linkRepo := storage.NewCalendarLinkRepository(pool)

	calClient := calendar.NewClient(
		config.String("CALENDAR_API_BASE_URL", "https://www.googleapis.com/calendar/v3"),
		config.String("CALENDAR_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		config.Duration("CALENDAR_TIMEOUT", 5*time.Second),
	)
	adapter := calendar.NewAdapter(linkRepo, calClient, logger, config.Duration("CALENDAR_TIMEOUT", 5*time.Second))
	busy := calendar.NewCachedBusySource(adapter, rdb, config.Duration("CALENDAR_BUSY_CACHE_TTL", time.Minute), logger)

	orchestrator := booking.NewOrchestrator(repo, adapter, logger, config.Duration("CALENDAR_PUSH_TIMEOUT", 4*time.Second))

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	resyncWorker := resync.NewWorker(
		repo.AppointmentRepository,
		adapter,
		logger,
		config.Duration("CALENDAR_RESYNC_INTERVAL", time.Minute),
		config.Int("CALENDAR_RESYNC_BATCH", 20),
		config.Int("CALENDAR_RESYNC_MAX_ATTEMPTS", 5),
	)
	go resyncWorker.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(orchestrator, repo, busy, logger)
	publicHandler := handlers.NewPublicHandler(orchestrator, repo, busy, logger)
	calendarHandler := handlers.NewCalendarHandler(adapter, logger)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	withAuth := handlers.WithAuth(jwtSecret)
	staff := func(h http.HandlerFunc) http.Handler { return withAuth(h) }
	mux.Handle("GET /api/v1/appointments", staff(bookingHandler.List))
	mux.Handle("POST /api/v1/appointments", staff(bookingHandler.Create))
	mux.Handle("GET /api/v1/appointments/{id}", staff(bookingHandler.Get))
	mux.Handle("POST /api/v1/appointments/{id}/reschedule", staff(bookingHandler.Reschedule))
	mux.Handle("POST /api/v1/appointments/{id}/approve", staff(bookingHandler.Approve))
	mux.Handle("POST /api/v1/appointments/{id}/status", staff(bookingHandler.SetStatus))
	mux.Handle("GET /api/v1/slots", staff(bookingHandler.Slots))
	mux.Handle("GET /api/v1/calendar/status", staff(calendarHandler.Status))
	mux.Handle("POST /api/v1/calendar/config", staff(calendarHandler.Configure))
	mux.Handle("POST /api/v1/calendar/connect", staff(calendarHandler.Connect))
	mux.Handle("POST /api/v1/calendar/disconnect", staff(calendarHandler.Disconnect))

	// Public routes are unauthenticated; when Redis is configured they sit
	// behind a shared fixed-window rate limit.
	public := func(h http.HandlerFunc) http.Handler { return h }
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("PUBLIC_RATE_LIMIT", 60),
			config.Duration("PUBLIC_RATE_WINDOW", time.Minute),
			"public")
		public = func(h http.HandlerFunc) http.Handler {
			return limiter.Middleware(logger)(h)
		}
	}
	mux.Handle("GET /api/v1/public/slots", public(publicHandler.Slots))
	mux.Handle("POST /api/v1/public/book", public(publicHandler.Book))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
