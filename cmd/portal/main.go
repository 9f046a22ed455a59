/**
 * @description
 * This is the main entry point for the portal-service, the backend-for-frontend of
 * the online banking portal. It loads configuration, connects the optional
 * infrastructure (PostgreSQL session store, Redis rate limiter, RabbitMQ events),
 * wires the session manager and per-session Views, and serves the /portal API.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for verification rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/bankclient: Client for the banking API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/portal-service/internal/api"
	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/config"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/internal/store"
	"github.com/transfa/portal-service/pkg/bankclient"
	rmrabbit "github.com/transfa/portal-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"could not load portal config\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting portal-service\" port=%s bank_api=%s auth_mode=%s", cfg.ServerPort, cfg.BankAPIBaseURL, cfg.TransferAuthMode)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	// Sessions live in PostgreSQL when configured, otherwise in memory.
	var sessionRepo store.SessionRepository
	if cfg.DatabaseURL == "" {
		log.Println("level=warn component=bootstrap msg=\"database url missing; sessions kept in memory\" env=DATABASE_URL")
		sessionRepo = store.NewMemorySessionRepository()
	} else {
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"invalid session database url\" err=%v", err)
		}
		poolCfg.MaxConns = 20
		poolCfg.MinConns = 2
		poolCfg.MaxConnLifetime = 30 * time.Minute
		poolCfg.MaxConnIdleTime = 5 * time.Minute
		// No server-side prepared statements; sessions may sit behind a pooler.
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"session database unreachable\" err=%v", err)
		}
		defer dbpool.Close()

		pgRepo := store.NewPostgresSessionRepository(dbpool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"session schema setup failed\" err=%v", err)
		}
		sessionRepo = pgRepo
		log.Println("level=info component=bootstrap msg=\"session store ready\" backend=postgres")
	}

	var publisher rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; portal events disabled\" env=RABBITMQ_URL")
	} else if producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.PortalEventsExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"portal events disabled; broker unreachable\" err=%v", err)
	} else {
		publisher = producer
		log.Printf("level=info component=bootstrap msg=\"rabbitmq producer connected\" exchange=%s", cfg.PortalEventsExchange)
	}
	defer publisher.Close()

	var rateLimiter app.RateLimitConsumer
	if cfg.VerifyRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; verification rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; verification rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient := redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
				pingErr := redisClient.Ping(pingCtx).Err()
				cancelPing()
				if pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; verification rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
				} else {
					defer redisClient.Close()
					rateLimiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
					log.Println("level=info component=bootstrap msg=\"verification rate limiter ready\" backend=redis")
				}
			}
		}
	}
	verifyGuard := app.NewVerifyGuard(rateLimiter, cfg.VerifyRateLimitPerMinute, time.Minute, logger)

	bankClient := bankclient.NewClient(cfg.BankAPIBaseURL, cfg.BankAPITimeout())
	sessions := app.NewSessionManager(bankClient, sessionRepo, app.SessionManagerConfig{
		TTL:       cfg.SessionTTL(),
		Publisher: publisher,
		Logger:    logger,
		NewView: func(session *domain.Session, onUnauthorized func()) *app.View {
			return app.NewView(bankClient.WithToken(session.Token), app.ViewConfig{
				Username:          session.Username,
				AuthMode:          cfg.AuthMode(),
				ReverifyOnFailure: cfg.TransferReverifyOnFailure,
				BalanceRevealTTL:  cfg.BalanceRevealTTL(),
				CVVRevealTTL:      cfg.CVVRevealTTL(),
				Publisher:         publisher,
				Logger:            logger,
				OnUnauthorized:    onUnauthorized,
			})
		},
	})

	scheduler := app.NewScheduler(sessions, cfg.SessionSweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" schedule=%q err=%v", cfg.SessionSweepSchedule, err)
	}

	handlers := api.NewPortalHandlers(sessions, verifyGuard, cfg.CookieSecure)
	listenAddr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           api.PortalRoutes(handlers, cfg.Origins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"portal listening\" addr=%s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"portal listener failed\" err=%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=http msg=\"draining portal requests\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"graceful shutdown incomplete\" err=%v", err)
	}
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"portal stopped\"")
}
