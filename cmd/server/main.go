package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	"github.com/clickmail/warmup-engine/internal/api"
	"github.com/clickmail/warmup-engine/internal/config"
	"github.com/clickmail/warmup-engine/internal/dnsverify"
	"github.com/clickmail/warmup-engine/internal/listverify"
	"github.com/clickmail/warmup-engine/internal/pkg/clock"
	"github.com/clickmail/warmup-engine/internal/repository/postgres"
	"github.com/clickmail/warmup-engine/internal/service/outcome"
	"github.com/clickmail/warmup-engine/internal/service/reputation"
	"github.com/clickmail/warmup-engine/internal/service/warmup"
	"github.com/clickmail/warmup-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", cfg.Server.Port)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to in-process stores: %v", err)
			redisClient = nil
		}
		if redisClient != nil {
			defer redisClient.Close()
		}
	}

	// Repositories
	warmupRepo := postgres.NewWarmupRepo(db)
	outcomeRepo := postgres.NewOutcomeRepo(db)
	domainRepo := postgres.NewDomainRepo(db)
	publisher := postgres.NewNotifyVolumePublisher(db)

	// Services
	clk := clock.System{}
	warmupSvc := warmup.NewService(warmupRepo, publisher, clk)
	repSvc := reputation.NewService(domainRepo, clk)

	var idem outcome.IdempotencyStore
	if redisClient != nil {
		idem = outcome.NewRedisIdempotencyStore(redisClient, cfg.Outcomes.DedupWindow())
	}
	aggregator := outcome.NewAggregator(outcomeRepo, idem)

	var identity dnsverify.IdentityClient
	if cfg.SES.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.SES.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.SES.AccessKey, cfg.SES.SecretKey, "")),
		)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		identity = sesv2.NewFromConfig(awsCfg)
	}
	dnsSvc := dnsverify.NewService(dnsverify.NewVerifier(net.DefaultResolver, identity), domainRepo, clk)
	listSvc := listverify.NewService(warmupRepo, cfg.Lists.VerifyWebhookURL)

	// Workers
	ticker := worker.NewDayTicker(warmupRepo, warmupSvc, repSvc, publisher, db, redisClient, clk)
	ticker.SetInterval(cfg.Warmup.TickInterval())
	ticker.SetThresholds(cfg.Warmup.AutoPauseBouncePct, cfg.Warmup.AutoPauseComplaintPct)
	if err := ticker.Start(); err != nil {
		log.Fatalf("Failed to start day ticker: %v", err)
	}

	listener, err := postgres.NewOutcomeListener(cfg.Database.URL)
	if err != nil {
		log.Printf("Outcome LISTEN unavailable, polling only: %v", err)
		listener = nil
	}
	outcomeWorker := worker.NewOutcomeWorker(outcomeRepo, aggregator, repSvc, outcomeRepo, listener, db, redisClient)
	outcomeWorker.SetPollInterval(cfg.Outcomes.PollInterval())
	outcomeWorker.SetBatchSize(cfg.Outcomes.BatchSize)
	if err := outcomeWorker.Start(); err != nil {
		log.Fatalf("Failed to start outcome worker: %v", err)
	}

	// HTTP server
	handlers := api.NewHandlers(warmupSvc, outcomeRepo, repSvc, dnsSvc, listSvc)
	router := api.SetupRoutes(handlers)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	outcomeWorker.Stop()
	ticker.Stop()
	log.Println("Shutdown complete")
}
