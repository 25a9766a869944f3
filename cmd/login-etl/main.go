package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuanning6/etl-off-sqs/internal/config"
	"github.com/yuanning6/etl-off-sqs/internal/ingest"
	"github.com/yuanning6/etl-off-sqs/internal/queue"
	spg "github.com/yuanning6/etl-off-sqs/internal/storage/postgres"
	transport "github.com/yuanning6/etl-off-sqs/internal/transport/http"
)

func main() {
	loop := flag.Bool("loop", false, "poll until SIGINT/SIGTERM instead of running one cycle")
	migrate := flag.Bool("migrate", true, "apply the schema migration at startup")
	flag.Parse()

	cfg := config.Parse()
	log.Printf("config: queue=%s region=%s batch=%d wait=%s workers=%d strict_version=%t",
		cfg.QueueURL, cfg.AWSRegion, cfg.BatchMaxSize, cfg.Wait, cfg.Workers, cfg.StrictVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, *loop, *migrate)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, loop, migrate bool) int {
	db, err := spg.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Printf("db connect: %v", err)
		return 1
	}
	defer db.Close()
	log.Printf("db: connected")

	if migrate {
		if err := db.RunMigration(ctx, cfg.MigrationsPath); err != nil {
			log.Printf("migration: %v", err)
			return 1
		}
		log.Printf("db: migration applied")
	}

	q, err := queue.Dial(ctx, queue.Options{
		QueueURL:        cfg.QueueURL,
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.SQSEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		log.Printf("queue: %v", err)
		return 1
	}

	ingestor := ingest.NewIngestor(q, spg.NewWriter(db), ingest.Options{
		BatchMaxSize:   cfg.BatchMaxSize,
		Wait:           cfg.Wait,
		Workers:        cfg.Workers,
		MessageTimeout: cfg.MessageTimeout,
		StrictVersion:  cfg.StrictVersion,
	})

	if !loop {
		_, err := ingestor.RunCycle(ctx)
		return cycleExitCode(ctx, err)
	}

	if cfg.HTTPPort != "" {
		deps := &transport.ServerDeps{
			Cfg:    cfg,
			DB:     db,
			Cycles: ingestor,
			Now:    func() time.Time { return time.Now().UTC() },
		}
		srv := &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           deps.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			log.Printf("listening on :%s", cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("ingest: polling every %s", cfg.PollInterval)
	ingestor.Run(ctx, cfg.PollInterval)
	log.Printf("ingest: stopped")
	return 0
}

// cycleExitCode maps a single cycle's outcome to the process exit code. A receive
// interrupted by SIGINT/SIGTERM is a clean shutdown, not a transport failure.
func cycleExitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		log.Printf("ingest: receive interrupted by shutdown: %v", err)
		return 0
	}
	log.Printf("ingest: cycle failed: %v", err)
	return 1
}
