package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/chunkvault/internal/audit"
	"github.com/kenneth/chunkvault/internal/config"
	"github.com/kenneth/chunkvault/internal/debug"
	"github.com/kenneth/chunkvault/internal/immutable"
	"github.com/kenneth/chunkvault/internal/metrics"
	"github.com/kenneth/chunkvault/internal/middleware"
	"github.com/kenneth/chunkvault/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file (empty for defaults)")
		duration   = flag.Duration("duration", 30*time.Second, "Test duration")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		objectSize = flag.Int64("object-size", 2*1024*1024, "Payload size in bytes (2MB default)")
		encrypted  = flag.Bool("encrypted", false, "Seal data maps under a random envelope key")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.StandardLogger()
	applyLogLevel(logger, cfg.LogLevel, *verbose)
	debug.InitFromLogLevel(cfg.LogLevel)

	if *configPath != "" {
		stop, err := config.Watch(*configPath, logger, func(next *config.Config) {
			applyLogLevel(logger, next.LogLevel, *verbose)
		})
		if err != nil {
			logger.WithError(err).Warn("Config watch unavailable")
		} else {
			defer stop()
		}
	}

	client, healthCheck, cleanup, err := buildClient(cfg)
	if err != nil {
		log.Fatalf("Failed to build %s backend: %v", cfg.Backend.Type, err)
	}
	defer cleanup()

	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()
	immutable.SetMetrics(m)

	var auditLog audit.Logger
	if cfg.Audit.Enabled {
		auditLog, err = audit.NewLoggerFromConfig(cfg.Audit)
		if err != nil {
			log.Fatalf("Failed to build audit logger: %v", err)
		}
		defer auditLog.Close()
	}

	startOpsServer(cfg.MetricsAddr, m, healthCheck, logger)

	var key *immutable.EnvelopeKey
	if *encrypted {
		key, err = immutable.GenerateEnvelopeKey()
		if err != nil {
			log.Fatalf("Failed to generate envelope key: %v", err)
		}
	}

	fmt.Println("=== chunkvault round-trip load test ===")
	fmt.Printf("Backend: %s\n", cfg.Backend.Type)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("Payload Size: %d bytes\n", *objectSize)
	fmt.Printf("Encrypted: %v\n", *encrypted)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, stopping")
		cancel()
	}()

	var ops, failures atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := roundTrip(ctx, client, *objectSize, key, auditLog); err != nil {
					if ctx.Err() != nil {
						return
					}
					failures.Add(1)
					logger.WithError(err).WithField("worker", worker).Error("Round trip failed")
					continue
				}
				ops.Add(1)
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := ops.Load()
	fmt.Printf("\n=== Load Test Complete ===\n")
	fmt.Printf("Round trips: %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Failures: %d\n", failures.Load())

	if failures.Load() > 0 {
		os.Exit(1)
	}
}

// roundTrip creates a random payload, stores its root, fetches it back by
// address and verifies the bytes.
func roundTrip(ctx context.Context, client storage.Client, size int64, key *immutable.EnvelopeKey, auditLog audit.Logger) error {
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return fmt.Errorf("failed to generate payload: %w", err)
	}

	start := time.Now()
	root, err := immutable.Create(ctx, client, payload, key)
	if auditLog != nil {
		addr := ""
		if root != nil {
			addr = root.Name().Hex()
		}
		auditLog.LogCreate(addr, size, key != nil, err == nil, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}

	if err := client.PutIData(ctx, root); err != nil {
		return fmt.Errorf("root put failed: %w", err)
	}

	start = time.Now()
	got, err := immutable.GetValue(ctx, client, root.Name(), key)
	if auditLog != nil {
		auditLog.LogGet(root.Name().Hex(), size, key != nil, err == nil, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	if !bytes.Equal(payload, got) {
		return fmt.Errorf("round trip returned different bytes (%d vs %d)", len(got), len(payload))
	}
	return nil
}

// buildClient constructs the configured backend. The returned health check
// is nil for backends with no probe.
func buildClient(cfg *config.Config) (storage.Client, func(context.Context) error, func(), error) {
	switch cfg.Backend.Type {
	case "memory":
		return storage.NewMemoryClient(), nil, func() {}, nil

	case "redis":
		client, err := storage.NewRedisClient(&cfg.Backend.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return client, client.Ping, func() { client.Close() }, nil

	case "s3":
		client, err := storage.NewS3Client(&cfg.Backend.S3)
		if err != nil {
			return nil, nil, nil, err
		}
		return client, nil, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend type: %q", cfg.Backend.Type)
	}
}

// startOpsServer serves metrics and health endpoints in the background.
func startOpsServer(addr string, m *metrics.Metrics, healthCheck func(context.Context) error, logger *logrus.Logger) {
	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	router.HandleFunc("/ready", metrics.ReadinessHandler(healthCheck)).Methods(http.MethodGet)

	go func() {
		if err := http.ListenAndServe(addr, router); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("Ops server stopped")
		}
	}()
}

func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}
