package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amirk1998/serendib-banking/internal/audit"
	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/config"
	"github.com/amirk1998/serendib-banking/internal/database"
	"github.com/amirk1998/serendib-banking/internal/delivery"
	"github.com/amirk1998/serendib-banking/internal/logging"
	"github.com/amirk1998/serendib-banking/internal/observability/metrics"
	"github.com/amirk1998/serendib-banking/internal/ratelimit"
	"github.com/amirk1998/serendib-banking/internal/repository"
	"github.com/amirk1998/serendib-banking/internal/security"
	"github.com/amirk1998/serendib-banking/internal/service"
	"github.com/amirk1998/serendib-banking/internal/store"
)

const serviceName = "serendib-auth"

type Application struct {
	config       *config.Config
	db           *sql.DB
	redisClient  *redis.Client
	publisher    delivery.Publisher
	log          *slog.Logger
	otpService   *service.OTPService
	authService  *service.AuthService
	onboarding   *service.OnboardingService
	directory    repository.UserDirectory
	auditLogger  *audit.Logger
	auditMonitor *audit.Monitor
	rateLimiter  *ratelimit.RateLimiter
	policy       service.Policy
	in           *bufio.Scanner
	out          io.Writer
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("  Serendib Digital Banking")
	fmt.Println("===========================================")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	metrics.MustRegister(serviceName)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(ctx, cfg, logger, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\n[Shutdown] Received shutdown signal...")
		cancel()
		// Unblock the prompt loop.
		os.Stdin.Close()
	}()

	go app.rateLimiter.StartCleanupWorker(ctx, 10*time.Minute)
	go app.auditMonitor.StartWorker(ctx, 5*time.Minute)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	app.runCLI(ctx)
}

// initializeApplication builds the directory, challenge store and delivery
// backends selected by cfg and wires the services on top of them.
func initializeApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) (*Application, error) {
	app := &Application{
		config: cfg,
		log:    logger,
		policy: service.Policy{
			OTPValidity:        cfg.OTPValidity(),
			MaxOTPAttempts:     cfg.OTPAttemptsLimit,
			LockDuration:       cfg.LockDuration(),
			ResetTokenValidity: cfg.ResetTokenValidity(),
		},
		in:  bufio.NewScanner(in),
		out: out,
	}

	var auditStore audit.Store = audit.NewMemoryStore()

	switch cfg.DirectoryBackend {
	case config.BackendSQLCipher:
		keyManager, err := security.NewKeyManager(cfg.DBEncryptionKey, cfg.AppEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key manager: %w", err)
		}

		// A single connection serializes writers on the SQLite file.
		db, err := database.Connect(database.Config{
			Path:          cfg.DBPath,
			EncryptionKey: keyManager.DBKey(),
			MaxOpenConns:  1,
			MaxIdleConns:  1,
			MaxLifetime:   1 * time.Hour,
			MaxIdleTime:   10 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		app.db = db

		if err := database.Migrate(db); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("migration failed: %w", err)
		}

		fieldEncryptor, err := security.NewFieldEncryptor(keyManager.AppKey())
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize field encryptor: %w", err)
		}

		app.directory = repository.NewUserRepository(db, fieldEncryptor, clock.System{})
		auditStore = audit.NewSQLStore(db)
	default:
		app.directory = repository.NewMemoryUserRepository(clock.System{})
	}

	var challengeStore store.ChallengeStore = store.NewMemory()
	if cfg.StateBackend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		app.redisClient = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := app.redisClient.Ping(pingCtx).Err(); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		challengeStore = store.NewRedis(app.redisClient, cfg.RedisKeyPrefix)
	}

	console := delivery.NewConsole(out)
	var sink delivery.Channel = console
	if cfg.DeliveryBackend == config.BackendAMQP {
		producer, err := delivery.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, codes will not be published", "error", err)
			app.publisher = &delivery.EventProducerFallback{Log: logger}
		} else {
			app.publisher = producer
		}
		sink = delivery.NewAMQP(app.publisher, cfg.OTPExchange)
		if cfg.Environment == "development" {
			sink = delivery.Fanout{sink, console}
		}
	}

	auditLogger, err := audit.NewLogger(auditStore, audit.Options{
		FilePath: cfg.AuditLogPath,
		Async:    cfg.AuditAsyncMode,
		Logger:   logger,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	app.auditLogger = auditLogger
	app.auditMonitor = audit.NewMonitor(auditLogger, logger)

	app.rateLimiter = ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	app.wireServices(service.Deps{
		Store:     challengeStore,
		Directory: app.directory,
		Delivery:  sink,
		Audit:     auditLogger,
		Limiter:   app.rateLimiter,
		Clock:     clock.System{},
		Policy:    app.policy,
		Logger:    logger,
	})

	return app, nil
}

func (app *Application) wireServices(deps service.Deps) {
	app.otpService = service.NewOTPService(deps)
	app.authService = service.NewAuthService(deps)
	app.onboarding = service.NewOnboardingService(deps)
}

// cleanup performs cleanup operations
func (app *Application) cleanup() {
	if app.auditLogger != nil {
		if err := app.auditLogger.Close(); err != nil {
			app.log.Error("failed to close audit logger", "error", err)
		}
	}

	if app.publisher != nil {
		app.publisher.Close()
	}

	if app.redisClient != nil {
		app.redisClient.Close()
	}

	if app.db != nil {
		app.db.Close()
	}
}
