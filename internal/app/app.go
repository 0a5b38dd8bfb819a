package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"uctrader/internal/bot"
	"uctrader/internal/config"
	"uctrader/internal/midas"
	"uctrader/internal/oplog"
	"uctrader/internal/ratelimit"
	"uctrader/internal/session"
	"uctrader/internal/storage"
	"uctrader/internal/storage/ch"
	"uctrader/internal/storage/stubs"
	"uctrader/internal/subscription"
	"uctrader/internal/workflow"
)

// shutdownTimeout covers a clan batch that is still running
const shutdownTimeout = 45 * time.Second

// App represents the application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	db        storage.Storage
	redis     *redis.Client
	directory *subscription.Directory
	oplog     *oplog.Log
	sessions  *session.MemoryStore
	bot       *bot.Bot
	server    *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting UC Trader Bot...")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initDirectory(); err != nil {
		return nil, err
	}

	limiter, err := app.initLimiter()
	if err != nil {
		return nil, err
	}

	if err := app.initBot(limiter); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// initDatabase initializes the database connection
func (a *App) initDatabase() error {
	var db storage.Storage
	if a.config.UseMockDB {
		a.logger.Warn("Using mock database, data is lost on restart")
		db = stubs.NewMockDB()
	} else {
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	}

	// Apply schema migrations
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initDirectory loads the trader records into memory
func (a *App) initDirectory() error {
	a.directory = subscription.NewDirectory(a.db, a.config.OwnerID, a.logger.Named("subscription"))
	if err := a.directory.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load traders: %w", err)
	}
	a.oplog = oplog.New(a.db, a.logger.Named("oplog"))
	return nil
}

// initLimiter picks the Redis limiter when REDIS_ADDR is set
func (a *App) initLimiter() (ratelimit.Limiter, error) {
	if a.config.RedisAddr == "" {
		a.logger.Info("Using in-memory rate limiter", zap.Duration("interval", a.config.RateLimitInterval))
		return ratelimit.NewMemory(a.config.RateLimitInterval), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.config.RedisAddr,
		Password: a.config.RedisPassword,
		DB:       a.config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", a.config.RedisAddr, err)
	}

	a.logger.Info("Using Redis rate limiter",
		zap.String("addr", a.config.RedisAddr),
		zap.Duration("interval", a.config.RateLimitInterval),
	)
	a.redis = client
	return ratelimit.NewRedis(client, a.config.RateLimitInterval), nil
}

// initBot wires the workflow engine to the Telegram bot
func (a *App) initBot(limiter ratelimit.Limiter) error {
	api, err := bot.NewAPI(a.config.TelegramToken, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	remote := midas.NewClient(a.config.MidasBaseURL, a.config.MidasAPIKey, a.config.MidasTimeout, a.logger.Named("midas"))
	a.sessions = session.NewMemoryStore()

	engine := workflow.New(workflow.Deps{
		Remote:    remote,
		Directory: a.directory,
		Log:       a.oplog,
		Gate:      ratelimit.NewGate(a.config.OwnerID, limiter, a.logger.Named("ratelimit")),
		Sessions:  a.sessions,
		Messenger: bot.NewMessenger(api),
		Logger:    a.logger.Named("workflow"),
	}, workflow.Options{
		OwnerID:           a.config.OwnerID,
		AdminChannelID:    a.config.AdminChannelID,
		BulkStepDelay:     a.config.BulkStepDelay,
		LookupPause:       a.config.LookupPause,
		DefaultTraderDays: a.config.TraderDefaultDays,
		SupportContact:    a.config.SupportContact,
		Location:          a.config.Location(),
	})

	a.bot = bot.NewBot(api, engine, a.logger.Named("bot"))
	a.logger.Info("Bot created successfully", zap.Int64("owner_id", a.config.OwnerID))
	return nil
}

// initHTTPServer initializes the HTTP server for health checks, webhook
// and the admin API
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		fmt.Fprintf(w, "UC Trader Bot is running (mode: %s, active sessions: %d)", mode, a.sessions.Active())
	})

	// Webhook endpoint (only used in webhook mode)
	if a.config.WebhookMode {
		mux.HandleFunc("/telegram-webhook", a.bot.WebhookHandler(a.config.WebhookSecret))
	}

	admin := bot.NewHTTPServer(a.config.TelegramToken, a.config.OwnerID, a.directory, a.oplog, a.logger.Named("admin"))
	admin.RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL, a.config.WebhookSecret); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured. Bot will receive updates via HTTP endpoint /telegram-webhook")
	} else {
		go func() {
			a.logger.Info("Starting bot in POLLING mode...")
			if err := a.bot.Start(ctx); err != nil {
				a.logger.Error("Polling stopped", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	defer a.logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.bot.Stop(ctx); err != nil {
		a.logger.Error("Updates still running at shutdown", zap.Error(err))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Error closing Redis client", zap.Error(err))
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
