package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/cardbot/internal/ai"
	"github.com/lalithlochan/cardbot/internal/api"
	"github.com/lalithlochan/cardbot/internal/bot"
	"github.com/lalithlochan/cardbot/internal/circuitbreaker"
	"github.com/lalithlochan/cardbot/internal/config"
	"github.com/lalithlochan/cardbot/internal/db"
	"github.com/lalithlochan/cardbot/internal/dispatch"
	"github.com/lalithlochan/cardbot/internal/metrics"
	"github.com/lalithlochan/cardbot/internal/notion"
	"github.com/lalithlochan/cardbot/internal/observ"
	"github.com/lalithlochan/cardbot/internal/redis"
	"github.com/lalithlochan/cardbot/internal/rules"
	"github.com/lalithlochan/cardbot/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	discordgo.Logger = observ.DiscordLogger(logger)

	logger.Info("starting cardbot",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("config_backend", cfg.ConfigBackend),
	)

	ctx := context.Background()

	// Channel config storage
	var store db.Store
	switch cfg.ConfigBackend {
	case config.BackendPostgres:
		database, err := db.New(ctx, db.Config{
			URL:      cfg.DatabaseURL,
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		store = db.NewRepository(database, logger)
		logger.Info("channel configs stored in postgres", zap.String("database", cfg.DBName))
	default:
		store = db.NewFileStore(cfg.ConfigPath, logger)
		logger.Info("channel configs stored in file", zap.String("path", cfg.ConfigPath))
	}

	notionClient, err := notion.NewClient(notion.Config{
		Token:      cfg.NotionToken,
		BaseURL:    cfg.NotionBaseURL,
		APIVersion: cfg.NotionAPIVersion,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create notion client: %w", err)
	}

	// Thread summaries are optional
	var summarizer bot.Summarizer
	if cfg.AIEnabled {
		aiClient, err := ai.NewClient(ai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}, logger)
		if err != nil {
			logger.Warn("AI summaries disabled", zap.Error(err))
		} else {
			summarizer = aiClient
		}
	}

	// Redis backs webhook delivery dedupe and rate limiting when configured
	var (
		deduper     *redis.Deduper
		rateLimiter *redis.RateLimiter
	)
	redisConfig := redis.Config{
		URL:      cfg.RedisURL,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	if redisConfig.Enabled() {
		redisClient, err := redis.New(ctx, redisConfig, logger)
		if err != nil {
			logger.Warn("redis unavailable, webhook dedupe and rate limiting disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			deduper = redis.NewDeduper(redisClient, logger, redis.DeliveryTTL)
			if cfg.WebhookRateLimit > 0 {
				rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
					Limit:  cfg.WebhookRateLimit,
					Window: time.Minute,
				})
			}
		}
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	session.LogLevel = observ.DiscordLogLevel(logger.Level())

	cardBot := bot.New(session, store, notionClient, summarizer, bot.Config{
		GuildID:        cfg.DiscordGuildID,
		SessionTimeout: cfg.WizardTimeout,
	}, logger)
	defer cardBot.Close()
	session.AddHandler(cardBot.HandleInteraction)
	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("connected to discord",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)),
		)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer session.Close()

	if err := cardBot.RegisterCommands(session.State.User.ID); err != nil {
		return err
	}

	// Webhook pipeline: listener -> queue -> single worker -> evaluator -> dispatcher
	var (
		target  dispatch.Dispatcher
		members dispatch.MemberResolver
	)
	if cfg.DispatchMode == config.DispatchLog {
		logDispatcher := dispatch.NewLogDispatcher(logger)
		target, members = logDispatcher, logDispatcher
		logger.Warn("notifications are logged, not delivered", zap.String("dispatch_mode", cfg.DispatchMode))
	} else {
		discordDispatcher := dispatch.NewDiscordDispatcher(session, logger)
		target, members = discordDispatcher, discordDispatcher
	}
	breakerConfig := circuitbreaker.DefaultConfig("discord")
	breakerConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.SetCircuitState(name, int(to))
	}
	breaker := circuitbreaker.New(breakerConfig, logger)
	dispatcher := circuitbreaker.NewProtectedDispatcher(target, breaker, logger)

	evaluator := rules.NewEvaluator(store, dispatcher, members, logger)
	queue := worker.NewQueue(cfg.WebhookQueueSize)
	w := worker.New(queue, notionClient, evaluator, worker.Config{}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go w.Start(workerCtx)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	var handler *api.Handler
	if deduper != nil {
		handler = api.NewHandlerWithDeduper(logger, queue, deduper)
	} else {
		handler = api.NewHandler(logger, queue)
	}
	handler.WatchBreaker(dispatcher.Breaker())

	r.Group(func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))
		r.Post("/notion-webhook", handler.NotionWebhook)
	})
	r.Get("/health", handler.Health)
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("webhook listener started", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully", zap.Int("events_dropped", queue.Len()))
	}

	return nil
}
