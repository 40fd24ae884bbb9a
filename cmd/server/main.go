package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal-plan-assistant/internal/api"
	"meal-plan-assistant/internal/app"
	"meal-plan-assistant/internal/assistant"
	"meal-plan-assistant/internal/config"
	"meal-plan-assistant/internal/database"
	"meal-plan-assistant/internal/food"
	"meal-plan-assistant/internal/foodinfo"
	"meal-plan-assistant/internal/ghost"
	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/metrics"
	"meal-plan-assistant/internal/planapi"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/plansync"
	"meal-plan-assistant/internal/session"
	"meal-plan-assistant/internal/swap"
	"meal-plan-assistant/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireAssistant(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Database and repositories
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	foodRepo := food.NewRepository(db.SQL)
	vectorRepo := llm.NewVectorRepository(db.SQL)
	planRepo := planner.NewPlanRepository(db.SQL)
	sessionRepo := session.NewRepository(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)

	// 3. Plan persistence and the coordinator
	var store plansync.Store = planRepo
	if cfg.PlanAPIURL != "" {
		log.Printf("Using remote plan service at %s", cfg.PlanAPIURL)
		store = planapi.NewClient(cfg.PlanAPIURL, cfg.PlanAPIKey)
	}
	coord := plansync.NewCoordinator(store, plansync.WithObserver(logTransition))

	// 4. Language models
	var embed llm.EmbeddingGenerator
	var chat llm.ChatGenerator
	if cfg.GeminiAPIKey != "" {
		geminiClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to create Gemini client: %v", err)
		}
		defer geminiClient.Close()

		cached, err := llm.NewCachedEmbeddingGenerator(geminiClient, cfg.EmbeddingCachePath)
		if err != nil {
			log.Fatalf("Failed to load embedding cache: %v", err)
		}
		defer func() {
			if err := cached.SaveCache(); err != nil {
				log.Printf("Failed to save embedding cache: %v", err)
			}
		}()
		embed = cached
		chat = geminiClient
	}
	if cfg.GroqAPIKey != "" {
		chat = llm.NewGroqClient(cfg)
	}

	// 5. Substitute options
	var rankerOpts []food.RankerOption
	if embed != nil {
		rankerOpts = append(rankerOpts, food.WithEmbeddings(vectorRepo, embed))
	}
	ranker := food.NewRanker(foodRepo, rankerOpts...)

	var pending swap.PendingStore = session.NewSQLiteStore(sessionRepo, cfg.PendingSwapTTL)
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.PendingSwapTTL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		pending = redisStore
	} else {
		go cleanupSessions(ctx, sessionRepo, time.Hour)
	}
	provider := swap.NewProvider(ranker, coord, pending)

	// 6. Food details
	var ghostClient ghost.Client
	if cfg.GhostURL != "" {
		ghostClient = ghost.NewClient(cfg.GhostURL, cfg.GhostContentKey)
	}
	lookup := foodinfo.NewService(foodRepo, ghostClient)

	// 7. Application
	opts := []app.Option{
		app.WithFoodLookup(lookup),
		app.WithAssistant(assistant.New(chat, assistant.WithMetrics(metricsStore))),
	}
	if cfg.PlanAPIURL == "" {
		opts = append(opts, app.WithPlanLocator(planRepo))
	}
	application := app.NewApp(coord, provider, opts...)

	server := api.NewServer(application, cfg.PlanAPIKey)

	// 8. Telegram Bot
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg, application, metricsStore)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram Bot: %v", err)
		}
		server.Mount("POST /webhook", bot.Webhook())
	}

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("Meal plan server listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

func logTransition(t plansync.Transition) {
	if t.Err != nil {
		log.Printf("plan %s %v: %s (%v)", t.Owner, t.Dates, t.State, t.Err)
		return
	}
	log.Printf("plan %s %v: %s", t.Owner, t.Dates, t.State)
}

func cleanupSessions(ctx context.Context, repo *session.Repository, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.CleanupExpired(ctx); err != nil {
				log.Printf("Failed to clean up expired sessions: %v", err)
			}
		}
	}
}
