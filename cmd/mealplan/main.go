package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"meal-plan-assistant/internal/app"
	"meal-plan-assistant/internal/config"
	"meal-plan-assistant/internal/database"
	"meal-plan-assistant/internal/food"
	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/metrics"
	"meal-plan-assistant/internal/planapi"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/storage"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if os.Args[1] == "migrate" {
		if err := database.RunMigrations(cfg.DatabasePath); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Database is up to date.")
		return
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	foodRepo := food.NewRepository(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)

	switch os.Args[1] {
	case "import-foods":
		if len(os.Args) < 3 {
			log.Fatal("Usage: mealplan import-foods <file.json>")
		}
		f, err := os.Open(os.Args[2])
		if err != nil {
			log.Fatalf("Failed to open %s: %v", os.Args[2], err)
		}
		defer f.Close()

		stats, err := app.ImportFoods(ctx, foodRepo, f)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		fmt.Printf("Imported %d foods (%d failed).\n", stats.Saved, stats.Failed)

	case "index-foods":
		geminiClient := mustGemini(ctx, cfg)
		defer geminiClient.Close()

		embed, err := llm.NewCachedEmbeddingGenerator(geminiClient, cfg.EmbeddingCachePath)
		if err != nil {
			log.Fatalf("Failed to load embedding cache: %v", err)
		}
		stats, err := food.NewIndexer(foodRepo, llm.NewVectorRepository(db.SQL), embed).IndexAll(ctx)
		if err != nil {
			log.Fatalf("Indexing failed: %v", err)
		}
		if err := embed.SaveCache(); err != nil {
			log.Printf("Failed to save embedding cache: %v", err)
		}
		if err := metricsStore.RecordMeta(ctx, stats.Meta); err != nil {
			log.Printf("Failed to record metrics: %v", err)
		}
		fmt.Printf("Indexed %d foods, %d unchanged, %d failed.\n", stats.Indexed, stats.Skipped, stats.Failed)

	case "enrich-foods":
		enrichCmd := flag.NewFlagSet("enrich-foods", flag.ExitOnError)
		dryRun := enrichCmd.Bool("dry-run", false, "Print enriched foods without saving")
		enrichCmd.Parse(os.Args[2:])

		if err := cfg.RequireAssistant(); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		var textGen llm.TextGenerator
		if cfg.GroqAPIKey != "" {
			textGen = llm.NewGroqClient(cfg)
		} else {
			geminiClient := mustGemini(ctx, cfg)
			defer geminiClient.Close()
			textGen = geminiClient
		}
		enrichFoods(ctx, foodRepo, food.NewEnricher(textGen), metricsStore, *dryRun)

	case "export-plans":
		exportCmd := flag.NewFlagSet("export-plans", flag.ExitOnError)
		owner := exportCmd.String("owner", "", "Owner whose plans are exported")
		dir := exportCmd.String("dir", "data/plans", "Destination directory")
		limit := exportCmd.Int("limit", 30, "Number of most recent plans")
		exportCmd.Parse(os.Args[2:])

		if *owner == "" {
			log.Fatal("-owner is required")
		}
		archive, err := storage.NewPlanArchive(*dir)
		if err != nil {
			log.Fatalf("Failed to open archive: %v", err)
		}
		plans, err := planner.NewPlanRepository(db.SQL).ListRecentByOwner(ctx, *owner, *limit)
		if err != nil {
			log.Fatalf("Failed to list plans: %v", err)
		}
		for _, p := range plans {
			if err := archive.Save(p); err != nil {
				log.Fatalf("Failed to export plan %s: %v", p.Date, err)
			}
		}
		fmt.Printf("Exported %d plans to %s.\n", len(plans), *dir)

	case "apply-swap":
		swapCmd := flag.NewFlagSet("apply-swap", flag.ExitOnError)
		planID := swapCmd.String("plan", "", "Plan identifier")
		itemID := swapCmd.String("item", "", "Item to replace")
		foodID := swapCmd.String("food", "", "Replacement food id")
		qty := swapCmd.Float64("qty", 0, "Replacement quantity; defaults to the food's serving size")
		swapCmd.Parse(os.Args[2:])

		if cfg.PlanAPIURL == "" {
			log.Fatal("PLAN_API_URL is required for apply-swap")
		}
		f, err := foodRepo.Get(ctx, *foodID)
		if err != nil {
			log.Fatalf("Failed to load food %s: %v", *foodID, err)
		}
		if f == nil {
			log.Fatalf("Food %s not found", *foodID)
		}
		quantity := *qty
		if quantity <= 0 {
			quantity = f.ServingSize
		}
		client := planapi.NewClient(cfg.PlanAPIURL, cfg.PlanAPIKey)
		plan, err := client.ApplySwap(ctx, *planID, *itemID, planner.NewItem(f.Ref(), quantity, f.Unit))
		if err != nil {
			log.Fatalf("Swap failed: %v", err)
		}
		fmt.Printf("Plan %s for %s is now at version %d.\n", plan.PlanID, plan.Date, plan.Version)

	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		affected, err := metricsStore.Cleanup(ctx, *days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func mustGemini(ctx context.Context, cfg *config.Config) *llm.GeminiClient {
	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}
	client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini client: %v", err)
	}
	return client
}

func enrichFoods(ctx context.Context, repo *food.Repository, enricher *food.Enricher, m *metrics.Store, dryRun bool) {
	foods, err := repo.List(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to list foods: %v", err)
	}
	enriched := 0
	for _, f := range foods {
		if !food.NeedsEnrichment(f) {
			continue
		}
		updated, meta, err := enricher.Enrich(ctx, f)
		if err != nil {
			log.Printf("Skipping %s: %v", f.ID, err)
			continue
		}
		if err := m.RecordMeta(ctx, meta); err != nil {
			log.Printf("Failed to record metrics: %v", err)
		}
		if dryRun {
			fmt.Printf("%s: %s (%.0f kcal/100%s)\n", updated.ID, updated.Description, updated.EnergyPer100, updated.Unit)
		} else if err := repo.Save(ctx, updated); err != nil {
			log.Printf("Failed to save %s: %v", f.ID, err)
			continue
		}
		enriched++
	}
	fmt.Printf("Enriched %d foods.\n", enriched)
}

func printUsage() {
	fmt.Println("Usage: mealplan <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  migrate            Apply database migrations")
	fmt.Println("  import-foods       Load catalog foods from a JSON file")
	fmt.Println("  index-foods        Embed catalog foods for substitute search")
	fmt.Println("  enrich-foods       Fill missing food details with the language model")
	fmt.Println("  export-plans       Write an owner's recent plans to JSON files")
	fmt.Println("  apply-swap         Replace a plan item through the remote plan service")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}
