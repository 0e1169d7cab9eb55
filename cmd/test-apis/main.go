package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/app"
	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/sources"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	duration time.Duration
	limit    int
)

var rootCmd = &cobra.Command{
	Use:   "test-apis",
	Short: "Run each enabled Reddit source briefly and print what it yields",
	RunE:  run,
}

func init() {
	rootCmd.Flags().DurationVar(&duration, "duration", 45*time.Second, "how long to run each source")
	rootCmd.Flags().IntVar(&limit, "limit", 5, "items to print per source")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	fmt.Println("🔍 Reddit Brand Monitor - Source Connectivity Test")
	fmt.Println("==================================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("\n📡 Polling %d subreddits for %v per source...\n", len(cfg.Subreddits), duration)
	fmt.Println(strings.Repeat("-", 40))

	for _, src := range app.NewSources(cfg) {
		testSource(src, duration, limit)
	}

	fmt.Println("\n✅ Source connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Set REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET for the streaming source")
	fmt.Println("   • Run the full pipeline with: go run ./cmd/test-integration")
	return nil
}

func testSource(src sources.Source, duration time.Duration, limit int) {
	fmt.Printf("🔸 Testing %s... ", src.GetName())

	if !src.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing credentials)\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var (
		mu    sync.Mutex
		items []models.RawItem
	)
	err := src.Run(ctx, func(_ context.Context, item models.RawItem) {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, item)
	})
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d items received)\n", len(items))
	for i, item := range items {
		if i >= limit {
			break
		}
		fmt.Printf("   📝 [%s] r/%s %s: %q\n", item.Kind, item.Community, item.ID, preview(item.Text()))
	}
}

func preview(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > 70 {
		return string(runes[:70]) + "..."
	}
	return string(runes)
}
