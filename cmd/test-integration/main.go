package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/app"
	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/logging"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	duration time.Duration
	sources  []string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "test-integration",
	Short: "Run the full pipeline against live Reddit with an in-memory store",
	RunE:  run,
}

func init() {
	rootCmd.Flags().DurationVar(&duration, "duration", 2*time.Minute, "how long to ingest before stopping")
	rootCmd.Flags().StringSliceVar(&sources, "sources", nil, "override SOURCES (streaming,listing,syndication)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	fmt.Println("🧪 Reddit Brand Monitor - Local Integration Test")
	fmt.Println("================================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.StoreBackend = "memory"
	cfg.StorageAccount = ""
	if len(sources) > 0 {
		cfg.EnabledSources = sources
	}

	level := "warn"
	if verbose {
		level = "info"
	}
	if err := logging.Setup(logging.Options{Level: level}); err != nil {
		return err
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		return err
	}

	fmt.Printf("🔍 Ingesting from %s for %v (Ctrl+C to stop early)...\n", strings.Join(cfg.EnabledSources, ", "), duration)
	if err := application.Monitor.Start(context.Background()); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-time.After(duration):
	case <-quit:
	}

	fmt.Println("⏹  Stopping and flushing...")
	if err := application.Monitor.Stop(); err != nil {
		return err
	}
	metrics := application.Monitor.Snapshot()

	result, err := application.Store.QueryMentions(context.Background(), models.MentionFilter{}, models.Page{Number: 1, PerPage: 100})
	if err != nil {
		return err
	}
	defer application.Store.Close()

	fmt.Println("\n📊 RESULTS")
	fmt.Println("📍 Items by source:")
	for source, count := range metrics.ItemsBySource {
		fmt.Printf("   • %s: %d items\n", source, count)
	}
	fmt.Printf("🔁 Duplicates skipped: %d\n", metrics.Duplicates)
	for source, msg := range metrics.SourceErrors {
		fmt.Printf("⚠️  %s: %s\n", source, msg)
	}

	fmt.Printf("💾 Persisted mentions: %d\n", result.Total)
	for i, m := range result.Results {
		if i >= 10 {
			break
		}
		fmt.Printf("   %d. [%s/%s] r/%s %s %s\n", i+1, m.Brand, m.Sentiment, m.Community, m.ID, m.Permalink)
	}

	if result.Total == 0 {
		fmt.Println("\n💡 No brand mentions in this window. Try a longer --duration or add BRANDS patterns.")
	}
	return nil
}
