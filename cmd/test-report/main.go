package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/app"
	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	window    time.Duration
	outputDir string
	send      bool
	archived  string
	pruneAge  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "test-report",
	Short: "Build the mention digest from the configured store and print it",
	RunE:  run,
}

func init() {
	rootCmd.Flags().DurationVar(&window, "window", 24*time.Hour, "how far back the digest reaches")
	rootCmd.Flags().StringVar(&outputDir, "output", "test_output", "directory for the JSON copy of the digest")
	rootCmd.Flags().BoolVar(&send, "send", false, "also deliver the digest through Teams/email")
	rootCmd.Flags().StringVar(&archived, "archived", "", "list the batches archived on this day (YYYY-MM-DD) instead of querying the store")
	rootCmd.Flags().DurationVar(&pruneAge, "prune-older-than", 0, "delete archived batches older than this age")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if archived != "" || pruneAge > 0 {
		return runArchive(ctx, cfg)
	}
	cfg.StorageAccount = ""

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	digest, err := application.Monitor.BuildDigest(ctx, window)
	if err != nil {
		return err
	}

	printDigest(digest)

	path, err := writeDigest(digest)
	if err != nil {
		return err
	}
	fmt.Printf("\n📁 Digest saved to %s\n", path)

	if send {
		if !application.Notifier.Enabled() {
			return fmt.Errorf("no notification channel configured")
		}
		if err := application.Notifier.SendDigest(digest); err != nil {
			return err
		}
		fmt.Println("📨 Digest sent")
	}
	return nil
}

func runArchive(ctx context.Context, cfg *config.Config) error {
	archive, err := app.NewArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive == nil {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT is not set, no archive to read")
	}

	if pruneAge > 0 {
		removed, err := storage.PruneArchive(ctx, archive, time.Now().Add(-pruneAge))
		if err != nil {
			return err
		}
		fmt.Printf("🧹 Removed %d archived batches\n", removed)
	}

	if archived == "" {
		return nil
	}
	day, err := time.Parse("2006-01-02", archived)
	if err != nil {
		return fmt.Errorf("invalid --archived day %q: %w", archived, err)
	}

	mentions, err := storage.LoadArchivedDay(ctx, archive, day)
	if err != nil {
		return err
	}

	fmt.Printf("🗄  %d archived mentions for %s\n", len(mentions), archived)
	for i, m := range mentions {
		fmt.Printf("   %d. [%s/%s] r/%s %s %s\n", i+1, m.Brand, m.Sentiment, m.Community, m.ID, m.Permalink)
	}
	return nil
}

func printDigest(d *models.Digest) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 BRAND MENTIONS DIGEST")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: %s\n", d.Period)
	fmt.Printf("🕒 Generated: %s\n", d.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("📈 Total Mentions: %d\n", d.Total)

	fmt.Println("\n🏷  Brands:")
	for _, brand := range sortedKeys(d.ByBrand) {
		fmt.Printf("   • %-15s %d mentions\n", brand+":", d.ByBrand[brand])
	}

	fmt.Println("\n💭 Sentiment:")
	for _, label := range sortedKeys(d.BySentiment) {
		name := label
		if name == "" {
			name = "pending"
		}
		fmt.Printf("   • %-15s %d\n", name+":", d.BySentiment[label])
	}

	if len(d.Mentions) > 0 {
		fmt.Println("\n📝 Latest Mentions:")
		for i, m := range d.Mentions {
			fmt.Printf("   %d. [%s] r/%s u/%s %s\n", i+1, m.Brand, m.Community, m.Author, m.Permalink)
		}
	}
	fmt.Println(strings.Repeat("=", 70))
}

func writeDigest(d *models.Digest) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, fmt.Sprintf("digest-%s.json", d.GeneratedAt.Format("20060102-150405")))
	return path, os.WriteFile(path, data, 0644)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
