package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"constellationFinder/config"
	"constellationFinder/logging"
	"constellationFinder/storage"
)

var rootCmd = &cobra.Command{
	Use:   "constellation-finder",
	Short: "Sky narration, photo annotation and an astronomy assistant",
	Long: `constellation-finder serves the sky explorer web app: it records a
browser location, asks a language model which constellations are up,
annotates camera frames and uploaded photos, and answers questions by
text or voice.

Examples:
  constellation-finder serve --port 8080
  constellation-finder migrate
  constellation-finder history --limit 10
  constellation-finder purge-owner alice --confirm`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并按配置初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	return cfg, nil
}

// openStore opens the configured backend for one-shot commands.
// Unlike serve, an unreachable postgres is an error here.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.Storage.PostgresURL, cfg.Storage.EmbeddingDim)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("backend %q keeps no data between runs; set storage.backend to sqlite or postgres", cfg.Storage.Backend)
	}
}
