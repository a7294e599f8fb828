package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/facecache"
	"github.com/kozaktomas/face-finder/internal/logging"
)

var (
	cachePath string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "face-finder",
	Short: "Find photos showing the same face",
	Long: `Face Finder extracts face embeddings from a folder of photos, keeps them
in a local cache file and ranks the cached photos by how similar their faces
are to the single face of a query photo.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Face cache file (overrides FACE_CACHE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() *config.Config {
	cfg := config.Load()
	if cachePath != "" {
		cfg.Cache.Path = cachePath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Log)
}

func openStore(cfg *config.Config) (*facecache.Store, error) {
	store, err := facecache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open face cache: %w", err)
	}
	return store, nil
}
