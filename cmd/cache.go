package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/batch"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/metrics"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Face cache management commands",
	Long:  `Commands for filling, inspecting and cleaning the local face cache file.`,
}

var cacheEncodeCmd = &cobra.Command{
	Use:   "encode <dir>",
	Short: "Extract faces from every image in a directory",
	Long: `Extract face embeddings from every .jpg, .jpeg and .png file in a directory
and store them in the face cache. Images that fail to decode or extract are
stored without faces. The cache file is written once at the end.

Examples:
  # Encode a folder
  face-finder cache encode ./photos

  # Include subdirectories and look for smaller faces
  face-finder cache encode ./photos --recursive --upsample 1`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheEncode,
}

var cacheAddCmd = &cobra.Command{
	Use:   "add <image>...",
	Short: "Extract faces from the given images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheAdd,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheEncodeCmd)
	cacheCmd.AddCommand(cacheAddCmd)

	for _, c := range []*cobra.Command{cacheEncodeCmd, cacheAddCmd} {
		c.Flags().Int("upsample", 0, "Upsample the image N times before detection (overrides UPSAMPLE)")
		c.Flags().Int("concurrency", 0, "Number of parallel extractions (overrides BATCH_CONCURRENCY)")
		c.Flags().Bool("no-progress", false, "Hide the progress bar")
	}
	cacheEncodeCmd.Flags().Bool("recursive", false, "Descend into subdirectories")
}

// newDriver wires a batch driver from config and the shared encode flags.
func newDriver(cmd *cobra.Command, cfg *config.Config) (*batch.Driver, batch.Options, func() error, error) {
	if cmd.Flags().Changed("upsample") {
		cfg.Batch.Upsample = mustGetInt(cmd, "upsample")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Batch.Concurrency = mustGetInt(cmd, "concurrency")
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, batch.Options{}, nil, err
	}
	ext, err := newExtractor(cfg)
	if err != nil {
		return nil, batch.Options{}, nil, err
	}

	opts := []batch.Option{
		batch.WithLogger(newLogger(cfg)),
		batch.WithMetrics(metrics.New(prometheus.NewRegistry())),
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithExtensions(cfg.Batch.Extensions),
	}
	if !mustGetBool(cmd, "no-progress") {
		opts = append(opts, batch.WithProgress(os.Stderr))
	}

	fmt.Printf("Face cache: %s (%d images)\n", store.Path(), store.Len())
	return batch.New(store, ext, opts...), batch.Options{Upsample: cfg.Batch.Upsample}, ext.Close, nil
}

func printSummary(sum batch.Summary) {
	fmt.Printf("\nCompleted: %d images in %s\n", sum.Images, sum.Duration.Round(time.Millisecond))
	fmt.Printf("Faces found: %d\n", sum.Faces)
	fmt.Printf("Images without faces: %d, failed: %d\n", sum.NoFace, sum.Failed)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCacheEncode(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	driver, opts, closeExt, err := newDriver(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeExt()
	opts.Recursive = mustGetBool(cmd, "recursive")

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := driver.EncodeDir(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", args[0], err)
	}
	printSummary(sum)
	return nil
}

func runCacheAdd(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	driver, opts, closeExt, err := newDriver(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeExt()

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := driver.EncodeFiles(ctx, args, opts)
	if err != nil {
		return fmt.Errorf("encoding images: %w", err)
	}
	printSummary(sum)
	return nil
}
