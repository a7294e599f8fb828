package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facecache"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/imagefs"
)

var compareCmd = &cobra.Command{
	Use:   "compare <query-image> [candidate-image]",
	Short: "Compare the face of one image with every face of another",
	Long: `Compare the single face of the query image with every face of the candidate
image and report whether any of them matches.

Images are taken from the face cache. An image that is not cached is run
through the configured extractor instead; the cache is not modified.

With --all the cached query image is compared with every other cached image
and all metrics are printed, matching or not.

Examples:
  face-finder compare photos/me.jpg photos/party.jpg
  face-finder compare photos/me.jpg --all --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	addThresholdFlags(compareCmd)
	compareCmd.Flags().Bool("json", false, "Output as JSON")
	compareCmd.Flags().Bool("all", false, "Compare the query with every cached image")
}

// CompareOutput is the JSON output of the compare command
type CompareOutput struct {
	Query     string             `json:"query"`
	Candidate string             `json:"candidate"`
	Metrics   []facematch.Metric `json:"metrics"`
	Match     bool               `json:"match"`
	FaceIndex int                `json:"face_index"`
}

// recordLoader returns cached records and extracts the rest on demand.
type recordLoader struct {
	cfg   *config.Config
	store *facecache.Store
	ext   closableExtractor
}

func (l *recordLoader) load(ctx context.Context, path string) (face.Record, error) {
	key := imagefs.NormalizeKey(path)
	rec, err := l.store.Get(key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, face.ErrNotFound) {
		return face.Record{}, err
	}

	if l.ext == nil {
		if l.ext, err = newExtractor(l.cfg); err != nil {
			return face.Record{}, err
		}
	}
	img, err := imagefs.Decode(path)
	if err != nil {
		return face.Record{}, err
	}
	rec, err = l.ext.Extract(ctx, img, l.cfg.Batch.Upsample)
	if err != nil {
		return face.Record{}, fmt.Errorf("extracting faces from %s: %w", key, err)
	}
	return rec, nil
}

func (l *recordLoader) Close() error {
	if l.ext == nil {
		return nil
	}
	return l.ext.Close()
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	thresholds := thresholdsFromFlags(cmd, cfg)
	if err := thresholds.Validate(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "all") {
		if len(args) != 1 {
			return errors.New("--all takes only the query image")
		}
		return compareAll(store, imagefs.NormalizeKey(args[0]), thresholds, mustGetBool(cmd, "json"))
	}
	if len(args) != 2 {
		return errors.New("a candidate image is required unless --all is given")
	}
	loader := &recordLoader{cfg: cfg, store: store}
	defer loader.Close()

	ctx, cancel := signalContext()
	defer cancel()

	query, err := loader.load(ctx, args[0])
	if err != nil {
		return err
	}
	candidate, err := loader.load(ctx, args[1])
	if err != nil {
		return err
	}

	metrics, err := facematch.CompareRecords(query, candidate)
	if err != nil {
		return fmt.Errorf("comparing %s with %s: %w", args[0], args[1], err)
	}
	idx, ok, err := facematch.AnyMatch(query, candidate, thresholds)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return printJSON(CompareOutput{
			Query:     args[0],
			Candidate: args[1],
			Metrics:   metrics,
			Match:     ok,
			FaceIndex: idx,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tEUCLIDEAN\tCOSINE\tSCORE\tMATCH")
	for i, m := range metrics {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%v\n", i, m.Euclidean, m.Cosine, m.Combined, facematch.IsMatch(m, thresholds))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if ok {
		fmt.Printf("\nMatch: face %d of %s\n", idx, args[1])
	} else {
		fmt.Printf("\nNo matching face in %s\n", args[1])
	}
	return nil
}

func compareAll(store *facecache.Store, query string, thresholds facematch.Thresholds, jsonOutput bool) error {
	all, err := facematch.FindSimilarities(store, query)
	if err != nil {
		return fmt.Errorf("comparing %s: %w", query, err)
	}
	if jsonOutput {
		return printJSON(all)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tFACE\tEUCLIDEAN\tCOSINE\tSCORE\tMATCH")
	for _, key := range slices.Sorted(maps.Keys(all)) {
		metrics := all[key]
		if len(metrics) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\n", key)
			continue
		}
		for i, m := range metrics {
			fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\t%v\n", key, i, m.Euclidean, m.Cosine, m.Combined, facematch.IsMatch(m, thresholds))
		}
	}
	return w.Flush()
}
