package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/facecache"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/imagefs"
	"github.com/kozaktomas/face-finder/internal/render"
)

var similarCmd = &cobra.Command{
	Use:   "similar <query-image>",
	Short: "Rank cached images by similarity to the face in a query image",
	Long: `Rank the cached images by how similar their faces are to the single face
of the query image. The query image must already be in the face cache and
must contain exactly one face.

A candidate face matches when its euclidean distance is at most --euclidean
or its cosine similarity is at least --cosine. Matches are ordered by the
combined score (euclidean distance + |cosine - 1|), lowest first.

Examples:
  # Ten best matches as a table
  face-finder similar photos/me.jpg --top-k 10

  # Stricter thresholds, JSON output
  face-finder similar photos/me.jpg --euclidean 0.5 --cosine 0.95 --json

  # Write an HTML grid of the matches
  face-finder similar photos/me.jpg --html data/image_grid.html`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("top-k", 0, "Maximum number of matches (overrides TOP_K)")
	addThresholdFlags(similarCmd)
	similarCmd.Flags().Bool("json", false, "Output as JSON")
	similarCmd.Flags().String("html", "", "Write an HTML report to this file (e.g. "+render.DefaultPath+")")
}

func addThresholdFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("euclidean", facematch.DefaultEuclideanThreshold, "Maximum euclidean distance for a match (overrides EUCLIDEAN_THRESHOLD)")
	cmd.Flags().Float64("cosine", facematch.DefaultCosineThreshold, "Minimum cosine similarity for a match (overrides COSINE_THRESHOLD)")
}

// thresholdsFromFlags returns the configured thresholds with explicit flags applied.
func thresholdsFromFlags(cmd *cobra.Command, cfg *config.Config) facematch.Thresholds {
	t := cfg.Match.Thresholds()
	if cmd.Flags().Changed("euclidean") {
		t.Euclidean = mustGetFloat64(cmd, "euclidean")
	}
	if cmd.Flags().Changed("cosine") {
		t.Cosine = mustGetFloat64(cmd, "cosine")
	}
	return t
}

// SimilarOutput is the JSON output of the similar command
type SimilarOutput struct {
	Query      string                  `json:"query"`
	TopK       int                     `json:"top_k"`
	Thresholds facematch.Thresholds    `json:"thresholds"`
	Matches    []facematch.RankedMatch `json:"matches"`
}

func runSimilar(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	topK := cfg.Match.TopK
	if cmd.Flags().Changed("top-k") {
		topK = mustGetInt(cmd, "top-k")
	}
	thresholds := thresholdsFromFlags(cmd, cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	query := imagefs.NormalizeKey(args[0])
	matches, err := facematch.Rank(store, query, thresholds, topK)
	if err != nil {
		return fmt.Errorf("ranking %s: %w", query, err)
	}

	if htmlPath := mustGetString(cmd, "html"); htmlPath != "" {
		if err := writeReport(store, query, matches, htmlPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", htmlPath)
	}

	if mustGetBool(cmd, "json") {
		if matches == nil {
			matches = []facematch.RankedMatch{}
		}
		return printJSON(SimilarOutput{Query: query, TopK: topK, Thresholds: thresholds, Matches: matches})
	}

	if len(matches) == 0 {
		fmt.Println("No similar images found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tEUCLIDEAN\tCOSINE\tFACE\tIMAGE")
	for i, m := range matches {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%d\t%s\n", i+1, m.Combined, m.Euclidean, m.Cosine, m.FaceIndex, m.CandidateID)
	}
	return w.Flush()
}

func writeReport(store *facecache.Store, query string, matches []facematch.RankedMatch, path string) error {
	qrec, err := store.Get(query)
	if err != nil {
		return err
	}
	b := render.NewBuilder(query, render.WithImageURL(relativeTo(path))).QueryFace(qrec)
	for _, m := range matches {
		rec, err := store.Get(m.CandidateID)
		if err != nil {
			return err
		}
		b.AddFace(m.CandidateID, m.Combined, rec, m.FaceIndex)
	}

	report, err := b.Build()
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}
	return report.WriteFile(path)
}

// relativeTo links images relative to the directory of the report file,
// using the name the file has on disk.
func relativeTo(reportPath string) func(string) string {
	return func(path string) string {
		if onDisk, err := imagefs.Locate(path); err == nil {
			path = onDisk
		}
		base, err := filepath.Abs(filepath.Dir(reportPath))
		if err != nil {
			return path
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		rel, err := filepath.Rel(base, abs)
		if err != nil {
			return path
		}
		return (&url.URL{Path: filepath.ToSlash(rel)}).String()
	}
}
