package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/imagefs"
)

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached images with their face counts",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show face cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheInfo,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <image>...",
	Short: "Remove images from the face cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRemove,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached images whose file no longer exists",
	Long: `Remove every cache entry whose image file can no longer be found on disk.
Nothing is removed implicitly by other commands; run this after deleting or
moving photos.`,
	Args: cobra.NoArgs,
	RunE: runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	cacheListCmd.Flags().Bool("json", false, "Output as JSON")
	cacheInfoCmd.Flags().Bool("json", false, "Output as JSON")
	cachePruneCmd.Flags().Bool("dry-run", false, "Only print what would be removed")
}

// CachedImage is one line of the cache listing
type CachedImage struct {
	Key   string `json:"key"`
	Faces int    `json:"faces"`
}

// CacheInfo summarizes the cache contents
type CacheInfo struct {
	Path      string `json:"path"`
	Images    int    `json:"images"`
	Faces     int    `json:"faces"`
	NoFace    int    `json:"no_face"`
	MultiFace int    `json:"multi_face"`
	Dims      []int  `json:"dims"`
}

func summarizeRecords(records iter.Seq2[string, face.Record]) CacheInfo {
	var info CacheInfo
	for _, rec := range records {
		info.Images++
		n := rec.FaceCount()
		info.Faces += n
		switch {
		case n == 0:
			info.NoFace++
		case n > 1:
			info.MultiFace++
		}
		if d := rec.Dim(); d > 0 && !slices.Contains(info.Dims, d) {
			info.Dims = append(info.Dims, d)
		}
	}
	slices.Sort(info.Dims)
	return info
}

// missingImages returns the keys whose file is gone.
func missingImages(keys iter.Seq[string]) []string {
	var missing []string
	for key := range keys {
		if _, err := imagefs.Locate(key); errors.Is(err, face.ErrNotFound) {
			missing = append(missing, key)
		}
	}
	return missing
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}

	images := make([]CachedImage, 0, store.Len())
	for key, rec := range store.All() {
		images = append(images, CachedImage{Key: key, Faces: rec.FaceCount()})
	}

	if mustGetBool(cmd, "json") {
		return printJSON(images)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACES\tIMAGE")
	for _, img := range images {
		fmt.Fprintf(w, "%d\t%s\n", img.Faces, img.Key)
	}
	return w.Flush()
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}

	info := summarizeRecords(store.All())
	info.Path = store.Path()

	if mustGetBool(cmd, "json") {
		return printJSON(info)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Cache file:\t%s\n", info.Path)
	fmt.Fprintf(w, "Images:\t%d\n", info.Images)
	fmt.Fprintf(w, "Faces:\t%d\n", info.Faces)
	fmt.Fprintf(w, "Without faces:\t%d\n", info.NoFace)
	fmt.Fprintf(w, "With several faces:\t%d\n", info.MultiFace)
	fmt.Fprintf(w, "Embedding dims:\t%v\n", info.Dims)
	if err := w.Flush(); err != nil {
		return err
	}
	if len(info.Dims) > 1 {
		fmt.Println("\nWarning: the cache mixes embedding sizes; images from different models cannot be compared.")
	}
	return nil
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}

	for _, arg := range args {
		key := imagefs.NormalizeKey(arg)
		if err := store.Remove(key); err != nil {
			return err
		}
		fmt.Printf("Removed: %s\n", key)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving face cache: %w", err)
	}
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}

	missing := missingImages(store.Keys())
	if len(missing) == 0 {
		fmt.Println("Nothing to prune.")
		return nil
	}

	dryRun := mustGetBool(cmd, "dry-run")
	for _, key := range missing {
		if dryRun {
			fmt.Printf("Would remove: %s\n", key)
			continue
		}
		if err := store.Remove(key); err != nil {
			return err
		}
		fmt.Printf("Removed: %s\n", key)
	}
	if dryRun {
		fmt.Printf("\n%d entries would be removed (dry-run)\n", len(missing))
		return nil
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("saving face cache: %w", err)
	}
	fmt.Printf("\nRemoved %d entries, %d left\n", len(missing), store.Len())
	return nil
}
