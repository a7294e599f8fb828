package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/extractor"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer) {
	dlib := "no (rebuild with -tags dlib)"
	if extractor.DlibAvailable {
		dlib = "yes"
	}
	fmt.Fprintf(w, "face-finder %s - face similarity search over a photo cache\n", Version)
	fmt.Fprintf(w, "  Commit: %s\n", CommitSHA)
	fmt.Fprintf(w, "  Built:  %s (%s)\n", BuildDate, runtime.Version())
	fmt.Fprintf(w, "  dlib:   %s\n", dlib)
}
