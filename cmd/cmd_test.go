package cmd

import (
	"bytes"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/extractor"
	"github.com/kozaktomas/face-finder/internal/face"
)

func TestSummarizeRecords(t *testing.T) {
	records := map[string]face.Record{
		"none.jpg":  {},
		"one.jpg":   {Embeddings: []face.Embedding{make(face.Embedding, 128)}},
		"two.jpg":   {Embeddings: []face.Embedding{make(face.Embedding, 128), make(face.Embedding, 128)}},
		"other.jpg": {Embeddings: []face.Embedding{make(face.Embedding, 512)}},
	}

	info := summarizeRecords(maps.All(records))

	if info.Images != 4 {
		t.Errorf("Images = %d, want 4", info.Images)
	}
	if info.Faces != 4 {
		t.Errorf("Faces = %d, want 4", info.Faces)
	}
	if info.NoFace != 1 || info.MultiFace != 1 {
		t.Errorf("NoFace = %d, MultiFace = %d, want 1 and 1", info.NoFace, info.MultiFace)
	}
	if !slices.Equal(info.Dims, []int{128, 512}) {
		t.Errorf("Dims = %v, want [128 512]", info.Dims)
	}
}

func TestMissingImages(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.jpg")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Jose\u0301.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	composedKey := filepath.Join(dir, "Jos\u00e9.jpg")
	gone := filepath.Join(dir, "gone.jpg")

	got := missingImages(slices.Values([]string{gone, present, composedKey}))

	if !slices.Equal(got, []string{gone}) {
		t.Errorf("missingImages() = %v, want [%s]", got, gone)
	}
}

func TestRelativeTo(t *testing.T) {
	dir := t.TempDir()
	link := relativeTo(filepath.Join(dir, "data", "image_grid.html"))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"sibling directory", filepath.Join(dir, "photos", "a.jpg"), "../photos/a.jpg"},
		{"same directory", filepath.Join(dir, "data", "b.jpg"), "b.jpg"},
		{"space is escaped", filepath.Join(dir, "photos", "c d.jpg"), "../photos/c%20d.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := link(tt.path); got != tt.want {
				t.Errorf("link(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestThresholdsFromFlags(t *testing.T) {
	cfg := config.Defaults()
	cfg.Match.Euclidean = 0.5
	cfg.Match.Cosine = 0.9

	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "x"}
		addThresholdFlags(c)
		return c
	}

	t.Run("config when flags unset", func(t *testing.T) {
		got := thresholdsFromFlags(newCmd(), cfg)
		if got.Euclidean != 0.5 || got.Cosine != 0.9 {
			t.Errorf("got %+v, want config values", got)
		}
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		c := newCmd()
		if err := c.Flags().Set("cosine", "0.99"); err != nil {
			t.Fatal(err)
		}
		got := thresholdsFromFlags(c, cfg)
		if got.Euclidean != 0.5 || got.Cosine != 0.99 {
			t.Errorf("got %+v, want euclidean 0.5 cosine 0.99", got)
		}
	})
}

func TestNewExtractor(t *testing.T) {
	cfg := config.Defaults()
	cfg.Extractor.Kind = "magic"

	if _, err := newExtractor(cfg); err == nil {
		t.Error("expected error for unknown extractor kind")
	}

	cfg.Extractor.Kind = ""
	if _, err := newExtractor(cfg); !extractor.DlibAvailable && err == nil {
		t.Error("default extractor is dlib and must fail in builds without it")
	}

	cfg.Extractor.Kind = "http"
	ext, err := newExtractor(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ext.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)

	out := buf.String()
	for _, want := range []string{"face-finder dev", "Commit: unknown", runtime.Version(), "dlib:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestFlagHelpers(t *testing.T) {
	c := &cobra.Command{Use: "x"}
	c.Flags().Int("count", 3, "")

	if got := mustGetInt(c, "count"); got != 3 {
		t.Errorf("mustGetInt() = %d, want 3", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for an unregistered flag")
		}
	}()
	mustGetBool(c, "missing")
}
