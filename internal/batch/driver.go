// Package batch runs face extraction over many images and writes the
// results to a face store.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-finder/internal/extractor"
	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/imagefs"
	"github.com/kozaktomas/face-finder/internal/logging"
	"github.com/kozaktomas/face-finder/internal/metrics"
)

const defaultConcurrency = 4

// Writer is the store the driver fills.
type Writer interface {
	Put(key string, rec face.Record) error
	Save() error
	Len() int
}

// Options control a single batch run.
type Options struct {
	Upsample  int  // passed to the extractor; must be >= 0
	Recursive bool // descend into subdirectories in EncodeDir
}

// Summary describes a finished batch run.
type Summary struct {
	Images   int           `json:"images"`
	Faces    int           `json:"faces"`
	NoFace   int           `json:"no_face"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Driver extracts faces with bounded parallelism. Only one goroutine ever
// writes to the store, and the store is saved once per run.
type Driver struct {
	store       Writer
	ext         extractor.Extractor
	log         *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	progress    io.Writer
	extensions  []string
	decode      func(path string) (image.Image, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for per-image warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMetrics records per-image outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithConcurrency sets how many images are extracted at once.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithProgress draws a progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(d *Driver) { d.progress = w }
}

// WithExtensions overrides the image extensions EncodeDir picks up.
func WithExtensions(exts []string) Option {
	return func(d *Driver) { d.extensions = exts }
}

// New creates a driver writing extraction results to store.
func New(store Writer, ext extractor.Extractor, opts ...Option) *Driver {
	d := &Driver{
		store:       store,
		ext:         ext,
		log:         logging.Discard(),
		concurrency: defaultConcurrency,
		decode:      imagefs.Decode,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EncodeDir extracts every image in dir.
func (d *Driver) EncodeDir(ctx context.Context, dir string, opts Options) (Summary, error) {
	if opts.Upsample < 0 {
		return Summary{}, fmt.Errorf("%w: upsample %d must be >= 0", face.ErrInvalidArgument, opts.Upsample)
	}
	paths, err := imagefs.Lister{Extensions: d.extensions, Recursive: opts.Recursive}.List(dir)
	if err != nil {
		return Summary{}, err
	}
	d.log.Info("encoding directory", "dir", dir, "images", len(paths), "concurrency", d.concurrency)
	return d.EncodeFiles(ctx, paths, opts)
}

type result struct {
	key     string
	rec     face.Record
	outcome string
}

// EncodeFiles extracts the given images, stores one record per image under
// its normalized key and saves the store once at the end. The paths are
// opened as given.
//
// An image that fails to decode or extract is stored as an empty record
// and counted in Summary.Failed. If ctx is cancelled no new images are
// started, but finished ones are still stored and saved; the context
// error is returned.
func (d *Driver) EncodeFiles(ctx context.Context, paths []string, opts Options) (Summary, error) {
	if opts.Upsample < 0 {
		return Summary{}, fmt.Errorf("%w: upsample %d must be >= 0", face.ErrInvalidArgument, opts.Upsample)
	}

	start := time.Now()
	bar := d.newBar(len(paths))

	results := make(chan result)
	var sum Summary
	writeDone := make(chan error, 1)
	go func() {
		var putErr error
		for r := range results {
			if putErr == nil {
				putErr = d.store.Put(r.key, r.rec)
			}
			sum.Images++
			sum.Faces += r.rec.FaceCount()
			switch r.outcome {
			case metrics.ResultNoFace:
				sum.NoFace++
			case metrics.ResultFailed:
				sum.Failed++
			}
			_ = bar.Add(1)
		}
		writeDone <- putErr
	}()

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, outcome, ok := d.process(ctx, path, opts.Upsample)
			if ok {
				results <- result{key: imagefs.NormalizeKey(path), rec: rec, outcome: outcome}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	putErr := <-writeDone
	_ = bar.Finish()

	saveStart := time.Now()
	saveErr := d.store.Save()
	if saveErr == nil {
		d.metrics.ObserveSave(d.store.Len(), time.Since(saveStart))
	}
	sum.Duration = time.Since(start)

	d.log.Info("batch finished",
		"images", sum.Images, "faces", sum.Faces, "no_face", sum.NoFace,
		"failed", sum.Failed, "duration", sum.Duration.Round(time.Millisecond))

	if putErr != nil {
		return sum, fmt.Errorf("storing records: %w", putErr)
	}
	if saveErr != nil {
		return sum, fmt.Errorf("saving store: %w", saveErr)
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// process decodes and extracts one image. ok is false when the image was
// abandoned because ctx was cancelled.
func (d *Driver) process(ctx context.Context, path string, upsample int) (rec face.Record, outcome string, ok bool) {
	start := time.Now()

	rec, err := d.extract(ctx, path, upsample)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return face.Record{}, "", false
		}
		d.log.Warn("face extraction failed", "path", path, "error", err)
		d.metrics.ObserveImage(metrics.ResultFailed, 0, time.Since(start))
		return face.Record{}, metrics.ResultFailed, true
	}

	outcome = metrics.ResultOK
	if rec.FaceCount() == 0 {
		outcome = metrics.ResultNoFace
		d.log.Debug("no face detected", "path", path)
	}
	d.metrics.ObserveImage(outcome, rec.FaceCount(), time.Since(start))
	return rec, outcome, true
}

func (d *Driver) extract(ctx context.Context, path string, upsample int) (face.Record, error) {
	img, err := d.decode(path)
	if err != nil {
		return face.Record{}, err
	}
	return d.ext.Extract(ctx, img, upsample)
}

// progressReporter is the subset of *progressbar.ProgressBar the driver uses.
type progressReporter interface {
	Add(n int) error
	Finish() error
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }

func (d *Driver) newBar(n int) progressReporter {
	if d.progress == nil {
		return nopProgress{}
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(d.progress),
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
