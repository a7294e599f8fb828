// Package render turns ranked matches into an HTML image grid.
//
// A Builder collects entries and checks that every image exists; Build
// returns an immutable Report that is rendered in a single template pass.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"strconv"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-finder/internal/face"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/imagefs"
)

// DefaultPath is where the CLI writes the report when asked to.
const DefaultPath = "data/image_grid.html"

//go:embed report.html.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(f float64) string { return strconv.FormatFloat(f*100, 'f', 2, 64) },
}).Parse(reportTemplate))

// Entry is one image in the report.
type Entry struct {
	Path  string
	URL   string
	Score float64
	Box   *facematch.RelativeBox
}

// Report is a rendered-ready, read-only result page.
type Report struct {
	Title   string
	Query   Entry
	Entries []Entry
}

// Option configures a Builder.
type Option func(*Builder)

// WithImageURL rewrites image paths into link targets, e.g. to serve them
// over HTTP instead of referencing local files.
func WithImageURL(fn func(path string) string) Option {
	return func(b *Builder) { b.imageURL = fn }
}

// WithTitle sets the page title.
func WithTitle(title string) Option {
	return func(b *Builder) { b.title = title }
}

// WithoutFileCheck skips the existence check for images.
func WithoutFileCheck() Option {
	return func(b *Builder) { b.checkFiles = false }
}

// Builder accumulates report entries.
type Builder struct {
	title      string
	imageURL   func(string) string
	checkFiles bool
	query      Entry
	entries    []Entry
}

// NewBuilder starts a report for the query image at path.
func NewBuilder(query string, opts ...Option) *Builder {
	b := &Builder{
		title:      "Image Grid",
		imageURL:   func(p string) string { return p },
		checkFiles: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.query = Entry{Path: query}
	return b
}

// QueryFace marks the query face on the query image.
func (b *Builder) QueryFace(rec face.Record) *Builder {
	b.query.Box = boxFor(rec, 0)
	return b
}

// Add appends a candidate image with its combined score.
func (b *Builder) Add(path string, score float64) *Builder {
	b.entries = append(b.entries, Entry{Path: path, Score: score})
	return b
}

// AddFace appends a candidate image and marks face faceIndex of rec on it.
func (b *Builder) AddFace(path string, score float64, rec face.Record, faceIndex int) *Builder {
	b.entries = append(b.entries, Entry{Path: path, Score: score, Box: boxFor(rec, faceIndex)})
	return b
}

func boxFor(rec face.Record, i int) *facematch.RelativeBox {
	r, ok := rec.Box(i)
	if !ok {
		return nil
	}
	box, ok := facematch.ToRelative(r, rec.Width, rec.Height)
	if !ok {
		return nil
	}
	return &box
}

// Build validates the collected images and freezes the report.
func (b *Builder) Build() (*Report, error) {
	if b.query.Path == "" {
		return nil, fmt.Errorf("%w: empty query image path", face.ErrInvalidArgument)
	}

	all := append([]Entry{b.query}, b.entries...)
	for i := range all {
		if b.checkFiles {
			if err := checkFile(all[i].Path); err != nil {
				return nil, err
			}
		}
		all[i].URL = b.imageURL(all[i].Path)
	}

	return &Report{Title: b.title, Query: all[0], Entries: all[1:]}, nil
}

func checkFile(path string) error {
	onDisk, err := imagefs.Locate(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(onDisk)
	if err != nil {
		return fmt.Errorf("checking image %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", face.ErrNotFound, path)
	}
	return nil
}

// WriteHTML renders the report to w.
func (r *Report) WriteHTML(w io.Writer) error {
	if err := tmpl.Execute(w, r); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

// WriteFile renders the report and atomically replaces path with it.
func (r *Report) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := r.WriteHTML(&buf); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", face.ErrPersistence, path, err)
	}
	return nil
}
