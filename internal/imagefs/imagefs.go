// Package imagefs finds image files on disk and decodes them.
package imagefs

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-finder/internal/face"
)

// DefaultExtensions are the image types picked up by a directory scan.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Lister enumerates image files in a directory.
type Lister struct {
	Extensions []string // matched case-insensitively; DefaultExtensions when empty
	Recursive  bool
}

// ListImages lists images in dir with the default extensions.
func ListImages(dir string, recursive bool) ([]string, error) {
	return Lister{Recursive: recursive}.List(dir)
}

// List returns the matching files under dir, sorted, exactly as the
// filesystem names them. Use NormalizeKey to turn them into store keys.
func (l Lister) List(dir string) ([]string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s", face.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", face.ErrInvalidArgument, dir)
	}

	exts := l.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !l.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExtension(d.Name(), exts) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	slices.Sort(paths)
	return paths, nil
}

// IsImage reports whether name carries one of the default image extensions.
func IsImage(name string) bool {
	return hasExtension(name, DefaultExtensions)
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// NormalizeKey cleans a path and converts it to Unicode NFC so that the
// same file yields the same store key regardless of how the filesystem
// reports its name.
func NormalizeKey(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

// Locate finds the file on disk whose normalized path equals key. Each
// path component is first tried as given and then matched against the
// directory entries by NFC form, so keys of files whose names are stored
// decomposed still resolve.
func Locate(key string) (string, error) {
	key = filepath.Clean(key)
	if _, err := os.Lstat(key); err == nil {
		return key, nil
	}

	vol := filepath.VolumeName(key)
	rest := key[len(vol):]
	cur := vol
	if strings.HasPrefix(rest, string(filepath.Separator)) {
		cur += string(filepath.Separator)
	}
	for part := range strings.SplitSeq(strings.Trim(rest, string(filepath.Separator)), string(filepath.Separator)) {
		next, err := matchEntry(cur, part)
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: image %s", face.ErrNotFound, key)
		}
		if err != nil {
			return "", fmt.Errorf("locating %s: %w", key, err)
		}
		cur = next
	}
	return cur, nil
}

func matchEntry(dir, name string) (string, error) {
	base := dir
	if base == "" {
		base = "."
	}
	joined := filepath.Join(dir, name)
	if _, err := os.Lstat(joined); err == nil {
		return joined, nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", err
	}
	want := norm.NFC.String(name)
	for _, e := range entries {
		if norm.NFC.String(e.Name()) == want {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fs.ErrNotExist
}

// Decode opens and decodes the image at path.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: image %s", face.ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
