package imagefs

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-finder/internal/face"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", "c.jpeg", "notes.txt", "d.gif", "sub/e.jpg"} {
		touch(t, filepath.Join(dir, name))
	}

	flat, err := ListImages(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "c.jpeg"),
	}, flat)

	deep, err := ListImages(dir, true)
	require.NoError(t, err)
	assert.Len(t, deep, 4)
	assert.Contains(t, deep, filepath.Join(dir, "sub", "e.jpg"))
}

func TestListCustomExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.gif"))
	touch(t, filepath.Join(dir, "b.jpg"))

	got, err := Lister{Extensions: []string{"gif"}}.List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.gif")}, got)
}

func TestListMissingDirectory(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "nope"), false)
	require.ErrorIs(t, err, face.ErrNotFound)
}

func TestNormalizeKey(t *testing.T) {
	// "é" as e + combining acute vs. precomposed.
	decomposed := "photos/Jose\u0301.jpg"
	precomposed := "photos/Jos\u00e9.jpg"
	assert.Equal(t, precomposed, NormalizeKey(decomposed))
	assert.Equal(t, "a/b.jpg", NormalizeKey("a//b.jpg"))
}

func TestDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	got, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Bounds().Dx())
	assert.Equal(t, 4, got.Bounds().Dy())

	_, err = Decode(filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorIs(t, err, face.ErrNotFound)

	bad := filepath.Join(t.TempDir(), "bad.jpg")
	touch(t, bad)
	_, err = Decode(bad)
	require.Error(t, err)
}

func TestListKeepsOnDiskNames(t *testing.T) {
	dir := t.TempDir()
	decomposed := filepath.Join(dir, "Jose\u0301.jpg")
	touch(t, decomposed)

	got, err := ListImages(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{decomposed}, got)
	assert.Equal(t, filepath.Join(dir, "Jos\u00e9.jpg"), NormalizeKey(got[0]))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.jpg")
	touch(t, plain)
	decomposed := filepath.Join(dir, "Rene\u0301e", "Jose\u0301.jpg")
	touch(t, decomposed)

	got, err := Locate(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	got, err = Locate(filepath.Join(dir, "Ren\u00e9e", "Jos\u00e9.jpg"))
	require.NoError(t, err)
	assert.Equal(t, decomposed, got)

	_, err = Locate(filepath.Join(dir, "missing.jpg"))
	require.ErrorIs(t, err, face.ErrNotFound)
}
