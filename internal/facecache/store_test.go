package facecache

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-finder/internal/face"
)

func sampleRecord(vals ...float32) face.Record {
	return face.Record{
		Embeddings: []face.Embedding{vals},
		Faces:      []face.Rect{{X1: 10, Y1: 20, X2: 110, Y2: 140}},
		Width:      640,
		Height:     480,
	}
}

func TestOpenAppendsExtension(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "face_encodings"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "face_encodings"+Extension), s.Path())
	assert.Equal(t, 0, s.Len())

	s, err = Open(filepath.Join(dir, "cache"+Extension))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache"+Extension), s.Path())
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "cache"))
	require.ErrorIs(t, err, face.ErrStorageUnavailable)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, face.ErrInvalidArgument)
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	require.ErrorIs(t, err, face.ErrInvalidArgument)

	_, statErr := os.Stat(dir + Extension)
	assert.True(t, os.IsNotExist(statErr), "no sibling store file is created")
}

func TestPutReplacesExistingKey(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	require.NoError(t, s.Put("k.jpg", sampleRecord(1, 2, 3)))
	replacement := face.Record{
		Embeddings: []face.Embedding{{4, 5, 6}, {7, 8, 9}},
		Width:      320,
		Height:     200,
	}
	require.NoError(t, s.Put("k.jpg", replacement))

	assert.Equal(t, 1, s.Len())
	got, err := s.Get("k.jpg")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	require.NoError(t, s.Save())
	reopened, err := Open(s.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	got, err = reopened.Get("k.jpg")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("b.jpg", sampleRecord(0.1, 0.2, 0.3)))
	require.NoError(t, s.Put("a.jpg", sampleRecord(0.4, 0.5, 0.6)))
	require.NoError(t, s.Put("empty.png", face.Record{}))
	require.NoError(t, s.Save())

	// Opening by the un-normalized name finds the saved file.
	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 3, reopened.Len())
	assert.Equal(t, []string{"a.jpg", "b.jpg", "empty.png"}, slices.Collect(reopened.Keys()))

	got, err := reopened.Get("b.jpg")
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(0.1, 0.2, 0.3), got)

	empty, err := reopened.Get("empty.png")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.FaceCount())
}

func TestOpenExistingFileKeepsName(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "legacy"))
	require.NoError(t, err)
	require.NoError(t, s.Put("x.jpg", sampleRecord(1, 2)))
	require.NoError(t, s.Save())

	custom := filepath.Join(dir, "renamed.bin")
	require.NoError(t, os.Rename(s.Path(), custom))

	reopened, err := Open(custom)
	require.NoError(t, err)
	assert.Equal(t, custom, reopened.Path())
	assert.Equal(t, 1, reopened.Len())
}

func TestPutCopiesRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	rec := sampleRecord(1, 2, 3)
	require.NoError(t, s.Put("k", rec))
	rec.Embeddings[0][0] = 99

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Embeddings[0][0])

	got.Embeddings[0][1] = 99
	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, float32(2), again.Embeddings[0][1])
}

func TestPutEmptyKey(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	require.ErrorIs(t, s.Put("", face.Record{}), face.ErrInvalidArgument)
}

func TestGetAndRemoveMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	_, err = s.Get("nope")
	require.ErrorIs(t, err, face.ErrNotFound)
	require.ErrorIs(t, s.Remove("nope"), face.ErrNotFound)

	require.NoError(t, s.Put("yes", face.Record{}))
	require.NoError(t, s.Remove("yes"))
	assert.False(t, s.Has("yes"))
}

func TestKeysSnapshotIsRestartable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put(k, face.Record{}))
	}

	keys := s.Keys()
	require.NoError(t, s.Put("d", face.Record{}))

	first := slices.Collect(keys)
	second := slices.Collect(keys)
	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, first, second)
}

func TestLoadCorruptKeepsMemory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	require.NoError(t, s.Put("a", sampleRecord(1)))

	require.NoError(t, os.WriteFile(s.Path(), []byte("definitely not zstd"), 0o644))
	require.ErrorIs(t, s.Load(), face.ErrCorruptData)
	assert.Equal(t, 1, s.Len())

	_, err = Open(s.Path())
	require.ErrorIs(t, err, face.ErrCorruptData)
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	require.ErrorIs(t, s.Load(), face.ErrNotFound)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	require.NoError(t, s.Put("a", sampleRecord(1, 2)))
	require.NoError(t, s.Save())
	require.NoError(t, s.Put("b", sampleRecord(3, 4)))
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache"+Extension, entries[0].Name())
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	require.NoError(t, os.Mkdir(dir, 0o755))

	s, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	require.NoError(t, s.Put("a", sampleRecord(1)))
	require.NoError(t, os.RemoveAll(dir))

	require.ErrorIs(t, s.Save(), face.ErrPersistence)
	assert.Equal(t, 1, s.Len())
}

func TestAllYieldsInKeyOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	require.NoError(t, s.Put("z", sampleRecord(1)))
	require.NoError(t, s.Put("m", face.Record{}))

	var keys []string
	faces := 0
	for k, rec := range s.All() {
		keys = append(keys, k)
		faces += rec.FaceCount()
	}
	assert.Equal(t, []string{"m", "z"}, keys)
	assert.Equal(t, 1, faces)
}
