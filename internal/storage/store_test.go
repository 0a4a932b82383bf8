package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/Siphon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.Store {
	store, err := storage.New(filepath.Join(t.TempDir(), "downloads"))
	require.NoError(t, err)
	return store
}

func Test_New_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")

	store, err := storage.New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, store.Dir())

	// Constructing a store for an existing directory is fine
	_, err = storage.New(dir)
	assert.NoError(t, err)
}

func Test_New_RejectsFilePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := storage.New(filepath.Join(file, "child"))
	assert.Error(t, err)
}

func Test_New_RejectsExistingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "downloads")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	store, err := storage.New(file)
	assert.ErrorContains(t, err, "not a directory")
	assert.Nil(t, store)
}

func Test_Resolve(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "song.m4a"), []byte("audio"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "folder"), 0755))

	path, info, err := store.Resolve("song.m4a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "song.m4a"), path)
	assert.EqualValues(t, 5, info.Size())

	for _, name := range []string{"missing.mp4", "folder", "..", ".", "", "../downloads/song.m4a"} {
		_, _, err := store.Resolve(name)
		assert.ErrorIs(t, err, storage.ErrNotFound, "name %q should not resolve", name)
	}
}

func Test_Adopt_MovesToSanitizedName(t *testing.T) {
	store := newStore(t)
	written := filepath.Join(store.Dir(), "a|b.mp4")
	require.NoError(t, os.WriteFile(written, []byte("video"), 0644))

	path, info, err := store.Adopt(written, "a|b.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "a_b.mp4"), path)
	assert.EqualValues(t, 5, info.Size())

	_, err = os.Stat(written)
	assert.True(t, os.IsNotExist(err), "original file should have been moved")
}

func Test_Adopt_AlreadyInPlace(t *testing.T) {
	store := newStore(t)
	written := filepath.Join(store.Dir(), "clip.webm")
	require.NoError(t, os.WriteFile(written, []byte("webm"), 0644))

	path, _, err := store.Adopt(written, "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, written, path)
}

func Test_Adopt_MissingArtifact(t *testing.T) {
	store := newStore(t)

	_, _, err := store.Adopt(filepath.Join(store.Dir(), "ghost.mp4"), "ghost.mp4")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = store.Adopt("", "ghost.mp4")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
