package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "archives"))
	assert.NoError(t, err)
	return store
}

func writeLocalFile(t *testing.T, path, content string) {
	t.Helper()
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestPublishAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "trace.log")
	writeLocalFile(t, src, "trace bytes")

	assert.NoError(t, store.Publish(ctx, src, "captures/firefox/trace.log"))

	dst := filepath.Join(dir, "fetched.log")
	assert.NoError(t, store.Fetch(ctx, "captures/firefox/trace.log", dst))

	data, err := os.ReadFile(dst)
	assert.NoError(t, err)
	assert.Equal(t, "trace bytes", string(data))
}

func TestFetchMissingArchive(t *testing.T) {
	store := newTestStore(t)
	err := store.Fetch(context.Background(), "nope/missing.log", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "a.log")
	writeLocalFile(t, src, "x")
	assert.NoError(t, store.Publish(ctx, src, "a.log"))

	ok, err := store.Exists(ctx, "a.log")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "b.log")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "a.log")
	writeLocalFile(t, src, "x")
	assert.NoError(t, store.Publish(ctx, src, "a.log"))

	assert.NoError(t, store.Delete(ctx, "a.log"))
	assert.NoError(t, store.Delete(ctx, "a.log"))

	ok, err := store.Exists(ctx, "a.log")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestListPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"cpu.0", "cpu.1", "cpu.2"} {
		src := filepath.Join(dir, name)
		writeLocalFile(t, src, name)
		assert.NoError(t, store.Publish(ctx, src, filepath.Join("captures/run1", name)))
	}

	other := filepath.Join(dir, "other.log")
	writeLocalFile(t, other, "other")
	assert.NoError(t, store.Publish(ctx, other, "captures/run2/other.log"))

	archives, err := store.List(ctx, "captures/run1")
	assert.NoError(t, err)
	sort.Strings(archives)
	assert.Equal(t, []string{
		"captures/run1/cpu.0",
		"captures/run1/cpu.1",
		"captures/run1/cpu.2",
	}, archives)
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	store := newTestStore(t)
	archives, err := store.List(context.Background(), "does/not/exist")
	assert.NoError(t, err)
	assert.Empty(t, archives)
}

func TestContextCancellation(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Fetch(ctx, "a", "b"))
	assert.Error(t, store.Publish(ctx, "a", "b"))
	_, err := store.List(ctx, "")
	assert.Error(t, err)
}
