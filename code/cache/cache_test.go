package cache

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xz3dev/quacklytics-sub000/code/checksum"
)

func TestSaveGetOverwrite(t *testing.T) {
	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "cache.db"), nil)
	defer c.Close()

	blob := bytes.Repeat([]byte("parquet-bytes"), 1000)
	require.NoError(t, c.Save(ctx, "events_2024_01.parquet", blob, Origin{}))

	got, err := c.Get(ctx, "events_2024_01.parquet")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, c.Save(ctx, "events_2024_01.parquet", []byte("v2"), Origin{}))
	got, err = c.Get(ctx, "events_2024_01.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	missing, err := c.Get(ctx, "events_2024_02.parquet")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetAllAndDelete(t *testing.T) {
	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "cache.db"), nil)
	defer c.Close()

	require.NoError(t, c.Save(ctx, "b.parquet", []byte("b"), Origin{}))
	require.NoError(t, c.Save(ctx, "a.parquet", []byte("a"), Origin{}))

	entries, err := c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.parquet", entries[0].Filename)
	assert.Equal(t, []byte("a"), entries[0].Blob)
	assert.False(t, entries[0].UpdatedAt.IsZero())

	require.NoError(t, c.Delete(ctx, "a.parquet"))
	entries, err = c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.parquet", entries[0].Filename)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c := New(path, nil)
	require.NoError(t, c.Save(ctx, "a.parquet", []byte("a"), Origin{}))
	require.NoError(t, c.Close())

	c = New(path, nil)
	defer c.Close()
	got, err := c.Get(ctx, "a.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestVersionMismatchRecreates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c := New(path, nil)
	require.NoError(t, c.Save(ctx, "a.parquet", []byte("a"), Origin{}))
	require.NoError(t, c.Close())

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	c = New(path, nil)
	defer c.Close()
	entries, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNonPersistentMode(t *testing.T) {
	ctx := context.Background()
	c := New("", nil)
	assert.False(t, c.Persistent())

	require.NoError(t, c.Save(ctx, "a.parquet", []byte("a"), Origin{}))
	got, err := c.Get(ctx, "a.parquet")
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, c.Delete(ctx, "a.parquet"))
	assert.NoError(t, c.Close())
}

func TestClosedCache(t *testing.T) {
	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, c.Save(ctx, "a.parquet", []byte("a"), Origin{}))
	require.NoError(t, c.Close())

	_, err := c.Get(ctx, "a.parquet")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSaveKeepsOrigin(t *testing.T) {
	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "cache.db"), nil)
	defer c.Close()

	require.NoError(t, c.Save(ctx, "a.parquet", []byte("signups only"), Origin{Checksum: "catalog-sum", EventType: "signup"}))
	require.NoError(t, c.Save(ctx, "b.parquet", []byte("b"), Origin{}))

	entries, err := c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "catalog-sum", entries[0].Checksum)
	assert.Equal(t, "signup", entries[0].EventType)
	assert.Equal(t, checksum.Sum([]byte("b")), entries[1].Checksum)
	assert.Empty(t, entries[1].EventType)
}

func TestCloseBeforeFirstUse(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, c.Close())

	_, err := c.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, c.db)
}
