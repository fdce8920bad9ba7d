package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

func TestCurrent_ReadThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCurrent[entry](mem, "test:current")

	calls := 0
	load := func(context.Context) (entry, error) {
		calls++
		return entry{Number: 3, Title: "Three"}, nil
	}

	v, err := c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, entry{Number: 3, Title: "Three"}, v)

	v, err = c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Number)
	assert.Equal(t, 1, calls, "second read must be served from the cache")
}

func TestCurrent_Invalidate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCurrent[entry](mem, "test:current")

	n := 3
	load := func(context.Context) (entry, error) { return entry{Number: n}, nil }

	_, err := c.Get(ctx, load)
	require.NoError(t, err)

	n = 4
	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, 0, mem.Len())

	v, err := c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Number)

	// Invalidating twice is fine.
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Invalidate(ctx))
}

func TestCurrent_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCurrent[entry](mem, "test:current")

	boom := errors.New("no current season")
	_, err := c.Get(ctx, func(context.Context) (entry, error) { return entry{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mem.Len())
}

func TestCurrent_CorruptEntryIsReloaded(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Set(ctx, "test:current", []byte("{not json")))

	c := NewCurrent[entry](mem, "test:current")
	v, err := c.Get(ctx, func(context.Context) (entry, error) { return entry{Number: 7}, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v.Number)
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	buf := []byte("abc")
	require.NoError(t, mem.Set(ctx, "k", buf))
	buf[0] = 'x'

	got, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	_, err = mem.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCurrent_LoadAcrossInvalidateIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	c := NewCurrent[entry](mem, "test:current")

	// The value read by this load is superseded before it is written back.
	v, err := c.Get(ctx, func(ctx context.Context) (entry, error) {
		require.NoError(t, c.Invalidate(ctx))
		return entry{Number: 4}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, v.Number, "the caller still gets what it loaded")
	assert.Equal(t, 0, mem.Len())

	v, err = c.Get(ctx, func(context.Context) (entry, error) { return entry{Number: 3}, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v.Number)
	assert.Equal(t, 1, mem.Len())
}

func TestMemory_SetIfGeneration(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	gen, err := mem.Generation(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, mem.Delete(ctx, "k"))
	ok, err := mem.SetIfGeneration(ctx, "k", gen, []byte("old"))
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = mem.Generation(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	ok, err = mem.SetIfGeneration(ctx, "k", gen, []byte("new"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
