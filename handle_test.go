package lava

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleNull(t *testing.T) {
	assert.True(t, NullHandle.IsNull())
	assert.Equal(t, "null", NullHandle.String())
	assert.True(t, Fence(NullHandle).IsNull())

	h := makeHandle(0, 0)
	assert.False(t, h.IsNull())
	assert.Equal(t, "#0.0", h.String())
}

func TestArenaInsertGet(t *testing.T) {
	var a Arena[string]
	h1 := a.Insert("one")
	h2 := a.Insert("two")
	require.NotEqual(t, h1, h2)

	v, ok := a.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	v, ok = a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "two", v)
	assert.Equal(t, 2, a.Len())

	_, ok = a.Get(NullHandle)
	assert.False(t, ok)
	_, ok = a.Get(makeHandle(7, 0))
	assert.False(t, ok)
}

func TestArenaStaleHandle(t *testing.T) {
	var a Arena[int]
	h := a.Insert(1)

	v, ok := a.Remove(h)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 0, a.Len())

	_, ok = a.Remove(h)
	assert.False(t, ok, "double remove")

	// The slot is reused with a new generation.
	h2 := a.Insert(2)
	assert.Equal(t, h.slot(), h2.slot())
	assert.NotEqual(t, h, h2)

	_, ok = a.Get(h)
	assert.False(t, ok, "stale handle must not alias the new value")
	v, ok = a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestArenaEach(t *testing.T) {
	var a Arena[int]
	h0 := a.Insert(10)
	a.Insert(20)
	a.Insert(30)
	a.Remove(h0)

	var seen []int
	a.Each(func(h Handle, v int) {
		got, ok := a.Get(h)
		require.True(t, ok)
		assert.Equal(t, v, got)
		seen = append(seen, v)
	})
	assert.Equal(t, []int{20, 30}, seen)
}
