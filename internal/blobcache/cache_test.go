package blobcache

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOf_DeterministicAndDistinct(t *testing.T) {
	a := []byte("clipboard one")
	b := []byte("clipboard two")

	assert.Equal(t, HashOf(a), HashOf(append([]byte{}, a...)))
	assert.NotEqual(t, HashOf(a), HashOf(b))
	assert.Len(t, HashOf(nil), 64)
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashOf(nil))
}

func TestCache_SetReplacesWholesale(t *testing.T) {
	c := New()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	_, ok := c.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, "", c.Hash("alice"))

	c.Set("alice", []byte("v1"), "h1")
	r := c.Set("alice", []byte("version-2"), "h2")

	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, r, got)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, []byte("version-2"), got.Bytes)
	assert.Equal(t, "h2", got.Hash)
	assert.Equal(t, 9, got.SizeBytes)
	assert.Equal(t, fixed, got.CapturedAt)
}

func TestCache_IsSameBytes(t *testing.T) {
	c := New()
	assert.False(t, c.IsSameBytes("bob", []byte("x")))

	c.Set("bob", []byte("abc"), "h")
	assert.True(t, c.IsSameBytes("bob", []byte("abc")))
	assert.False(t, c.IsSameBytes("bob", []byte("abd")))
	assert.False(t, c.IsSameBytes("bob", []byte("abcd")))
	assert.False(t, c.IsSameBytes("bob", nil))
}

func TestCache_DeleteOwnersClear(t *testing.T) {
	c := New()
	c.Set("b", nil, "")
	c.Set("a", nil, "")
	assert.Equal(t, []string{"a", "b"}, c.Owners())

	c.Delete("a")
	assert.Equal(t, []string{"b"}, c.Owners())

	c.Clear()
	assert.Empty(t, c.Owners())
}

func TestCache_ConcurrentSetGet(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := bytes.Repeat([]byte{byte(i)}, 10)
			c.Set("owner", data, HashOf(data))
			r, ok := c.Get("owner")
			if ok {
				assert.Equal(t, HashOf(r.Bytes), r.Hash)
			}
		}(i)
	}
	wg.Wait()
}
