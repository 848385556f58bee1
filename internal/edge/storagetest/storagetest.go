// Package storagetest checks that a CacheStorage implementation behaves the
// way the edge controller expects. Every backend runs it from its tests.
package storagetest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
)

func entry(key, body string) *edge.Entry {
	return &edge.Entry{
		Key:      key,
		Method:   http.MethodGet,
		URL:      key,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/plain"}},
		Body:     []byte(body),
		StoredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// Run exercises a fresh storage returned by newStorage.
func Run(t *testing.T, newStorage func(t *testing.T) edge.CacheStorage) {
	t.Run("OpenCreates", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)

		ok, err := s.Has(ctx, "nutritrack-shell-v1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Open(ctx, "nutritrack-shell-v1")
		require.NoError(t, err)

		ok, err = s.Has(ctx, "nutritrack-shell-v1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PutMatch", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		c, err := s.Open(ctx, "nutritrack-assets-v1")
		require.NoError(t, err)

		_, err = c.Match(ctx, "http://origin/app.js")
		require.ErrorIs(t, err, edge.ErrCacheMiss)

		want := entry("http://origin/app.js", "console.log(1)")
		require.NoError(t, c.Put(ctx, want))

		got, err := c.Match(ctx, "http://origin/app.js")
		require.NoError(t, err)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Body, got.Body)
		assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
		assert.True(t, want.StoredAt.Equal(got.StoredAt))

		// replace
		require.NoError(t, c.Put(ctx, entry("http://origin/app.js", "console.log(2)")))
		got, err = c.Match(ctx, "http://origin/app.js")
		require.NoError(t, err)
		assert.Equal(t, "console.log(2)", string(got.Body))
	})

	t.Run("MatchReturnsCopy", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		c, err := s.Open(ctx, "g")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, entry("k", "abc")))

		got, err := c.Match(ctx, "k")
		require.NoError(t, err)
		got.Body[0] = 'x'
		got.Header.Set("Content-Type", "changed")

		again, err := c.Match(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again.Body))
		assert.Equal(t, "text/plain", again.Header.Get("Content-Type"))
	})

	t.Run("GenerationsAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		a, err := s.Open(ctx, "nutritrack-default-v1")
		require.NoError(t, err)
		b, err := s.Open(ctx, "nutritrack-default-v2")
		require.NoError(t, err)

		require.NoError(t, a.Put(ctx, entry("k", "one")))
		_, err = b.Match(ctx, "k")
		assert.ErrorIs(t, err, edge.ErrCacheMiss)
	})

	t.Run("EntryKeysAndDelete", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		c, err := s.Open(ctx, "g")
		require.NoError(t, err)

		for _, k := range []string{"b", "a", "c"} {
			require.NoError(t, c.Put(ctx, entry(k, k)))
		}
		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)

		ok, err := c.Delete(ctx, "b")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.Delete(ctx, "b")
		require.NoError(t, err)
		assert.False(t, ok)

		keys, err = c.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, keys)
	})

	t.Run("StorageKeysAndDelete", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		for _, name := range []string{"nutritrack-shell-v2", "nutritrack-assets-v1", "other"} {
			c, err := s.Open(ctx, name)
			require.NoError(t, err)
			require.NoError(t, c.Put(ctx, entry("k", name)))
		}

		names, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"nutritrack-assets-v1", "nutritrack-shell-v2", "other"}, names)

		ok, err := s.Delete(ctx, "nutritrack-assets-v1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Delete(ctx, "nutritrack-assets-v1")
		require.NoError(t, err)
		assert.False(t, ok)

		names, err = s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"nutritrack-shell-v2", "other"}, names)

		// reopening a deleted generation starts empty
		c, err := s.Open(ctx, "nutritrack-assets-v1")
		require.NoError(t, err)
		_, err = c.Match(ctx, "k")
		assert.ErrorIs(t, err, edge.ErrCacheMiss)
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		ctx := context.Background()
		s := newStorage(t)
		c, err := s.Open(ctx, "g")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k := fmt.Sprintf("k%d", i)
				assert.NoError(t, c.Put(ctx, entry(k, k)))
			}()
		}
		wg.Wait()

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 8)
	})
}
