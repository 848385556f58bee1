package edge

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := NewRegistry(NewProxy(f.origin.url(t), f.net, logging.Discard()), logging.Discard())

	// nothing active: plain proxy
	w := get(reg, "/assets/main.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CacheBypass, w.Header().Get(HeaderCache))
	assert.Nil(t, reg.Active())

	w = get(reg, "http://intranet.example:8080/admin")
	assert.Equal(t, http.StatusForbidden, w.Code)

	v1 := f.controller(t, "v1")
	require.NoError(t, reg.Update(ctx, v1))
	assert.Same(t, v1, reg.Active())

	w = get(reg, "/assets/main.js")
	assert.Equal(t, "stale-while-revalidate", w.Header().Get(HeaderStrategy))
	v1.Wait()

	t.Run("same version refused", func(t *testing.T) {
		err := reg.Update(ctx, f.controller(t, "v1"))
		assert.ErrorIs(t, err, ErrSameVersion)
		assert.Same(t, v1, reg.Active())
	})

	t.Run("failed install keeps previous", func(t *testing.T) {
		f.origin.set("/manifest.json", "")
		defer f.origin.set("/manifest.json", `{"name":"NutriTrack"}`)

		v2 := f.controller(t, "v2")
		err := reg.Update(ctx, v2)
		require.ErrorIs(t, err, ErrInstallFailed)
		assert.Same(t, v1, reg.Active())
		assert.Equal(t, StateActivated, v1.State())

		names, err := f.storage.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "nutritrack-assets-v1")
		assert.NotContains(t, names, "nutritrack-shell-v2")

		w := get(reg, "/assets/main.js")
		assert.Equal(t, CacheHit, w.Header().Get(HeaderCache))
	})

	t.Run("successful update swaps and cleans up", func(t *testing.T) {
		v2 := f.controller(t, "v2")
		require.NoError(t, reg.Update(ctx, v2))
		assert.Same(t, v2, reg.Active())
		assert.Equal(t, StateRedundant, v1.State())

		names, err := f.storage.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"nutritrack-shell-v2"}, names)
	})

	reg.Shutdown()
	assert.Equal(t, StateRedundant, reg.Active().State())
}
