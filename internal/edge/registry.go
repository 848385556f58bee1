package edge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

// Registry routes requests to the active controller and replaces it when
// a new version installs successfully.
type Registry struct {
	mu       sync.Mutex
	active   atomic.Pointer[Controller]
	fallback http.Handler
	log      logging.Logger
}

// NewRegistry returns a registry that sends requests to fallback until a
// controller is activated.
func NewRegistry(fallback http.Handler, log logging.Logger) *Registry {
	return &Registry{fallback: fallback, log: log.With("module", "registry")}
}

// Active returns the serving controller, or nil before the first update.
func (r *Registry) Active() *Controller {
	return r.active.Load()
}

// Update installs and activates next and makes it the active controller.
// On any failure the previous controller keeps serving.
func (r *Registry) Update(ctx context.Context, next *Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.active.Load()
	if prev != nil && prev.Version() == next.Version() {
		return fmt.Errorf("%w: %s", ErrSameVersion, next.Version())
	}

	if err := next.Install(ctx); err != nil {
		r.log.Warn(ctx, "update rejected", "version", next.Version(), "error", err)
		return err
	}
	if err := next.Activate(ctx); err != nil {
		r.log.Warn(ctx, "update rejected", "version", next.Version(), "error", err)
		return err
	}
	r.active.Store(next)

	if prev != nil {
		// the old controller may still be storing responses into its
		// generations; drain it and delete them again
		prev.Retire()
		prev.Wait()
		if err := next.PurgeStale(ctx); err != nil {
			r.log.Warn(ctx, "purge after update failed", "error", err)
		}
		r.log.Info(ctx, "updated", "from", prev.Version(), "to", next.Version())
	} else {
		r.log.Info(ctx, "activated", "version", next.Version())
	}
	return nil
}

// Shutdown retires the active controller and waits for its stores.
func (r *Registry) Shutdown() {
	if c := r.active.Load(); c != nil {
		c.Retire()
		c.Wait()
	}
}

// ServeHTTP hands req to the active controller, or to the fallback.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if c := r.active.Load(); c != nil {
		c.ServeHTTP(w, req)
		return
	}
	r.fallback.ServeHTTP(w, req)
}
