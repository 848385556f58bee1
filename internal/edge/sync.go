package edge

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
)

// Replayer delivers the queued records of one kind.
type Replayer interface {
	ReplayPending(ctx context.Context, kind models.Kind) (*services.ReplayReport, error)
}

// HandleSync runs the background sync registered under tag
// ("sync-meals", "sync-workouts").
func (c *Controller) HandleSync(ctx context.Context, tag string) (*services.ReplayReport, error) {
	kind, ok := models.KindFromSyncTag(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyncTag, tag)
	}
	if c.replayer == nil {
		return nil, ErrNoReplayer
	}

	rep, err := c.replayer.ReplayPending(ctx, kind)
	if err != nil {
		c.log.Error(ctx, "sync failed", "tag", tag, "error", err)
		return rep, err
	}
	c.log.Info(ctx, "sync done", "tag", tag, "delivered", rep.Delivered, "failed", rep.Failed)
	return rep, nil
}
