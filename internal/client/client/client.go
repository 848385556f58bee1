package client

import (
	"context"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
)

// CreateResponse is the backend's answer to a successful create.
type CreateResponse struct {
	// ID is the server-assigned id, normalized to a string.
	ID     string
	Status int
}

// Client talks to the NutriTrack backend.
type Client interface {
	// Create POSTs body to the collection of kind.
	Create(ctx context.Context, kind models.Kind, body []byte) (*CreateResponse, error)
	// Ping reports ErrUnavailable when the backend cannot be reached.
	Ping(ctx context.Context) error
	// DeployColor returns the current blue/green deployment color.
	DeployColor(ctx context.Context) (string, error)
}
