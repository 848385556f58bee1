package edge_test

import (
	"testing"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
	"github.com/dmitrijs2005/nutritrack/internal/edge/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) edge.CacheStorage {
		return edge.NewMemoryStorage()
	})
}
