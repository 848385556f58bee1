package edge

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Purpose selects which generation of a version a response is stored in.
type Purpose string

const (
	PurposeShell   Purpose = "shell"
	PurposeAssets  Purpose = "assets"
	PurposeImages  Purpose = "images"
	PurposeDefault Purpose = "default"
)

// Purposes lists every generation a version owns.
var Purposes = []Purpose{PurposeShell, PurposeAssets, PurposeImages, PurposeDefault}

// Entry is a stored response snapshot.
type Entry struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Cache is one named generation.
type Cache interface {
	// Match returns ErrCacheMiss when key is not stored.
	Match(ctx context.Context, key string) (*Entry, error)
	// Put stores entry under entry.Key, replacing any previous one.
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// CacheStorage holds named generations.
type CacheStorage interface {
	// Open returns the generation called name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	// Keys lists generation names in sorted order.
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// hop-by-hop headers are connection-scoped and never stored or forwarded.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func stripHop(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// writeEntry sends a stored response to w.
func writeEntry(w http.ResponseWriter, e *Entry) {
	h := w.Header()
	for k, v := range e.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}
