package edge

import (
	"context"
	"io"
	"net/http"
	"strconv"
)

// fetched is an upstream response read into memory up to MaxEntryBytes.
// Larger bodies keep the rest of the stream open and are never stored.
type fetched struct {
	status int
	header http.Header
	body   []byte
	rest   io.ReadCloser
	// entry is set for complete GET 200 responses.
	entry *Entry
}

func (c *Controller) fetch(ctx context.Context, out *http.Request) (*fetched, error) {
	resp, err := c.proxy.fetcher.Do(out.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	limit := c.opts.MaxEntryBytes
	buf, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	header := resp.Header.Clone()
	stripHop(header)
	f := &fetched{status: resp.StatusCode, header: header, body: buf}

	if int64(len(buf)) > limit {
		f.rest = resp.Body
		return f, nil
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out.Method == http.MethodGet {
		f.entry = c.newEntry(out, resp, buf)
	}
	return f, nil
}

func (f *fetched) write(w http.ResponseWriter, s Strategy, tag string) {
	h := w.Header()
	for k, v := range f.header {
		h[k] = v
	}
	if f.rest == nil {
		h.Set("Content-Length", strconv.Itoa(len(f.body)))
	}
	setEdgeHeaders(w, s, tag)
	w.WriteHeader(f.status)
	_, _ = w.Write(f.body)

	if f.rest != nil {
		_, _ = io.Copy(w, f.rest)
		f.close()
	}
}

func (f *fetched) close() {
	if f.rest != nil {
		f.rest.Close()
		f.rest = nil
	}
}
