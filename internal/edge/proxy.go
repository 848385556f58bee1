package edge

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

// Fetcher performs outbound requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Proxy forwards requests to the origin untouched. It serves everything
// while no controller is active, and the pass-through paths afterwards.
// Absolute-form requests are forwarded only to the origin and to the
// allowed hosts; anything else is refused.
type Proxy struct {
	origin  *url.URL
	allowed map[string]struct{}
	fetcher Fetcher
	log     logging.Logger
}

// NewProxy returns a proxy for origin. allowHosts lists the extra hosts
// (host:port) that absolute-form requests may address.
func NewProxy(origin *url.URL, fetcher Fetcher, log logging.Logger, allowHosts ...string) *Proxy {
	if fetcher == nil {
		fetcher = &http.Client{}
	}
	allowed := make(map[string]struct{}, len(allowHosts))
	for _, h := range allowHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return &Proxy{origin: origin, allowed: allowed, fetcher: fetcher, log: log.With("module", "proxy")}
}

// Allowed reports whether r may be forwarded at all.
func (p *Proxy) Allowed(r *http.Request) bool {
	if !r.URL.IsAbs() || strings.EqualFold(r.URL.Host, p.origin.Host) {
		return true
	}
	_, ok := p.allowed[strings.ToLower(r.URL.Host)]
	return ok
}

// target returns the upstream URL for r and whether it belongs to the
// origin. Only absolute-form requests for another host are cross-origin.
func (p *Proxy) target(r *http.Request) (*url.URL, bool) {
	if r.URL.IsAbs() && !strings.EqualFold(r.URL.Host, p.origin.Host) {
		u := *r.URL
		u.Fragment = ""
		return &u, false
	}
	return p.resolve(r.URL.Path, r.URL.RawQuery), true
}

// resolve builds the origin URL for path and query. Cache keys are the
// String() of these URLs.
func (p *Proxy) resolve(path, rawQuery string) *url.URL {
	u := *p.origin
	if path == "" {
		path = "/"
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u
}

func (p *Proxy) key(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return p.resolve(path, "").String()
	}
	return p.resolve(u.Path, u.RawQuery).String()
}

// newRequest builds the outbound copy of r.
func (p *Proxy) newRequest(ctx context.Context, r *http.Request, withBody bool) (*http.Request, error) {
	u, _ := p.target(r)

	var body io.Reader
	if withBody && r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	stripHop(out.Header)
	if withBody {
		out.ContentLength = r.ContentLength
	}
	if r.Host != "" {
		out.Header.Set("X-Forwarded-Host", r.Host)
	}
	return out, nil
}

// ServeHTTP forwards r and copies the upstream response back. Transport
// failures answer 502, refused hosts 403.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.Allowed(r) {
		p.log.Warn(r.Context(), "refused foreign host", "host", r.URL.Host)
		setEdgeHeaders(w, StrategyPassThrough, CacheBypass)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	out, err := p.newRequest(r.Context(), r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := p.fetcher.Do(out)
	if err != nil {
		p.log.Warn(r.Context(), "pass-through failed", "url", out.URL.String(), "error", err)
		setEdgeHeaders(w, StrategyPassThrough, CacheBypass)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	stripHop(h)
	setEdgeHeaders(w, StrategyPassThrough, CacheBypass)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
