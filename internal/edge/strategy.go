package edge

import (
	"context"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Strategy names the caching policy applied to a request.
type Strategy string

const (
	StrategyPassThrough          Strategy = "passthrough"
	StrategyAppShell             Strategy = "app-shell"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
)

// Values of the X-Edge-Cache response header.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheFallback = "fallback"
	CacheBypass   = "bypass"
)

const (
	HeaderStrategy = "X-Edge-Strategy"
	HeaderCache    = "X-Edge-Cache"
)

func setEdgeHeaders(w http.ResponseWriter, s Strategy, tag string) {
	w.Header().Set(HeaderStrategy, string(s))
	w.Header().Set(HeaderCache, tag)
}

type destination int

const (
	destOther destination = iota
	destScript
	destImage
)

var scriptExts = map[string]bool{".js": true, ".mjs": true, ".css": true}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".ico": true, ".avif": true,
}

func requestDestination(r *http.Request) destination {
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "script", "style", "worker", "sharedworker", "serviceworker":
		return destScript
	case "image":
		return destImage
	case "", "empty":
	default:
		return destOther
	}

	ext := strings.ToLower(path.Ext(r.URL.Path))
	switch {
	case scriptExts[ext]:
		return destScript
	case imageExts[ext]:
		return destImage
	}
	return destOther
}

// isNavigation reports a full-page load. Sec-Fetch-Mode decides when the
// client sends it; Accept is only consulted for clients that do not.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/html")
}

func (c *Controller) isAPI(r *http.Request) bool {
	for _, p := range c.opts.APIPrefixes {
		if strings.Contains(r.URL.Path, p) {
			return true
		}
	}
	for _, h := range c.opts.BypassHosts {
		if strings.EqualFold(r.Host, h) || strings.EqualFold(r.URL.Host, h) {
			return true
		}
	}
	return false
}

// Classify picks the strategy for r. The first matching rule wins.
func (c *Controller) Classify(r *http.Request) Strategy {
	if c.State() != StateActivated {
		return StrategyPassThrough
	}
	if !c.proxy.Allowed(r) {
		return StrategyPassThrough
	}
	if c.isAPI(r) {
		return StrategyPassThrough
	}
	if r.Method != http.MethodGet {
		return StrategyPassThrough
	}
	if isNavigation(r) {
		return StrategyAppShell
	}
	if _, same := c.proxy.target(r); same {
		switch requestDestination(r) {
		case destScript:
			return StrategyStaleWhileRevalidate
		case destImage:
			return StrategyCacheFirst
		}
	}
	return StrategyNetworkFirst
}

// ServeHTTP answers r with the strategy Classify picks and tags the
// response with X-Edge-Strategy and X-Edge-Cache.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := c.Classify(r)

	var tag string
	switch s {
	case StrategyAppShell:
		tag = c.appShell(w, r)
	case StrategyStaleWhileRevalidate:
		tag = c.staleWhileRevalidate(w, r)
	case StrategyCacheFirst:
		tag = c.cacheFirst(w, r)
	case StrategyNetworkFirst:
		tag = c.networkFirst(w, r)
	default:
		c.proxy.ServeHTTP(w, r)
		tag = CacheBypass
	}
	c.metrics.ObserveRequest(string(s), tag)
}

// appShell: network, storing the response before answering; offline it
// falls back to the cached "/" then "/index.html", then 503.
func (c *Controller) appShell(w http.ResponseWriter, r *http.Request) string {
	ctx := r.Context()
	out, err := c.proxy.newRequest(ctx, r, false)
	if err != nil {
		return c.synthetic(w, StrategyAppShell, http.StatusBadRequest, "")
	}

	f, err := c.fetch(ctx, out)
	if err == nil {
		if f.entry != nil {
			if err := c.put(context.WithoutCancel(ctx), PurposeShell, f.entry); err != nil {
				c.log.Warn(ctx, "app shell store failed", "key", f.entry.Key, "error", err)
			}
		}
		f.write(w, StrategyAppShell, CacheMiss)
		return CacheMiss
	}
	c.log.Debug(ctx, "navigation offline", "url", out.URL.String(), "error", err)

	for _, p := range []string{"/", "/index.html"} {
		if e := c.lookup(ctx, PurposeShell, c.proxy.key(p)); e != nil {
			setEdgeHeaders(w, StrategyAppShell, CacheFallback)
			writeEntry(w, e)
			return CacheFallback
		}
	}
	return c.synthetic(w, StrategyAppShell, http.StatusServiceUnavailable, "Offline")
}

// staleWhileRevalidate answers from the assets cache when it can and
// refreshes the entry in the background either way.
func (c *Controller) staleWhileRevalidate(w http.ResponseWriter, r *http.Request) string {
	ctx := r.Context()
	out, err := c.proxy.newRequest(ctx, r, false)
	if err != nil {
		return c.synthetic(w, StrategyStaleWhileRevalidate, http.StatusBadRequest, "")
	}
	key := out.URL.String()

	if e := c.lookup(ctx, PurposeAssets, key); e != nil {
		setEdgeHeaders(w, StrategyStaleWhileRevalidate, CacheHit)
		writeEntry(w, e)

		c.background(func(bctx context.Context) {
			f, err := c.fetch(bctx, out)
			if err != nil {
				c.log.Debug(bctx, "revalidate failed", "key", key, "error", err)
				return
			}
			f.close()
			if f.entry != nil {
				c.store(bctx, PurposeAssets, f.entry)
			}
		})
		return CacheHit
	}

	f, err := c.fetch(ctx, out)
	if err != nil {
		return c.synthetic(w, StrategyStaleWhileRevalidate, http.StatusNotFound, "")
	}
	c.storeLater(PurposeAssets, f.entry)
	f.write(w, StrategyStaleWhileRevalidate, CacheMiss)
	return CacheMiss
}

func (c *Controller) cacheFirst(w http.ResponseWriter, r *http.Request) string {
	ctx := r.Context()
	out, err := c.proxy.newRequest(ctx, r, false)
	if err != nil {
		return c.synthetic(w, StrategyCacheFirst, http.StatusBadRequest, "")
	}

	if e := c.lookup(ctx, PurposeImages, out.URL.String()); e != nil {
		setEdgeHeaders(w, StrategyCacheFirst, CacheHit)
		writeEntry(w, e)
		return CacheHit
	}

	f, err := c.fetch(ctx, out)
	if err != nil {
		return c.synthetic(w, StrategyCacheFirst, http.StatusNotFound, "")
	}
	c.storeLater(PurposeImages, f.entry)
	f.write(w, StrategyCacheFirst, CacheMiss)
	return CacheMiss
}

func (c *Controller) networkFirst(w http.ResponseWriter, r *http.Request) string {
	ctx := r.Context()
	out, err := c.proxy.newRequest(ctx, r, false)
	if err != nil {
		return c.synthetic(w, StrategyNetworkFirst, http.StatusBadRequest, "")
	}

	f, err := c.fetch(ctx, out)
	if err == nil {
		c.storeLater(PurposeDefault, f.entry)
		f.write(w, StrategyNetworkFirst, CacheMiss)
		return CacheMiss
	}

	if e := c.lookup(ctx, PurposeDefault, out.URL.String()); e != nil {
		setEdgeHeaders(w, StrategyNetworkFirst, CacheFallback)
		writeEntry(w, e)
		return CacheFallback
	}
	return c.synthetic(w, StrategyNetworkFirst, http.StatusNotFound, "")
}

// storeLater stores e in the background; a nil entry is ignored.
func (c *Controller) storeLater(p Purpose, e *Entry) {
	if e == nil {
		return
	}
	c.background(func(ctx context.Context) {
		c.store(ctx, p, e)
	})
}

func (c *Controller) store(ctx context.Context, p Purpose, e *Entry) {
	if err := c.put(ctx, p, e); err != nil {
		c.log.Warn(ctx, "cache store failed", "cache", c.CacheName(p), "key", e.Key, "error", err)
	}
}

func (c *Controller) synthetic(w http.ResponseWriter, s Strategy, status int, body string) string {
	setEdgeHeaders(w, s, CacheMiss)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
	return CacheMiss
}
