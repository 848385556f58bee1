package edge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
	"github.com/dmitrijs2005/nutritrack/internal/metrics"
)

// State is the lifecycle stage of a Controller. A controller only moves
// forward; a failed install or Retire makes it redundant.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultManifest is the app shell pre-cached on install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/assets/main.js",
	"/assets/style.css",
	"/assets/logo.png",
}

const (
	DefaultPrefix            = "nutritrack"
	DefaultMaxEntryBytes     = 5 << 20
	DefaultBackgroundTimeout = 30 * time.Second
)

// Options configure one controller version. Zero values take the package
// defaults.
type Options struct {
	Version string
	Prefix  string
	Origin  *url.URL
	// Manifest lists origin paths pre-cached on install.
	Manifest []string
	// APIPrefixes: a path containing one of these is never intercepted.
	APIPrefixes []string
	// BypassHosts: requests for these hosts are never intercepted.
	BypassHosts []string
	// MaxEntryBytes caps stored bodies; larger responses are streamed and
	// not stored.
	MaxEntryBytes     int64
	BackgroundTimeout time.Duration
}

// Deps are the collaborators a controller uses. Storage is required;
// the rest may be nil.
type Deps struct {
	Storage  CacheStorage
	Fetcher  Fetcher
	Notifier Notifier
	Replayer Replayer
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

// Controller owns the cache generations of one version.
type Controller struct {
	opts     Options
	storage  CacheStorage
	proxy    *Proxy
	notifier Notifier
	replayer Replayer
	log      logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	state    State
	inflight tracker
}

// NewController validates opts, fills in defaults and returns a controller
// in StateParsed.
func NewController(opts Options, deps Deps) (*Controller, error) {
	if strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("cache version is required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("origin url is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("cache storage is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Manifest == nil {
		opts.Manifest = DefaultManifest
	}
	if opts.APIPrefixes == nil {
		opts.APIPrefixes = []string{"/api/"}
	}
	if opts.BypassHosts == nil {
		opts.BypassHosts = []string{"localhost:3001"}
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = DefaultBackgroundTimeout
	}

	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("module", "edge", "version", opts.Version)

	c := &Controller{
		opts:     opts,
		storage:  deps.Storage,
		proxy:    NewProxy(opts.Origin, deps.Fetcher, log, opts.BypassHosts...),
		notifier: deps.Notifier,
		replayer: deps.Replayer,
		log:      log,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
	c.inflight.cond = sync.NewCond(&c.inflight.mu)
	return c, nil
}

// Version is the cache version the controller was built for.
func (c *Controller) Version() string { return c.opts.Version }

// CacheName is the generation name for p in this version.
func (c *Controller) CacheName(p Purpose) string {
	return fmt.Sprintf("%s-%s-%s", c.opts.Prefix, p, c.opts.Version)
}

func (c *Controller) currentNames() map[string]struct{} {
	names := make(map[string]struct{}, len(Purposes))
	for _, p := range Purposes {
		names[c.CacheName(p)] = struct{}{}
	}
	return names
}

// State returns the current lifecycle stage.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidState, c.state, from)
	}
	c.state = to
	return nil
}

// Install pre-caches the manifest. Every path is fetched concurrently; if
// any fetch fails or answers non-200 nothing is stored and the controller
// becomes redundant. On success it is immediately ready to activate.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.transition(StateParsed, StateInstalling); err != nil {
		return err
	}

	entries, err := c.precache(ctx)
	if err == nil {
		err = c.storeShell(ctx, entries)
	}
	if err != nil {
		c.setState(StateRedundant)
		c.metrics.ObserveInstall("failed")
		c.log.Error(ctx, "install failed", "error", err)
		return err
	}

	c.setState(StateInstalled)
	c.metrics.ObserveInstall("ok")
	c.log.Info(ctx, "installed", "cache", c.CacheName(PurposeShell), "entries", len(entries))
	return nil
}

func (c *Controller) precache(ctx context.Context) ([]*Entry, error) {
	entries := make([]*Entry, len(c.opts.Manifest))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range c.opts.Manifest {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, c.proxy.key(p), nil)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInstallFailed, p, err)
			}
			resp, err := c.proxy.fetcher.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInstallFailed, p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: %s: status %d", ErrInstallFailed, p, resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInstallFailed, p, err)
			}
			entries[i] = c.newEntry(req, resp, body)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Controller) storeShell(ctx context.Context, entries []*Entry) error {
	name := c.CacheName(PurposeShell)
	cache, err := c.storage.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrInstallFailed, name, err)
	}
	for _, e := range entries {
		if err := cache.Put(ctx, e); err != nil {
			_, _ = c.storage.Delete(context.WithoutCancel(ctx), name)
			return fmt.Errorf("%w: store %s: %v", ErrInstallFailed, e.Key, err)
		}
	}
	return nil
}

// Activate deletes the stale generations and starts intercepting. Activating an active controller is a no-op.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateActivated:
		c.mu.Unlock()
		return nil
	case StateInstalled:
		c.state = StateActivating
		c.mu.Unlock()
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInstalled, st)
	}

	if err := c.PurgeStale(ctx); err != nil {
		c.setState(StateInstalled)
		return err
	}

	c.setState(StateActivated)
	c.log.Info(ctx, "activated")
	return nil
}

// PurgeStale deletes every generation in storage that does not belong to
// this version. The storage is owned by the controller, so foreign names
// are stale too.
func (c *Controller) PurgeStale(ctx context.Context) error {
	names, err := c.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	current := c.currentNames()
	for _, name := range names {
		if _, ok := current[name]; ok {
			continue
		}
		if _, err := c.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete generation %s: %w", name, err)
		}
		c.log.Info(ctx, "deleted stale generation", "cache", name)
	}
	return nil
}

// Generations lists the generation names currently in storage.
func (c *Controller) Generations(ctx context.Context) ([]string, error) {
	return c.storage.Keys(ctx)
}

// Retire stops the controller from intercepting and from starting new
// stores. Stores already running are drained by Wait.
func (c *Controller) Retire() {
	c.setState(StateRedundant)
}

// Wait blocks until every store started by the controller has finished.
func (c *Controller) Wait() {
	c.inflight.wait()
}

// track registers a store unless the controller was retired.
func (c *Controller) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRedundant {
		return false
	}
	c.inflight.add()
	return true
}

// background runs fn on its own goroutine with a fresh deadline.
func (c *Controller) background(fn func(ctx context.Context)) {
	if !c.track() {
		return
	}
	go func() {
		defer c.inflight.done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.BackgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Controller) put(ctx context.Context, p Purpose, e *Entry) error {
	if !c.track() {
		return nil
	}
	defer c.inflight.done()

	cache, err := c.storage.Open(ctx, c.CacheName(p))
	if err != nil {
		return err
	}
	return cache.Put(ctx, e)
}

func (c *Controller) lookup(ctx context.Context, p Purpose, key string) *Entry {
	cache, err := c.storage.Open(ctx, c.CacheName(p))
	if err != nil {
		c.log.Warn(ctx, "cache open failed", "cache", c.CacheName(p), "error", err)
		return nil
	}
	e, err := cache.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn(ctx, "cache lookup failed", "cache", c.CacheName(p), "key", key, "error", err)
		}
		return nil
	}
	return e
}

func (c *Controller) newEntry(req *http.Request, resp *http.Response, body []byte) *Entry {
	h := resp.Header.Clone()
	stripHop(h)
	return &Entry{
		Key:      req.URL.String(),
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   h,
		Body:     body,
		StoredAt: c.now().UTC(),
	}
}

// tracker counts running stores. Unlike sync.WaitGroup it allows add and
// wait to race.
type tracker struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (t *tracker) add() {
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

func (t *tracker) wait() {
	t.mu.Lock()
	for t.n > 0 {
		t.cond.Wait()
	}
	t.mu.Unlock()
}
