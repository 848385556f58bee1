package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
	"github.com/dmitrijs2005/nutritrack/internal/edge"
	"github.com/dmitrijs2005/nutritrack/internal/edge/auth"
	"github.com/dmitrijs2005/nutritrack/internal/logging"
	"github.com/dmitrijs2005/nutritrack/internal/metrics"
)

const secret = "test-secret"

type fakeReplayer struct{}

func (fakeReplayer) ReplayPending(_ context.Context, kind models.Kind) (*services.ReplayReport, error) {
	return &services.ReplayReport{Kind: kind, Delivered: 1}, nil
}

type env struct {
	origin  *httptest.Server
	files   map[string]string
	mu      sync.Mutex
	handler http.Handler
	reg     *edge.Registry
	inbox   *edge.Inbox
}

func newEnv(t *testing.T, replayer edge.Replayer) *env {
	t.Helper()
	e := &env{files: map[string]string{
		"/":                 "<html>home</html>",
		"/index.html":       "<html>index</html>",
		"/manifest.json":    "{}",
		"/assets/main.js":   "main()",
		"/assets/style.css": "body{}",
		"/assets/logo.png":  "PNG",
	}}
	e.origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		body, ok := e.files[r.URL.Path]
		e.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(e.origin.Close)

	originURL, err := url.Parse(e.origin.URL)
	require.NoError(t, err)

	log := logging.Discard()
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	storage := edge.NewMemoryStorage()
	e.inbox = edge.NewInbox(log)
	e.reg = edge.NewRegistry(edge.NewProxy(originURL, e.origin.Client(), log), log)

	factory := func(version string) (*edge.Controller, error) {
		return edge.NewController(edge.Options{Version: version, Origin: originURL}, edge.Deps{
			Storage:  storage,
			Fetcher:  e.origin.Client(),
			Notifier: e.inbox,
			Replayer: replayer,
			Logger:   log,
			Metrics:  m,
		})
	}
	e.handler = NewServer(":0", log, e.reg, e.inbox, factory, promReg, secret).Handler()
	return e
}

func (e *env) do(t *testing.T, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		r.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func bearer(t *testing.T, sender string) string {
	t.Helper()
	tok, err := auth.GenerateToken(sender, []byte(secret), time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *env) activate(t *testing.T, version string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/_edge/update", `{"version":"`+version+`"}`, "Authorization", bearer(t, "deploy"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStatus_NoController(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/_edge/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Active)

	// everything else is proxied untouched
	w = e.do(t, http.MethodGet, "/assets/main.js", "")
	assert.Equal(t, "main()", w.Body.String())
	assert.Equal(t, edge.CacheBypass, w.Header().Get(edge.HeaderCache))

	w = e.do(t, http.MethodPost, "/_edge/sync/sync-meals", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUpdate(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/_edge/update", `{"version":"v1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/_edge/update", `{"version":"v1"}`, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/_edge/update", `{}`, "Authorization", bearer(t, "deploy"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.activate(t, "v1")

	w = e.do(t, http.MethodGet, "/_edge/status", "")
	var st StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Active)
	assert.Equal(t, "v1", st.Version)
	assert.Equal(t, "activated", st.State)
	assert.Equal(t, []string{"nutritrack-shell-v1"}, st.Generations)

	w = e.do(t, http.MethodPost, "/_edge/update", `{"version":"v1"}`, "Authorization", bearer(t, "deploy"))
	assert.Equal(t, http.StatusConflict, w.Code)

	// broken release: previous version keeps serving
	e.mu.Lock()
	delete(e.files, "/assets/style.css")
	e.mu.Unlock()
	w = e.do(t, http.MethodPost, "/_edge/update", `{"version":"v2"}`, "Authorization", bearer(t, "deploy"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "v1", e.reg.Active().Version())

	w = e.do(t, http.MethodGet, "/", "", "Sec-Fetch-Mode", "navigate")
	assert.Equal(t, "app-shell", w.Header().Get(edge.HeaderStrategy))
}

func TestPushAndClick(t *testing.T) {
	e := newEnv(t, nil)
	e.activate(t, "v1")

	w := e.do(t, http.MethodPost, "/_edge/push", `{"title":"Lunch","body":"Log it","url":"/meals/new"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/_edge/push", `{"title":`, "Authorization", bearer(t, "coach"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/_edge/push", `{"title":"Lunch","body":"Log it","url":"/meals/new"}`,
		"Authorization", bearer(t, "coach"))
	require.Equal(t, http.StatusCreated, w.Code)

	var n edge.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "coach", n.Sender)
	assert.Equal(t, "/assets/logo.png", n.Icon)

	w = e.do(t, http.MethodGet, "/_edge/notifications", "")
	var list []edge.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, n.ID, list[0].ID)

	w = e.do(t, http.MethodGet, "/_edge/notifications/"+n.ID+"/click", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/meals/new", w.Header().Get("Location"))

	w = e.do(t, http.MethodGet, "/_edge/notifications/"+n.ID+"/click", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync(t *testing.T) {
	e := newEnv(t, fakeReplayer{})
	e.activate(t, "v1")

	w := e.do(t, http.MethodPost, "/_edge/sync/sync-workouts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rep services.ReplayReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, models.KindWorkouts, rep.Kind)
	assert.Equal(t, 1, rep.Delivered)

	w = e.do(t, http.MethodPost, "/_edge/sync/sync-water", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSync_NoReplayer(t *testing.T) {
	e := newEnv(t, nil)
	e.activate(t, "v1")

	w := e.do(t, http.MethodPost, "/_edge/sync/sync-meals", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetrics(t *testing.T) {
	e := newEnv(t, nil)
	e.activate(t, "v1")
	e.do(t, http.MethodGet, "/assets/main.js", "")

	w := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `edge_install_total{result="ok"} 1`)
	assert.Contains(t, w.Body.String(), `edge_requests_total{cache="miss",strategy="stale-while-revalidate"} 1`)
}
