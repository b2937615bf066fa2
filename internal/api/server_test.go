package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmvault/movie-harvester/internal/config"
	"github.com/filmvault/movie-harvester/internal/media"
)

// fakeRunner records triggered modes and can block to simulate a long run.
type fakeRunner struct {
	mu      sync.Mutex
	modes   []string
	done    chan struct{}
	release chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 8)}
}

func (f *fakeRunner) run(mode string) (media.Summary, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	f.done <- struct{}{}
	return media.Summary{Added: 1, Processed: 1}, nil
}

func (f *fakeRunner) RunBulk(context.Context) (media.Summary, error) {
	return f.run("bulk")
}

func (f *fakeRunner) RunIncremental(context.Context) (media.Summary, error) {
	return f.run("incremental")
}

func (f *fakeRunner) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.modes...)
}

func newTestServer(t *testing.T, runner Runner, cfg config.Config) *httptest.Server {
	t.Helper()
	srv := NewServer(runner, context.Background(), cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete in time")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newFakeRunner(), config.Config{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, newFakeRunner(), config.Config{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTriggerIncremental(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	ts := newTestServer(t, runner, config.Config{})

	resp, err := http.Post(ts.URL+"/api/scrape", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitFor(t, runner.done)
	assert.Equal(t, []string{"incremental"}, runner.triggered())
}

func TestTriggerBulk(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	ts := newTestServer(t, runner, config.Config{})

	resp, err := http.Post(ts.URL+"/api/scrape/bulk", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitFor(t, runner.done)
	assert.Equal(t, []string{"bulk"}, runner.triggered())
}

func TestTriggerRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.release = make(chan struct{})
	ts := newTestServer(t, runner, config.Config{})

	first, err := http.Post(ts.URL+"/api/scrape", "application/json", nil)
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusAccepted, first.StatusCode)

	second, err := http.Post(ts.URL+"/api/scrape/bulk", "application/json", nil)
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)

	close(runner.release)
	waitFor(t, runner.done)
	assert.Equal(t, []string{"incremental"}, runner.triggered())
}

func TestAPIKeyGuardsTriggers(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	ts := newTestServer(t, runner, cfg)

	// Health and metrics stay open.
	open, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	open.Body.Close()
	assert.Equal(t, http.StatusOK, open.StatusCode)

	denied, err := http.Post(ts.URL+"/api/scrape", "application/json", nil)
	require.NoError(t, err)
	denied.Body.Close()
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/scrape", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	allowed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	allowed.Body.Close()
	assert.Equal(t, http.StatusAccepted, allowed.StatusCode)

	waitFor(t, runner.done)
}
