package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/consolechannel/internal/channel"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/config"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/consolechannel/internal/terminal"
	"github.com/GriffinCanCode/consolechannel/internal/terminal/terminaltest"
	"github.com/GriffinCanCode/consolechannel/internal/transport"
)

// lockedBuilder collects read output from the channel goroutine.
type lockedBuilder struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *lockedBuilder) WriteString(s string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.WriteString(s)
}

func (b *lockedBuilder) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server, *terminaltest.Starter) {
	t.Helper()

	fake := &terminaltest.Starter{}
	starter := terminal.StarterFunc(func(extra map[string]string) (terminal.Process, error) {
		p, err := fake.Start(extra)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	srv, err := NewServer(cfg,
		WithStarter(starter),
		WithLogger(&logging.Logger{Logger: zap.NewNop()}),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Manager().Close()
		ts.Close()
	})
	return srv, ts, fake
}

func TestChannelRoundTrip(t *testing.T) {
	_, ts, fake := newTestServer(t, config.Default())

	tr, err := transport.NewHTTP(transport.DefaultConfig(), nil)
	require.NoError(t, err)

	var writeErrs []error
	var mu sync.Mutex
	ch, err := channel.New(tr, ts.URL+"/console/", map[string]string{"command": "sh"},
		channel.WithWriteErrorHandler(func(_ string, err error) {
			mu.Lock()
			writeErrs = append(writeErrs, err)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	require.NoError(t, ch.Write("echo hi\n"))
	require.Eventually(t, func() bool { return fake.Started() == 1 && !ch.Pending() }, 2*time.Second, 5*time.Millisecond)
	proc := fake.Process(0)
	assert.Equal(t, "echo hi\n", proc.Input())
	assert.Equal(t, map[string]string{"command": "sh"}, fake.Extra(0))

	ch.SetSize(120, 40)
	require.Eventually(t, func() bool { return len(proc.Sizes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [2]int{120, 40}, proc.Sizes()[0])

	out := &lockedBuilder{}
	done := make(chan error, 1)
	go func() { done <- ch.ReadLoop(context.Background(), out) }()

	require.NoError(t, proc.Emit("hi\r\n"))
	require.Eventually(t, func() bool { return out.String() == "hi\r\n" }, 2*time.Second, 5*time.Millisecond)

	proc.Exit(nil)

	select {
	case err := <-done:
		var statusErr *transport.StatusError
		require.True(t, errors.As(err, &statusErr), "got %v", err)
		assert.Equal(t, http.StatusGone, statusErr.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not stop after the program exited")
	}

	mu.Lock()
	assert.Empty(t, writeErrs)
	mu.Unlock()
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts, _ := newTestServer(t, config.Default())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasicAuthProtectsChannel(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth = config.AuthConfig{User: "admin", PasswordHash: string(hash)}
	_, ts, fake := newTestServer(t, cfg)

	body := `{"session_id":"s","data":"x"}`
	resp, err := http.Post(ts.URL+"/console/write", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, fake.Started())

	tcfg := transport.DefaultConfig()
	tcfg.Username = "admin"
	tcfg.Password = "pw"
	tr, err := transport.NewHTTP(tcfg, nil)
	require.NoError(t, err)

	out, err := tr.Post(context.Background(), ts.URL+"/console/write", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
	assert.Equal(t, 1, fake.Started())
}

func TestGzipResponses(t *testing.T) {
	_, ts, fake := newTestServer(t, config.Default())

	// enough sessions for the listing to pass the compression threshold
	for i := 0; i < 20; i++ {
		resp, err := http.Post(ts.URL+"/console/setSize", "application/json",
			strings.NewReader(`{"session_id":"session-`+strings.Repeat("x", i+1)+`","columns":80,"rows":24}`))
		require.NoError(t, err)
		resp.Body.Close()
	}
	require.Equal(t, 20, fake.Started())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/console/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestNormalizeBasePath(t *testing.T) {
	tests := map[string]string{
		"":         "/",
		"/":        "/",
		"console":  "/console/",
		"/console": "/console/",
		"/a/b/":    "/a/b/",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeBasePath(in), in)
	}
}

func TestNewStarter(t *testing.T) {
	logger := &logging.Logger{Logger: zap.NewNop()}

	s := newStarter(config.TerminalConfig{Command: "bash -l"}, logger)
	require.IsType(t, &terminal.CommandStarter{}, s)
	assert.Equal(t, []string{"bash", "-l"}, s.(*terminal.CommandStarter).Command)

	s = newStarter(config.TerminalConfig{Command: "bash", Permitted: []string{"top"}}, logger)
	require.IsType(t, &terminal.MenuStarter{}, s)
	assert.True(t, s.(*terminal.MenuStarter).IsPermitted("top"))
}

func TestShutdownKillsSessions(t *testing.T) {
	srv, ts, fake := newTestServer(t, config.Default())

	resp, err := http.Post(ts.URL+"/console/write", "application/json",
		strings.NewReader(`{"session_id":"s","data":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 1, fake.Started())

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.True(t, fake.Process(0).Killed())
	assert.Empty(t, srv.Manager().List())
}

func TestDefaultListensOnLoopback(t *testing.T) {
	srv, _, _ := newTestServer(t, config.Default())
	assert.Equal(t, "127.0.0.1:8000", srv.httpServer.Addr)
}

func TestSessionLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Terminal.MaxSessions = 2
	_, ts, fake := newTestServer(t, cfg)

	post := func(id string) int {
		resp, err := http.Post(ts.URL+"/console/write", "application/json",
			strings.NewReader(`{"session_id":"`+id+`","data":"x"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("a"))
	assert.Equal(t, http.StatusOK, post("b"))
	assert.Equal(t, http.StatusServiceUnavailable, post("c"))
	assert.Equal(t, http.StatusOK, post("a"))
	assert.Equal(t, 2, fake.Started())
}

func TestGlobalRateLimitIsWired(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.GlobalRequestsPerSecond = 1
	_, ts, _ := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
