package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

type postResult struct {
	body []byte
	err  error
}

type fakePost struct {
	destination string
	payload     []byte
	request     *wire.Request
	result      chan postResult
}

func (p *fakePost) succeed(body string) {
	p.result <- postResult{body: []byte(body)}
}

func (p *fakePost) fail(err error) {
	p.result <- postResult{err: err}
}

// fakeTransport records every post and holds it open until the test resolves
// it. random fills the buffer passed to RandomBytes.
type fakeTransport struct {
	random func(b []byte)

	mu          sync.Mutex
	posts       []*fakePost
	randomCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		random: func(b []byte) { b[0] = 42 },
	}
}

func (f *fakeTransport) Post(ctx context.Context, destination string, payload []byte) ([]byte, error) {
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		return nil, err
	}
	p := &fakePost{destination: destination, payload: payload, request: req, result: make(chan postResult, 1)}

	f.mu.Lock()
	f.posts = append(f.posts, p)
	f.mu.Unlock()

	select {
	case r := <-p.result:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) RandomBytes(n int) ([]byte, error) {
	f.mu.Lock()
	f.randomCalls++
	f.mu.Unlock()

	b := make([]byte, n)
	f.random(b)
	return b, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeTransport) post(t *testing.T, i int) *fakePost {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, waitFor, tick, "post %d never issued", i)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[i]
}

type recordingSink struct {
	mu   sync.Mutex
	data strings.Builder
}

func (s *recordingSink) WriteString(data string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.WriteString(data)
}

func (s *recordingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String()
}

func TestMultipleKeystrokesAreBatched(t *testing.T) {
	env := newFakeTransport()
	extra := map[string]string{"param": "something"}
	ch, err := New(env, "http://localhost:8080/", extra)
	require.NoError(t, err)

	// write: sends the post
	require.NoError(t, ch.Write("helloworld"))
	first := env.post(t, 0)
	assert.Equal(t, "http://localhost:8080/write", first.destination)
	assert.Equal(t, "KgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", first.request.SessionID)
	assert.Equal(t, "helloworld", first.request.Data)
	assert.Equal(t, extra, first.request.Extra)

	// more writes: batched
	require.NoError(t, ch.Write("one"))
	assert.Equal(t, 1, env.count())
	require.NoError(t, ch.Write("two"))
	assert.Never(t, func() bool { return env.count() > 1 }, 50*time.Millisecond, tick)

	// on success: the batch is flushed
	first.succeed("{}")
	second := env.post(t, 1)
	assert.Equal(t, "onetwo", second.request.Data)
	assert.Equal(t, first.request.SessionID, second.request.SessionID)
	assert.Equal(t, extra, second.request.Extra)
	assert.True(t, ch.Pending())

	second.succeed("{}")
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
	assert.Equal(t, 2, env.count())
}

func TestSingleWriteReturnsToIdle(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	assert.False(t, ch.Pending())
	require.NoError(t, ch.Write("x"))
	assert.True(t, ch.Pending())

	env.post(t, 0).succeed("{}")
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
	assert.Equal(t, 1, env.count())

	// idle again: the next write goes straight out
	require.NoError(t, ch.Write("y"))
	assert.Equal(t, "y", env.post(t, 1).request.Data)
}

func TestEmptyWriteIsRejected(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	err = ch.Write("")
	assert.ErrorIs(t, err, ErrEmptyWrite)
	assert.False(t, ch.Pending())
	assert.Never(t, func() bool { return env.count() > 0 }, 20*time.Millisecond, tick)
}

func TestInvalidUTF8WriteIsRejected(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	euro := "€"
	assert.ErrorIs(t, ch.Write(euro[:2]), ErrInvalidUTF8)
	assert.ErrorIs(t, ch.Write("ok\xff"), ErrInvalidUTF8)
	assert.False(t, ch.Pending())

	// also rejected while a write is in flight, leaving the batch intact
	require.NoError(t, ch.Write("a"))
	first := env.post(t, 0)
	assert.ErrorIs(t, ch.Write(euro[2:]), ErrInvalidUTF8)
	require.NoError(t, ch.Write("b"))

	first.succeed("{}")
	assert.Equal(t, "b", env.post(t, 1).request.Data)
}

func TestNonASCIIWritesArriveIntact(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	require.NoError(t, ch.Write("héllo "))
	first := env.post(t, 0)
	assert.Equal(t, "héllo ", first.request.Data)

	require.NoError(t, ch.Write("€"))
	require.NoError(t, ch.Write("😀"))
	first.succeed("{}")
	assert.Equal(t, "€😀", env.post(t, 1).request.Data)
}

func TestNilExtraIsSentAsEmptyObject(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	require.NoError(t, ch.Write("x"))
	p := env.post(t, 0)
	assert.Contains(t, string(p.payload), `"extra":{}`)

	ch.SetSize(80, 24)
	assert.Contains(t, string(env.post(t, 1).payload), `"extra":{}`)
}

func TestCoalescedWritesKeepOrder(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	require.NoError(t, ch.Write("first"))
	first := env.post(t, 0)

	var want strings.Builder
	for c := 'a'; c <= 'z'; c++ {
		require.NoError(t, ch.Write(string(c)))
		want.WriteRune(c)
	}
	assert.Equal(t, 1, env.count())

	first.succeed("{}")
	assert.Equal(t, want.String(), env.post(t, 1).request.Data)

	// data written while the follow-up is in flight forms a third batch
	require.NoError(t, ch.Write("tail"))
	env.post(t, 1).succeed("{}")
	assert.Equal(t, "tail", env.post(t, 2).request.Data)
}

func TestSessionIDComesFromRandomSource(t *testing.T) {
	env := newFakeTransport()
	env.random = func(b []byte) {
		for i := range b {
			b[i] = 42
		}
	}
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	assert.Equal(t, "KioqKioqKioqKioqKioqKioqKioqKioqKioqKioqKio=", ch.SessionID())

	require.NoError(t, ch.Write("a"))
	env.post(t, 0).succeed("{}")
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
	require.NoError(t, ch.Write("b"))

	assert.Equal(t, ch.SessionID(), env.post(t, 0).request.SessionID)
	assert.Equal(t, ch.SessionID(), env.post(t, 1).request.SessionID)
	assert.Equal(t, 1, env.randomCalls)
}

type brokenRandom struct {
	fakeTransport
	n   int
	err error
}

func (b *brokenRandom) RandomBytes(int) ([]byte, error) {
	return make([]byte, b.n), b.err
}

func TestNewFailsWithoutRandomBytes(t *testing.T) {
	_, err := New(&brokenRandom{err: errors.New("no entropy")}, "/", nil)
	assert.ErrorContains(t, err, "no entropy")

	_, err = New(&brokenRandom{n: 16}, "/", nil)
	assert.ErrorContains(t, err, "got 16 random bytes")
}

func TestWriteFailureIsReportedAndNotResent(t *testing.T) {
	env := newFakeTransport()

	type failure struct {
		data string
		err  error
	}
	failures := make(chan failure, 1)
	ch, err := New(env, "/", nil, WithWriteErrorHandler(func(data string, err error) {
		failures <- failure{data, err}
	}))
	require.NoError(t, err)

	require.NoError(t, ch.Write("lost"))
	first := env.post(t, 0)
	require.NoError(t, ch.Write("kept"))

	boom := errors.New("status 500")
	first.fail(boom)

	select {
	case f := <-failures:
		assert.Equal(t, "lost", f.data)
		assert.ErrorIs(t, f.err, boom)
	case <-time.After(waitFor):
		t.Fatal("write error handler not called")
	}

	// buffered data still goes out; the failed batch does not
	assert.Equal(t, "kept", env.post(t, 1).request.Data)
	env.post(t, 1).succeed("{}")
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
	assert.Equal(t, 2, env.count())
}

func TestMalformedWriteAckIsAFailure(t *testing.T) {
	env := newFakeTransport()
	errs := make(chan error, 1)
	ch, err := New(env, "/", nil, WithWriteErrorHandler(func(_ string, err error) { errs <- err }))
	require.NoError(t, err)

	require.NoError(t, ch.Write("x"))
	env.post(t, 0).succeed("[]")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, wire.ErrMalformed)
	case <-time.After(waitFor):
		t.Fatal("write error handler not called")
	}
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
}

func TestCompleteWriteWithoutPendingPanics(t *testing.T) {
	ch, err := New(newFakeTransport(), "/", nil)
	require.NoError(t, err)

	assert.Panics(t, func() { ch.completeWrite("x", nil) })
}

func TestSetSizeIsIndependentOfWrites(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "base/", map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, ch.Write("pending"))
	write := env.post(t, 0)

	ch.SetSize(120, 40)
	resize := env.post(t, 1)
	assert.Equal(t, "base/setSize", resize.destination)
	assert.Equal(t, 120, resize.request.Columns)
	assert.Equal(t, 40, resize.request.Rows)
	assert.Empty(t, resize.request.Data)
	assert.Equal(t, ch.SessionID(), resize.request.SessionID)

	// a failed resize leaves the write state machine alone
	resize.fail(errors.New("unreachable"))
	assert.True(t, ch.Pending())

	write.succeed("{}")
	assert.Eventually(t, func() bool { return !ch.Pending() }, waitFor, tick)
}

func TestSetSizeCollapsesToLatest(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	ch.SetSize(80, 24)
	first := env.post(t, 0)

	ch.SetSize(100, 30)
	ch.SetSize(120, 40)
	assert.Never(t, func() bool { return env.count() > 1 }, 50*time.Millisecond, tick)

	first.succeed("{}")
	second := env.post(t, 1)
	assert.Equal(t, 120, second.request.Columns)
	assert.Equal(t, 40, second.request.Rows)

	second.succeed("{}")
	assert.Never(t, func() bool { return env.count() > 2 }, 50*time.Millisecond, tick)

	// idle again: the next size goes straight out
	ch.SetSize(90, 20)
	assert.Equal(t, 90, env.post(t, 2).request.Columns)
}

func TestReadLoopRereadsUntilFailure(t *testing.T) {
	env := newFakeTransport()
	stopped := make(chan error, 1)
	ch, err := New(env, "/", nil, WithReadErrorHandler(func(err error) { stopped <- err }))
	require.NoError(t, err)

	sink := &recordingSink{}
	ch.StartRead(context.Background(), sink)

	first := env.post(t, 0)
	assert.Equal(t, "/read", first.destination)
	assert.Empty(t, first.request.Data)
	assert.Never(t, func() bool { return env.count() > 1 }, 20*time.Millisecond, tick)

	first.succeed(`{"data":"hello "}`)
	second := env.post(t, 1)
	assert.Equal(t, "hello ", sink.String())

	second.succeed(`{"data":"world"}`)
	third := env.post(t, 2)
	assert.Equal(t, "hello world", sink.String())

	boom := errors.New("connection reset")
	third.fail(boom)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, boom)
	case <-time.After(waitFor):
		t.Fatal("read loop did not stop")
	}
	assert.Never(t, func() bool { return env.count() > 3 }, 20*time.Millisecond, tick)
}

func TestReadLoopStopsOnMalformedResponse(t *testing.T) {
	env := newFakeTransport()
	ch, err := New(env, "/", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.ReadLoop(context.Background(), SinkFunc(func(string) {})) }()

	env.post(t, 0).succeed(`{}`)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, wire.ErrMalformed)
	case <-time.After(waitFor):
		t.Fatal("read loop did not stop")
	}
	assert.Equal(t, 1, env.count())
}

func TestReadLoopEndsWithContext(t *testing.T) {
	env := newFakeTransport()
	called := make(chan struct{}, 1)
	ch, err := New(env, "/", nil, WithReadErrorHandler(func(error) { called <- struct{}{} }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.ReadLoop(ctx, SinkFunc(func(string) {})) }()

	env.post(t, 0)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("read loop ignored cancellation")
	}

	// StartRead stays quiet about cancellation
	ch.StartRead(ctx, SinkFunc(func(string) {}))
	assert.Never(t, func() bool { return len(called) > 0 }, 20*time.Millisecond, tick)
}
