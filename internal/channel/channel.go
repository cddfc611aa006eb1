package channel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

// ErrEmptyWrite is returned by Write when called with no data.
var ErrEmptyWrite = errors.New("channel: data must not be empty")

// ErrInvalidUTF8 is returned by Write when data is not valid UTF-8. Callers
// reading from a byte stream must hold back a partial trailing rune until the
// rest of it arrives.
var ErrInvalidUTF8 = errors.New("channel: data is not valid UTF-8")

// Transport performs one request/response exchange per Post call and supplies
// cryptographically strong random bytes.
type Transport interface {
	Post(ctx context.Context, destination string, payload []byte) ([]byte, error)
	RandomBytes(n int) ([]byte, error)
}

// SinkFunc adapts a function to the io.StringWriter accepted by ReadLoop.
type SinkFunc func(data string)

// WriteString calls f(s).
func (f SinkFunc) WriteString(s string) (int, error) {
	f(s)
	return len(s), nil
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithContext bounds every write and setSize request issued by the channel.
func WithContext(ctx context.Context) Option {
	return func(c *Channel) {
		c.ctx = ctx
	}
}

// WithWriteErrorHandler is called with the data of every write request that
// failed. The data is not resent.
func WithWriteErrorHandler(fn func(data string, err error)) Option {
	return func(c *Channel) {
		c.onWriteError = fn
	}
}

// WithReadErrorHandler is called once when a loop started by StartRead stops
// for any reason other than its context being canceled.
func WithReadErrorHandler(fn func(err error)) Option {
	return func(c *Channel) {
		c.onReadError = fn
	}
}

// Channel is a session-bound, write-coalescing terminal channel.
type Channel struct {
	transport    Transport
	destination  string
	extra        map[string]string
	sessionID    string
	ctx          context.Context
	logger       *zap.Logger
	onWriteError func(data string, err error)
	onReadError  func(err error)

	mu           sync.Mutex
	writePending bool
	writeBuffer  strings.Builder
	sizePending  bool
	nextSize     *size
}

type size struct {
	columns, rows int
}

// New creates a channel posting to destination+operation. extra is attached
// verbatim to every request; a nil map is sent as an empty object.
func New(transport Transport, destination string, extra map[string]string, opts ...Option) (*Channel, error) {
	random, err := transport.RandomBytes(wire.SessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	if len(random) != wire.SessionIDBytes {
		return nil, fmt.Errorf("failed to generate session id: got %d random bytes, want %d",
			len(random), wire.SessionIDBytes)
	}

	if extra == nil {
		extra = map[string]string{}
	}

	c := &Channel{
		transport:   transport,
		destination: destination,
		extra:       extra,
		sessionID:   base64.StdEncoding.EncodeToString(random),
		ctx:         context.Background(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session_id", c.sessionID))
	return c, nil
}

// SessionID returns the base64 session identifier sent with every request.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Pending reports whether a write request is outstanding.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writePending
}

// Write sends data to the remote terminal. If a write is already in flight,
// data is buffered and sent with everything else buffered once it completes.
// Write never blocks on the network.
func (c *Channel) Write(data string) error {
	if data == "" {
		return ErrEmptyWrite
	}
	if !utf8.ValidString(data) {
		return ErrInvalidUTF8
	}

	c.mu.Lock()
	if c.writePending {
		c.writeBuffer.WriteString(data)
		buffered := c.writeBuffer.Len()
		c.mu.Unlock()
		c.logger.Debug("write coalesced", zap.Int("bytes", len(data)), zap.Int("buffered", buffered))
		return nil
	}
	c.writePending = true
	c.mu.Unlock()

	go c.flush(data)
	return nil
}

// flush owns the single in-flight write until the buffer drains.
func (c *Channel) flush(data string) {
	for data != "" {
		c.logger.Debug("write sending", zap.Int("bytes", len(data)))
		_, err := c.post(c.ctx, wire.OpWrite, &wire.Request{Data: data}, false)
		data = c.completeWrite(data, err)
	}
}

// completeWrite records the outcome of the in-flight write and returns the
// next batch to send, or "" once the channel is idle again.
func (c *Channel) completeWrite(data string, err error) string {
	if err != nil {
		c.logger.Error("write failed", zap.Int("bytes", len(data)), zap.Error(err))
		if c.onWriteError != nil {
			c.onWriteError(data, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.writePending {
		panic("channel: write completed without a pending write")
	}
	if c.writeBuffer.Len() == 0 {
		c.writePending = false
		return ""
	}
	next := c.writeBuffer.String()
	c.writeBuffer.Reset()
	return next
}

// SetSize tells the remote terminal its new dimensions. It does not wait for
// or interact with pending writes. At most one setSize request is in flight;
// sizes requested meanwhile collapse into the latest one, sent afterwards.
func (c *Channel) SetSize(columns, rows int) {
	c.mu.Lock()
	if c.sizePending {
		c.nextSize = &size{columns: columns, rows: rows}
		c.mu.Unlock()
		return
	}
	c.sizePending = true
	c.mu.Unlock()

	go c.resize(size{columns: columns, rows: rows})
}

func (c *Channel) resize(next size) {
	for {
		_, err := c.post(c.ctx, wire.OpSetSize, &wire.Request{Columns: next.columns, Rows: next.rows}, false)
		if err != nil {
			c.logger.Error("setSize failed",
				zap.Int("columns", next.columns), zap.Int("rows", next.rows), zap.Error(err))
		} else {
			c.logger.Debug("setSize success", zap.Int("columns", next.columns), zap.Int("rows", next.rows))
		}

		c.mu.Lock()
		if c.nextSize == nil {
			c.sizePending = false
			c.mu.Unlock()
			return
		}
		next = *c.nextSize
		c.nextSize = nil
		c.mu.Unlock()
	}
}

// StartRead runs ReadLoop in the background.
func (c *Channel) StartRead(ctx context.Context, sink io.StringWriter) {
	go func() {
		err := c.ReadLoop(ctx, sink)
		if errors.Is(err, context.Canceled) {
			return
		}
		if c.onReadError != nil {
			c.onReadError(err)
		}
	}()
}

// ReadLoop issues one read at a time, pushing each response to sink, until a
// read fails, the sink fails or ctx is done. It always returns a non-nil error.
func (c *Channel) ReadLoop(ctx context.Context, sink io.StringWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.post(ctx, wire.OpRead, &wire.Request{}, true)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("read failed", zap.Error(err))
			return err
		}
		c.logger.Debug("read success", zap.Int("length", len(resp.Data)))
		if _, err := sink.WriteString(resp.Data); err != nil {
			return fmt.Errorf("failed to deliver read data: %w", err)
		}
	}
}

func (c *Channel) post(ctx context.Context, op string, req *wire.Request, requireData bool) (*wire.Response, error) {
	req.SessionID = c.sessionID
	req.Extra = c.extra

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	body, err := c.transport.Post(ctx, c.destination+op, payload)
	if err != nil {
		return nil, err
	}
	return wire.DecodeResponse(body, requireData)
}
