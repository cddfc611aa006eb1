package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/consolechannel/internal/terminal"
	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

// DefaultPollTimeout bounds a single read long-poll. An empty read is
// answered when it expires and the client simply reads again.
const DefaultPollTimeout = 25 * time.Second

// Handlers contains all HTTP handlers
type Handlers struct {
	manager     *terminal.Manager
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	pollTimeout time.Duration
}

// Option configures Handlers.
type Option func(*Handlers)

// WithMetrics adds the metrics snapshot to the health response.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(h *Handlers) {
		h.metrics = metrics
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(h *Handlers) {
		h.pollTimeout = d
	}
}

// NewHandlers creates a new handler set
func NewHandlers(manager *terminal.Manager, opts ...Option) *Handlers {
	h := &Handlers{
		manager:     manager,
		logger:      zap.NewNop(),
		pollTimeout: DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the channel and admin routes on group.
func (h *Handlers) Register(group *gin.RouterGroup) {
	channel := group.Group("", h.Session())
	channel.POST(wire.OpWrite, h.Write)
	channel.POST(wire.OpRead, h.Read)
	channel.POST(wire.OpSetSize, h.SetSize)

	group.GET("sessions", h.ListSessions)
	group.GET("sessions/:id", h.GetSession)
	group.DELETE("sessions/:id", h.KillSession)
}

// Write feeds the request data to the session's program.
func (h *Handlers) Write(c *gin.Context) {
	session, req := sessionFrom(c)
	if req.Data == "" {
		badRequest(c, "data is required")
		return
	}

	if err := session.Write([]byte(req.Data)); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", wire.Ack)
}

// Read long-polls for program output.
func (h *Handlers) Read(c *gin.Context) {
	session, _ := sessionFrom(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pollTimeout)
	defer cancel()

	data, err := session.Read(ctx)
	switch {
	case err == nil:
	case c.Request.Context().Err() != nil:
		return // client went away
	case errors.Is(err, context.DeadlineExceeded):
		// poll expired with nothing to say
		data = nil
	default:
		h.fail(c, err)
		return
	}

	body, err := wire.EncodeResponse(&wire.Response{Data: string(data)})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// SetSize resizes the session's terminal.
func (h *Handlers) SetSize(c *gin.Context) {
	session, req := sessionFrom(c)

	if err := session.Resize(req.Columns, req.Rows); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", wire.Ack)
}

// ListSessions lists all sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession describes one session
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// KillSession terminates a session
func (h *Handlers) KillSession(c *gin.Context) {
	id := c.Param("id")

	if err := h.manager.Kill(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"sessions": len(h.manager.List()),
	}
	if h.metrics != nil {
		resp["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}
