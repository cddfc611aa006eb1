package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/consolechannel/internal/terminal"
	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

const (
	sessionKey = "session"
	requestKey = "envelope"
)

// Session decodes the request envelope and resolves its session, starting
// the program if the id is new.
func (h *Handlers) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			badRequest(c, "failed to read body")
			return
		}

		req, err := wire.DecodeRequest(body)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.SessionID == "" {
			badRequest(c, "session_id is required")
			return
		}

		session, err := h.manager.Open(req.SessionID, req.Extra)
		if err != nil {
			h.logger.Warn("Failed to open session",
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
			h.fail(c, err)
			return
		}

		c.Set(sessionKey, session)
		c.Set(requestKey, req)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (*terminal.Session, *wire.Request) {
	return c.MustGet(sessionKey).(*terminal.Session), c.MustGet(requestKey).(*wire.Request)
}
