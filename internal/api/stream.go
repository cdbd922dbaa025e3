package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/irisorch/iris/internal/logger"
	"github.com/irisorch/iris/internal/orchestrator"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves GET /teams/:fromTeam/:toTeam/stream: it upgrades to
// a websocket and forwards every frame of the session's active Cache Entry
// verbatim, for manual inspection.
type StreamHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// NewStreamHandler constructs a StreamHandler over the given Orchestrator.
func NewStreamHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *StreamHandler {
	return &StreamHandler{orch: orch, logger: log.WithFields(zap.String("component", "api-stream"))}
}

// Stream upgrades the connection and forwards frames until the active
// entry completes, the process terminates, or the client disconnects.
func (h *StreamHandler) Stream(c *gin.Context) {
	fromTeam, toTeam := c.Param("fromTeam"), c.Param("toTeam")

	session, err := h.orch.SessionFor(fromTeam, toTeam)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"kind": "SESSION_NOT_FOUND", "message": "no session for this team pair"}})
		return
	}

	mc, ok := h.orch.CacheFor(session.SessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"kind": "SESSION_NOT_FOUND", "message": "no message cache for this session"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	entry := mc.GetActiveEntry()
	if entry == nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "no active entry"))
		return
	}

	go h.readLoop(conn)

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()

	msgCh := entry.SubscribeMessages()
	for {
		select {
		case frame, ok := <-msgCh:
			if !ok {
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains and discards client messages so the connection's read
// deadline keeps advancing; this endpoint is output-only.
func (h *StreamHandler) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
