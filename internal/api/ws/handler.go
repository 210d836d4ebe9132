// Package ws implements the streaming surface: one WebSocket connection per
// attached terminal.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sandterm/sandterm/internal/bridge"
	"github.com/sandterm/sandterm/internal/infrastructure/logging"
	"github.com/sandterm/sandterm/internal/infrastructure/monitoring"
	"github.com/sandterm/sandterm/internal/session"
	"github.com/sandterm/sandterm/internal/shared/id"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced by the CORS layer on the control
		// surface; the stream carries an unguessable session ID.
		return true
	},
}

// Handler upgrades stream requests and runs one bridge per connection.
type Handler struct {
	registry *session.Registry
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates the streaming handler.
func NewHandler(registry *session.Registry, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		registry: registry,
		log:      log,
		metrics:  metrics,
	}
}

// HandleConnection serves GET /sessions/:id/stream. Unknown sessions get a
// human-readable notice and a close; otherwise the connection is handed to
// a bridge until either side closes. Reconnecting to a session that already
// has a bridge retires the old pairing first (replace-and-retire).
func (h *Handler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnID()
	transport := newTransport(conn)

	s, err := h.registry.Get(sessionID)
	if err != nil {
		transport.WriteFrame([]byte("unknown or expired session, closing\r\n"))
		return
	}
	transport.onControl = func(data []byte) {
		h.handleControl(sessionID, s, data)
	}

	ch, err := h.registry.Attach(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Warn("failed to attach to session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		transport.WriteFrame([]byte("failed to attach to sandbox, closing\r\n"))
		return
	}
	defer h.registry.Detach(sessionID, ch)

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	h.log.Info("terminal attached",
		zap.String("session_id", sessionID),
		zap.String("conn_id", connID.String()),
	)
	transport.WriteFrame([]byte("connected to sandbox session\r\n"))

	cols, rows := s.Dimensions()
	b := bridge.New(bridge.Config{
		Transport:  transport,
		Channel:    ch,
		Cols:       cols,
		Rows:       rows,
		OnActivity: s.Touch,
		Logger:     h.log,
		Metrics:    h.metrics,
	})
	b.Run()

	h.log.Info("terminal detached",
		zap.String("session_id", sessionID),
		zap.String("conn_id", connID.String()),
	)
}

// controlMessage is an in-band client request carried on a text frame.
// Binary frames are terminal bytes; text frames are control. Matches the
// message the xterm.js fit addon sends on window resize.
type controlMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// handleControl applies one control frame. Decoded with sonic: these arrive
// on every window resize drag, so decode cost matters.
func (h *Handler) handleControl(sessionID string, s *session.Session, data []byte) {
	var msg controlMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		h.log.Debug("discarding malformed control frame",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	switch msg.Type {
	case "resize":
		if err := h.registry.Resize(context.Background(), sessionID, msg.Cols, msg.Rows); err != nil {
			h.log.Warn("in-band resize failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
		s.Touch()
	default:
		h.log.Debug("unknown control frame type",
			zap.String("session_id", sessionID),
			zap.String("type", msg.Type),
		)
	}
}

// wsTransport adapts a gorilla connection to the bridge's Transport.
// Writes are serialized: the output pump and guard warnings write
// concurrently, and gorilla allows one writer at a time.
type wsTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	onControl func(data []byte)
}

func newTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// ReadFrame returns the next binary frame. Text frames are control messages;
// they are dispatched inline and never reach the bridge.
func (t *wsTransport) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			if t.onControl != nil {
				t.onControl(data)
			}
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) WriteFrame(p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	// Binary frames: PTY output is raw bytes, not guaranteed UTF-8.
	return t.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
