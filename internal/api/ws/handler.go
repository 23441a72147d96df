package ws

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/api/middleware"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/supervisor"
)

// Defaults for Config.
const (
	DefaultWriteWait  = 10 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultReadLimit  = 1 << 20
	DefaultSendBuffer = 32
)

// Sessions is the supervisor surface a stream drives.
type Sessions interface {
	Subscribe(kinds ...events.Kind) (<-chan events.Notification, func())
	Write(id string, data []byte, traceID string) error
	Resize(id string, cols, rows int) error
}

// Config tunes the stream handler. Zero values take defaults.
type Config struct {
	// AllowOrigins lists the browser origins allowed to connect. Empty or
	// "*" allows any.
	AllowOrigins []string
	WriteWait    time.Duration
	PongWait     time.Duration
	ReadLimit    int64
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	return c
}

// Handler manages WebSocket connections
type Handler struct {
	sessions Sessions
	cfg      Config
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions Sessions, cfg Config, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	h := &Handler{
		sessions: sessions,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ParseKinds reads a comma separated kinds filter. An empty string means
// every kind.
func ParseKinds(s string) ([]events.Kind, error) {
	if s == "" {
		return nil, nil
	}
	var kinds []events.Kind
	for _, part := range strings.Split(s, ",") {
		k, err := events.ParseKind(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	kinds, err := ParseKinds(c.Query("kinds"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	log := h.logger.With(zap.String("conn_id", connID))
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	log.Info("Stream connected", zap.String("remote", c.ClientIP()))

	notes, unsubscribe := h.sessions.Subscribe(kinds...)
	defer unsubscribe()

	s := &stream{
		h:       h,
		conn:    conn,
		log:     log,
		out:     make(chan Frame, DefaultSendBuffer),
		done:    make(chan struct{}),
		written: make(chan struct{}),
		traceID: middleware.TraceID(c),
	}
	go s.writeLoop(notes)

	s.send(Frame{
		Type:      TypeSystem,
		Timestamp: time.Now().UnixMilli(),
		Message:   "connected",
		ConnID:    connID,
	})
	s.readLoop()

	close(s.done)
	<-s.written
	log.Info("Stream disconnected")
}

// stream is one live connection.
type stream struct {
	h       *Handler
	conn    *websocket.Conn
	log     *zap.Logger
	out     chan Frame
	done    chan struct{}
	written chan struct{}
	traceID string
}

// send queues f for the writer. It gives up once the writer has stopped.
func (s *stream) send(f Frame) {
	select {
	case s.out <- f:
	case <-s.written:
	}
}

func (s *stream) sendError(sessionID, msg string) {
	s.send(Frame{
		Type:      string(events.KindError),
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Message:   msg,
	})
}

// writeLoop is the only goroutine writing to the connection. It closes the
// connection on exit, which unblocks the reader.
func (s *stream) writeLoop(notes <-chan events.Notification) {
	defer close(s.written)
	defer s.conn.Close()

	ping := time.NewTicker(s.h.cfg.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-notes:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(s.h.cfg.WriteWait))
				return
			}
			if err := s.write(FromNotification(n)); err != nil {
				s.log.Debug("Stream write failed", zap.Error(err))
				return
			}
		case f := <-s.out:
			if err := s.write(f); err != nil {
				s.log.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.h.cfg.WriteWait)); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stream) write(f Frame) error {
	raw, err := sonic.ConfigStd.Marshal(f)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return err
	}
	s.h.metrics.RecordWSMessage("out", f.Type)
	return nil
}

func (s *stream) readLoop() {
	wait := s.h.cfg.PongWait
	s.conn.SetReadLimit(s.h.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Stream read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wait))

		var in Inbound
		if err := sonic.ConfigStd.Unmarshal(raw, &in); err != nil {
			s.sendError("", "malformed message")
			continue
		}
		s.h.metrics.RecordWSMessage("in", in.Type)
		s.dispatch(in)
	}
}

func (s *stream) dispatch(in Inbound) {
	switch in.Type {
	case TypeWrite:
		traceID := in.TraceID
		if traceID == "" {
			traceID = s.traceID
		}
		if err := s.h.sessions.Write(in.SessionID, []byte(in.Data), traceID); err != nil {
			s.sendError(in.SessionID, err.Error())
		}
	case TypeResize:
		cols, rows, err := supervisor.ValidateDimensions(in.Cols, in.Rows)
		if err == nil {
			err = s.h.sessions.Resize(in.SessionID, cols, rows)
		}
		if err != nil {
			s.sendError(in.SessionID, err.Error())
		}
	case TypePing:
		s.send(Frame{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	default:
		s.sendError(in.SessionID, errUnknownType.Error())
	}
}

var errUnknownType = errors.New("unknown message type")
