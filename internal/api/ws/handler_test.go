package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/api/middleware"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type write struct {
	id, data, trace string
}

type fakeSessions struct {
	bus     *events.Bus
	writes  chan write
	resizes chan [2]int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		bus:     events.NewBus(events.BusConfig{Buffer: 16}),
		writes:  make(chan write, 4),
		resizes: make(chan [2]int, 4),
	}
}

func (f *fakeSessions) Subscribe(kinds ...events.Kind) (<-chan events.Notification, func()) {
	return f.bus.Subscribe(kinds...)
}

func (f *fakeSessions) Write(id string, data []byte, traceID string) error {
	if id != "t1" {
		return supervisor.ErrSessionNotFound
	}
	f.writes <- write{id, string(data), traceID}
	return nil
}

func (f *fakeSessions) Resize(id string, cols, rows int) error {
	if id != "t1" {
		return supervisor.ErrSessionNotFound
	}
	f.resizes <- [2]int{cols, rows}
	return nil
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func serve(t *testing.T, sessions Sessions, cfg Config, metrics *monitoring.Metrics) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.Use(middleware.Trace())
	r.GET("/stream", NewHandler(sessions, cfg, metrics, nil).HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{t: t, conn: conn}
	hello := c.read()
	require.Equal(t, TypeSystem, hello["type"])
	require.NotEmpty(t, hello["conn_id"])
	return c
}

func (c *client) read() map[string]interface{} {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var out map[string]interface{}
	require.NoError(c.t, sonic.ConfigStd.Unmarshal(raw, &out))
	return out
}

func (c *client) send(v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func TestStreamPushesNotifications(t *testing.T) {
	fake := newFakeSessions()
	c := dial(t, serve(t, fake, Config{}, nil), "", nil)
	at := time.UnixMilli(1_700_000_000_123)

	fake.bus.Publish(events.Notification{Kind: events.KindData, SessionID: "t1", Timestamp: at, Data: []byte("hello\r\n")})
	f := c.read()
	assert.Equal(t, "data", f["type"])
	assert.Equal(t, "t1", f["session_id"])
	assert.Equal(t, "hello\r\n", f["data"])
	assert.Equal(t, float64(at.UnixMilli()), f["timestamp"])

	fake.bus.Publish(events.Notification{Kind: events.KindExit, SessionID: "t1", Timestamp: at, Code: 0})
	f = c.read()
	assert.Equal(t, "exit", f["type"])
	assert.Equal(t, float64(0), f["code"])

	fake.bus.Publish(events.Notification{
		Kind:      events.KindAgent,
		SessionID: "t1",
		Timestamp: at,
		Event:     events.Killed{Base: events.NewBase("a1", "t1", "", "", at), Reason: "user"},
	})
	f = c.read()
	assert.Equal(t, "agent", f["type"])
	assert.Equal(t, "agent:killed", f["event"])
	payload, ok := f["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a1", payload["agentId"])
	assert.Equal(t, "user", payload["reason"])
}

func TestStreamKindsFilter(t *testing.T) {
	fake := newFakeSessions()
	srv := serve(t, fake, Config{}, nil)
	c := dial(t, srv, "?kinds=exit", nil)

	fake.bus.Publish(events.Notification{Kind: events.KindData, SessionID: "t1", Data: []byte("x")})
	fake.bus.Publish(events.Notification{Kind: events.KindExit, SessionID: "t1", Code: 3})
	f := c.read()
	assert.Equal(t, "exit", f["type"])
	assert.Equal(t, float64(3), f["code"])

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?kinds=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamInbound(t *testing.T) {
	fake := newFakeSessions()
	c := dial(t, serve(t, fake, Config{}, nil), "", http.Header{middleware.TraceHeader: []string{"trace-9"}})

	t.Run("write", func(t *testing.T) {
		c.send(Inbound{Type: TypeWrite, SessionID: "t1", Data: "ls\r"})
		select {
		case w := <-fake.writes:
			assert.Equal(t, write{"t1", "ls\r", "trace-9"}, w)
		case <-time.After(2 * time.Second):
			t.Fatal("write not delivered")
		}
	})

	t.Run("resize", func(t *testing.T) {
		c.send(Inbound{Type: TypeResize, SessionID: "t1", Cols: 132, Rows: 43})
		select {
		case sz := <-fake.resizes:
			assert.Equal(t, [2]int{132, 43}, sz)
		case <-time.After(2 * time.Second):
			t.Fatal("resize not delivered")
		}
	})

	t.Run("invalid resize", func(t *testing.T) {
		c.send(Inbound{Type: TypeResize, SessionID: "t1", Cols: 80.5, Rows: 24})
		f := c.read()
		assert.Equal(t, "error", f["type"])
		assert.Equal(t, supervisor.ErrInvalidDimensions.Error(), f["message"])
	})

	t.Run("unknown session", func(t *testing.T) {
		c.send(Inbound{Type: TypeWrite, SessionID: "nope", Data: "x"})
		f := c.read()
		assert.Equal(t, "error", f["type"])
		assert.Equal(t, "nope", f["session_id"])
	})

	t.Run("ping", func(t *testing.T) {
		c.send(Inbound{Type: TypePing})
		assert.Equal(t, TypePong, c.read()["type"])
	})

	t.Run("unknown type", func(t *testing.T) {
		c.send(Inbound{Type: "dance"})
		f := c.read()
		assert.Equal(t, "error", f["type"])
		assert.Equal(t, "unknown message type", f["message"])
	})

	t.Run("malformed", func(t *testing.T) {
		require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		f := c.read()
		assert.Equal(t, "error", f["type"])
		assert.Equal(t, "malformed message", f["message"])
	})
}

func TestStreamClosesWithBus(t *testing.T) {
	fake := newFakeSessions()
	c := dial(t, serve(t, fake, Config{}, nil), "", nil)

	fake.bus.Close()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestStreamCountsConnections(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	fake := newFakeSessions()
	c := dial(t, serve(t, fake, Config{}, metrics), "", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WSConnections))
	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.WSConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WSMessages.WithLabelValues("out", TypeSystem)))
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list", nil, "http://evil", true},
		{"wildcard", []string{"*"}, "http://evil", true},
		{"listed", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"not listed", []string{"http://localhost:3000"}, "http://evil", false},
		{"no origin header", []string{"http://localhost:3000"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newFakeSessions(), Config{AllowOrigins: tt.allowed}, nil, nil)
			req := httptest.NewRequest(http.MethodGet, "/stream", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, h.checkOrigin(req))
		})
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds("data, agent")
	require.NoError(t, err)
	assert.Equal(t, []events.Kind{events.KindData, events.KindAgent}, kinds)

	kinds, err = ParseKinds("")
	require.NoError(t, err)
	assert.Nil(t, kinds)

	_, err = ParseKinds("data,nope")
	assert.Error(t, err)
}

func TestFromNotification(t *testing.T) {
	at := time.UnixMilli(42)
	f := FromNotification(events.Notification{Kind: events.KindWarning, SessionID: "t1", Timestamp: at, Warning: "flood", Message: "paused"})
	assert.Equal(t, Frame{Type: "warning", SessionID: "t1", Timestamp: 42, Warning: "flood", Message: "paused"}, f)

	f = FromNotification(events.Notification{Kind: events.KindExit, SessionID: "t1", Timestamp: at, Code: -1, Killed: true, Message: "replaced"})
	require.NotNil(t, f.Code)
	assert.Equal(t, -1, *f.Code)
	assert.True(t, f.Killed)

	f = FromNotification(events.Notification{Kind: events.KindData, SessionID: "t1", Timestamp: at, Data: []byte("x"), Replay: true})
	assert.True(t, f.Replay)
	assert.Equal(t, "x", f.Data)
}
