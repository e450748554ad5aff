package websocket

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
	"github.com/akshitbansal010/warehouse-compliance-system/hub"
	"github.com/akshitbansal010/warehouse-compliance-system/protocol"
)

type stubAuth map[string]domain.Principal

func (s stubAuth) Authenticate(token string) (domain.Principal, error) {
	p, ok := s[token]
	if !ok {
		return domain.Principal{}, &domain.AuthenticationError{Err: errors.New("bad token")}
	}
	return p, nil
}

func newTestServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(hub.WithLogger(logger))
	auth := stubAuth{
		"worker-1": {Identity: domain.Identity{Role: domain.RoleWorker, UserID: 1}, Username: "wanda"},
		"super-1":  {Identity: domain.Identity{Role: domain.RoleSupervisor, UserID: 10}, Username: "sam"},
	}
	srv := NewServer(protocol.NewHandler(h, auth, protocol.WithLogger(logger)), DefaultConfig(), nil, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return h, ts
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestConn_PingPongOverWebsocket(t *testing.T) {
	h, ts := newTestServer(t)
	ws := dial(t, ts, "worker-1")

	welcome := readEnvelope(t, ws)
	assert.Equal(t, "system_message", welcome["type"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readEnvelope(t, ws)["type"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{`)))
	assert.Equal(t, "error", readEnvelope(t, ws)["type"])
	assert.Equal(t, 1, h.Stats().Total)
}

func TestConn_AuthFailureClosesWithDistinctCode(t *testing.T) {
	h, ts := newTestServer(t)
	ws := dial(t, ts, "nope")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, domain.CloseAuthFailed, closeErr.Code)
	assert.Equal(t, "Authentication failed", closeErr.Text)
	assert.Equal(t, 0, h.Stats().Total)
}

func TestConn_ClientDisconnectDeregisters(t *testing.T) {
	h, ts := newTestServer(t)
	sup := dial(t, ts, "super-1")
	readEnvelope(t, sup)

	ws := dial(t, ts, "worker-1")
	readEnvelope(t, ws)
	assert.Equal(t, "connected", readEnvelope(t, sup)["action"])

	require.NoError(t, ws.Close())

	status := readEnvelope(t, sup)
	assert.Equal(t, "worker_status", status["type"])
	assert.Equal(t, "disconnected", status["action"])
	assert.Eventually(t, func() bool { return h.RoleStats(domain.RoleWorker).Count == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConn_ForcedDisconnectClosesSocket(t *testing.T) {
	h, ts := newTestServer(t)
	ws := dial(t, ts, "worker-1")
	readEnvelope(t, ws)

	require.True(t, h.DisconnectIdentity(domain.Identity{Role: domain.RoleWorker, UserID: 1}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestConn_SecondLoginReplacesFirst(t *testing.T) {
	h, ts := newTestServer(t)
	first := dial(t, ts, "worker-1")
	readEnvelope(t, first)

	second := dial(t, ts, "worker-1")
	readEnvelope(t, second)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 1, h.RoleStats(domain.RoleWorker).Count)
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readEnvelope(t, second)["type"])
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	c := &Conn{send: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrBufferFull)
	close(c.done)
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClosed)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no list", allowed: nil, origin: "https://evil.example", want: true},
		{name: "no origin header", allowed: []string{"wms.local"}, origin: "", want: true},
		{name: "exact", allowed: []string{"wms.local"}, origin: "https://wms.local:8443", want: true},
		{name: "wildcard", allowed: []string{"*.acme.com"}, origin: "https://floor.acme.com", want: true},
		{name: "rejected", allowed: []string{"wms.local"}, origin: "https://evil.example", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/connect", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}
