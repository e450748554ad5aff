package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
	"github.com/akshitbansal010/warehouse-compliance-system/hub"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

type Config struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
}

func (c Config) pingPeriod() time.Duration { return (c.PongWait * 9) / 10 }

// SessionHandler owns what happens to a connection between authentication and teardown.
type SessionHandler interface {
	Open(conn domain.Connection, token string) (*hub.Client, error)
	Handle(c *hub.Client, data []byte)
	Close(c *hub.Client)
}

type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	cfg     Config
	handler SessionHandler
	logger  *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

func NewConn(id string, ws *websocket.Conn, h SessionHandler, cfg Config, logger *slog.Logger) *Conn {
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		cfg:     cfg,
		handler: h,
		logger:  logger.With("clientId", id),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() domain.State { return domain.State(c.state.Load()) }

// Send queues data for the write pump. It never blocks; a full buffer counts as a failed delivery.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *Conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Conn) closeWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
		err = c.ws.Close()
	})
	return err
}

// Serve authenticates the connection and runs it until either side closes. It blocks.
func (c *Conn) Serve(token string) {
	client, err := c.handler.Open(c, token)
	if err != nil {
		code, reason := domain.CloseConnectionError, "Connection error"
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			code, reason = domain.CloseAuthFailed, "Authentication failed"
		}
		c.logger.Warn("connection refused", "error", err, "code", code)
		c.state.Store(int32(domain.StateClosed))
		c.closeWith(code, reason)
		return
	}
	c.state.Store(int32(domain.StateRegistered))

	go c.writePump()
	c.readPump(client)
}

func (c *Conn) readPump(client *hub.Client) {
	defer func() {
		c.state.Store(int32(domain.StateClosed))
		c.Close()
		c.handler.Close(client)
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.handler.Handle(client, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
