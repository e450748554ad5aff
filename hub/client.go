package hub

import (
	"sync/atomic"
	"time"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

// Client is the registry's record of one live connection. It is never reused after removal.
type Client struct {
	conn         domain.Connection
	identity     domain.Identity
	userData     domain.UserData
	connectedAt  time.Time
	lastActivity atomic.Int64

	// guarded by Hub.mu
	rooms map[string]struct{}
}

func newClient(conn domain.Connection, id domain.Identity, data domain.UserData, now time.Time) *Client {
	c := &Client{
		conn:        conn,
		identity:    id,
		userData:    data,
		connectedAt: now,
		rooms:       make(map[string]struct{}),
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) ID() string                { return c.conn.ID() }
func (c *Client) Identity() domain.Identity { return c.identity }
func (c *Client) Role() domain.Role         { return c.identity.Role }
func (c *Client) UserID() int64             { return c.identity.UserID }
func (c *Client) UserData() domain.UserData { return c.userData }
func (c *Client) ConnectedAt() time.Time    { return c.connectedAt }
func (c *Client) Conn() domain.Connection   { return c.conn }
func (c *Client) LastActivity() time.Time   { return time.Unix(0, c.lastActivity.Load()) }

func (c *Client) idle(now time.Time) time.Duration {
	return now.Sub(c.LastActivity())
}

// touch only moves last activity forward.
func (c *Client) touch(now time.Time) {
	ts := now.UnixNano()
	for {
		prev := c.lastActivity.Load()
		if ts <= prev || c.lastActivity.CompareAndSwap(prev, ts) {
			return
		}
	}
}
