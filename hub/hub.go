package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

const welcomeMessage = "Connected to warehouse management system"

// Hub is the connection registry. All registry and room mutations happen under mu;
// sends never do.
type Hub struct {
	mu           sync.Mutex
	byIdentity   map[domain.Identity]*Client
	byConn       map[string]*Client
	rooms        *rooms
	lastActivity time.Time

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Hub) { h.metrics = newMetrics(reg) }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		byIdentity: make(map[domain.Identity]*Client),
		byConn:     make(map[string]*Client),
		rooms:      newRooms(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = newMetrics(prometheus.NewRegistry())
	}
	h.logger = h.logger.With("component", "hub")
	h.lastActivity = h.now()
	return h
}

// Register inserts a connection for id. A live connection already held by id is retired
// (removed, closed, announced) before Register returns.
func (h *Hub) Register(conn domain.Connection, id domain.Identity, data domain.UserData) (*Client, error) {
	if _, err := domain.ParseRole(string(id.Role)); err != nil {
		return nil, err
	}
	now := h.now()
	c := newClient(conn, id, data, now)

	h.mu.Lock()
	var retired []*Client
	if prior, ok := h.byIdentity[id]; ok {
		h.removeLocked(prior, now)
		retired = append(retired, prior)
	}
	if prior, ok := h.byConn[conn.ID()]; ok {
		h.removeLocked(prior, now)
		retired = append(retired, prior)
	}
	h.byIdentity[id] = c
	h.byConn[conn.ID()] = c
	h.rooms.join(c, id.Role.RoomName())
	h.lastActivity = now
	h.metrics.added(id.Role)
	h.mu.Unlock()

	for _, prior := range retired {
		if prior.conn != conn {
			if err := prior.conn.Close(); err != nil {
				h.logger.Debug("close replaced connection", "clientId", prior.ID(), "error", err)
			}
		}
		h.metrics.removed(prior.Role(), reasonReplaced)
		h.announceRemoval(prior, reasonReplaced)
	}

	h.logger.Info("client connected", "clientId", c.ID(), "userId", id.UserID, "role", id.Role)

	welcome := domain.NewMessage(domain.TypeSystemMessage, welcomeMessage)
	welcome.UserRole = id.Role
	h.SendTo(c, welcome)

	if id.Role == domain.RoleWorker {
		h.BroadcastToRoles(domain.NewWorkerStatus(domain.ActionConnected, id.UserID, data), domain.StaffRoles...)
	}
	return c, nil
}

// Deregister removes conn if it is still registered. Repeated calls are no-ops.
func (h *Hub) Deregister(conn domain.Connection) bool {
	h.mu.Lock()
	c, ok := h.byConn[conn.ID()]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return h.evict(c, reasonClosed, false)
}

// DisconnectIdentity closes and deregisters the live connection of id, if any.
func (h *Hub) DisconnectIdentity(id domain.Identity) bool {
	h.mu.Lock()
	c, ok := h.byIdentity[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	return h.evict(c, reasonForced, true)
}

// CloseAll evicts and closes every live connection. Used on shutdown.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.byConn))
	for _, c := range h.byConn {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	n := 0
	for _, c := range clients {
		if h.evict(c, reasonShutdown, true) {
			n++
		}
	}
	return n
}

func (h *Hub) Lookup(id domain.Identity) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byIdentity[id]
	return c, ok
}

// Touch records inbound activity for c.
func (h *Hub) Touch(c *Client) {
	c.touch(h.now())
}

// evict removes c only if it is still the registered record, so concurrent paths
// retire a connection once.
func (h *Hub) evict(c *Client, reason string, closeConn bool) bool {
	now := h.now()
	h.mu.Lock()
	if h.byConn[c.ID()] != c {
		h.mu.Unlock()
		return false
	}
	h.removeLocked(c, now)
	h.mu.Unlock()

	if closeConn {
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("close evicted connection", "clientId", c.ID(), "error", err)
		}
	}
	h.metrics.removed(c.Role(), reason)
	h.announceRemoval(c, reason)
	return true
}

func (h *Hub) removeLocked(c *Client, now time.Time) {
	if h.byIdentity[c.identity] == c {
		delete(h.byIdentity, c.identity)
	}
	if h.byConn[c.ID()] == c {
		delete(h.byConn, c.ID())
	}
	for name := range c.rooms {
		h.rooms.leave(c, name)
	}
	h.lastActivity = now
}

func (h *Hub) announceRemoval(c *Client, reason string) {
	h.logger.Info("client disconnected", "clientId", c.ID(), "userId", c.UserID(), "role", c.Role(), "reason", reason)
	if c.Role() == domain.RoleWorker {
		h.BroadcastToRoles(domain.NewWorkerStatus(domain.ActionDisconnected, c.UserID(), nil), domain.StaffRoles...)
	}
}

type RoleStats struct {
	Role  domain.Role `json:"role"`
	Count int         `json:"count"`
	Users []int64     `json:"users"`
}

type Statistics struct {
	TotalConnections  int       `json:"total_connections"`
	ActiveWorkers     int       `json:"active_workers"`
	ActiveSupervisors int       `json:"active_supervisors"`
	ActiveAdmins      int       `json:"active_admins"`
	Rooms             int       `json:"rooms"`
	LastActivity      time.Time `json:"last_activity"`
}

type Snapshot struct {
	Total      int                       `json:"total"`
	ByRole     map[domain.Role]RoleStats `json:"by_role"`
	Statistics Statistics                `json:"statistics"`
}

// RoleStats reports the connections of a single role.
func (h *Hub) RoleStats(role domain.Role) RoleStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roleStatsLocked(role)
}

// Stats is computed from live registry contents on every call.
func (h *Hub) Stats() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		Total:  len(h.byConn),
		ByRole: make(map[domain.Role]RoleStats, len(domain.Roles)),
	}
	for _, role := range domain.Roles {
		snap.ByRole[role] = h.roleStatsLocked(role)
	}
	last := h.lastActivity
	for _, c := range h.byConn {
		if la := c.LastActivity(); la.After(last) {
			last = la
		}
	}
	snap.Statistics = Statistics{
		TotalConnections:  len(h.byConn),
		ActiveWorkers:     snap.ByRole[domain.RoleWorker].Count,
		ActiveSupervisors: snap.ByRole[domain.RoleSupervisor].Count,
		ActiveAdmins:      snap.ByRole[domain.RoleAdmin].Count,
		Rooms:             h.rooms.count(),
		LastActivity:      last,
	}
	return snap
}

func (h *Hub) roleStatsLocked(role domain.Role) RoleStats {
	rs := RoleStats{Role: role, Users: []int64{}}
	for id := range h.byIdentity {
		if id.Role == role {
			rs.Users = append(rs.Users, id.UserID)
		}
	}
	sort.Slice(rs.Users, func(i, j int) bool { return rs.Users[i] < rs.Users[j] })
	rs.Count = len(rs.Users)
	return rs
}

func (h *Hub) clientsLocked(roles ...domain.Role) []*Client {
	want := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	out := make([]*Client, 0, len(h.byIdentity))
	for id, c := range h.byIdentity {
		if want[id.Role] {
			out = append(out, c)
		}
	}
	return out
}
