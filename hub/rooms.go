package hub

import "github.com/akshitbansal010/warehouse-compliance-system/domain"

// rooms is the room directory. Callers hold Hub.mu.
type rooms struct {
	members map[string]map[string]*Client
}

func newRooms() *rooms {
	return &rooms{members: make(map[string]map[string]*Client)}
}

func (r *rooms) join(c *Client, name string) bool {
	m, ok := r.members[name]
	if !ok {
		m = make(map[string]*Client)
		r.members[name] = m
	}
	if _, ok := m[c.ID()]; ok {
		return false
	}
	m[c.ID()] = c
	c.rooms[name] = struct{}{}
	return true
}

func (r *rooms) leave(c *Client, name string) bool {
	delete(c.rooms, name)
	m, ok := r.members[name]
	if !ok {
		return false
	}
	if _, ok := m[c.ID()]; !ok {
		return false
	}
	delete(m, c.ID())
	if len(m) == 0 {
		delete(r.members, name)
	}
	return true
}

func (r *rooms) snapshot(name string) []*Client {
	m := r.members[name]
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *rooms) count() int { return len(r.members) }

// Join adds c to room. It reports false when c is no longer registered.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byConn[c.ID()] != c {
		return false
	}
	h.rooms.join(c, room)
	return true
}

// Leave removes c from room; an emptied room is dropped.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms.leave(c, room)
}

// RoomSize returns the member count of room, zero when the room does not exist.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms.members[room])
}

func (h *Hub) Rooms() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.rooms.members))
	for name, m := range h.rooms.members {
		out[name] = len(m)
	}
	return out
}

// BroadcastRoom delivers env to the members of room as of the call.
func (h *Hub) BroadcastRoom(room string, env domain.Envelope) {
	h.mu.Lock()
	targets := h.rooms.snapshot(room)
	h.mu.Unlock()
	h.deliver(env, targets)
}
