package hub

import (
	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

// SendTo delivers env to a single client. A failed send evicts that client; the caller never sees it.
func (h *Hub) SendTo(c *Client, env domain.Envelope) {
	h.deliver(env, []*Client{c})
}

// SendToIdentity reports whether id was connected. Absent recipients are normal.
func (h *Hub) SendToIdentity(env domain.Envelope, id domain.Identity) bool {
	c, ok := h.Lookup(id)
	if !ok {
		return false
	}
	h.SendTo(c, env)
	return true
}

// BroadcastToRoles delivers env to every connection registered under one of roles.
// Room membership plays no part.
func (h *Hub) BroadcastToRoles(env domain.Envelope, roles ...domain.Role) {
	if len(roles) == 0 {
		return
	}
	h.mu.Lock()
	targets := h.clientsLocked(roles...)
	h.mu.Unlock()
	h.deliver(env, targets)
}

func (h *Hub) BroadcastToAll(env domain.Envelope) {
	h.BroadcastToRoles(env, domain.Roles...)
}

// deliver encodes env once and fans it out. Failures are isolated per connection and
// resolved after the fan-out by evicting the failed connections.
func (h *Hub) deliver(env domain.Envelope, targets []*Client) {
	if len(targets) == 0 {
		return
	}
	data, err := env.Encode()
	if err != nil {
		h.logger.Error("encode envelope", "type", env.Type, "error", err)
		return
	}

	var failed []*Client
	for _, c := range targets {
		if err := c.conn.Send(data); err != nil {
			h.metrics.deliveryFailures.Inc()
			h.logger.Warn("send failed", "error", &domain.DeliveryFailure{ConnectionID: c.ID(), Err: err},
				"userId", c.UserID(), "role", c.Role(), "type", env.Type)
			failed = append(failed, c)
			continue
		}
		h.metrics.envelopesSent.WithLabelValues(env.Type).Inc()
	}

	for _, c := range failed {
		h.evict(c, reasonSendFailed, true)
	}
}
