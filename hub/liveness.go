package hub

import "time"

// CleanupInactive closes and deregisters every connection idle for longer than timeout.
// It is a single sweep and is safe to run alongside normal traffic.
func (h *Hub) CleanupInactive(timeout time.Duration) int {
	now := h.now()

	h.mu.Lock()
	var stale []*Client
	for _, c := range h.byConn {
		if c.idle(now) > timeout {
			stale = append(stale, c)
		}
	}
	h.mu.Unlock()

	evicted := 0
	for _, c := range stale {
		if c.idle(now) <= timeout {
			continue
		}
		if h.evict(c, reasonStale, true) {
			evicted++
		}
	}
	if evicted > 0 {
		h.logger.Info("cleaned up inactive connections", "count", evicted, "timeout", timeout)
	}
	return evicted
}
