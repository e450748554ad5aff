package hub

import (
	"encoding/json"
	"strconv"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
)

// SendTaskUpdate goes to the assigned worker (payload key worker_id) and to all staff.
func (h *Hub) SendTaskUpdate(data domain.Payload) {
	env := domain.NewEnvelope(domain.TypeTaskUpdate, data)
	if workerID, ok := UserIDFrom(data["worker_id"]); ok {
		h.SendToIdentity(env, domain.Identity{Role: domain.RoleWorker, UserID: workerID})
	}
	h.BroadcastToRoles(env, domain.StaffRoles...)
}

// SendOrderStatus goes to all staff and to the assigned worker (payload key assigned_worker_id).
func (h *Hub) SendOrderStatus(data domain.Payload) {
	env := domain.NewEnvelope(domain.TypeOrderStatus, data)
	h.BroadcastToRoles(env, domain.StaffRoles...)
	if workerID, ok := UserIDFrom(data["assigned_worker_id"]); ok {
		h.SendToIdentity(env, domain.Identity{Role: domain.RoleWorker, UserID: workerID})
	}
}

// SendAlert targets roles, or everyone when roles is empty.
func (h *Hub) SendAlert(level domain.AlertLevel, data domain.Payload, roles ...domain.Role) {
	env := domain.NewAlert(domain.TypeAlert, level, data)
	if len(roles) > 0 {
		h.BroadcastToRoles(env, roles...)
		return
	}
	h.BroadcastToAll(env)
}

// SendSupervisorAlert always targets supervisors and admins.
func (h *Hub) SendSupervisorAlert(level domain.AlertLevel, data domain.Payload) {
	h.BroadcastToRoles(domain.NewAlert(domain.TypeSupervisorAlert, level, data), domain.StaffRoles...)
}

// SendNotification targets one identity if given, else roles, else everyone.
func (h *Hub) SendNotification(data domain.Payload, target *domain.Identity, roles ...domain.Role) {
	env := domain.NewEnvelope(domain.TypeNotification, data)
	switch {
	case target != nil:
		h.SendToIdentity(env, *target)
	case len(roles) > 0:
		h.BroadcastToRoles(env, roles...)
	default:
		h.BroadcastToAll(env)
	}
}

func (h *Hub) NotifyTaskCompletion(taskID, orderID, workerID int64, completion domain.Payload) {
	h.SendTaskUpdate(domain.Payload{
		"action":          "completed",
		"task_id":         taskID,
		"order_id":        orderID,
		"worker_id":       workerID,
		"completion_data": completion,
	})
}

func (h *Hub) NotifyOrderAssigned(orderID, workerID int64, order domain.Payload) {
	h.SendOrderStatus(domain.Payload{
		"action":             "assigned",
		"order_id":           orderID,
		"assigned_worker_id": workerID,
		"order_data":         order,
	})
}

func (h *Hub) NotifyComplianceIssue(details domain.Payload) {
	h.SendSupervisorAlert(domain.LevelWarning, domain.Payload{
		"type":    "compliance_issue",
		"message": "Compliance issue detected",
		"details": details,
	})
}

func (h *Hub) NotifySystemStatus(status domain.Payload, level domain.AlertLevel) {
	h.SendAlert(level, domain.Payload{
		"type":    "system_status",
		"message": "System status update",
		"details": status,
	})
}

func (h *Hub) BroadcastMaintenanceNotice(notice, scheduledTime string) {
	data := domain.Payload{
		"type":    "maintenance_notice",
		"message": notice,
	}
	if scheduledTime != "" {
		data["scheduled_time"] = scheduledTime
	}
	h.SendNotification(data, nil)
}

// UserIDFrom reads a user id out of a decoded JSON value.
func UserIDFrom(v any) (int64, bool) {
	switch id := v.(type) {
	case int:
		return int64(id), true
	case int64:
		return id, true
	case float64:
		if id != float64(int64(id)) {
			return 0, false
		}
		return int64(id), true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	}
	return 0, false
}
