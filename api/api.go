// Package api exposes the management surface of the broker over HTTP. Every route requires a bearer
// token and is gated by the caller's role.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akshitbansal010/warehouse-compliance-system/auth"
	"github.com/akshitbansal010/warehouse-compliance-system/domain"
	"github.com/akshitbansal010/warehouse-compliance-system/hub"
)

var anyRole = domain.Roles

type API struct {
	hub    *hub.Hub
	auth   domain.Authenticator
	logger *slog.Logger
}

func New(h *hub.Hub, a domain.Authenticator, logger *slog.Logger) *API {
	return &API{hub: h, auth: a, logger: logger.With("component", "api")}
}

// Mount registers the management routes on r.
func (a *API) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(a.authenticate)

		r.With(allow(domain.StaffRoles...)).Get("/connections", a.connections)
		r.With(allow(domain.StaffRoles...)).Post("/broadcast", a.broadcast)
		r.With(allow(domain.StaffRoles...)).Post("/alert", a.alert)
		r.With(allow(anyRole...)).Post("/task-update", a.taskUpdate)
		r.With(allow(anyRole...)).Post("/order-status", a.orderStatus)
		r.With(allow(anyRole...)).Post("/supervisor-alert", a.supervisorAlert)
		r.With(allow(anyRole...)).Post("/notification", a.notification)
		r.With(allow(domain.RoleAdmin)).Delete("/disconnect/{userID}", a.disconnect)
		r.With(allow(domain.RoleAdmin)).Post("/cleanup", a.cleanup)

		r.Route("/notify", func(r chi.Router) {
			r.With(allow(anyRole...)).Post("/task-completion", a.taskCompletion)
			r.With(allow(anyRole...)).Post("/order-assigned", a.orderAssigned)
			r.With(allow(anyRole...)).Post("/compliance-issue", a.complianceIssue)
			r.With(allow(domain.StaffRoles...)).Post("/system-status", a.systemStatus)
			r.With(allow(domain.RoleAdmin)).Post("/maintenance", a.maintenance)
		})
	})
}

type principalKey struct{}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.auth.Authenticate(auth.TokenFromRequest(r))
		if err != nil {
			var authErr *domain.AuthenticationError
			if !errors.As(err, &authErr) {
				err = &domain.AuthenticationError{Err: err}
			}
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principalFrom(r *http.Request) domain.Principal {
	p, _ := r.Context().Value(principalKey{}).(domain.Principal)
	return p
}

func allow(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := r.Method + " " + r.URL.Path
			if err := domain.Require(principalFrom(r).Role, op, roles...); err != nil {
				writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authnErr *domain.AuthenticationError
		authzErr *domain.AuthorizationError
		protoErr *domain.ProtocolError
	)
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.As(err, &authnErr):
		status, msg = http.StatusUnauthorized, "Authentication failed"
	case errors.As(err, &authzErr):
		status, msg = http.StatusForbidden, err.Error()
	case errors.As(err, &protoErr):
		status, msg = http.StatusBadRequest, err.Error()
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ProtocolError{Reason: "Invalid JSON body", Err: err}
	}
	return nil
}

func parseRoles(names []string) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(names))
	for _, n := range names {
		role, err := domain.ParseRole(n)
		if err != nil {
			return nil, &domain.ProtocolError{Reason: "invalid target_roles", Err: err}
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// attributed copies data and stamps the caller under the given key prefix.
func attributed(data domain.Payload, p domain.Principal, userKey, roleKey string) domain.Payload {
	out := make(domain.Payload, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	out[userKey] = p.Username
	out[roleKey] = string(p.Role)
	return out
}

func (a *API) connections(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("role"); name != "" {
		role, err := domain.ParseRole(name)
		if err != nil {
			a.writeError(w, r, &domain.ProtocolError{Reason: "invalid role", Err: err})
			return
		}
		writeJSON(w, http.StatusOK, a.hub.RoleStats(role))
		return
	}
	writeJSON(w, http.StatusOK, a.hub.Stats())
}

type broadcastRequest struct {
	Data        domain.Payload `json:"data"`
	Level       string         `json:"level,omitempty"`
	TargetRoles []string       `json:"target_roles,omitempty"`
}

func (a *API) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	roles, err := parseRoles(req.TargetRoles)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	data := attributed(req.Data, principalFrom(r), "from_user", "from_role")
	a.hub.SendNotification(data, nil, roles...)
	writeJSON(w, http.StatusOK, messageBody{Message: "Broadcast sent successfully"})
}

func (a *API) alert(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	level, err := domain.ParseAlertLevel(req.Level, domain.LevelInfo)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	roles, err := parseRoles(req.TargetRoles)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	data := attributed(req.Data, principalFrom(r), "sent_by", "sent_by_role")
	a.hub.SendAlert(level, data, roles...)
	writeJSON(w, http.StatusOK, messageBody{Message: "Alert sent successfully"})
}

func (a *API) taskUpdate(w http.ResponseWriter, r *http.Request) {
	var data domain.Payload
	if err := decode(r, &data); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.SendTaskUpdate(attributed(data, principalFrom(r), "updated_by", "updated_by_role"))
	writeJSON(w, http.StatusOK, messageBody{Message: "Task update sent successfully"})
}

func (a *API) orderStatus(w http.ResponseWriter, r *http.Request) {
	var data domain.Payload
	if err := decode(r, &data); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.SendOrderStatus(attributed(data, principalFrom(r), "updated_by", "updated_by_role"))
	writeJSON(w, http.StatusOK, messageBody{Message: "Order status update sent successfully"})
}

func (a *API) supervisorAlert(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	level, err := domain.ParseAlertLevel(req.Level, domain.LevelWarning)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.SendSupervisorAlert(level, attributed(req.Data, principalFrom(r), "reported_by", "reported_by_role"))
	writeJSON(w, http.StatusOK, messageBody{Message: "Supervisor alert sent successfully"})
}

type notificationRequest struct {
	Data        domain.Payload `json:"data"`
	UserID      *int64         `json:"user_id,omitempty"`
	UserRole    string         `json:"user_role,omitempty"`
	TargetRoles []string       `json:"target_roles,omitempty"`
}

func (a *API) notification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	var target *domain.Identity
	if req.UserID != nil && req.UserRole != "" {
		role, err := domain.ParseRole(req.UserRole)
		if err != nil {
			a.writeError(w, r, &domain.ProtocolError{Reason: "invalid user_role", Err: err})
			return
		}
		target = &domain.Identity{Role: role, UserID: *req.UserID}
	}
	roles, err := parseRoles(req.TargetRoles)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.hub.SendNotification(attributed(req.Data, principalFrom(r), "from_user", "from_role"), target, roles...)
	writeJSON(w, http.StatusOK, messageBody{Message: "Notification sent successfully"})
}

func (a *API) disconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		a.writeError(w, r, &domain.ProtocolError{Reason: "invalid user id", Err: err})
		return
	}
	role, err := domain.ParseRole(r.URL.Query().Get("user_role"))
	if err != nil {
		a.writeError(w, r, &domain.ProtocolError{Reason: "invalid user_role", Err: err})
		return
	}

	id := domain.Identity{Role: role, UserID: userID}
	if !a.hub.DisconnectIdentity(id) {
		a.logger.Debug("disconnect of absent identity", "identity", id.String())
	}
	writeJSON(w, http.StatusOK, messageBody{Message: fmt.Sprintf("User %d disconnected successfully", userID)})
}

type cleanupResponse struct {
	Message string `json:"message"`
	Evicted int    `json:"evicted"`
}

func (a *API) cleanup(w http.ResponseWriter, r *http.Request) {
	minutes := 30
	if v := r.URL.Query().Get("timeout_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.writeError(w, r, &domain.ProtocolError{Reason: "timeout_minutes must be a positive integer"})
			return
		}
		minutes = n
	}
	n := a.hub.CleanupInactive(time.Duration(minutes) * time.Minute)
	writeJSON(w, http.StatusOK, cleanupResponse{Message: "Inactive connections cleaned up successfully", Evicted: n})
}

type taskCompletionRequest struct {
	TaskID         int64          `json:"task_id"`
	OrderID        int64          `json:"order_id"`
	WorkerID       int64          `json:"worker_id"`
	CompletionData domain.Payload `json:"completion_data"`
}

func (a *API) taskCompletion(w http.ResponseWriter, r *http.Request) {
	var req taskCompletionRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.NotifyTaskCompletion(req.TaskID, req.OrderID, req.WorkerID, req.CompletionData)
	writeJSON(w, http.StatusOK, messageBody{Message: "Task completion notification sent"})
}

type orderAssignedRequest struct {
	OrderID   int64          `json:"order_id"`
	WorkerID  int64          `json:"worker_id"`
	OrderData domain.Payload `json:"order_data"`
}

func (a *API) orderAssigned(w http.ResponseWriter, r *http.Request) {
	var req orderAssignedRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.NotifyOrderAssigned(req.OrderID, req.WorkerID, req.OrderData)
	writeJSON(w, http.StatusOK, messageBody{Message: "Order assignment notification sent"})
}

func (a *API) complianceIssue(w http.ResponseWriter, r *http.Request) {
	var data domain.Payload
	if err := decode(r, &data); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.NotifyComplianceIssue(attributed(data, principalFrom(r), "reported_by", "reported_by_role"))
	writeJSON(w, http.StatusOK, messageBody{Message: "Compliance issue notification sent"})
}

func (a *API) systemStatus(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	level, err := domain.ParseAlertLevel(req.Level, domain.LevelInfo)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.hub.NotifySystemStatus(req.Data, level)
	writeJSON(w, http.StatusOK, messageBody{Message: "System status notification sent"})
}

type maintenanceRequest struct {
	Notice        string `json:"notice"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

func (a *API) maintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Notice == "" {
		a.writeError(w, r, &domain.ProtocolError{Reason: "notice is required"})
		return
	}
	a.hub.BroadcastMaintenanceNotice(req.Notice, req.ScheduledTime)
	writeJSON(w, http.StatusOK, messageBody{Message: "Maintenance notice broadcasted"})
}
