package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleWorker     Role = "worker"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleAdmin, RoleSupervisor, RoleWorker}

// StaffRoles receive worker presence, supervisor alerts and task/order updates.
var StaffRoles = []Role{RoleSupervisor, RoleAdmin}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleSupervisor, RoleWorker:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// RoomName is the default room every connection of this role joins.
func (r Role) RoomName() string { return "role_" + string(r) }

// Identity is the (role, user id) pair; at most one live connection exists per identity.
type Identity struct {
	Role   Role
	UserID int64
}

func (id Identity) String() string { return fmt.Sprintf("%s:%d", id.Role, id.UserID) }

// UserData is attached at registration and never interpreted by the broker.
type UserData map[string]any

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Authenticator turns a bearer token into a verified identity.
type Authenticator interface {
	Authenticate(token string) (Principal, error)
}

type Principal struct {
	Identity
	Username string
	Email    string
}

func (p Principal) UserData() UserData {
	return UserData{
		"username":     p.Username,
		"email":        p.Email,
		"connected_at": time.Now().UTC().Format(time.RFC3339),
	}
}

type State int32

const (
	StateUnauthenticated State = iota
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Close codes sent to clients. Auth failures use their own code so clients know to fetch a new token.
const (
	CloseConnectionError = 4000
	CloseAuthFailed      = 4001
)
