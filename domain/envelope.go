package domain

import (
	"encoding/json"
	"time"
)

// Inbound tags.
const (
	TypePing             = "ping"
	TypeSubscribe        = "subscribe"
	TypeUnsubscribe      = "unsubscribe"
	TypeTaskStatusUpdate = "task_status_update"
	TypeRequestStatus    = "request_status"
	TypeBroadcastMessage = "broadcast_message"
)

// Outbound tags.
const (
	TypeSystemMessage           = "system_message"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePong                    = "pong"
	TypeStatusResponse          = "status_response"
	TypeError                   = "error"
	TypeTaskUpdate              = "task_update"
	TypeOrderStatus             = "order_status"
	TypeAlert                   = "alert"
	TypeSupervisorAlert         = "supervisor_alert"
	TypeNotification            = "notification"
	TypeWorkerStatus            = "worker_status"
)

type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelError    AlertLevel = "error"
	LevelCritical AlertLevel = "critical"
)

func ParseAlertLevel(s string, fallback AlertLevel) (AlertLevel, error) {
	switch l := AlertLevel(s); l {
	case "":
		return fallback, nil
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return l, nil
	}
	return "", &ProtocolError{Reason: "unknown alert level " + s}
}

const (
	ActionConnected    = "connected"
	ActionDisconnected = "disconnected"
)

// Payload is opaque to the broker apart from a few routing keys.
type Payload map[string]any

// Envelope is built once and may be delivered to many connections. Timestamp is construction time.
type Envelope struct {
	Type       string     `json:"type"`
	Data       any        `json:"data,omitempty"`
	Message    string     `json:"message,omitempty"`
	Channel    string     `json:"channel,omitempty"`
	Level      AlertLevel `json:"level,omitempty"`
	Action     string     `json:"action,omitempty"`
	WorkerID   int64      `json:"worker_id,omitempty"`
	WorkerData UserData   `json:"worker_data,omitempty"`
	UserRole   Role       `json:"user_role,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func NewEnvelope(typ string, data any) Envelope {
	return Envelope{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

func NewMessage(typ, message string) Envelope {
	return Envelope{Type: typ, Message: message, Timestamp: time.Now().UTC()}
}

func NewAlert(typ string, level AlertLevel, data any) Envelope {
	env := NewEnvelope(typ, data)
	env.Level = level
	return env
}

func NewChannelEnvelope(typ, channel string) Envelope {
	return Envelope{Type: typ, Channel: channel, Timestamp: time.Now().UTC()}
}

func NewWorkerStatus(action string, workerID int64, data UserData) Envelope {
	return Envelope{
		Type:       TypeWorkerStatus,
		Action:     action,
		WorkerID:   workerID,
		WorkerData: data,
		Timestamp:  time.Now().UTC(),
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
