package protocol

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"

	"github.com/akshitbansal010/warehouse-compliance-system/domain"
	"github.com/akshitbansal010/warehouse-compliance-system/hub"
)

type Handler struct {
	hub            *hub.Hub
	auth           domain.Authenticator
	logger         *slog.Logger
	protocolErrors *prometheus.CounterVec
}

type Option func(*handlerOptions)

type handlerOptions struct {
	logger *slog.Logger
	reg    prometheus.Registerer
}

func WithLogger(l *slog.Logger) Option {
	return func(o *handlerOptions) { o.logger = l }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *handlerOptions) { o.reg = reg }
}

func NewHandler(h *hub.Hub, auth domain.Authenticator, opts ...Option) *Handler {
	o := handlerOptions{logger: slog.Default(), reg: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Handler{
		hub:    h,
		auth:   auth,
		logger: o.logger.With("component", "protocol"),
		protocolErrors: promauto.With(o.reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "broker",
			Name:      "protocol_errors_total",
			Help:      "Inbound frames answered with an error envelope",
		}, []string{"kind"}),
	}
}

// Open authenticates token and registers conn under the verified identity. Any
// authentication problem comes back as *domain.AuthenticationError and leaves the registry untouched.
func (h *Handler) Open(conn domain.Connection, token string) (*hub.Client, error) {
	principal, err := h.auth.Authenticate(token)
	if err != nil {
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			authErr = &domain.AuthenticationError{Err: err}
		}
		return nil, authErr
	}
	return h.hub.Register(conn, principal.Identity, principal.UserData())
}

// Close deregisters c. It is safe to call more than once.
func (h *Handler) Close(c *hub.Client) {
	h.hub.Deregister(c.Conn())
}

// Handle processes one inbound frame. Bad frames are answered with an error envelope;
// the connection stays open.
func (h *Handler) Handle(c *hub.Client, data []byte) {
	h.hub.Touch(c)
	if err := h.dispatch(c, data); err != nil {
		kind := "protocol"
		var authzErr *domain.AuthorizationError
		if errors.As(err, &authzErr) {
			kind = "authorization"
		}
		h.protocolErrors.WithLabelValues(kind).Inc()
		h.logger.Warn("rejected frame", "clientId", c.ID(), "userId", c.UserID(), "error", err)
		h.hub.SendTo(c, domain.NewMessage(domain.TypeError, err.Error()))
	}
}

func (h *Handler) dispatch(c *hub.Client, data []byte) error {
	if !gjson.ValidBytes(data) {
		return &domain.ProtocolError{Reason: "Invalid JSON format"}
	}
	frame := gjson.ParseBytes(data)
	if !frame.IsObject() {
		return &domain.ProtocolError{Reason: "Invalid JSON format"}
	}

	switch typ := frame.Get("type").String(); typ {
	case domain.TypePing:
		h.hub.SendTo(c, domain.NewEnvelope(domain.TypePong, nil))
		return nil
	case domain.TypeSubscribe:
		return h.subscribe(c, frame)
	case domain.TypeUnsubscribe:
		return h.unsubscribe(c, frame)
	case domain.TypeTaskStatusUpdate:
		return h.taskStatusUpdate(c, frame)
	case domain.TypeRequestStatus:
		h.hub.SendTo(c, domain.NewEnvelope(domain.TypeStatusResponse, h.hub.Stats()))
		return nil
	case domain.TypeBroadcastMessage:
		return h.broadcastMessage(c, frame)
	default:
		return &domain.ProtocolError{Reason: "Unknown message type: " + typ}
	}
}

func (h *Handler) subscribe(c *hub.Client, frame gjson.Result) error {
	channel := frame.Get("channel").String()
	if channel == "" {
		return &domain.ProtocolError{Reason: "channel is required"}
	}
	h.hub.Join(c, channel)
	h.hub.SendTo(c, domain.NewChannelEnvelope(domain.TypeSubscriptionConfirmed, channel))
	return nil
}

func (h *Handler) unsubscribe(c *hub.Client, frame gjson.Result) error {
	channel := frame.Get("channel").String()
	if channel == "" {
		return &domain.ProtocolError{Reason: "channel is required"}
	}
	if channel == c.Role().RoomName() {
		return &domain.ProtocolError{Reason: "cannot leave default room " + channel}
	}
	h.hub.Leave(c, channel)
	h.hub.SendTo(c, domain.NewChannelEnvelope(domain.TypeUnsubscriptionConfirmed, channel))
	return nil
}

func (h *Handler) taskStatusUpdate(c *hub.Client, frame gjson.Result) error {
	if err := domain.Require(c.Role(), "send task status updates", domain.RoleWorker); err != nil {
		return err
	}
	payload, err := objectPayload(frame.Get("data"))
	if err != nil {
		return err
	}
	payload["worker_id"] = c.UserID()
	payload["updated_by"] = username(c)
	h.hub.SendTaskUpdate(payload)
	return nil
}

func (h *Handler) broadcastMessage(c *hub.Client, frame gjson.Result) error {
	if err := domain.Require(c.Role(), "broadcast messages", domain.RoleSupervisor, domain.RoleAdmin); err != nil {
		return err
	}

	roles := []domain.Role{domain.RoleWorker}
	if tr := frame.Get("target_roles"); tr.Exists() {
		if !tr.IsArray() {
			return &domain.ProtocolError{Reason: "target_roles must be a list"}
		}
		roles = roles[:0]
		for _, r := range tr.Array() {
			role, err := domain.ParseRole(r.String())
			if err != nil {
				return &domain.ProtocolError{Reason: "invalid target_roles", Err: err}
			}
			roles = append(roles, role)
		}
	}

	payload := domain.Payload{}
	switch data := frame.Get("data"); {
	case data.IsObject():
		var err error
		if payload, err = objectPayload(data); err != nil {
			return err
		}
	case data.Exists():
		payload["message"] = data.Value()
	}
	if _, ok := payload["message"]; !ok {
		payload["message"] = ""
	}
	payload["from_user"] = username(c)
	payload["from_role"] = c.Role()

	h.hub.BroadcastToRoles(domain.NewEnvelope(domain.TypeNotification, payload), roles...)
	return nil
}

// objectPayload decodes a JSON object field; a missing field yields an empty payload.
func objectPayload(field gjson.Result) (domain.Payload, error) {
	payload := domain.Payload{}
	if !field.Exists() || field.Type == gjson.Null {
		return payload, nil
	}
	if !field.IsObject() {
		return nil, &domain.ProtocolError{Reason: "data must be an object"}
	}
	if err := json.Unmarshal([]byte(field.Raw), &payload); err != nil {
		return nil, &domain.ProtocolError{Reason: "data must be an object", Err: err}
	}
	return payload, nil
}

func username(c *hub.Client) any {
	if name, ok := c.UserData()["username"]; ok {
		return name
	}
	return c.UserID()
}
