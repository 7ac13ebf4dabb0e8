package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/auth"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/presence"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/transport"
)

const commandTimeout = 10 * time.Second

type MessageService interface {
	SendMessage(ctx context.Context, cmd application.SendMessageCommand) (*domain.Message, error)
	ScheduleMessage(ctx context.Context, cmd application.ScheduleMessageCommand) (*domain.Message, error)
	DeleteMessage(ctx context.Context, cmd application.DeleteMessageCommand) error
	Conversation(ctx context.Context, q application.ConversationQuery) ([]*domain.Message, error)
}

type Handler struct {
	registry *presence.Registry
	mirror   presence.Mirror
	service  MessageService
	log      *zap.Logger

	HeartbeatInterval time.Duration
}

func NewHandler(registry *presence.Registry, mirror presence.Mirror, service MessageService, log *zap.Logger) *Handler {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry:          registry,
		mirror:            mirror,
		service:           service,
		log:               log,
		HeartbeatInterval: HeartbeatInterval,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades a request authenticated by auth.Verifier.Middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade error", zap.Error(err))
		return
	}

	session := NewSession(uuid.NewString(), userID, conn, h.log)

	if replaced := h.registry.Register(userID, session); replaced != nil {
		h.log.Info("session: replacing existing connection",
			zap.String("user_id", userID),
			zap.String("old_sid", replaced.ID()),
			zap.String("new_sid", session.ID()),
		)
		if old, ok := replaced.(*Session); ok {
			old.CloseWithReason(CloseSessionReplaced, "session_replaced")
		}
	}
	observability.WebSocketConnectionsActive.Set(float64(h.registry.Count()))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	if err := h.mirror.Online(ctx, userID, session.ID()); err != nil {
		h.log.Error("presence: fail to mark online", zap.String("user_id", userID), zap.Error(err))
	}
	cancel()

	StartHeartbeat(h.mirror, userID, session.ID(), h.HeartbeatInterval, session.Done(), h.log)

	session.Start()
	h.reply(session, Reply{Event: EventConnected, Payload: map[string]string{
		"user_id":    userID,
		"session_id": session.ID(),
	}})
	h.log.Info("connected", zap.String("user_id", userID), zap.String("session_id", session.ID()))

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.readLoop(session)
}

func (h *Handler) readLoop(s *Session) {
	defer func() {
		current := h.registry.Unregister(s.UserID, s)
		s.Close()

		if current {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			if err := h.mirror.Offline(ctx, s.UserID, s.ID()); err != nil {
				h.log.Error("presence: fail to mark offline", zap.String("user_id", s.UserID), zap.Error(err))
			}
			cancel()
		}
		observability.WebSocketConnectionsActive.Set(float64(h.registry.Count()))
		h.log.Info("disconnected", zap.String("user_id", s.UserID), zap.String("session_id", s.ID()))
	}()

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("read loop error", zap.String("user_id", s.UserID), zap.Error(err))
			}
			return
		}

		h.reply(s, h.handleCommand(s.UserID, raw))
	}
}

// handleCommand runs one client command as userID and builds its reply.
// Commands from a connection are handled in arrival order.
func (h *Handler) handleCommand(userID string, raw []byte) Reply {
	cmd, err := decodeCommand(raw)
	if err != nil {
		return failure("", transport.MapError(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	payload, err := h.execute(ctx, userID, cmd)
	if err != nil {
		wire := transport.MapError(err)
		if wire.Code == transport.CodeInternal {
			h.log.Error("command failed",
				zap.String("type", cmd.Type),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return failure(cmd.RequestID, wire)
	}
	return ack(cmd.RequestID, payload)
}

func (h *Handler) execute(ctx context.Context, userID string, cmd Command) (any, error) {
	switch cmd.Type {
	case CommandSend:
		return h.service.SendMessage(ctx, application.SendMessageCommand{
			SenderID:    userID,
			RecipientID: cmd.RecipientID,
			Payload:     payloadOf(cmd),
		})

	case CommandSchedule:
		if cmd.At == nil {
			return nil, &transport.Error{Code: transport.CodeInvalidArgument, Message: "at is required"}
		}
		return h.service.ScheduleMessage(ctx, application.ScheduleMessageCommand{
			SenderID:    userID,
			RecipientID: cmd.RecipientID,
			Payload:     payloadOf(cmd),
			At:          *cmd.At,
		})

	case CommandDelete:
		err := h.service.DeleteMessage(ctx, application.DeleteMessageCommand{
			RequesterID: userID,
			MessageID:   cmd.MessageID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": cmd.MessageID}, nil

	case CommandConversation:
		return h.service.Conversation(ctx, application.ConversationQuery{
			ViewerID: userID,
			PeerID:   cmd.PeerID,
		})

	case CommandOnline:
		return h.registry.OnlineUsers(), nil

	default:
		return nil, &transport.Error{Code: transport.CodeInvalidArgument, Message: "unknown command " + cmd.Type}
	}
}

func payloadOf(cmd Command) domain.Payload {
	if cmd.Payload == nil {
		return domain.Payload{}
	}
	return *cmd.Payload
}

func (h *Handler) reply(s *Session, r Reply) {
	raw, err := json.Marshal(r)
	if err != nil {
		h.log.Error("failed to encode reply", zap.Error(err))
		return
	}
	if err := s.Push(raw); err != nil {
		h.log.Debug("reply dropped", zap.String("session_id", s.ID()), zap.Error(err))
	}
}
