package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/store"
)

type CommandType string

const (
	CommandMarkRead           CommandType = "mark_read"
	CommandFetchNotifications CommandType = "fetch_notifications"
	CommandPing               CommandType = "ping"
)

// Command is one inbound client message.
type Command struct {
	Type   CommandType `json:"type"`
	ID     string      `json:"id,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

type FrameType string

const (
	FrameNotification     FrameType = "notification"
	FrameNotifications    FrameType = "notifications"
	FrameNotificationRead FrameType = "notification_read"
	FrameError            FrameType = "error"
	FrameConnected        FrameType = "connected"
)

// Frame is the outbound envelope written to a live channel.
type Frame struct {
	Type    FrameType `json:"type"`
	SentAt  int64     `json:"sent_at"`
	Payload any       `json:"payload,omitempty"`
}

func EncodeFrame(t FrameType, payload any) ([]byte, error) {
	data, err := json.Marshal(Frame{Type: t, SentAt: time.Now().UnixMilli(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", t, err)
	}
	return data, nil
}

// CommandRouter dispatches client commands. Every command counts as activity.
type CommandRouter struct {
	hub           Hubber
	notifications store.NotificationStore
	logger        *slog.Logger
}

func NewCommandRouter(hub Hubber, notifications store.NotificationStore, logger *slog.Logger) *CommandRouter {
	return &CommandRouter{hub: hub, notifications: notifications, logger: logger}
}

// Dispatch handles cmd received on ch. Responses go back on ch, even when a
// newer channel has since replaced it.
func (r *CommandRouter) Dispatch(ctx context.Context, userID string, ch Channel, cmd Command) error {
	r.hub.Touch(userID)

	switch cmd.Type {
	case CommandPing:
		return nil

	case CommandMarkRead:
		n, err := r.notifications.MarkNotificationRead(ctx, userID, cmd.ID)
		if err != nil {
			return r.reply(ctx, userID, ch, FrameError, map[string]string{"command": string(cmd.Type), "error": err.Error()})
		}
		return r.reply(ctx, userID, ch, FrameNotificationRead, n)

	case CommandFetchNotifications:
		page := model.Page{Limit: cmd.Limit, Offset: cmd.Offset}.Normalize()
		list, err := r.notifications.ListNotifications(ctx, userID, page)
		if err != nil {
			return fmt.Errorf("fetch notifications: %w", err)
		}
		if list == nil {
			list = []model.Notification{}
		}
		return r.reply(ctx, userID, ch, FrameNotifications, map[string]any{
			"items":  list,
			"limit":  page.Limit,
			"offset": page.Offset,
		})

	default:
		r.logger.Debug("COMMAND_IGNORED", "user_id", userID, "type", cmd.Type)
		return nil
	}
}

func (r *CommandRouter) reply(ctx context.Context, userID string, ch Channel, t FrameType, payload any) error {
	data, err := EncodeFrame(t, payload)
	if err != nil {
		return err
	}
	return r.hub.Reply(ctx, userID, ch, data)
}
