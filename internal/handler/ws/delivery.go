package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/webitel/im-gamification-service/config"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-gamification-service/internal/handler/marshaller/ws"
	"github.com/webitel/im-gamification-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	UserIDHeader = "X-User-ID"
	UserIDQuery  = "user_id"
)

// UserID extracts the caller identity. Authentication is delegated to the
// gateway in front of the service.
func UserID(r *http.Request) string {
	if id := r.Header.Get(UserIDHeader); id != "" {
		return id
	}
	return r.URL.Query().Get(UserIDQuery)
}

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	upgrader  websocket.Upgrader

	commandRate  rate.Limit
	commandBurst int
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, cfg *config.Config) *WSHandler {
	burst := cfg.Registry.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.Registry.CommandRate)
	if cfg.Registry.CommandRate <= 0 {
		limit = rate.Inf
	}
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin policy is enforced by the CORS layer and the gateway
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		commandRate:  limit,
		commandBurst: burst,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT USER ID
	userID := UserID(r)
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS_UPGRADE_FAILED", "user_id", userID, "err", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 3. SUBSCRIBE: the connector becomes the user's live channel
	conn, err := h.deliverer.Subscribe(ctx, userID)
	if err != nil {
		h.logger.Error("WS_SUBSCRIBE_FAILED", "user_id", userID, "err", err)
		return
	}
	defer h.deliverer.Unsubscribe(userID, conn)

	l := h.logger.With("user_id", userID, "conn_id", conn.ID().String())
	l.Info("WS_OPENED")
	defer l.Info("WS_CLOSED")

	// [HANDSHAKE]
	hello, err := wsmarshaller.MarshallConnected(conn.ID().String())
	if err != nil {
		l.Error("WS_HANDSHAKE_FAILED", "err", err)
		return
	}
	if err := h.write(ws, websocket.TextMessage, hello); err != nil {
		return
	}

	go h.readPump(ctx, cancel, ws, conn, l)

	// 4. MAIN WS PUMP LOOP (sole writer)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-conn.Done():
			// [REPLACED_OR_EVICTED] another connection took over or the janitor swept us
			_ = h.write(ws, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session replaced"))
			return

		case frame := <-conn.Recv():
			if err := h.write(ws, websocket.TextMessage, frame); err != nil {
				l.Warn("WS_SEND_FAILED", "err", err)
				return
			}

		case <-ticker.C:
			if err := h.write(ws, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound commands to the router until the socket fails.
func (h *WSHandler) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn *registry.Connector, l *slog.Logger) {
	defer cancel()

	limiter := rate.NewLimiter(h.commandRate, h.commandBurst)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		// a pong is liveness too
		_ = h.deliverer.Dispatch(ctx, conn.UserID(), conn, registry.Command{Type: registry.CommandPing})
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn("WS_READ_FAILED", "err", err)
			}
			return
		}

		if !limiter.Allow() {
			l.Debug("WS_COMMAND_THROTTLED")
			continue
		}

		cmd, err := wsmarshaller.UnmarshallCommand(data)
		if err != nil {
			l.Debug("WS_COMMAND_REJECTED", "err", err)
			continue
		}

		if err := h.deliverer.Dispatch(ctx, conn.UserID(), conn, cmd); err != nil {
			l.Warn("WS_COMMAND_FAILED", "command", cmd.Type, "err", err)
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, messageType int, data []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(messageType, data)
}
