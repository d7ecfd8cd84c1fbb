package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
	"github.com/atelierhq/atelier/internal/order"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type OrderSource interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

type ConversationSource interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
}

// Handler exposes the two realtime streams over WebSocket: one per
// order and one per conversation. Participation is checked against the
// row before the upgrade.
type Handler struct {
	hub    *Hub
	orders OrderSource
	convos ConversationSource
	logger *zap.Logger
}

func NewHandler(hub *Hub, orders OrderSource, convos ConversationSource, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, orders: orders, convos: convos, logger: logger}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/ws/orders/:id", h.OrderSocket)
	g.GET("/ws/conversations/:id", h.ConversationSocket)
}

func (h *Handler) OrderSocket(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.orders.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	if userID != o.BuyerID && userID != o.SellerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this order"})
	}

	return h.serve(c, OrderChannel(o.ID))
}

func (h *Handler) ConversationSocket(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	conv, err := h.convos.GetConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(apperr.HTTPStatus(err), echo.Map{"error": err.Error()})
	}
	if !conv.Includes(userID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this conversation"})
	}

	return h.serve(c, ConversationChannel(conv.ID))
}

func (h *Handler) serve(c echo.Context, channel string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	events := h.hub.Subscribe(ctx, channel)

	go h.writePump(conn, events, cancel)
	h.readPump(conn, cancel)
	return nil
}

// readPump discards client frames; the protocol is server push. Its job
// is noticing the disconnect and tearing the subscription down.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, events <-chan Event, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case evt, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("marshal event failed", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
