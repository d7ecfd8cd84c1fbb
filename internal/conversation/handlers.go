package conversation

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/apperr"
)

// Notifier pushes a freshly appended message to conversation subscribers.
type Notifier interface {
	MessageNew(m *Message)
}

type Handler struct {
	store  Store
	notify Notifier
	logger *zap.Logger
}

func NewHandler(store Store, notify Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, notify: notify, logger: logger}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.SendMessage)
	g.POST("/conversations/:id/offers", h.SendOffer)
}

// CreateConversation opens a thread between the caller and a peer.
func (h *Handler) CreateConversation(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := c.Bind(&req); err != nil || req.PeerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid peer_id"})
	}
	if req.PeerID == userID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot start a conversation with yourself"})
	}

	conv, err := h.store.CreateConversation(c.Request().Context(), userID, req.PeerID)
	if err != nil {
		h.logger.Error("create conversation failed", zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, conv)
}

func (h *Handler) ListMessages(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	convID := c.Param("id")
	conv, err := h.store.GetConversation(c.Request().Context(), convID)
	if err != nil {
		return respondError(c, err)
	}
	if !conv.Includes(userID) {
		return respondError(c, apperr.NotAParticipant())
	}

	msgs, err := h.store.ListMessages(c.Request().Context(), convID)
	if err != nil {
		h.logger.Error("list messages failed", zap.String("conversation_id", convID), zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// SendMessage appends a plain text message to the thread.
func (h *Handler) SendMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	convID := c.Param("id")
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message content is required"})
	}

	conv, err := h.store.GetConversation(c.Request().Context(), convID)
	if err != nil {
		return respondError(c, err)
	}
	if !conv.Includes(userID) {
		return respondError(c, apperr.NotAParticipant())
	}

	msg, err := h.store.AppendText(c.Request().Context(), convID, userID, req.Content)
	if err != nil {
		h.logger.Error("send message failed", zap.String("conversation_id", convID), zap.Error(err))
		return respondError(c, err)
	}

	h.notify.MessageNew(msg)
	return c.JSON(http.StatusCreated, msg)
}

// SendOffer appends a structured offer message to the thread. The other
// participant can later convert it into an order, exactly once.
func (h *Handler) SendOffer(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	convID := c.Param("id")
	var req struct {
		Title        string `json:"title"`
		Price        int64  `json:"price"`
		DeliveryDays int    `json:"delivery_days"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	offer := OfferPayload{Title: req.Title, Price: req.Price, DeliveryDays: req.DeliveryDays}
	if err := offer.Validate(); err != nil {
		return respondError(c, err)
	}

	conv, err := h.store.GetConversation(c.Request().Context(), convID)
	if err != nil {
		return respondError(c, err)
	}
	if !conv.Includes(userID) {
		return respondError(c, apperr.NotAParticipant())
	}

	msg, err := h.store.AppendOffer(c.Request().Context(), convID, userID, offer)
	if err != nil {
		h.logger.Error("send offer failed", zap.String("conversation_id", convID), zap.Error(err))
		return respondError(c, err)
	}

	h.notify.MessageNew(msg)
	return c.JSON(http.StatusCreated, msg)
}

func respondError(c echo.Context, err error) error {
	return c.JSON(apperr.HTTPStatus(err), echo.Map{"error": err.Error()})
}
