package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/storage"
)

type Handler struct {
	engine *Engine
	store  Store
	files  storage.Store
	logger *zap.Logger
}

func NewHandler(engine *Engine, store Store, files storage.Store, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, store: store, files: files, logger: logger}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/messages/:id/accept", h.AcceptOffer)
	g.GET("/orders", h.ListOrders)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/requirements", h.SubmitRequirements)
	g.POST("/orders/:id/deliver", h.DeliverWork)
	g.POST("/orders/:id/accept", h.AcceptDelivery)
	g.POST("/orders/:id/revision", h.RequestRevision)
	g.POST("/orders/:id/problem", h.ReportProblem)
	g.GET("/orders/:id/files", h.ListFiles)
	g.GET("/orders/:id/revisions", h.ListRevisions)
}

func (h *Handler) AcceptOffer(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.engine.AcceptOffer(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order_id": o.ID, "order": o})
}

func (h *Handler) GetOrder(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if userID != o.BuyerID && userID != o.SellerID {
		return respondError(c, apperr.Forbidden("not a participant in this order"))
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orders, err := h.store.ListByParticipant(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}

func (h *Handler) SubmitRequirements(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	o, err := h.engine.SubmitRequirements(c.Request().Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// DeliverWork uploads every attached file to object storage first, then
// runs the transition. An upload failure aborts the whole call before
// any record or status change is written.
func (h *Handler) DeliverWork(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expected multipart form with files"})
	}

	var files []DeliveredFile
	for _, fh := range form.File["files"] {
		src, err := fh.Open()
		if err != nil {
			return respondError(c, apperr.StorageFailure("could not read uploaded file "+fh.Filename, err))
		}

		obj, err := h.files.Save(c.Request().Context(), orderID, fh.Filename, fh.Header.Get("Content-Type"), src)
		src.Close()
		if err != nil {
			h.logger.Error("upload failed", zap.String("order_id", orderID), zap.String("file", fh.Filename), zap.Error(err))
			return respondError(c, apperr.StorageFailure("could not store uploaded file "+fh.Filename, err))
		}

		files = append(files, DeliveredFile{
			FileName:    fh.Filename,
			Size:        obj.Size,
			ContentType: obj.ContentType,
			StoragePath: obj.StoragePath,
		})
	}

	o, err := h.engine.DeliverWork(c.Request().Context(), orderID, userID, files)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) AcceptDelivery(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.engine.AcceptDelivery(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) RequestRevision(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Comment string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	o, err := h.engine.RequestRevision(c.Request().Context(), c.Param("id"), userID, req.Comment)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ReportProblem(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	o, err := h.engine.ReportProblem(c.Request().Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": o, "message": "problem reported"})
}

func (h *Handler) ListFiles(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if userID != o.BuyerID && userID != o.SellerID {
		return respondError(c, apperr.Forbidden("not a participant in this order"))
	}

	files, err := h.store.ListFiles(c.Request().Context(), o.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"files": files})
}

func (h *Handler) ListRevisions(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	o, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if userID != o.BuyerID && userID != o.SellerID {
		return respondError(c, apperr.Forbidden("not a participant in this order"))
	}

	revisions, err := h.store.ListRevisions(c.Request().Context(), o.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revisions": revisions})
}

func respondError(c echo.Context, err error) error {
	return c.JSON(apperr.HTTPStatus(err), echo.Map{"error": err.Error()})
}
