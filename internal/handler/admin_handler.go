package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

// AdminHandler serves the catalog writes. Authentication is left to the gateway in front.
type AdminHandler struct {
	app *app.App
}

func NewAdminHandler(app *app.App) *AdminHandler {
	return &AdminHandler{
		app: app,
	}
}

func (h *AdminHandler) HandleCreateEvent(ctx *gin.Context) {
	var in model.EventInsert
	if err := ctx.ShouldBindJSON(&in); err != nil {
		badRequest(ctx, "Invalid event", err)
		return
	}
	event, err := h.app.EventService.CreateEvent(ctx, in)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, event)
}

func (h *AdminHandler) HandleUpdateEvent(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var in model.EventUpdate
	if err := ctx.ShouldBindJSON(&in); err != nil {
		badRequest(ctx, "Invalid event update", err)
		return
	}
	event, err := h.app.EventService.UpdateEvent(ctx, id, in)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, event)
}

type createProductRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category" binding:"required"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url"`
}

func (h *AdminHandler) HandleCreateProduct(ctx *gin.Context) {
	var req createProductRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid product", err)
		return
	}
	product := &model.Product{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		ImageURL: req.ImageURL,
	}
	if err := h.app.ProductService.CreateProduct(ctx, product); err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, product)
}

func (h *AdminHandler) HandleAttachProduct(ctx *gin.Context) {
	eventID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var in domain.AttachInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		badRequest(ctx, "Invalid event product", err)
		return
	}
	ep, err := h.app.ProductService.AttachProductToEvent(ctx, eventID, in)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, ep)
}

func (h *AdminHandler) HandleGrant(ctx *gin.Context) {
	eventID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}
	if err := h.app.EventService.GrantAdmission(ctx, eventID, req.UserID); err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
