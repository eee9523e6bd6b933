package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/response"
)

type CartHandler struct {
	app *app.App
}

func NewCartHandler(app *app.App) *CartHandler {
	return &CartHandler{
		app: app,
	}
}

type addItemRequest struct {
	UserID    uint `json:"user_id" binding:"required"`
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// HandleAddEventItem adds an event purchase under a session. A refusal by the guard is
// a 409 carrying the decision, so the client can show the reason and what is left.
func (h *CartHandler) HandleAddEventItem(ctx *gin.Context) {
	var req addItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	result, err := h.app.CartService.AddEventItem(ctx, req.UserID, ctx.Param("id"), req.ProductID, req.Quantity, time.Now())
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	if !result.Decision.Allowed {
		ctx.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "PURCHASE_DENIED",
			Message: "The item cannot be added to this session",
			Details: result.Decision,
		})
		return
	}
	ctx.JSON(http.StatusCreated, result)
}

func (h *CartHandler) HandleAddItem(ctx *gin.Context) {
	var req addItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	line, err := h.app.CartService.AddItem(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, line)
}

func (h *CartHandler) HandleList(ctx *gin.Context) {
	userID, ok := uintQuery(ctx, "user_id")
	if !ok {
		return
	}
	lines, err := h.app.CartService.ListCart(ctx, userID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lines": lines})
}

type placeOrderRequest struct {
	UserID  uint          `json:"user_id" binding:"required"`
	PayMode model.PayMode `json:"pay_mode" binding:"required"`
}

func (h *CartHandler) HandlePlaceOrder(ctx *gin.Context) {
	var req placeOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	order, err := h.app.OrderWorkflow.PlaceOrder(ctx, req.UserID, req.PayMode)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, order)
}

func (h *CartHandler) HandleListOrders(ctx *gin.Context) {
	userID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	orders, err := h.app.OrderService.ListOrders(ctx, userID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders})
}
