package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
)

type NotificationHandler struct {
	app *app.App
}

func NewNotificationHandler(app *app.App) *NotificationHandler {
	return &NotificationHandler{
		app: app,
	}
}

func (h *NotificationHandler) HandleList(ctx *gin.Context) {
	userID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(ctx, "Invalid limit", err)
			return
		}
		limit = n
	}

	notifications, err := h.app.NotificationService.List(ctx, userID, limit)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *NotificationHandler) HandleMarkRead(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	if err := h.app.NotificationService.MarkRead(ctx, id, req.UserID); err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
