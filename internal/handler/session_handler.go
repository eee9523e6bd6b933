package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
	"github.com/qs-lzh/cave-sale/internal/model"
)

type SessionHandler struct {
	app *app.App
}

func NewSessionHandler(app *app.App) *SessionHandler {
	return &SessionHandler{
		app: app,
	}
}

type userRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// HandleAdmit answers 201 for a new session and 200 when the user's live session is returned.
func (h *SessionHandler) HandleAdmit(ctx *gin.Context) {
	eventID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	admission, err := h.app.SessionWorkflow.Admit(ctx, req.UserID, eventID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	status := http.StatusCreated
	if admission.Existing {
		status = http.StatusOK
	}
	h.respondSession(ctx, status, admission.Session)
}

func (h *SessionHandler) HandleGetActive(ctx *gin.Context) {
	eventID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	userID, ok := uintQuery(ctx, "user_id")
	if !ok {
		return
	}

	session, err := h.app.SessionService.GetActiveSession(ctx, userID, eventID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	h.respondSession(ctx, http.StatusOK, session)
}

func (h *SessionHandler) HandleGet(ctx *gin.Context) {
	session, err := h.app.SessionService.GetSession(ctx, ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	h.respondSession(ctx, http.StatusOK, session)
}

// HandleEnd is the explicit exit. Ending an already ended session returns it unchanged.
func (h *SessionHandler) HandleEnd(ctx *gin.Context) {
	var req userRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body", err)
		return
	}

	session, err := h.app.SessionWorkflow.End(ctx, ctx.Param("id"), req.UserID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	h.respondSession(ctx, http.StatusOK, session)
}

func (h *SessionHandler) respondSession(ctx *gin.Context, status int, session *model.Session) {
	event, err := h.app.EventService.GetEvent(ctx, session.EventID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(status, newSessionView(session, event, time.Now()))
}
