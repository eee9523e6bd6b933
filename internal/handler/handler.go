package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/response"
	"github.com/qs-lzh/cave-sale/internal/service"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// first match wins
var errorMappings = []errorMapping{
	{service.ErrInvalidInput, http.StatusBadRequest, response.CodeInvalidInput},
	{model.ErrInvalidEvent, http.StatusBadRequest, "INVALID_EVENT"},
	{domain.ErrInvalidEventAttach, http.StatusBadRequest, "INVALID_EVENT_PRODUCT"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{domain.ErrInvalidPayMode, http.StatusBadRequest, "INVALID_PAY_MODE"},

	{domain.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{domain.ErrNoActiveSession, http.StatusNotFound, "NO_ACTIVE_SESSION"},
	{domain.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{domain.ErrProductNotInEvent, http.StatusNotFound, "PRODUCT_NOT_IN_EVENT"},
	{service.ErrNotFound, http.StatusNotFound, response.CodeNotFound},

	{domain.ErrSessionNotOwned, http.StatusForbidden, "SESSION_NOT_OWNED"},
	{domain.ErrAdmissionGrantRequired, http.StatusForbidden, "ADMISSION_GRANT_REQUIRED"},

	{domain.ErrEventInactiveOrExpired, http.StatusConflict, "EVENT_INACTIVE_OR_EXPIRED"},
	{domain.ErrConcurrencyCapReached, http.StatusConflict, "CONCURRENCY_CAP_REACHED"},
	{domain.ErrPayModeNotAllowed, http.StatusConflict, "PAY_MODE_NOT_ALLOWED"},
	{domain.ErrEmptyCart, http.StatusConflict, "EMPTY_CART"},
	{domain.ErrCheckoutDenied, http.StatusConflict, response.CodeCheckoutDenied},
}

// writeError maps a service error onto a status and code. Unknown errors are logged
// and reported as 500 without their text.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := response.ErrorResponse{Code: m.code, Message: err.Error()}
		var denied *domain.CheckoutDeniedError
		if errors.As(err, &denied) {
			resp.Details = gin.H{
				"session_id": denied.SessionID,
				"product_id": denied.ProductID,
				"reason":     denied.Decision.Reason,
			}
		}
		c.JSON(m.status, resp)
		return
	}

	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, response.ErrorResponse{
		Code:    response.CodeInternalError,
		Message: "Failed to process request, please try again later",
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := response.InvalidInput(message)
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return uint(id), true
}

func uintQuery(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, name+" query parameter is required", err)
		return 0, false
	}
	return uint(id), true
}

// optionalInt64Query returns nil when the parameter is absent.
func optionalInt64Query(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return nil, false
	}
	return &v, true
}

// SessionView is a session as the client sees it, with what a countdown needs.
type SessionView struct {
	model.Session
	RemainingBudget int64 `json:"remaining_budget"`
	SecondsLeft     int64 `json:"seconds_left"`
}

func newSessionView(s *model.Session, event *model.Event, now time.Time) SessionView {
	view := SessionView{
		Session:         *s,
		RemainingBudget: domain.RemainingBudget(event, s.TotalSpent),
	}
	if s.LiveAt(now) {
		view.SecondsLeft = int64(s.ExpiresAt.Sub(now).Seconds())
	}
	return view
}
