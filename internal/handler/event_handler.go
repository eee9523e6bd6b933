package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

type EventHandler struct {
	app *app.App
}

func NewEventHandler(app *app.App) *EventHandler {
	return &EventHandler{
		app: app,
	}
}

// HandleListActive lists events open now, or at ?at= (RFC 3339).
func (h *EventHandler) HandleListActive(ctx *gin.Context) {
	at := time.Now()
	if raw := ctx.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(ctx, "Invalid at, expected RFC 3339", err)
			return
		}
		at = t
	}

	events, err := h.app.EventService.ListActiveEvents(ctx, at)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *EventHandler) HandleGet(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	event, err := h.app.EventService.GetEvent(ctx, id)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, event)
}

func (h *EventHandler) HandleListProducts(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}

	filter := domain.Filter{
		Category: ctx.Query("category"),
		Rarity:   domain.RarityTier(ctx.Query("rarity")),
	}
	if filter.Rarity != "" && !filter.Rarity.Valid() {
		badRequest(ctx, "Invalid rarity, expected common, rare, epic or legendary", nil)
		return
	}
	for name, dst := range map[string]**int64{
		"min_price":  &filter.MinPrice,
		"max_price":  &filter.MaxPrice,
		"min_points": &filter.MinPoints,
		"max_points": &filter.MaxPoints,
	} {
		v, ok := optionalInt64Query(ctx, name)
		if !ok {
			return
		}
		*dst = v
	}

	products, err := h.app.ProductService.ListEligibleProducts(ctx, id, filter)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"products": products})
}
