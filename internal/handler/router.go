package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/cave-sale/internal/app"
)

func NewRouter(app *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(app.Config.CORSOrigins)))

	events := NewEventHandler(app)
	sessions := NewSessionHandler(app)
	carts := NewCartHandler(app)
	notifications := NewNotificationHandler(app)
	admin := NewAdminHandler(app)

	r.GET("/events", events.HandleListActive)
	r.GET("/events/:id", events.HandleGet)
	r.GET("/events/:id/products", events.HandleListProducts)

	r.POST("/events/:id/sessions", sessions.HandleAdmit)
	r.GET("/events/:id/sessions/active", sessions.HandleGetActive)
	r.GET("/sessions/:id", sessions.HandleGet)
	r.POST("/sessions/:id/end", sessions.HandleEnd)
	r.POST("/sessions/:id/cart", carts.HandleAddEventItem)

	r.POST("/cart", carts.HandleAddItem)
	r.GET("/cart", carts.HandleList)
	r.POST("/orders", carts.HandlePlaceOrder)
	r.GET("/users/:id/orders", carts.HandleListOrders)

	r.GET("/users/:id/notifications", notifications.HandleList)
	r.POST("/notifications/:id/read", notifications.HandleMarkRead)
	if app.Hub != nil {
		r.GET("/ws", app.Hub.ServeWS)
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/events", admin.HandleCreateEvent)
		adminGroup.PATCH("/events/:id", admin.HandleUpdateEvent)
		adminGroup.POST("/products", admin.HandleCreateProduct)
		adminGroup.POST("/events/:id/products", admin.HandleAttachProduct)
		adminGroup.POST("/events/:id/grants", admin.HandleGrant)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
