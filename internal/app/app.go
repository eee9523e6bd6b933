package app

import (
	"context"
	"errors"

	"github.com/qs-lzh/cave-sale/config"
	"github.com/qs-lzh/cave-sale/internal/cache"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/mq"
	"github.com/qs-lzh/cave-sale/internal/repository"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
	"github.com/qs-lzh/cave-sale/internal/service/workflow"
	"github.com/qs-lzh/cave-sale/internal/ws"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config

	DB        *gorm.DB
	Cache     *cache.RedisCache
	Logger    *zap.Logger
	MQConn    *amqp.Connection
	Publisher *mq.Publisher
	Hub       *ws.Hub

	EventService        domain.EventService
	ProductService      domain.ProductService
	SessionService      domain.SessionService
	CartService         domain.CartService
	OrderService        domain.OrderService
	NotificationService domain.NotificationService

	SessionWorkflow      *workflow.SessionWorkflow
	OrderWorkflow        *workflow.OrderWorkflow
	NotificationWorkflow *workflow.NotificationWorkflow
	Reaper               *workflow.SessionReaper
}

func New(config *config.Config, db *gorm.DB, cache *cache.RedisCache, mqConn *amqp.Connection, logger *zap.Logger) *App {
	eventRepo := repository.NewEventRepoGorm(db)
	productRepo := repository.NewProductRepoGorm(db)
	eventProductRepo := repository.NewEventProductRepoGorm(db)
	sessionRepo := repository.NewSessionRepoGorm(db)
	cartRepo := repository.NewCartRepoGorm(db)
	orderRepo := repository.NewOrderRepoGorm(db)
	userRepo := repository.NewUserRepoGorm(db)
	grantRepo := repository.NewGrantRepoGorm(db)
	notificationRepo := repository.NewNotificationRepoGorm(db)

	eventService := domain.NewEventService(eventRepo, grantRepo)
	productService := domain.NewProductService(eventService, productRepo, eventProductRepo, domain.NewRarityPolicy(config.Rarity))
	sessionService := domain.NewSessionService(eventRepo, sessionRepo, grantRepo, cartRepo, orderRepo, cache, logger)
	cartService := domain.NewCartService(db, cache, eventRepo, sessionRepo, productRepo, eventProductRepo, cartRepo, logger)
	orderService := domain.NewOrderService(db, eventRepo, sessionService, cartRepo, orderRepo)
	notificationService := domain.NewNotificationService(notificationRepo, userRepo)

	publisher := mq.NewPublisher(mqConn)
	hub := ws.NewHub(logger)
	dispatcher := workflow.NewDispatcher(publisher, logger)

	sessionWorkflow := workflow.NewSessionWorkflow(sessionService, publisher, dispatcher, logger)
	orderWorkflow := workflow.NewOrderWorkflow(orderService, dispatcher)
	notificationWorkflow := workflow.NewNotificationWorkflow(notificationService, hub, logger)
	reaper := workflow.NewSessionReaper(sessionService, sessionWorkflow, config.Reaper, logger)

	return &App{
		Config:               config,
		DB:                   db,
		Cache:                cache,
		Logger:               logger,
		MQConn:               mqConn,
		Publisher:            publisher,
		Hub:                  hub,
		EventService:         eventService,
		ProductService:       productService,
		SessionService:       sessionService,
		CartService:          cartService,
		OrderService:         orderService,
		NotificationService:  notificationService,
		SessionWorkflow:      sessionWorkflow,
		OrderWorkflow:        orderWorkflow,
		NotificationWorkflow: notificationWorkflow,
		Reaper:               reaper,
	}
}

func (app *App) Init(ctx context.Context) error {
	if err := app.DB.WithContext(ctx).AutoMigrate(model.AllModels()...); err != nil {
		return err
	}

	// redis may have lost active sessions the database still holds
	restored, err := app.SessionService.Restore(ctx)
	if err != nil {
		return err
	}
	if restored > 0 {
		app.Logger.Info("restored active sessions into cache", zap.Int("count", restored))
	}

	// init rabbit mq
	if err := mq.InitQueues(app.MQConn); err != nil {
		return err
	}

	go app.Hub.Run()

	if err := app.SessionWorkflow.Start(app.MQConn); err != nil {
		return err
	}
	if err := app.NotificationWorkflow.Start(app.MQConn); err != nil {
		return err
	}

	return app.Reaper.Start()
}

func (app *App) Close() error {
	app.Reaper.Stop()
	app.Hub.Close()

	var errs []error
	if err := app.Publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.MQConn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	sqlDB, err := app.DB.DB()
	if err != nil {
		errs = append(errs, err)
	} else if err := sqlDB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
