package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/config"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/database"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/handlers"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/jobs"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/logging"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/metrics"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/notify"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/routes"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	db, err := database.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := db.Client().Disconnect(ctx); err != nil {
			logger.Warn("disconnect mongo", zap.Error(err))
		}
	}()
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	users := database.NewUserRepository(db)
	admins := database.NewAdminRepository(db)
	drivers := database.NewDriverRepository(db)
	orders := database.NewOrderRepository(db)
	products := database.NewProductRepository(db)
	carts := database.NewCartRepository(db)
	fees := database.NewFeeRepository(db)
	inbox := database.NewNotificationRepository(db)
	tokens := utils.NewTokenManager(cfg.JWTCustomerSecret, cfg.JWTAdminSecret, cfg.JWTDriverSecret, cfg.JWTTTL)

	outbox := notify.NewOutbox(inbox)
	engine := delivery.NewEngine(orders, drivers, fees,
		delivery.WithPublisher(outbox),
		delivery.WithOTPPolicy(cfg.OTPTTL, cfg.OTPMaxAttempts),
		delivery.WithSettleAttempts(cfg.SettleMaxAttempts),
		delivery.WithLogger(logger),
	)

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.PushEnabled() {
		fcm, err := notify.NewFCMSender(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return err
		}
		sender = fcm
	}
	dispatcher := notify.NewDispatcher(inbox, database.NewDeviceDirectory(users, drivers), sender, logger)

	jm := jobs.NewJobManager(dispatcher, engine, jobs.Schedules{
		Notify:      cfg.NotifySchedule,
		NotifyBatch: cfg.NotifyBatch,
		Settle:      cfg.SettleSchedule,
	}, logger)
	if err := jm.StartAll(); err != nil {
		return err
	}
	defer jm.StopAll()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.ErrorHandler(logger)

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("requestId", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(metrics.Middleware())

	routes.SetupRoutes(e, routes.Dependencies{
		Tokens:   tokens,
		Users:    handlers.NewUserHandler(users, tokens),
		Products: handlers.NewProductHandler(products),
		Cart:     handlers.NewCartHandler(carts, products),
		Orders: handlers.NewOrderHandler(handlers.CheckoutDeps{
			Orders:   orders,
			Carts:    carts,
			Products: products,
			Shipping: fees,
			Sequence: database.NewSequence(db),
			Engine:   engine,
			Notifier: outbox,
		}, logger),
		Notifications:       handlers.NewNotificationHandler(inbox, models.RecipientCustomer),
		DriverNotifications: handlers.NewNotificationHandler(inbox, models.RecipientDriver),
		Admin: handlers.NewAdminHandler(handlers.AdminDeps{
			Admins:  admins,
			Drivers: drivers,
			Orders:  orders,
			Engine:  engine,
			Fees:    fees,
			Tokens:  tokens,
		}),
		Delivery: handlers.NewDeliveryHandler(drivers, engine, tokens),
		Health:   handlers.NewHealthHandler(database.NewPinger(db)),
	})

	// Start the server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
