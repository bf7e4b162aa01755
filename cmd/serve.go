package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/bus"
	"github.com/Saaiiikrishna/msd-th-sub005/app/controller"
	"github.com/Saaiiikrishna/msd-th-sub005/app/factory"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/app/repository"
	"github.com/Saaiiikrishna/msd-th-sub005/app/service"
	"github.com/Saaiiikrishna/msd-th-sub005/app/vendorprofile"
	"github.com/Saaiiikrishna/msd-th-sub005/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background workers",
	Long:  "Start the HTTP (Echo) server together with the payout dispatchers and the outbox publisher.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, settlement, cleanup := mustCreateSettlement()
	defer cleanup()

	publisher, err := bus.NewRabbitMQPublisher(cfg.Bus.URL, cfg.Bus.Exchange)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to message bus")
	}
	defer publisher.Close()

	outbox := service.NewOutboxPublisher(
		settlement.store,
		publisher,
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		factory.NewModuleLogger("outbox-publisher"),
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcherWG := settlement.engine.StartDispatchers(workerCtx)
	go outbox.Run(workerCtx)

	settlementController := controller.NewSettlementController(settlement.orchestrator, settlement.engine, settlement.reconciler)
	e := setupHTTPServer(settlementController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	stopWorkers()
	dispatcherWG.Wait()

	logrus.Info("Server stopped")
}

func setupHTTPServer(settlementController *controller.SettlementController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	e.GET("/health", settlementController.Health)

	payments := e.Group("/payments")
	payments.POST("/enrollment", settlementController.CreateEnrollmentPayment)

	invoices := e.Group("/invoices")
	invoices.GET("/:number", settlementController.GetInvoice)

	payouts := e.Group("/payouts")
	payouts.GET("/:id", settlementController.GetPayout)
	payouts.POST("/:id/cancel", settlementController.CancelPayout)

	webhooks := e.Group("/webhooks")
	webhooks.POST("/gateway", settlementController.HandleGatewayWebhook)

	return e
}

type settlementServices struct {
	store        *repository.Store
	orchestrator *service.PaymentOrchestrator
	engine       *service.VendorPayoutEngine
	reconciler   *service.WebhookReconciler
}

func mustCreateSettlement() (*config.Config, *settlementServices, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	factory.ConfigureLogging(cfg.Log.Level)

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	store := repository.NewStore(db)
	gatewayClient := gateway.NewRazorpayClient(gateway.RazorpayConfig{
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		AccountNumber: cfg.Razorpay.AccountNumber,
		BaseURL:       cfg.Razorpay.BaseURL,
		HTTPTimeout:   cfg.Razorpay.HTTPTimeout,
	})
	vendorDirectory := vendorprofile.NewClient(cfg.VendorProfile)

	orchestrator := service.NewPaymentOrchestrator(store, gatewayClient, factory.NewModuleLogger("payment-orchestrator"))
	engine := service.NewVendorPayoutEngine(store, gatewayClient, vendorDirectory, cfg.Payouts, factory.NewModuleLogger("payout-engine"))
	reconciler := service.NewWebhookReconciler(gatewayClient, orchestrator, engine, factory.NewModuleLogger("webhook-reconciler"))

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, &settlementServices{
		store:        store,
		orchestrator: orchestrator,
		engine:       engine,
		reconciler:   reconciler,
	}, cleanup
}
