package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/api"
	"commerce-service/internal/broker"
	"commerce-service/internal/gateway"
	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"
	"commerce-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("commerce-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	ctx := context.Background()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		log.Println("Schema applied")
	}
	seedPartners(ctx, db, cfg.Ledger)

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	ledgerProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger)
	defer ledgerProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, ledgerProducer)

	gw := gateway.NewClient(gateway.Config{
		OrderURL:  cfg.Gateway.OrderURL,
		ScriptURL: cfg.Gateway.ScriptURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Currency:  cfg.Gateway.Currency,
		Timeout:   cfg.Gateway.Timeout,
	})

	if cfg.Gateway.KeySecret == "" {
		logger.Warn("GATEWAY_KEY_SECRET is not set, payment callbacks will not update orders")
	}

	cartService := service.NewCartService(redisClient, db)
	checkoutService := service.NewCheckoutService(db, gw, cartService, redisClient, eventPublisher, service.CheckoutConfig{
		MerchantName:   cfg.Business.MerchantName,
		Currency:       cfg.Gateway.Currency,
		KeySecret:      cfg.Gateway.KeySecret,
		PaymentTimeout: cfg.Business.PaymentTimeout(),
	})
	reconciler := service.NewReconciler(db, db, redisClient, eventPublisher, cfg.Gateway.WebhookSecret)

	roles := ledger.NewRolePolicy(ledger.NewCachedRoleResolver(db, cfg.Ledger.RoleCacheTTL))
	ledgerService := service.NewLedgerService(db, db, roles, eventPublisher, cfg.Ledger.SystemPartnerID)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	orderWorker := worker.NewOrderWorker(orderConsumer, ledgerService)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil {
			log.Printf("Order worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Catalog:    db,
		Carts:      cartService,
		Checkout:   checkoutService,
		Reconciler: reconciler,
		Ledger:     ledgerService,
		Roles:      roles,
		ReadyChecks: map[string]func(context.Context) error{
			"postgres": db.Ping,
			"redis":    redisClient.Ping,
		},
		OpenTimeout: cfg.Business.CheckoutOpenTimeout,
		FlowTimeout: cfg.Business.PaymentTimeout() + time.Minute,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	orderWorker.Stop()

	log.Println("Server exited")
}

// seedPartners makes sure the system partner that books order income exists,
// and the configured approver when there is one.
func seedPartners(ctx context.Context, db *store.Store, cfg config.LedgerConfig) {
	partners := []*models.Partner{{ID: cfg.SystemPartnerID, Email: cfg.SystemPartnerEmail, Role: ledger.RolePartner}}
	if cfg.ApproverID != "" {
		partners = append(partners, &models.Partner{ID: cfg.ApproverID, Email: cfg.ApproverEmail, Role: ledger.RoleApprover})
	}
	for _, p := range partners {
		if err := db.UpsertPartner(ctx, p); err != nil {
			log.Fatalf("Failed to seed partner %s: %v", p.ID, err)
		}
	}
}
