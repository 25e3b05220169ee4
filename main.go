package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/database"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/clock"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/config"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/debounce"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/dialogue"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/handlers"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/jobs"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/logger"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/middleware"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/models"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/payment"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/routes"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/services"
	"github.com/Alvaro-gonzalez05/ChatbotManagerLaBIRRITA-sub000/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store storage.Store
	if cfg.UseMemoryStore {
		zl.Warn("using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg.DB, zl)
		if err != nil {
			zl.Fatal("database connection failed", zap.Error(err))
		}
		dbStore := storage.NewDatabaseStore(db)
		if err := dbStore.Migrate(); err != nil {
			zl.Fatal("failed to migrate database", zap.Error(err))
		}
		zl.Info("database migrations completed")
		store = dbStore
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.ContextDB,
		})
		defer redisClient.Close()
		store = storage.NewComposite(storage.NewRedisContextStore(redisClient), store)
	}
	zl.Info("storage ready", zap.String("kind", store.Kind()))

	if cfg.Seed.ChannelID != "" {
		seedBusiness(ctx, store, cfg, zl)
	}

	// Outbound messaging
	var channel services.Messenger
	switch {
	case cfg.CloudAPI.Token != "":
		channel = services.NewCloudAPIService(cfg.CloudAPI, store, zl)
		zl.Info("messaging via WhatsApp Cloud API")
	case cfg.Twilio.AccountSID != "":
		twilioService, err := services.NewTwilioService(cfg.Twilio, zl)
		if err != nil {
			zl.Fatal("failed to initialize Twilio service", zap.Error(err))
		}
		channel = twilioService
		zl.Info("messaging via Twilio")
	default:
		channel = services.NewLogMessenger(zl)
		zl.Warn("no messaging credentials, outgoing messages are only logged")
	}
	messenger := services.NewNotifier(channel, cfg.Server.OutboundRatePerSecond, zl)

	// Payments
	var gateway payment.Gateway
	switch cfg.Payment.Provider {
	case "stripe":
		gateway = payment.NewStripeGateway(cfg.Payment.StripeSecretKey, zl)
	default:
		gateway = payment.NewMercadoPagoGateway(cfg.Payment.MercadoPagoBaseURL, cfg.Payment.MercadoPagoToken, cfg.Payment.RequestTimeout, zl)
	}

	var followups payment.FollowUpQueue = jobs.NewLogQueue(zl)
	var worker *jobs.FollowUpWorker
	if cfg.RedisEnabled() {
		queueOpts := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.QueueDB,
		}
		asynqClient := asynq.NewClient(queueOpts)
		defer asynqClient.Close()
		followups = jobs.NewAsynqQueue(asynqClient, zl)

		worker = jobs.NewFollowUpWorker(queueOpts, jobs.NewFollowUpHandler(store, messenger, zl), zl)
		worker.Start()
	}

	clk := clock.NewRealClock()
	reconciler := payment.NewReconciler(gateway, store, store, followups, clk, zl)

	var generator dialogue.TextGenerator
	if cfg.Gemini.APIKey != "" {
		gemini, err := services.NewGeminiGenerator(ctx, cfg.Gemini)
		if err != nil {
			zl.Warn("text generation disabled", zap.Error(err))
		} else {
			defer gemini.Close()
			generator = gemini
		}
	}

	engine := dialogue.NewEngine(store, reconciler, generator, clk, dialogue.SettingsFrom(cfg), zl)
	aggregator := debounce.New(cfg.Dialogue.DebounceWindow, zl)
	conversations := services.NewConversationService(ctx, store, aggregator, engine, messenger, zl)
	paymentService := services.NewPaymentService(reconciler, messenger, cfg.Payment.Tolerance, zl)

	sweeper := jobs.NewContextSweeper(store, cfg.Dialogue.SweepInterval, clk, zl)
	sweeper.Start(ctx)

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Reservation Bot v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := middleware.NewSenderLimiter(cfg.Server.InboundPerSenderRate, 10, zl)
	routes.SetupRoutes(app, cfg, routes.Handlers{
		Health:   handlers.NewHealthHandler(version, cfg.Server.Environment, store, conversations),
		WhatsApp: handlers.NewWhatsAppHandler(conversations, limiter, cfg.CloudAPI.VerifyToken, zl),
		Payment:  handlers.NewPaymentHandler(paymentService, zl),
		Limiter:  limiter,
	}, zl)

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		zl.Info("gracefully shutting down")
		_ = app.Shutdown()
		conversations.Wait()
		cancel()
		if worker != nil {
			worker.Shutdown()
		}
	}()

	zl.Info("reservation bot starting",
		zap.String("port", cfg.Server.Port),
		zap.String("payment_provider", cfg.Payment.Provider),
		zap.String("deposit_mode", cfg.Payment.DepositMode))

	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func seedBusiness(ctx context.Context, store storage.Store, cfg config.Config, zl *zap.Logger) {
	b, err := store.GetBusinessByChannel(ctx, cfg.Seed.ChannelID)
	if err != nil {
		b = &models.Business{ChannelID: cfg.Seed.ChannelID}
	}
	b.Name = cfg.Seed.Name
	if b.Name == "" {
		b.Name = "La Birrita"
	}
	b.OwnerPhone = cfg.Seed.OwnerPhone
	b.TransferAlias = cfg.Seed.TransferAlias
	if b.DepositPerPerson == 0 {
		b.DepositPerPerson = cfg.Dialogue.DefaultDepositPerPerson
	}
	if b.Currency == "" {
		b.Currency = cfg.Dialogue.DefaultCurrency
	}

	if err := store.SaveBusiness(ctx, b); err != nil {
		zl.Error("failed to seed business", zap.Error(err))
		return
	}
	zl.Info("business registered", zap.String("id", b.ID), zap.String("channel_id", b.ChannelID))
}
