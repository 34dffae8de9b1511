package main

import (
	"context"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rfms-invoicing/internal/config"
	"rfms-invoicing/internal/email"
	"rfms-invoicing/internal/fcm"
	"rfms-invoicing/internal/rfms"
	"rfms-invoicing/internal/sync"
	"rfms-invoicing/internal/transport/http"
	"rfms-invoicing/internal/upload"
	"rfms-invoicing/internal/workorder"
	"rfms-invoicing/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var startTime time.Time

func main() {
	startTime = time.Now()
	cfg := config.Load()
	workorder.InitDB(cfg)

	r2Config := utils.PhotoR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		BucketName:      cfg.R2BucketName,
		PublicURL:       cfg.R2PublicURL,
	}
	r2Client, err := utils.NewPhotoR2Client(r2Config)
	if err != nil {
		log.Fatalf("❌ [R2] Failed to initialize client: %v", err)
	}
	log.Println("✅ [R2] Invoice photo client initialized")

	// One HTTP client shared by the handshake and dispatch paths.
	rfmsHTTP := &nethttp.Client{Timeout: cfg.RFMSRequestTimeout}

	session := rfms.NewSession(rfms.SessionConfig{
		BaseURL:   cfg.RFMSBaseURL,
		StoreCode: cfg.RFMSStoreCode,
		APIKey:    cfg.RFMSAPIKey,
		Margin:    cfg.RFMSTokenMargin,
		RetryMax:  cfg.RFMSRetryMax,
		RetryBase: cfg.RFMSRetryBase,
	}, rfmsHTTP)

	dispatcher := rfms.NewDispatcher(rfms.DispatcherConfig{
		BaseURL:        cfg.RFMSBaseURL,
		RequestTimeout: cfg.RFMSRequestTimeout,
		PollMax:        cfg.RFMSPollMax,
		PollDelay:      cfg.RFMSPollDelay,
		RetryMax:       cfg.RFMSRetryMax,
		RetryBase:      cfg.RFMSRetryBase,
	}, session, rfmsHTTP)
	log.Printf("🔄 [RFMS] Dispatcher initialized (BaseURL: %s, store: %s)", cfg.RFMSBaseURL, cfg.RFMSStoreCode)

	store := workorder.NewStore(workorder.GetDB())

	emailSender := email.NewSender(cfg)

	// Initialize FCM client
	var crewNotifier sync.Notifier
	fcmCredsJSON := os.Getenv("FIREBASE_CREDENTIALS_JSON")
	if fcmCredsJSON != "" {
		client, err := fcm.NewFCMClient(context.Background(), []byte(fcmCredsJSON))
		if err != nil {
			log.Fatalf("❌ Failed to initialize FCM: %v", err)
		}
		crewNotifier = fcm.NewCrewNotifier(client, store)
		log.Println("✅ FCM client initialized")
	} else {
		log.Println("⚠️ FCM disabled (no FIREBASE_CREDENTIALS_JSON)")
	}

	engine := sync.NewEngine(dispatcher, store, crewNotifier, emailSender)
	pipeline := upload.NewPipeline(dispatcher, r2Client, cfg.UploadConcurrency, cfg.MaxAttachmentMB)
	handler := http.NewHandler(engine, pipeline, store, r2Client)
	log.Println("✅ [SERVICE] Sync engine, upload pipeline & handler initialized")

	app := fiber.New(fiber.Config{
		AppName:      "rfms-invoicing",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,X-Service-Token,Cache-Control",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${ua}\n",
	}))

	// 1. Crew-facing routes (via Gateway)
	crewRoutes := app.Group("/v2")
	crewRoutes.Get("/workorders", handler.ListWorkOrders)
	crewRoutes.Get("/workorders/:doc_number", handler.GetWorkOrder)
	crewRoutes.Post("/crew/:crew_code/fcm-token", handler.RegisterCrewToken)
	crewRoutes.Delete("/crew/:crew_code/fcm-token", handler.UnregisterCrewToken)
	crewRoutes.Post("/invoices/:invoice_id/photos", handler.UploadInvoicePhotos)
	log.Println("✅ [ROUTES] Registered crew routes: /v2/workorders*, /v2/crew/*, /v2/invoices/*/photos")

	// 2. Service-to-service routes
	serviceRoutes := app.Group("/svc/v1", serviceAuth(cfg))
	serviceRoutes.Post("/sync", handler.TriggerSync)
	serviceRoutes.Post("/invoices/:invoice_id/attachments", handler.PushAttachments)
	log.Println("✅ [ROUTES] Registered service routes: /svc/v1/sync, /svc/v1/invoices/*/attachments")

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		uptime := time.Since(startTime).Round(time.Second)
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     "rfms-invoicing",
			"uptime":      uptime.String(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"rfms_url":    cfg.RFMSBaseURL,
			"fcm_enabled": crewNotifier != nil,
		})
	})
	log.Println("✅ [ROUTES] Registered /health")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("🛑 [SHUTDOWN] Graceful shutdown initiated...")
		if err := app.Shutdown(); err != nil {
			log.Printf("❌ [SHUTDOWN] Error: %v", err)
		}
	}()

	log.Printf("🚀 rfms-invoicing starting...")
	log.Printf("   🔗 Listening on port: %s", cfg.ServerPort)
	log.Printf("   🌐 CORS allowed origins: %s", cfg.AllowedOrigins)
	log.Printf("   📦 R2 bucket: %s", cfg.R2BucketName)
	log.Printf("   🔄 RFMS base URL: %s", cfg.RFMSBaseURL)
	log.Println("✅ Server ready.")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("❌ [STARTUP] Server failed to start: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var errMsg string
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		errMsg = e.Message
	} else {
		errMsg = err.Error()
	}
	log.Printf("🔥 [ERROR] [%d] %s %s → %v | IP=%s | UA=%s",
		code,
		c.Method(),
		c.Path(),
		errMsg,
		c.IP(),
		c.Get("User-Agent"),
	)
	return c.Status(code).JSON(fiber.Map{
		"error":      "something went wrong",
		"request_id": c.Get("X-Request-ID"),
	})
}

func serviceAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		maskedToken := "<empty>"
		if token != "" {
			if len(token) > 6 {
				maskedToken = token[:6] + "..."
			} else {
				maskedToken = token
			}
		}
		if token != cfg.ServiceExpectedToken {
			log.Printf("[SERVICE-AUTH] ❌ REJECTED | IP=%s | Path=%s | Token=%s",
				c.IP(), c.Path(), maskedToken)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: invalid or missing service token",
			})
		}
		log.Printf("[SERVICE-AUTH] ✅ ACCEPTED | IP=%s | Path=%s", c.IP(), c.Path())
		return c.Next()
	}
}
