package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/piishield/backend/internal/analyzer"
	"github.com/piishield/backend/internal/config"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/handlers"
	"github.com/piishield/backend/internal/intake"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
	"github.com/piishield/backend/internal/services"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser(cfg)

	// Ensure the upload root exists before accepting traffic
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload directory %s: %v", cfg.UploadDir, err)
	}

	// Start stale session cleanup (fails sessions orphaned by a crash)
	cleanupService := services.NewStaleSessionCleanupService(30)
	cleanupService.Start()

	// Orchestration wiring
	analyzerClient := analyzer.NewCLI(cfg.AnalyzerBin)
	intakeService := intake.NewService(database.DB, cfg.UploadDir)
	dispatcher := intake.NewDispatcher(database.DB, analyzerClient,
		time.Duration(cfg.AnalyzerTimeoutMinutes)*time.Minute)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "PIIShield API v1.0",
		ServerHeader: "PIIShield",
		BodyLimit:    cfg.MaxUploadSizeMB * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "piishield-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	fileHandler := handlers.NewFileHandler(cfg, intakeService)
	processHandler := handlers.NewProcessHandler(dispatcher, intakeService)
	resultHandler := handlers.NewResultHandler()
	dashboardHandler := handlers.NewDashboardHandler()
	archiveHandler := handlers.NewArchiveHandler(cfg)

	// API routes
	api := app.Group("/api")

	// Apply rate limiting to API routes (100 requests per minute)
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public routes
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))

	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)

	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	protected.Post("/files/upload", fileHandler.Upload)
	protected.Get("/files", fileHandler.List)
	protected.Get("/files/:id/status", fileHandler.Status)
	protected.Delete("/files/:id", fileHandler.Delete)

	protected.Post("/process/session/:id", processHandler.ProcessSession)
	protected.Post("/process/file/:id", processHandler.ProcessFile)

	protected.Get("/results", resultHandler.List)
	protected.Get("/results/latest", resultHandler.Latest)
	protected.Get("/results/file/:id", resultHandler.ByFile)
	protected.Get("/results/:id/download", resultHandler.Download)

	protected.Get("/dashboard/stats", dashboardHandler.Stats)

	protected.Post("/sessions/:id/archive", archiveHandler.ArchiveSession)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		cleanupService.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("PIIShield API listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedAdminUser creates the initial admin account when the users table
// is empty. The password must be changed after first login.
func seedAdminUser(cfg *config.Config) {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("WARNING: ADMIN_PASSWORD not set - using insecure default!")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}

	admin := models.User{
		Username:     "admin",
		Password:     string(hashed),
		FullName:     "Administrator",
		Role:         models.UserRoleAdmin,
		IsActive:     true,
		StorageLimit: int64(cfg.DefaultStorageLimitMB) * 1024 * 1024 * 10,
	}
	if err := database.DB.Create(&admin).Error; err != nil {
		log.Printf("Failed to seed admin user: %v", err)
		return
	}
	log.Println("Seeded default admin user")
}
