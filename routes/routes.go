package routes

import (
	"schoolhub_go/controllers"
	"schoolhub_go/database"
	"schoolhub_go/handlers"
	"schoolhub_go/middleware"
	"schoolhub_go/services/events"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *events.Hub) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	healthController := &controllers.HealthController{}
	studentController := &controllers.StudentController{}
	referenceController := controllers.NewReferenceController()
	feeStructureController := &controllers.FeeStructureController{}
	enrollmentController := controllers.NewEnrollmentController()
	promotionController := controllers.NewPromotionController()
	feeController := controllers.NewFeeController()
	paymentController := controllers.NewPaymentController()
	auditController := controllers.NewAuditController()
	wsController := controllers.NewWebSocketController(wsHub)
	gatewayWebhook := handlers.NewGatewayWebhookHandler(database.DB)

	// API group
	api := app.Group("/api")

	// Public routes (no authentication required)
	api.Get("/health", healthController.GetHealthStatus)

	// Gateway callback authenticates with an HMAC signature, not a JWT
	api.Post("/webhooks/gateway", gatewayWebhook.Handle)

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), authController.GetProfile)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	// Profile routes (authenticated users)
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)

	// Reference data routes
	years := protected.Group("/academic-years")
	years.Get("/", referenceController.GetAcademicYears)
	years.Post("/", middleware.RequireAdmin(), referenceController.CreateAcademicYear)
	years.Patch("/:id/current", middleware.RequireAdmin(), referenceController.SetCurrentYear)

	classes := protected.Group("/classes")
	classes.Get("/", referenceController.GetClasses)
	classes.Post("/", middleware.RequireAdmin(), referenceController.CreateClass)

	sections := protected.Group("/sections")
	sections.Post("/", middleware.RequireAdmin(), referenceController.CreateSection)

	feeHeads := protected.Group("/fee-heads")
	feeHeads.Get("/", referenceController.GetFeeHeads)
	feeHeads.Post("/", middleware.RequireAdmin(), referenceController.CreateFeeHead)

	// Fee structure routes
	feeStructures := protected.Group("/fee-structures")
	feeStructures.Get("/", feeStructureController.GetFeeStructures)
	feeStructures.Post("/", middleware.RequireAccountantOrAdmin(), feeStructureController.CreateFeeStructure)
	feeStructures.Post("/import", middleware.RequireAccountantOrAdmin(), feeStructureController.ImportFeeStructures)

	// Student management routes
	students := protected.Group("/students")
	students.Get("/", studentController.GetStudents)
	students.Get("/:id", studentController.GetStudent)
	students.Post("/", middleware.RequireRegistrarOrAdmin(), studentController.CreateStudent)
	students.Put("/:id", middleware.RequireRegistrarOrAdmin(), studentController.UpdateStudent)
	students.Get("/:id/statement", feeController.GetStatement)

	// Enrollment lifecycle routes
	enrollments := protected.Group("/enrollments")
	enrollments.Get("/", enrollmentController.GetEnrollments)
	enrollments.Get("/:id", enrollmentController.GetEnrollment)
	enrollments.Post("/", middleware.RequireRegistrarOrAdmin(), enrollmentController.CreateEnrollment)
	enrollments.Patch("/:id/transfer", middleware.RequireRegistrarOrAdmin(), enrollmentController.TransferEnrollment)
	enrollments.Patch("/:id/terminate", middleware.RequireRegistrarOrAdmin(), enrollmentController.TerminateEnrollment)
	enrollments.Post("/:id/dues", middleware.RequireAccountantOrAdmin(), feeController.GenerateDues)
	enrollments.Get("/:id/dues", feeController.GetDues)

	// Promotion routes
	promotions := protected.Group("/promotions", middleware.RequireRegistrarOrAdmin())
	promotions.Post("/", promotionController.PromoteStudent)
	promotions.Post("/batch", promotionController.PromoteBatch)

	// Payment ledger routes
	payments := protected.Group("/payments")
	payments.Get("/", paymentController.GetPayments)
	payments.Get("/:id", paymentController.GetPayment)
	payments.Post("/", middleware.RequireAccountantOrAdmin(), paymentController.RecordPayment)
	payments.Post("/:id/allocations", middleware.RequireAccountantOrAdmin(), paymentController.AllocatePayment)
	payments.Post("/:id/allocations/auto", middleware.RequireAccountantOrAdmin(), paymentController.AllocateOldestFirst)
	payments.Post("/:id/reverse", middleware.RequireAccountantOrAdmin(), paymentController.ReversePayment)

	adjustments := protected.Group("/adjustments", middleware.RequireAccountantOrAdmin())
	adjustments.Post("/", paymentController.CreateAdjustment)

	// Audit routes (admin only)
	audits := protected.Group("/audits", middleware.RequireAdmin())
	audits.Get("/", auditController.GetAuditLogs)
	audits.Post("/flush-cache", auditController.FlushAuditCache)
	audits.Get("/archives", auditController.GetArchives)
	audits.Post("/archives", auditController.TriggerArchive)

	// WebSocket routes
	ws := protected.Group("/ws")
	ws.Get("/stats", middleware.RequireAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint - use websocket upgrade middleware
	app.Use("/ws/audit", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/audit", wsController.WebSocketHandler())
}
