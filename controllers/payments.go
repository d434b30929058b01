package controllers

import (
	"schoolhub_go/database"
	"schoolhub_go/middleware"
	"schoolhub_go/models"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type PaymentController struct {
	paymentService *services.PaymentService
}

func NewPaymentController() *PaymentController {
	return &PaymentController{paymentService: services.NewPaymentService()}
}

// RecordPayment records a new pending payment for a student
func (pc *PaymentController) RecordPayment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req services.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.SchoolID = user.SchoolID
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Student, positive amount and mode are required"})
	}

	payment, err := pc.paymentService.RecordPayment(user.ID, req)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}

// GetPayment returns one payment with its allocations and remainder
func (pc *PaymentController) GetPayment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}

	var payment models.Payment
	if err := database.DB.Preload("Allocations").Preload("Allocations.Due").Preload("Student").
		Where("id = ? AND school_id = ?", id, user.SchoolID).
		First(&payment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
	}

	unallocated, err := pc.paymentService.UnallocatedAmount(payment.ID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"payment":     payment,
		"unallocated": unallocated,
	})
}

// GetPayments lists payments filtered by student or status
func (pc *PaymentController) GetPayments(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	query := database.DB.Preload("Student").Where("school_id = ?", user.SchoolID)
	if studentID := c.QueryInt("student_id"); studentID > 0 {
		query = query.Where("student_id = ?", studentID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var payments []models.Payment
	if err := query.Order("created_at DESC").Limit(200).Find(&payments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch payments"})
	}

	return c.JSON(fiber.Map{"payments": payments})
}

type AllocateRequest struct {
	DueID  uint    `json:"due_id" validate:"required"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// AllocatePayment applies part of a successful payment to one due
func (pc *PaymentController) AllocatePayment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	paymentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}

	var req AllocateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Due ID and a positive amount are required"})
	}

	allocation, err := pc.paymentService.Allocate(user.ID, paymentID, req.DueID, req.Amount)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"allocation": allocation})
}

// AllocateOldestFirst spreads a payment's unallocated remainder across the
// student's outstanding dues in due-date order
func (pc *PaymentController) AllocateOldestFirst(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	paymentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}

	allocations, remainder, err := pc.paymentService.AllocateOldestFirst(user.ID, paymentID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"allocations": allocations,
		"remainder":   remainder,
	})
}

// ReversePayment refunds a successful payment and reopens its dues
func (pc *PaymentController) ReversePayment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	paymentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment ID"})
	}

	if err := pc.paymentService.Reverse(paymentID, user.ID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Payment reversed"})
}

// CreateAdjustment appends a manual correction to the ledger
func (pc *PaymentController) CreateAdjustment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req services.AdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Type, reason and a positive amount are required"})
	}

	adjustment, err := pc.paymentService.Adjust(user.ID, req)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"adjustment": adjustment})
}
