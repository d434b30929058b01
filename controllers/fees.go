package controllers

import (
	"schoolhub_go/database"
	"schoolhub_go/middleware"
	"schoolhub_go/models"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type FeeController struct {
	feeService     *services.FeeDueService
	paymentService *services.PaymentService
}

func NewFeeController() *FeeController {
	return &FeeController{
		feeService:     services.NewFeeDueService(),
		paymentService: services.NewPaymentService(),
	}
}

// GenerateDues materializes fee dues for an enrollment from the fee
// structures of its year and class. Safe to call repeatedly; existing
// dues are never duplicated or modified.
func (fc *FeeController) GenerateDues(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	enrollmentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment ID"})
	}

	created, err := fc.feeService.GenerateDues(user.ID, enrollmentID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"created": created,
		"count":   len(created),
	})
}

type dueWithBalance struct {
	models.StudentFeeDue
	Outstanding float64 `json:"outstanding"`
}

// GetDues lists an enrollment's dues with their outstanding balances
func (fc *FeeController) GetDues(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	enrollmentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment ID"})
	}

	var enrollment models.StudentEnrollment
	if err := database.DB.Where("id = ? AND school_id = ?", enrollmentID, user.SchoolID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
	}

	var dues []models.StudentFeeDue
	if err := database.DB.Preload("FeeHead").
		Where("enrollment_id = ?", enrollmentID).
		Order("due_date").Find(&dues).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch dues"})
	}

	result := make([]dueWithBalance, 0, len(dues))
	totalOutstanding := 0.0
	for _, due := range dues {
		balance, err := fc.feeService.Outstanding(due.ID)
		if err != nil {
			return respondServiceError(c, err)
		}
		result = append(result, dueWithBalance{StudentFeeDue: due, Outstanding: balance})
		totalOutstanding += balance
	}

	return c.JSON(fiber.Map{
		"dues":              result,
		"total_outstanding": totalOutstanding,
	})
}

type paymentWithUnallocated struct {
	models.Payment
	Unallocated float64 `json:"unallocated"`
}

// GetStatement returns a student's full fee statement: every due across all
// enrollments with its outstanding balance, every payment with its
// unallocated remainder, and all adjustments.
func (fc *FeeController) GetStatement(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	studentID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student ID"})
	}

	var student models.Student
	if err := database.DB.Where("id = ? AND school_id = ?", studentID, user.SchoolID).
		First(&student).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
	}

	var dues []models.StudentFeeDue
	if err := database.DB.Preload("FeeHead").Preload("Enrollment").
		Joins("JOIN student_enrollments ON student_enrollments.id = student_fee_dues.enrollment_id").
		Where("student_enrollments.student_id = ?", studentID).
		Order("student_fee_dues.due_date").
		Find(&dues).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch dues"})
	}

	duesOut := make([]dueWithBalance, 0, len(dues))
	totalBilled := 0.0
	totalOutstanding := 0.0
	for _, due := range dues {
		balance, err := fc.feeService.Outstanding(due.ID)
		if err != nil {
			return respondServiceError(c, err)
		}
		duesOut = append(duesOut, dueWithBalance{StudentFeeDue: due, Outstanding: balance})
		totalBilled += due.Amount
		totalOutstanding += balance
	}

	var payments []models.Payment
	if err := database.DB.Preload("Allocations").
		Where("student_id = ?", studentID).
		Order("created_at").Find(&payments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch payments"})
	}

	paymentsOut := make([]paymentWithUnallocated, 0, len(payments))
	totalPaid := 0.0
	for _, payment := range payments {
		unallocated, err := fc.paymentService.UnallocatedAmount(payment.ID)
		if err != nil {
			return respondServiceError(c, err)
		}
		paymentsOut = append(paymentsOut, paymentWithUnallocated{Payment: payment, Unallocated: unallocated})
		if payment.Status == models.PaymentSuccess {
			totalPaid += payment.Amount
		}
	}

	var adjustments []models.PaymentAdjustment
	dueIDs := make([]uint, 0, len(dues))
	for _, due := range dues {
		dueIDs = append(dueIDs, due.ID)
	}
	paymentIDs := make([]uint, 0, len(payments))
	for _, p := range payments {
		paymentIDs = append(paymentIDs, p.ID)
	}
	if len(dueIDs) > 0 || len(paymentIDs) > 0 {
		database.DB.Where("due_id IN ? OR payment_id IN ?", dueIDs, paymentIDs).
			Order("created_at").Find(&adjustments)
	}

	return c.JSON(fiber.Map{
		"student":           student,
		"dues":              duesOut,
		"payments":          paymentsOut,
		"adjustments":       adjustments,
		"total_billed":      totalBilled,
		"total_paid":        totalPaid,
		"total_outstanding": totalOutstanding,
	})
}
