package controllers

import (
	"schoolhub_go/database"
	"schoolhub_go/middleware"
	"schoolhub_go/models"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type EnrollmentController struct {
	enrollService *services.EnrollmentService
}

func NewEnrollmentController() *EnrollmentController {
	return &EnrollmentController{enrollService: services.NewEnrollmentService()}
}

// CreateEnrollment enrolls a student into a class/section for a year
func (ec *EnrollmentController) CreateEnrollment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req services.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Student, year, class and section are required"})
	}

	enrollment, err := ec.enrollService.Enroll(user.ID, req)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": enrollment})
}

// GetEnrollment returns one enrollment with its student, class and dues
func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment ID"})
	}

	var enrollment models.StudentEnrollment
	if err := database.DB.Preload("Student").Preload("Class").Preload("Section").
		Preload("AcademicYear").Preload("FeeDues").
		Where("id = ? AND school_id = ?", id, user.SchoolID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enrollment not found"})
	}

	return c.JSON(fiber.Map{"enrollment": enrollment})
}

// GetEnrollments lists enrollments filtered by year, class, section or status
func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	query := database.DB.Preload("Student").Preload("Class").Preload("Section").
		Where("school_id = ?", user.SchoolID)
	if yearID := c.QueryInt("academic_year_id"); yearID > 0 {
		query = query.Where("academic_year_id = ?", yearID)
	}
	if classID := c.QueryInt("class_id"); classID > 0 {
		query = query.Where("class_id = ?", classID)
	}
	if sectionID := c.QueryInt("section_id"); sectionID > 0 {
		query = query.Where("section_id = ?", sectionID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var enrollments []models.StudentEnrollment
	if err := query.Order("roll_number").Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch enrollments"})
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

type TransferRequest struct {
	TargetSectionID uint `json:"target_section_id" validate:"required"`
}

// TransferEnrollment moves an active enrollment to another section
func (ec *EnrollmentController) TransferEnrollment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment ID"})
	}

	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Target section is required"})
	}

	enrollment, err := ec.enrollService.Transfer(user.ID, id, req.TargetSectionID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"enrollment": enrollment})
}

type TerminateRequest struct {
	Reason string `json:"reason" validate:"required,oneof=transferred left"`
}

// TerminateEnrollment closes an active enrollment as transferred or left
func (ec *EnrollmentController) TerminateEnrollment(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid enrollment ID"})
	}

	var req TerminateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Reason must be transferred or left"})
	}

	if err := ec.enrollService.Terminate(user.ID, id, req.Reason); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Enrollment terminated"})
}
