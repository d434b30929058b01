package controllers

import (
	"time"

	"schoolhub_go/database"
	"schoolhub_go/middleware"
	"schoolhub_go/models"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

// ReferenceController manages the reference data the lifecycle and fee
// engines read: academic years, classes, sections and fee heads.
type ReferenceController struct {
	refService *services.ReferenceService
}

func NewReferenceController() *ReferenceController {
	return &ReferenceController{refService: services.NewReferenceService()}
}

type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CreateAcademicYear adds a new academic year for the caller's school
func (rc *ReferenceController) CreateAcademicYear(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateAcademicYearRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name, start date and end date are required"})
	}
	if !req.EndDate.After(req.StartDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "End date must be after start date"})
	}

	year := models.AcademicYear{
		SchoolID:  user.SchoolID,
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := database.DB.Create(&year).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create academic year"})
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "CREATE_ACADEMIC_YEAR",
		TableName: "academic_years",
		RecordID:  year.ID,
		NewValue:  year,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"academic_year": year})
}

// GetAcademicYears lists the caller's school's academic years
func (rc *ReferenceController) GetAcademicYears(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var years []models.AcademicYear
	if err := database.DB.Where("school_id = ?", user.SchoolID).Order("start_date").Find(&years).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch academic years"})
	}

	return c.JSON(fiber.Map{"academic_years": years})
}

// SetCurrentYear marks one academic year as current for the caller's school
func (rc *ReferenceController) SetCurrentYear(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	yearID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid academic year ID"})
	}

	if err := rc.refService.SetCurrentYear(user.ID, user.SchoolID, yearID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Current academic year updated"})
}

type CreateClassRequest struct {
	Name      string `json:"name" validate:"required"`
	SortOrder int    `json:"sort_order"`
}

// CreateClass adds a class (grade level) to the caller's school
func (rc *ReferenceController) CreateClass(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateClassRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Class name is required"})
	}

	class := models.Class{
		SchoolID:  user.SchoolID,
		Name:      req.Name,
		SortOrder: req.SortOrder,
	}
	if err := database.DB.Create(&class).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create class"})
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "CREATE_CLASS",
		TableName: "classes",
		RecordID:  class.ID,
		NewValue:  class,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"class": class})
}

// GetClasses lists classes with their sections
func (rc *ReferenceController) GetClasses(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var classes []models.Class
	if err := database.DB.Preload("Sections").
		Where("school_id = ?", user.SchoolID).
		Order("sort_order").Find(&classes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch classes"})
	}

	return c.JSON(fiber.Map{"classes": classes})
}

type CreateSectionRequest struct {
	ClassID  uint   `json:"class_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity"`
}

// CreateSection adds a section to a class
func (rc *ReferenceController) CreateSection(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateSectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Class ID and section name are required"})
	}

	// Cross-tenant guard
	var class models.Class
	if err := database.DB.Where("id = ? AND school_id = ?", req.ClassID, user.SchoolID).First(&class).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Class not found"})
	}

	section := models.Section{
		ClassID:  req.ClassID,
		Name:     req.Name,
		Capacity: req.Capacity,
	}
	if section.Capacity <= 0 {
		section.Capacity = 40
	}
	if err := database.DB.Create(&section).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create section"})
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "CREATE_SECTION",
		TableName: "sections",
		RecordID:  section.ID,
		NewValue:  section,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"section": section})
}

type CreateFeeHeadRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// CreateFeeHead adds a fee head (tuition, transport, ...)
func (rc *ReferenceController) CreateFeeHead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateFeeHeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Fee head name and code are required"})
	}

	head := models.FeeHead{
		SchoolID: user.SchoolID,
		Name:     req.Name,
		Code:     req.Code,
	}
	if err := database.DB.Create(&head).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create fee head"})
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "CREATE_FEE_HEAD",
		TableName: "fee_heads",
		RecordID:  head.ID,
		NewValue:  head,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"fee_head": head})
}

// GetFeeHeads lists the caller's school's fee heads
func (rc *ReferenceController) GetFeeHeads(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var heads []models.FeeHead
	if err := database.DB.Where("school_id = ?", user.SchoolID).Order("name").Find(&heads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch fee heads"})
	}

	return c.JSON(fiber.Map{"fee_heads": heads})
}
