package controllers

import (
	"schoolhub_go/middleware"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type PromotionController struct {
	promotionService *services.PromotionService
}

func NewPromotionController() *PromotionController {
	return &PromotionController{promotionService: services.NewPromotionService(nil)}
}

// PromoteStudent runs the year-end transition for a single enrollment
func (pc *PromotionController) PromoteStudent(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req services.PromoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Enrollment, target year and decision are required"})
	}

	result, err := pc.promotionService.Promote(user.ID, req)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

type BatchPromoteRequest struct {
	Promotions []services.PromoteRequest `json:"promotions" validate:"required,min=1,dive"`
}

// PromoteBatch processes a list of promotions, each in its own transaction.
// One student's failure never rolls back another's promotion; the response
// reports per-student outcomes.
func (pc *PromotionController) PromoteBatch(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req BatchPromoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "At least one promotion entry is required"})
	}

	results := pc.promotionService.PromoteBatch(user.ID, req.Promotions)

	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}

	return c.JSON(fiber.Map{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}
