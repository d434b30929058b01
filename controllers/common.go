package controllers

import (
	"schoolhub_go/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// respondServiceError maps a service error onto the HTTP response. AppErrors
// carry their own status and machine-readable code; anything else is a 500.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := services.ErrorStatus(err)
	body := fiber.Map{"error": err.Error()}
	if appErr := services.AsAppError(err); appErr != nil {
		body["code"] = appErr.Code
	}
	return c.Status(status).JSON(body)
}

// parseIDParam reads a numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}
