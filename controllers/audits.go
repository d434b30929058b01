package controllers

import (
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	archiveService *services.AuditArchiveService
}

func NewAuditController() *AuditController {
	return &AuditController{archiveService: services.NewAuditArchiveService()}
}

// GetAuditLogs lists audit entries with filters and pagination
func (ac *AuditController) GetAuditLogs(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := database.DB.Model(&models.AuditLog{})
	if userID := c.QueryInt("user_id"); userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if table := c.Query("table_name"); table != "" {
		query = query.Where("table_name = ?", table)
	}
	if recordID := c.QueryInt("record_id"); recordID > 0 {
		query = query.Where("record_id = ?", recordID)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("created_at >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("created_at <= ?", t)
		}
	}

	var total int64
	query.Count(&total)

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch audit logs"})
	}

	return c.JSON(fiber.Map{
		"audit_logs": logs,
		"total":      total,
		"page":       page,
		"per_page":   perPage,
	})
}

// FlushAuditCache forces queued Redis audit entries into the database
func (ac *AuditController) FlushAuditCache(c *fiber.Ctx) error {
	flushed, err := services.Audit().FlushCachedAudits()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"message": "Audit cache flushed",
		"flushed": flushed,
	})
}

// GetArchives lists completed audit archive batches
func (ac *AuditController) GetArchives(c *fiber.Ctx) error {
	var archives []models.AuditArchive
	if err := database.DB.Order("created_at DESC").Limit(100).Find(&archives).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch archives"})
	}

	return c.JSON(fiber.Map{"archives": archives})
}

type ArchiveRequest struct {
	DaysOld int `json:"days_old"`
}

// TriggerArchive archives audit entries older than the given age to S3
func (ac *AuditController) TriggerArchive(c *fiber.Ctx) error {
	var req ArchiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.DaysOld == 0 {
		req.DaysOld = 30
	}

	if err := ac.archiveService.ArchiveOldAudits(req.DaysOld); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Audit archive completed"})
}
