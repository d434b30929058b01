package controllers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"schoolhub_go/database"
	"schoolhub_go/middleware"
	"schoolhub_go/models"
	"schoolhub_go/services"
	"schoolhub_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// FeeStructureController manages the fee schedule reference data, including
// bulk import from spreadsheets exported by school accountants.
type FeeStructureController struct{}

type CreateFeeStructureRequest struct {
	AcademicYearID uint    `json:"academic_year_id" validate:"required"`
	ClassID        uint    `json:"class_id" validate:"required"`
	FeeHeadID      uint    `json:"fee_head_id" validate:"required"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Frequency      string  `json:"frequency" validate:"required,oneof=monthly quarterly annually"`
}

// CreateFeeStructure adds one fee schedule row
func (fc *FeeStructureController) CreateFeeStructure(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateFeeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Year, class, fee head, positive amount and a valid frequency are required"})
	}

	structure := models.FeeStructure{
		SchoolID:       user.SchoolID,
		AcademicYearID: req.AcademicYearID,
		ClassID:        req.ClassID,
		FeeHeadID:      req.FeeHeadID,
		Amount:         req.Amount,
		Frequency:      req.Frequency,
	}
	if err := database.DB.Create(&structure).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Fee structure already exists for this year, class and fee head"})
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "CREATE_FEE_STRUCTURE",
		TableName: "fee_structures",
		RecordID:  structure.ID,
		NewValue:  structure,
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"fee_structure": structure})
}

// GetFeeStructures lists fee structures filtered by year and class
func (fc *FeeStructureController) GetFeeStructures(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	query := database.DB.Preload("FeeHead").Preload("Class").
		Where("school_id = ?", user.SchoolID)
	if yearID := c.QueryInt("academic_year_id"); yearID > 0 {
		query = query.Where("academic_year_id = ?", yearID)
	}
	if classID := c.QueryInt("class_id"); classID > 0 {
		query = query.Where("class_id = ?", classID)
	}

	var structures []models.FeeStructure
	if err := query.Find(&structures).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch fee structures"})
	}

	return c.JSON(fiber.Map{"fee_structures": structures})
}

type importRow struct {
	line      int
	className string
	headCode  string
	amount    float64
	frequency string
}

// ImportFeeStructures bulk-loads fee structures from an uploaded CSV or XLSX
// file. Expected columns: class name, fee head code, amount, frequency.
// Rows that fail lookup or validation are reported and skipped; valid rows
// are inserted, with duplicates of existing structures skipped.
func (fc *FeeStructureController) ImportFeeStructures(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	yearID := c.QueryInt("academic_year_id")
	if yearID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "academic_year_id query parameter is required"})
	}
	var year models.AcademicYear
	if err := database.DB.Where("id = ? AND school_id = ?", yearID, user.SchoolID).First(&year).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Academic year not found"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File is required"})
	}
	if !utils.IsValidFileExtension(fileHeader.Filename, []string{"csv", "xlsx"}) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Only .csv and .xlsx files are supported"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to open uploaded file"})
	}
	defer file.Close()

	var rows []importRow
	var parseErrors []string
	if strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
		rows, parseErrors, err = parseXLSXRows(file)
	} else {
		rows, parseErrors, err = parseCSVRows(file)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// Resolve class names and fee head codes once per file
	var classes []models.Class
	database.DB.Where("school_id = ?", user.SchoolID).Find(&classes)
	classByName := make(map[string]uint, len(classes))
	for _, cl := range classes {
		classByName[strings.ToLower(cl.Name)] = cl.ID
	}

	var heads []models.FeeHead
	database.DB.Where("school_id = ?", user.SchoolID).Find(&heads)
	headByCode := make(map[string]uint, len(heads))
	for _, h := range heads {
		headByCode[strings.ToLower(h.Code)] = h.ID
	}

	imported := 0
	skipped := 0
	rowErrors := append([]string{}, parseErrors...)
	for _, row := range rows {
		classID, ok := classByName[strings.ToLower(row.className)]
		if !ok {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: unknown class %q", row.line, row.className))
			continue
		}
		headID, ok := headByCode[strings.ToLower(row.headCode)]
		if !ok {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: unknown fee head code %q", row.line, row.headCode))
			continue
		}

		structure := models.FeeStructure{
			SchoolID:       user.SchoolID,
			AcademicYearID: year.ID,
			ClassID:        classID,
			FeeHeadID:      headID,
			Amount:         row.amount,
			Frequency:      row.frequency,
		}
		if err := database.DB.Create(&structure).Error; err != nil {
			// Unique index hit means the structure is already defined
			skipped++
			continue
		}
		imported++
	}

	services.Audit().Emit(services.AuditEvent{
		Actor:     user.ID,
		Action:    "IMPORT_FEE_STRUCTURES",
		TableName: "fee_structures",
		RecordID:  year.ID,
		NewValue: fiber.Map{
			"file":     fileHeader.Filename,
			"imported": imported,
			"skipped":  skipped,
			"errors":   len(rowErrors),
		},
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})

	return c.JSON(fiber.Map{
		"imported": imported,
		"skipped":  skipped,
		"errors":   rowErrors,
	})
}

func parseCSVRows(r io.Reader) ([]importRow, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var rows []importRow
	var parseErrors []string
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid CSV file: %v", err)
		}
		line++
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		row, err := recordToRow(record, line)
		if err != nil {
			parseErrors = append(parseErrors, err.Error())
			continue
		}
		rows = append(rows, row)
	}
	return rows, parseErrors, nil
}

func parseXLSXRows(r io.Reader) ([]importRow, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid XLSX file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %v", sheet, err)
	}

	var rows []importRow
	var parseErrors []string
	for i, record := range records {
		line := i + 1
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) == 0 {
			continue
		}
		row, err := recordToRow(record, line)
		if err != nil {
			parseErrors = append(parseErrors, err.Error())
			continue
		}
		rows = append(rows, row)
	}
	return rows, parseErrors, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "class" || first == "class_name" || first == "class name"
}

func recordToRow(record []string, line int) (importRow, error) {
	if len(record) < 4 {
		return importRow{}, fmt.Errorf("line %d: expected 4 columns (class, fee head code, amount, frequency)", line)
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil || amount <= 0 {
		return importRow{}, fmt.Errorf("line %d: invalid amount %q", line, record[2])
	}

	frequency := strings.ToLower(strings.TrimSpace(record[3]))
	switch frequency {
	case models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyAnnually:
	default:
		return importRow{}, fmt.Errorf("line %d: invalid frequency %q", line, record[3])
	}

	return importRow{
		line:      line,
		className: strings.TrimSpace(record[0]),
		headCode:  strings.TrimSpace(record[1]),
		amount:    amount,
		frequency: frequency,
	}, nil
}
