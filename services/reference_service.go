package services

import (
	"schoolhub_go/database"
	"schoolhub_go/models"

	"gorm.io/gorm"
)

// ReferenceService covers the read-mostly reference data the core consumes:
// schools, academic years, classes, sections and fee heads.
type ReferenceService struct{}

func NewReferenceService() *ReferenceService {
	return &ReferenceService{}
}

// CurrentYear returns the school's current academic year.
func (rs *ReferenceService) CurrentYear(schoolID uint) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := database.DB.Where("school_id = ? AND is_current = ?", schoolID, true).First(&year).Error
	if err != nil {
		return nil, notFoundErr(CodeNotFound, "school %d has no current academic year", schoolID)
	}
	return &year, nil
}

// SetCurrentYear flips the school's is_current flag to the given year inside
// one transaction, keeping the at-most-one-current invariant.
func (rs *ReferenceService) SetCurrentYear(actor, schoolID, yearID uint) error {
	var year models.AcademicYear
	if err := database.DB.First(&year, yearID).Error; err != nil {
		err = notFoundErr(CodeNotFound, "academic year %d not found", yearID)
		Audit().EmitFailure(actor, "SET_CURRENT_YEAR", "academic_years", yearID, err)
		return err
	}
	if year.SchoolID != schoolID {
		err := validationErr("academic year %d does not belong to school %d", yearID, schoolID)
		Audit().EmitFailure(actor, "SET_CURRENT_YEAR", "academic_years", yearID, err)
		return err
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AcademicYear{}).
			Where("school_id = ? AND is_current = ?", schoolID, true).
			Update("is_current", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.AcademicYear{}).
			Where("id = ?", yearID).
			Update("is_current", true).Error
	})
	if err != nil {
		Audit().EmitFailure(actor, "SET_CURRENT_YEAR", "academic_years", yearID, err)
		return err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "SET_CURRENT_YEAR",
		TableName: "academic_years",
		RecordID:  yearID,
		NewValue:  map[string]interface{}{"school_id": schoolID, "is_current": true},
	})
	return nil
}

// FeeStructuresFor lists the fee structures matching an enrollment scope.
func (rs *ReferenceService) FeeStructuresFor(schoolID, yearID, classID uint) ([]models.FeeStructure, error) {
	var structures []models.FeeStructure
	err := database.DB.Preload("FeeHead").
		Where("school_id = ? AND academic_year_id = ? AND class_id = ?", schoolID, yearID, classID).
		Find(&structures).Error
	return structures, err
}
