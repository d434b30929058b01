package services

import (
	"strings"
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"

	"gorm.io/gorm"
)

// EnrollmentService owns StudentEnrollment rows and their status transitions.
type EnrollmentService struct{}

func NewEnrollmentService() *EnrollmentService {
	return &EnrollmentService{}
}

// EnrollRequest carries the input for a new admission.
type EnrollRequest struct {
	StudentID      uint `json:"student_id" validate:"required"`
	AcademicYearID uint `json:"academic_year_id" validate:"required"`
	ClassID        uint `json:"class_id" validate:"required"`
	SectionID      uint `json:"section_id" validate:"required"`
	RollNumber     int  `json:"roll_number"`
}

// Enroll creates an Active enrollment for (student, year). The application
// check and the unique index on (student_id, academic_year_id, active_key)
// together guarantee at most one active row; a constraint race is retried
// once before the conflict is surfaced.
func (es *EnrollmentService) Enroll(actor uint, req EnrollRequest) (*models.StudentEnrollment, error) {
	enrollment, err := es.enroll(actor, req)
	if err != nil {
		Audit().EmitFailure(actor, "ENROLL", "student_enrollments", req.StudentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "ENROLL",
		TableName: "student_enrollments",
		RecordID:  enrollment.ID,
		NewValue:  enrollment,
	})
	return enrollment, nil
}

func (es *EnrollmentService) enroll(actor uint, req EnrollRequest) (*models.StudentEnrollment, error) {
	if req.StudentID == 0 || req.AcademicYearID == 0 || req.ClassID == 0 || req.SectionID == 0 {
		return nil, validationErr("student_id, academic_year_id, class_id and section_id are required")
	}

	var student models.Student
	if err := database.DB.First(&student, req.StudentID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "student %d not found", req.StudentID)
	}
	var year models.AcademicYear
	if err := database.DB.First(&year, req.AcademicYearID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "academic year %d not found", req.AcademicYearID)
	}
	if year.SchoolID != student.SchoolID {
		return nil, validationErr("academic year %d does not belong to the student's school", year.ID)
	}
	var class models.Class
	if err := database.DB.First(&class, req.ClassID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "class %d not found", req.ClassID)
	}
	var section models.Section
	if err := database.DB.First(&section, req.SectionID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "section %d not found", req.SectionID)
	}
	if section.ClassID != class.ID {
		return nil, validationErr("section %d does not belong to class %d", section.ID, class.ID)
	}

	var enrollment *models.StudentEnrollment
	// One automatic retry for the unique-constraint race; the pre-check
	// conflict is surfaced immediately.
	for attempt := 0; attempt < 2; attempt++ {
		enrollment = nil
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var count int64
			tx.Model(&models.StudentEnrollment{}).
				Where("student_id = ? AND academic_year_id = ? AND status = ?",
					req.StudentID, req.AcademicYearID, models.EnrollmentActive).
				Count(&count)
			if count > 0 {
				return conflictErr(CodeDuplicateActiveEnrollment,
					"student %d already has an active enrollment for year %d", req.StudentID, req.AcademicYearID)
			}

			key := activeKey
			row := models.StudentEnrollment{
				StudentID:      req.StudentID,
				SchoolID:       student.SchoolID,
				AcademicYearID: req.AcademicYearID,
				ClassID:        req.ClassID,
				SectionID:      req.SectionID,
				RollNumber:     req.RollNumber,
				Status:         models.EnrollmentActive,
				ActiveKey:      &key,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			enrollment = &row
			return nil
		})
		if err == nil {
			return enrollment, nil
		}
		if isUniqueViolation(err) && attempt == 0 {
			continue
		}
		if isUniqueViolation(err) {
			return nil, conflictErr(CodeDuplicateActiveEnrollment,
				"student %d already has an active enrollment for year %d", req.StudentID, req.AcademicYearID)
		}
		return nil, err
	}
	return enrollment, nil
}

// Transfer moves an active enrollment to another section of the same year.
// When the target section belongs to a different class this is the same-year
// class move; the status is left unchanged. Cross-year moves go through the
// promotion engine instead.
func (es *EnrollmentService) Transfer(actor, enrollmentID, targetSectionID uint) (*models.StudentEnrollment, error) {
	enrollment, err := es.transfer(enrollmentID, targetSectionID)
	if err != nil {
		Audit().EmitFailure(actor, "TRANSFER_SECTION", "student_enrollments", enrollmentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "TRANSFER_SECTION",
		TableName: "student_enrollments",
		RecordID:  enrollment.ID,
		NewValue:  enrollment,
	})
	return enrollment, nil
}

func (es *EnrollmentService) transfer(enrollmentID, targetSectionID uint) (*models.StudentEnrollment, error) {
	var enrollment models.StudentEnrollment
	if err := database.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "enrollment %d not found", enrollmentID)
	}
	if enrollment.Status != models.EnrollmentActive {
		return nil, stateErr(CodeInvalidTransition,
			"enrollment %d is %s, only active enrollments can be transferred", enrollmentID, enrollment.Status)
	}

	var section models.Section
	if err := database.DB.Preload("Class").First(&section, targetSectionID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "section %d not found", targetSectionID)
	}
	if section.Class.SchoolID != enrollment.SchoolID {
		return nil, validationErr("section %d belongs to another school", targetSectionID)
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"section_id": section.ID}
		if section.ClassID != enrollment.ClassID {
			updates["class_id"] = section.ClassID
		}
		return tx.Model(&enrollment).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Terminate closes an active enrollment. Transferred keeps the row visible
// with a transfer timestamp; Left soft-deletes it (tombstone, history kept).
// Terminated rows are never reused; re-admission creates a new row.
func (es *EnrollmentService) Terminate(actor, enrollmentID uint, reason string) error {
	if err := es.terminate(enrollmentID, reason); err != nil {
		Audit().EmitFailure(actor, "TERMINATE_ENROLLMENT", "student_enrollments", enrollmentID, err)
		return err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "TERMINATE_ENROLLMENT",
		TableName: "student_enrollments",
		RecordID:  enrollmentID,
		NewValue:  map[string]string{"status": reason},
	})
	return nil
}

func (es *EnrollmentService) terminate(enrollmentID uint, reason string) error {
	if reason != models.EnrollmentTransferred && reason != models.EnrollmentLeft {
		return validationErr("reason must be %q or %q", models.EnrollmentTransferred, models.EnrollmentLeft)
	}

	var enrollment models.StudentEnrollment
	if err := database.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return notFoundErr(CodeNotFound, "enrollment %d not found", enrollmentID)
	}
	if enrollment.Status != models.EnrollmentActive {
		return stateErr(CodeInvalidTransition,
			"enrollment %d is %s, only active enrollments can be terminated", enrollmentID, enrollment.Status)
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     reason,
			"active_key": nil,
		}
		if reason == models.EnrollmentTransferred {
			updates["transferred_at"] = time.Now()
		}
		if err := tx.Model(&enrollment).Updates(updates).Error; err != nil {
			return err
		}
		if reason == models.EnrollmentLeft {
			return tx.Delete(&enrollment).Error
		}
		return nil
	})
}

// ActiveEnrollment returns the single active, non-deleted enrollment for
// (student, year), or a NotFound error.
func (es *EnrollmentService) ActiveEnrollment(studentID, yearID uint) (*models.StudentEnrollment, error) {
	var enrollment models.StudentEnrollment
	err := database.DB.
		Where("student_id = ? AND academic_year_id = ? AND status = ?", studentID, yearID, models.EnrollmentActive).
		First(&enrollment).Error
	if err != nil {
		return nil, notFoundErr(CodeNotFound, "no active enrollment for student %d in year %d", studentID, yearID)
	}
	return &enrollment, nil
}

const activeKey = "1"

// isUniqueViolation detects duplicate-key errors from mysql and the sqlite
// driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
