package services

import (
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SectionAssigner supplies the target section during promotion. Capacity
// policy lives outside the core; the default picks the least-loaded section.
type SectionAssigner interface {
	AssignSection(toYearID, toClassID uint) (uint, error)
}

// PromotionService performs year-end transitions, producing progression rows
// and new enrollments.
type PromotionService struct {
	sections SectionAssigner
}

func NewPromotionService(assigner SectionAssigner) *PromotionService {
	if assigner == nil {
		assigner = &leastLoadedSectionAssigner{}
	}
	return &PromotionService{sections: assigner}
}

// PromoteRequest carries one student's year-end decision.
type PromoteRequest struct {
	EnrollmentID uint   `json:"enrollment_id" validate:"required"`
	ToYearID     uint   `json:"to_year_id" validate:"required"`
	ToClassID    uint   `json:"to_class_id"`
	Decision     string `json:"decision" validate:"required"` // promoted, detained, withdrawn
}

// PromoteResult pairs the progression record with the enrollment it created.
type PromoteResult struct {
	Progression   *models.StudentProgression `json:"progression"`
	NewEnrollment *models.StudentEnrollment  `json:"new_enrollment,omitempty"`
}

// BatchResult reports one student's outcome within a batch promotion.
type BatchResult struct {
	EnrollmentID    uint   `json:"enrollment_id"`
	NewEnrollmentID *uint  `json:"new_enrollment_id,omitempty"`
	PromotionStatus string `json:"promotion_status,omitempty"`
	Error           string `json:"error,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// Promote runs the year-end state machine for a single enrollment:
// Promoted and Detained create a new active enrollment in the target year,
// Withdrawn writes the progression record only. The source enrollment is
// closed implicitly by the year boundary; the progression row links it to
// its successor. A repeat call for the same (enrollment, toYear) fails with
// AlreadyProgressed, enforced by the unique index.
func (ps *PromotionService) Promote(actor uint, req PromoteRequest) (*PromoteResult, error) {
	result, err := ps.promote(actor, req)
	if err != nil {
		Audit().EmitFailure(actor, "PROMOTE", "student_progressions", req.EnrollmentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "PROMOTE",
		TableName: "student_progressions",
		RecordID:  result.Progression.ID,
		NewValue:  result.Progression,
	})
	return result, nil
}

func (ps *PromotionService) promote(actor uint, req PromoteRequest) (*PromoteResult, error) {
	switch req.Decision {
	case models.ProgressionPromoted, models.ProgressionDetained, models.ProgressionWithdrawn:
	default:
		return nil, validationErr("decision must be promoted, detained or withdrawn")
	}
	if req.Decision == models.ProgressionPromoted && req.ToClassID == 0 {
		return nil, validationErr("to_class_id is required for a promoted decision")
	}

	var source models.StudentEnrollment
	if err := database.DB.First(&source, req.EnrollmentID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "enrollment %d not found", req.EnrollmentID)
	}
	if source.Status != models.EnrollmentActive {
		return nil, stateErr(CodeNotEligible,
			"enrollment %d is %s, only active enrollments are eligible for promotion", source.ID, source.Status)
	}

	var toYear models.AcademicYear
	if err := database.DB.First(&toYear, req.ToYearID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "academic year %d not found", req.ToYearID)
	}
	var fromYear models.AcademicYear
	if err := database.DB.First(&fromYear, source.AcademicYearID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "academic year %d not found", source.AcademicYearID)
	}
	if toYear.SchoolID != source.SchoolID {
		return nil, validationErr("academic year %d belongs to another school", toYear.ID)
	}
	if err := ps.requireConsecutiveYears(fromYear, toYear); err != nil {
		return nil, err
	}

	toClassID := req.ToClassID
	if req.Decision == models.ProgressionDetained {
		// Detention repeats the same class in the new year.
		toClassID = source.ClassID
	}
	if req.Decision != models.ProgressionWithdrawn {
		var class models.Class
		if err := database.DB.First(&class, toClassID).Error; err != nil {
			return nil, notFoundErr(CodeNotFound, "class %d not found", toClassID)
		}
	}

	var result *PromoteResult
	for attempt := 0; attempt < 2; attempt++ {
		result = nil
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var count int64
			tx.Model(&models.StudentProgression{}).
				Where("enrollment_id = ? AND to_year_id = ?", req.EnrollmentID, req.ToYearID).
				Count(&count)
			if count > 0 {
				return conflictErr(CodeAlreadyProgressed,
					"enrollment %d has already progressed to year %d", req.EnrollmentID, req.ToYearID)
			}

			progression := models.StudentProgression{
				EnrollmentID:    source.ID,
				FromYearID:      fromYear.ID,
				ToYearID:        toYear.ID,
				FromClassID:     source.ClassID,
				PromotionStatus: req.Decision,
				PromotedBy:      actor,
				PromotionDate:   time.Now(),
			}

			var newEnrollment *models.StudentEnrollment
			if req.Decision != models.ProgressionWithdrawn {
				sectionID, err := ps.sections.AssignSection(toYear.ID, toClassID)
				if err != nil {
					return err
				}

				var active int64
				tx.Model(&models.StudentEnrollment{}).
					Where("student_id = ? AND academic_year_id = ? AND status = ?",
						source.StudentID, toYear.ID, models.EnrollmentActive).
					Count(&active)
				if active > 0 {
					return conflictErr(CodeDuplicateActiveEnrollment,
						"student %d already has an active enrollment for year %d", source.StudentID, toYear.ID)
				}

				key := activeKey
				row := models.StudentEnrollment{
					StudentID:      source.StudentID,
					SchoolID:       source.SchoolID,
					AcademicYearID: toYear.ID,
					ClassID:        toClassID,
					SectionID:      sectionID,
					Status:         models.EnrollmentActive,
					ActiveKey:      &key,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				newEnrollment = &row
				progression.ToClassID = &toClassID
				progression.NewEnrollmentID = &row.ID
			}

			if err := tx.Create(&progression).Error; err != nil {
				return err
			}

			result = &PromoteResult{Progression: &progression, NewEnrollment: newEnrollment}
			return nil
		})
		if err == nil {
			return result, nil
		}
		if isUniqueViolation(err) && attempt == 0 {
			continue
		}
		if isUniqueViolation(err) {
			return nil, conflictErr(CodeAlreadyProgressed,
				"enrollment %d has already progressed to year %d", req.EnrollmentID, req.ToYearID)
		}
		return nil, err
	}
	return result, nil
}

// requireConsecutiveYears enforces that toYear is the year immediately
// following fromYear in the school's calendar.
func (ps *PromotionService) requireConsecutiveYears(fromYear, toYear models.AcademicYear) error {
	if !toYear.StartDate.After(fromYear.StartDate) {
		return stateErr(CodeNotEligible,
			"year %s does not follow year %s", toYear.Name, fromYear.Name)
	}
	var between int64
	database.DB.Model(&models.AcademicYear{}).
		Where("school_id = ? AND start_date > ? AND start_date < ?",
			fromYear.SchoolID, fromYear.StartDate, toYear.StartDate).
		Count(&between)
	if between > 0 {
		return stateErr(CodeNotEligible,
			"year %s is not the year immediately following %s", toYear.Name, fromYear.Name)
	}
	return nil
}

// PromoteBatch promotes many students. Each student runs in an independent
// transaction: one failure never rolls back the others, and failures are
// collected and reported instead of retried (eligibility rejections are not
// transient).
func (ps *PromotionService) PromoteBatch(actor uint, reqs []PromoteRequest) []BatchResult {
	results := make([]BatchResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := ps.Promote(actor, req)
		if err != nil {
			br := BatchResult{EnrollmentID: req.EnrollmentID, Error: err.Error()}
			if ae := AsAppError(err); ae != nil {
				br.ErrorCode = ae.Code
			}
			results = append(results, br)
			logrus.WithError(err).WithField("enrollment_id", req.EnrollmentID).Warn("Batch promotion entry failed")
			continue
		}
		br := BatchResult{
			EnrollmentID:    req.EnrollmentID,
			PromotionStatus: res.Progression.PromotionStatus,
		}
		if res.NewEnrollment != nil {
			br.NewEnrollmentID = &res.NewEnrollment.ID
		}
		results = append(results, br)
	}
	return results
}

// leastLoadedSectionAssigner picks the section of the target class with the
// fewest active enrollments in the target year.
type leastLoadedSectionAssigner struct{}

func (a *leastLoadedSectionAssigner) AssignSection(toYearID, toClassID uint) (uint, error) {
	var sections []models.Section
	if err := database.DB.Where("class_id = ?", toClassID).Order("id").Find(&sections).Error; err != nil {
		return 0, err
	}
	if len(sections) == 0 {
		return 0, notFoundErr(CodeNotFound, "class %d has no sections", toClassID)
	}

	best := sections[0].ID
	bestLoad := int64(-1)
	for _, s := range sections {
		var load int64
		database.DB.Model(&models.StudentEnrollment{}).
			Where("section_id = ? AND academic_year_id = ? AND status = ?",
				s.ID, toYearID, models.EnrollmentActive).
			Count(&load)
		if bestLoad < 0 || load < bestLoad {
			best = s.ID
			bestLoad = load
		}
	}
	return best, nil
}
