package services

import (
	"fmt"
	"math"
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FeeDueService materializes StudentFeeDue rows from FeeStructure reference
// data and owns the derived balance computation.
type FeeDueService struct{}

func NewFeeDueService() *FeeDueService {
	return &FeeDueService{}
}

// DueSpec is one installment produced by expanding a fee structure.
type DueSpec struct {
	Title   string
	Amount  float64
	DueDate time.Time
}

// ExpandSchedule splits a fee structure's annual amount into installments by
// the fixed calendar rule: monthly produces one due per month of the academic
// year starting at year start, quarterly four, annually a single due at year
// start. The last installment absorbs any rounding remainder.
func ExpandSchedule(structure models.FeeStructure, year models.AcademicYear, headName string) []DueSpec {
	switch structure.Frequency {
	case models.FrequencyMonthly:
		n := monthsBetween(year.StartDate, year.EndDate)
		if n < 1 {
			n = 1
		}
		specs := make([]DueSpec, 0, n)
		per := roundMoney(structure.Amount / float64(n))
		for i := 0; i < n; i++ {
			date := year.StartDate.AddDate(0, i, 0)
			amount := per
			if i == n-1 {
				amount = roundMoney(structure.Amount - per*float64(n-1))
			}
			specs = append(specs, DueSpec{
				Title:   fmt.Sprintf("%s %s", headName, date.Format("January 2006")),
				Amount:  amount,
				DueDate: date,
			})
		}
		return specs
	case models.FrequencyQuarterly:
		specs := make([]DueSpec, 0, 4)
		per := roundMoney(structure.Amount / 4)
		for i := 0; i < 4; i++ {
			amount := per
			if i == 3 {
				amount = roundMoney(structure.Amount - per*3)
			}
			specs = append(specs, DueSpec{
				Title:   fmt.Sprintf("%s Q%d %s", headName, i+1, year.Name),
				Amount:  amount,
				DueDate: year.StartDate.AddDate(0, i*3, 0),
			})
		}
		return specs
	default:
		return []DueSpec{{
			Title:   fmt.Sprintf("%s %s", headName, year.Name),
			Amount:  roundMoney(structure.Amount),
			DueDate: year.StartDate,
		}}
	}
}

// monthsBetween counts whole month steps from start while still before end.
func monthsBetween(start, end time.Time) int {
	n := 0
	for d := start; d.Before(end); d = d.AddDate(0, 1, 0) {
		n++
	}
	return n
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// GenerateDues expands every fee structure matching the enrollment's
// (school, year, class) into due rows. Re-invocation is idempotent: existing
// non-deleted dues for the same (enrollment, fee head, due date) are skipped.
func (fs *FeeDueService) GenerateDues(actor, enrollmentID uint) ([]models.StudentFeeDue, error) {
	created, err := fs.generateDues(enrollmentID)
	if err != nil {
		Audit().EmitFailure(actor, "GENERATE_DUES", "student_fee_dues", enrollmentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "GENERATE_DUES",
		TableName: "student_fee_dues",
		RecordID:  enrollmentID,
		NewValue:  map[string]int{"dues_created": len(created)},
	})
	return created, nil
}

func (fs *FeeDueService) generateDues(enrollmentID uint) ([]models.StudentFeeDue, error) {
	var enrollment models.StudentEnrollment
	if err := database.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "enrollment %d not found", enrollmentID)
	}
	var year models.AcademicYear
	if err := database.DB.First(&year, enrollment.AcademicYearID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "academic year %d not found", enrollment.AcademicYearID)
	}

	var structures []models.FeeStructure
	if err := database.DB.Preload("FeeHead").
		Where("school_id = ? AND academic_year_id = ? AND class_id = ?",
			enrollment.SchoolID, enrollment.AcademicYearID, enrollment.ClassID).
		Find(&structures).Error; err != nil {
		return nil, err
	}
	if len(structures) == 0 {
		// The caller decides whether this is an error or a fee-exempt case.
		return nil, notFoundErr(CodeNoFeeStructure,
			"no fee structure for school %d, year %d, class %d",
			enrollment.SchoolID, enrollment.AcademicYearID, enrollment.ClassID)
	}

	var created []models.StudentFeeDue
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var existing []models.StudentFeeDue
		if err := tx.Where("enrollment_id = ?", enrollmentID).Find(&existing).Error; err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, d := range existing {
			seen[dueKey(d.FeeHeadID, d.DueDate)] = true
		}

		for _, structure := range structures {
			for _, spec := range ExpandSchedule(structure, year, structure.FeeHead.Name) {
				if seen[dueKey(structure.FeeHeadID, spec.DueDate)] {
					continue
				}
				due := models.StudentFeeDue{
					EnrollmentID: enrollmentID,
					FeeHeadID:    structure.FeeHeadID,
					Title:        spec.Title,
					Amount:       spec.Amount,
					DueDate:      spec.DueDate,
				}
				if err := tx.Create(&due).Error; err != nil {
					return err
				}
				created = append(created, due)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func dueKey(feeHeadID uint, dueDate time.Time) string {
	return fmt.Sprintf("%d|%s", feeHeadID, dueDate.Format("2006-01-02"))
}

// Outstanding recomputes the authoritative balance of a due:
// amount + adjustments up - adjustments down - allocations, where allocations
// belonging to refunded payments are excluded. Refund adjustment rows document
// a reversal but carry no weight here; excluding the reversed allocations is
// what restores the balance.
func (fs *FeeDueService) Outstanding(dueID uint) (float64, error) {
	var due models.StudentFeeDue
	if err := database.DB.First(&due, dueID).Error; err != nil {
		return 0, notFoundErr(CodeNotFound, "due %d not found", dueID)
	}
	return outstandingBalance(database.DB, &due), nil
}

func outstandingBalance(tx *gorm.DB, due *models.StudentFeeDue) float64 {
	var up, down, allocated float64

	tx.Model(&models.PaymentAdjustment{}).
		Where("due_id = ? AND type = ?", due.ID, models.AdjustmentUp).
		Select("COALESCE(SUM(adjustment_amount), 0)").Scan(&up)
	tx.Model(&models.PaymentAdjustment{}).
		Where("due_id = ? AND type = ?", due.ID, models.AdjustmentDown).
		Select("COALESCE(SUM(adjustment_amount), 0)").Scan(&down)
	tx.Model(&models.PaymentAllocation{}).
		Joins("JOIN payments ON payments.id = payment_allocations.payment_id AND payments.deleted_at IS NULL").
		Where("payment_allocations.due_id = ? AND payments.status <> ?", due.ID, models.PaymentRefunded).
		Select("COALESCE(SUM(payment_allocations.amount_allocated), 0)").Scan(&allocated)

	return roundMoney(due.Amount + up - down - allocated)
}

// RecomputePaidFlags refreshes the cached is_paid flag across all dues.
// Run nightly by the scheduler; the flag is a cache, the balance formula
// stays authoritative.
func (fs *FeeDueService) RecomputePaidFlags() (int, error) {
	var dues []models.StudentFeeDue
	if err := database.DB.Find(&dues).Error; err != nil {
		return 0, err
	}

	updated := 0
	for i := range dues {
		paid := outstandingBalance(database.DB, &dues[i]) <= 0
		if paid == dues[i].IsPaid {
			continue
		}
		if err := database.DB.Model(&dues[i]).Update("is_paid", paid).Error; err != nil {
			logrus.WithError(err).WithField("due_id", dues[i].ID).Error("Failed to refresh is_paid flag")
			continue
		}
		updated++
	}
	return updated, nil
}
