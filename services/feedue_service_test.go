package services

import (
	"math"
	"testing"
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"
)

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{
			name:  "full academic year",
			start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
			want:  12,
		},
		{
			name:  "half year",
			start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			want:  6,
		},
		{
			name:  "same day",
			start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			want:  0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := monthsBetween(tc.start, tc.end); got != tc.want {
				t.Fatalf("expected %d months, got %d", tc.want, got)
			}
		})
	}
}

func TestExpandScheduleMonthly(t *testing.T) {
	year := models.AcademicYear{
		Name:      "2025-2026",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	structure := models.FeeStructure{Amount: 1200, Frequency: models.FrequencyMonthly}

	specs := ExpandSchedule(structure, year, "Tuition Fee")
	if len(specs) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(specs))
	}
	for i, spec := range specs {
		if spec.Amount != 100 {
			t.Fatalf("installment %d: expected 100, got %.2f", i, spec.Amount)
		}
		wantDate := year.StartDate.AddDate(0, i, 0)
		if !spec.DueDate.Equal(wantDate) {
			t.Fatalf("installment %d: expected due date %s, got %s", i, wantDate, spec.DueDate)
		}
	}
}

func TestExpandScheduleMonthlyRounding(t *testing.T) {
	year := models.AcademicYear{
		Name:      "2025-2026",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	structure := models.FeeStructure{Amount: 1000, Frequency: models.FrequencyMonthly}

	specs := ExpandSchedule(structure, year, "Tuition Fee")
	if len(specs) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(specs))
	}

	total := 0.0
	for _, spec := range specs {
		total += spec.Amount
	}
	if math.Abs(total-1000) > 0.001 {
		t.Fatalf("installments must sum to the annual amount, got %.2f", total)
	}
	// The last installment absorbs the remainder.
	if specs[0].Amount != 83.33 {
		t.Fatalf("expected 83.33 per month, got %.2f", specs[0].Amount)
	}
	if specs[11].Amount != 83.37 {
		t.Fatalf("expected final installment 83.37, got %.2f", specs[11].Amount)
	}
}

func TestExpandScheduleQuarterly(t *testing.T) {
	year := models.AcademicYear{
		Name:      "2025-2026",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	structure := models.FeeStructure{Amount: 8000, Frequency: models.FrequencyQuarterly}

	specs := ExpandSchedule(structure, year, "Transport Fee")
	if len(specs) != 4 {
		t.Fatalf("expected 4 installments, got %d", len(specs))
	}
	for i, spec := range specs {
		if spec.Amount != 2000 {
			t.Fatalf("installment %d: expected 2000, got %.2f", i, spec.Amount)
		}
		wantDate := year.StartDate.AddDate(0, i*3, 0)
		if !spec.DueDate.Equal(wantDate) {
			t.Fatalf("installment %d: expected due date %s, got %s", i, wantDate, spec.DueDate)
		}
	}
}

func TestExpandScheduleAnnually(t *testing.T) {
	year := models.AcademicYear{
		Name:      "2025-2026",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	structure := models.FeeStructure{Amount: 1200, Frequency: models.FrequencyAnnually}

	specs := ExpandSchedule(structure, year, "Library Fee")
	if len(specs) != 1 {
		t.Fatalf("expected 1 installment, got %d", len(specs))
	}
	if specs[0].Amount != 1200 || !specs[0].DueDate.Equal(year.StartDate) {
		t.Fatalf("expected single due of 1200 at year start, got %.2f at %s",
			specs[0].Amount, specs[0].DueDate)
	}
}

func TestGenerateDuesCreatesInstallments(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	created, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(created) != 12 {
		t.Fatalf("expected 12 dues from the monthly structure, got %d", len(created))
	}
	for _, due := range created {
		if due.Amount != 100 {
			t.Fatalf("expected 100 per due, got %.2f", due.Amount)
		}
		if due.IsPaid {
			t.Fatalf("new dues must start unpaid")
		}
	}
}

func TestGenerateDuesIsIdempotent(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	fs := NewFeeDueService()

	if _, err := fs.GenerateDues(1, enrollment.ID); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}
	again, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second run must create nothing, created %d", len(again))
	}

	var count int64
	database.DB.Model(&models.StudentFeeDue{}).Where("enrollment_id = ?", enrollment.ID).Count(&count)
	if count != 12 {
		t.Fatalf("expected 12 dues total, got %d", count)
	}
}

func TestGenerateDuesFillsMissingStructures(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	fs := NewFeeDueService()

	if _, err := fs.GenerateDues(1, enrollment.ID); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}

	// A structure added later produces only its own dues on regeneration.
	library := models.FeeHead{SchoolID: f.School.ID, Name: "Library Fee", Code: "LIBRARY"}
	mustCreate(t, database.DB, &library)
	mustCreate(t, database.DB, &models.FeeStructure{
		SchoolID:       f.School.ID,
		AcademicYearID: f.Year1.ID,
		ClassID:        f.Class1.ID,
		FeeHeadID:      library.ID,
		Amount:         600,
		Frequency:      models.FrequencyAnnually,
	})

	created, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 new due for the added structure, got %d", len(created))
	}
	if created[0].FeeHeadID != library.ID || created[0].Amount != 600 {
		t.Fatalf("unexpected due: %+v", created[0])
	}
}

func TestGenerateDuesNoStructure(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)

	// Class 2 has no fee structure configured.
	other := models.Student{SchoolID: f.School.ID, AdmissionNo: "ADM-010", FirstName: "Dev", Status: "active"}
	mustCreate(t, database.DB, &other)
	enrollment, err := NewEnrollmentService().Enroll(1, EnrollRequest{
		StudentID:      other.ID,
		AcademicYearID: f.Year1.ID,
		ClassID:        f.Class2.ID,
		SectionID:      f.Sec2A.ID,
	})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	_, err = NewFeeDueService().GenerateDues(1, enrollment.ID)
	assertCode(t, err, CodeNoFeeStructure)
}

func TestOutstandingReflectsAdjustments(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	fs := NewFeeDueService()
	ps := NewPaymentService()

	dues, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	due := dues[0]

	balance, err := fs.Outstanding(due.ID)
	if err != nil {
		t.Fatalf("outstanding failed: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected 100, got %.2f", balance)
	}

	// A late fee raises the balance, a waiver lowers it.
	dueID := due.ID
	if _, err := ps.Adjust(1, AdjustRequest{
		DueID: &dueID, Amount: 20, Type: models.AdjustmentUp, Reason: "late fee",
	}); err != nil {
		t.Fatalf("adjust up failed: %v", err)
	}
	if _, err := ps.Adjust(1, AdjustRequest{
		DueID: &dueID, Amount: 50, Type: models.AdjustmentDown, Reason: "sibling waiver",
	}); err != nil {
		t.Fatalf("adjust down failed: %v", err)
	}

	balance, _ = fs.Outstanding(due.ID)
	if balance != 70 {
		t.Fatalf("expected 100+20-50=70, got %.2f", balance)
	}

	// The original due amount is never mutated.
	var got models.StudentFeeDue
	database.DB.First(&got, due.ID)
	if got.Amount != 100 {
		t.Fatalf("due amount must stay 100, got %.2f", got.Amount)
	}
}

func TestRecomputePaidFlags(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	fs := NewFeeDueService()
	ps := NewPaymentService()

	dues, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	// A full waiver leaves the cached flag stale until the sweep runs.
	dueID := dues[0].ID
	if _, err := ps.Adjust(1, AdjustRequest{
		DueID: &dueID, Amount: 100, Type: models.AdjustmentDown, Reason: "scholarship",
	}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	database.DB.Model(&models.StudentFeeDue{}).Where("id = ?", dueID).Update("is_paid", false)

	updated, err := fs.RecomputePaidFlags()
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 flag refresh, got %d", updated)
	}

	var got models.StudentFeeDue
	database.DB.First(&got, dueID)
	if !got.IsPaid {
		t.Fatalf("fully waived due must be flagged paid")
	}
}
