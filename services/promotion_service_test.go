package services

import (
	"testing"

	"schoolhub_go/database"
	"schoolhub_go/models"
)

func TestPromoteCreatesNewEnrollment(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	result, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		ToClassID:    f.Class2.ID,
		Decision:     models.ProgressionPromoted,
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	if result.Progression.PromotionStatus != models.ProgressionPromoted {
		t.Fatalf("expected status promoted, got %s", result.Progression.PromotionStatus)
	}
	if result.NewEnrollment == nil {
		t.Fatalf("expected a new enrollment for a promoted decision")
	}
	if result.NewEnrollment.AcademicYearID != f.Year2.ID || result.NewEnrollment.ClassID != f.Class2.ID {
		t.Fatalf("new enrollment landed in year %d class %d",
			result.NewEnrollment.AcademicYearID, result.NewEnrollment.ClassID)
	}
	if result.NewEnrollment.Status != models.EnrollmentActive {
		t.Fatalf("new enrollment must be active, got %s", result.NewEnrollment.Status)
	}
	if result.Progression.NewEnrollmentID == nil || *result.Progression.NewEnrollmentID != result.NewEnrollment.ID {
		t.Fatalf("progression must link to the new enrollment")
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPromotionService(nil)

	req := PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		ToClassID:    f.Class2.ID,
		Decision:     models.ProgressionPromoted,
	}
	if _, err := ps.Promote(1, req); err != nil {
		t.Fatalf("first promote failed: %v", err)
	}

	_, err := ps.Promote(1, req)
	assertCode(t, err, CodeAlreadyProgressed)

	var count int64
	database.DB.Model(&models.StudentProgression{}).
		Where("enrollment_id = ?", enrollment.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one progression row, got %d", count)
	}
}

func TestDetainedRepeatsSameClass(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	// A detained decision ignores any requested target class.
	result, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		ToClassID:    f.Class2.ID,
		Decision:     models.ProgressionDetained,
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if result.NewEnrollment.ClassID != f.Class1.ID {
		t.Fatalf("detained student must repeat class %d, got %d", f.Class1.ID, result.NewEnrollment.ClassID)
	}
}

func TestWithdrawnCreatesNoEnrollment(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	result, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		Decision:     models.ProgressionWithdrawn,
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if result.NewEnrollment != nil {
		t.Fatalf("withdrawn decision must not create an enrollment")
	}
	if result.Progression.ToClassID != nil {
		t.Fatalf("withdrawn progression must not carry a target class")
	}

	var count int64
	database.DB.Model(&models.StudentEnrollment{}).
		Where("student_id = ? AND academic_year_id = ?", f.Student.ID, f.Year2.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no enrollment in the target year, found %d", count)
	}
}

func TestPromoteRejectsInactiveSource(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	if err := NewEnrollmentService().Terminate(1, enrollment.ID, models.EnrollmentTransferred); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	_, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		ToClassID:    f.Class2.ID,
		Decision:     models.ProgressionPromoted,
	})
	assertCode(t, err, CodeNotEligible)
}

func TestPromoteRejectsNonConsecutiveYear(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	// Year 3 skips over year 2.
	_, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year3.ID,
		ToClassID:    f.Class2.ID,
		Decision:     models.ProgressionPromoted,
	})
	assertCode(t, err, CodeNotEligible)
}

func TestPromoteRejectsMissingTargetClass(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	_, err := NewPromotionService(nil).Promote(1, PromoteRequest{
		EnrollmentID: enrollment.ID,
		ToYearID:     f.Year2.ID,
		Decision:     models.ProgressionPromoted,
	})
	assertCode(t, err, CodeValidation)
}

func TestPromoteBatchIsolatesFailures(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)

	second := models.Student{SchoolID: f.School.ID, AdmissionNo: "ADM-002", FirstName: "Ravi", Status: "active"}
	mustCreate(t, database.DB, &second)
	other, err := NewEnrollmentService().Enroll(1, EnrollRequest{
		StudentID:      second.ID,
		AcademicYearID: f.Year1.ID,
		ClassID:        f.Class1.ID,
		SectionID:      f.Sec1B.ID,
	})
	if err != nil {
		t.Fatalf("second enroll failed: %v", err)
	}

	results := NewPromotionService(nil).PromoteBatch(1, []PromoteRequest{
		{EnrollmentID: enrollment.ID, ToYearID: f.Year2.ID, ToClassID: f.Class2.ID, Decision: models.ProgressionPromoted},
		{EnrollmentID: 9999, ToYearID: f.Year2.ID, ToClassID: f.Class2.ID, Decision: models.ProgressionPromoted},
		{EnrollmentID: other.ID, ToYearID: f.Year2.ID, ToClassID: f.Class2.ID, Decision: models.ProgressionPromoted},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Error != "" || results[0].NewEnrollmentID == nil {
		t.Fatalf("first entry should succeed: %+v", results[0])
	}
	if results[1].Error == "" || results[1].ErrorCode != CodeNotFound {
		t.Fatalf("second entry should fail with NotFound: %+v", results[1])
	}
	// The failure in the middle must not affect the following entry.
	if results[2].Error != "" || results[2].NewEnrollmentID == nil {
		t.Fatalf("third entry should succeed: %+v", results[2])
	}
}

func TestLeastLoadedSectionAssigner(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)

	// Fill section A of class 1 in year 2 with one active enrollment.
	other := models.Student{SchoolID: f.School.ID, AdmissionNo: "ADM-003", FirstName: "Mira", Status: "active"}
	mustCreate(t, database.DB, &other)
	if _, err := NewEnrollmentService().Enroll(1, EnrollRequest{
		StudentID:      other.ID,
		AcademicYearID: f.Year2.ID,
		ClassID:        f.Class1.ID,
		SectionID:      f.Sec1A.ID,
	}); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}

	assigner := &leastLoadedSectionAssigner{}
	sectionID, err := assigner.AssignSection(f.Year2.ID, f.Class1.ID)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if sectionID != f.Sec1B.ID {
		t.Fatalf("expected the emptier section %d, got %d", f.Sec1B.ID, sectionID)
	}
}
