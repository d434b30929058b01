package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"schoolhub_go/config"
	"schoolhub_go/database"
	"schoolhub_go/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// setupTestDB swaps the global database handle for a fresh in-memory sqlite
// database with the full schema migrated.
func setupTestDB(t *testing.T) {
	t.Helper()

	config.AppConfig = &config.Config{
		AppEnv:        "test",
		UseRedisAudit: false,
	}

	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		sqlDB.Close()
	})
}

// fixture holds the reference rows most service tests need.
type fixture struct {
	School  models.School
	Year1   models.AcademicYear // current year
	Year2   models.AcademicYear // the year after
	Year3   models.AcademicYear // two years ahead
	Class1  models.Class
	Class2  models.Class
	Sec1A   models.Section
	Sec1B   models.Section
	Sec2A   models.Section
	Tuition models.FeeHead
	Student models.Student
}

// seedBase populates one school with two classes, three consecutive years and
// a monthly tuition structure of 1200 per year for class 1.
func seedBase(t *testing.T) fixture {
	t.Helper()
	db := database.DB

	f := fixture{}

	f.School = models.School{Name: "Test School", Code: "TST", Active: true}
	mustCreate(t, db, &f.School)

	f.Year1 = models.AcademicYear{
		SchoolID:  f.School.ID,
		Name:      "2025-2026",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	}
	mustCreate(t, db, &f.Year1)
	f.Year2 = models.AcademicYear{
		SchoolID:  f.School.ID,
		Name:      "2026-2027",
		StartDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	mustCreate(t, db, &f.Year2)
	f.Year3 = models.AcademicYear{
		SchoolID:  f.School.ID,
		Name:      "2027-2028",
		StartDate: time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2028, 5, 31, 0, 0, 0, 0, time.UTC),
	}
	mustCreate(t, db, &f.Year3)

	f.Class1 = models.Class{SchoolID: f.School.ID, Name: "Grade 1", SortOrder: 1}
	mustCreate(t, db, &f.Class1)
	f.Class2 = models.Class{SchoolID: f.School.ID, Name: "Grade 2", SortOrder: 2}
	mustCreate(t, db, &f.Class2)

	f.Sec1A = models.Section{ClassID: f.Class1.ID, Name: "A", Capacity: 40}
	mustCreate(t, db, &f.Sec1A)
	f.Sec1B = models.Section{ClassID: f.Class1.ID, Name: "B", Capacity: 40}
	mustCreate(t, db, &f.Sec1B)
	f.Sec2A = models.Section{ClassID: f.Class2.ID, Name: "A", Capacity: 40}
	mustCreate(t, db, &f.Sec2A)

	f.Tuition = models.FeeHead{SchoolID: f.School.ID, Name: "Tuition Fee", Code: "TUITION"}
	mustCreate(t, db, &f.Tuition)

	structure := models.FeeStructure{
		SchoolID:       f.School.ID,
		AcademicYearID: f.Year1.ID,
		ClassID:        f.Class1.ID,
		FeeHeadID:      f.Tuition.ID,
		Amount:         1200,
		Frequency:      models.FrequencyMonthly,
	}
	mustCreate(t, db, &structure)

	f.Student = models.Student{
		SchoolID:    f.School.ID,
		AdmissionNo: "ADM-001",
		FirstName:   "Asha",
		LastName:    "Rao",
		Status:      "active",
	}
	mustCreate(t, db, &f.Student)

	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("failed to create %T: %v", v, err)
	}
}

// mustEnroll enrolls the fixture student into year 1, class 1, section A.
func mustEnroll(t *testing.T, f fixture) *models.StudentEnrollment {
	t.Helper()
	enrollment, err := NewEnrollmentService().Enroll(1, EnrollRequest{
		StudentID:      f.Student.ID,
		AcademicYearID: f.Year1.ID,
		ClassID:        f.Class1.ID,
		SectionID:      f.Sec1A.ID,
		RollNumber:     1,
	})
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	return enrollment
}

// mustSuccessPayment records a payment and confirms it as successful.
func mustSuccessPayment(t *testing.T, f fixture, amount float64) *models.Payment {
	t.Helper()
	ps := NewPaymentService()
	payment, err := ps.RecordPayment(1, RecordPaymentRequest{
		SchoolID:  f.School.ID,
		StudentID: f.Student.ID,
		Amount:    amount,
		Mode:      "cash",
	})
	if err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	confirmed, err := ps.ConfirmGateway(payment.TransactionID, true)
	if err != nil {
		t.Fatalf("confirm payment failed: %v", err)
	}
	return confirmed
}

// assertCode fails unless err is an AppError with the given code.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if !IsCode(err, code) {
		t.Fatalf("expected error code %s, got %v", code, err)
	}
}
