package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Enrollment statuses
const (
	EnrollmentActive      = "active"
	EnrollmentTransferred = "transferred"
	EnrollmentLeft        = "left"
)

// Progression outcomes
const (
	ProgressionPromoted  = "promoted"
	ProgressionDetained  = "detained"
	ProgressionWithdrawn = "withdrawn"
)

// Fee structure frequencies
const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnually  = "annually"
)

// Payment statuses
const (
	PaymentPending  = "pending"
	PaymentSuccess  = "success"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Adjustment types
const (
	AdjustmentRefund = "refund"
	AdjustmentUp     = "adjustment_up"
	AdjustmentDown   = "adjustment_down"
)

// School model, the tenant root
type School struct {
	BaseModel
	Name    string `json:"name" gorm:"size:255;not null"`
	Code    string `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Address string `json:"address" gorm:"size:500"`
	Phone   string `json:"phone" gorm:"size:20"`
	Active  bool   `json:"active" gorm:"default:true"`

	// Relationships
	Users         []User         `json:"users,omitempty" gorm:"foreignKey:SchoolID"`
	AcademicYears []AcademicYear `json:"academic_years,omitempty" gorm:"foreignKey:SchoolID"`
	Classes       []Class        `json:"classes,omitempty" gorm:"foreignKey:SchoolID"`
}

// User model for staff operating the platform
type User struct {
	BaseModel
	Username string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password string `json:"-" gorm:"size:255;not null"`
	Email    string `json:"email" gorm:"size:255"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:50;not null;default:'staff'"` // admin, registrar, accountant, staff
	SchoolID uint   `json:"school_id" gorm:"not null;index"`
	Status   string `json:"status" gorm:"size:50;not null;default:'active'"` // active, inactive, suspended

	// Relationships
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
}

// Student model
type Student struct {
	BaseModel
	SchoolID      uint       `json:"school_id" gorm:"not null;index"`
	AdmissionNo   string     `json:"admission_no" gorm:"size:50;not null;uniqueIndex"`
	FirstName     string     `json:"first_name" gorm:"size:100;not null"`
	LastName      string     `json:"last_name" gorm:"size:100"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	Gender        string     `json:"gender" gorm:"size:20"`
	GuardianName  string     `json:"guardian_name" gorm:"size:200"`
	GuardianPhone string     `json:"guardian_phone" gorm:"size:20"`
	Address       string     `json:"address" gorm:"size:500"`
	Status        string     `json:"status" gorm:"size:50;default:'active'"` // active, inactive, alumni

	// Relationships
	School      School              `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Enrollments []StudentEnrollment `json:"enrollments,omitempty" gorm:"foreignKey:StudentID"`
	Payments    []Payment           `json:"payments,omitempty" gorm:"foreignKey:StudentID"`
}

// AcademicYear model. At most one row per school carries IsCurrent=true;
// SetCurrentYear flips the flag inside one transaction.
type AcademicYear struct {
	BaseModel
	SchoolID  uint      `json:"school_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"size:50;not null"` // e.g. "2024-2025"
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`
	IsCurrent bool      `json:"is_current" gorm:"default:false;index"`

	// Relationships
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
}

// Class model (a grade level within a school)
type Class struct {
	BaseModel
	SchoolID  uint   `json:"school_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"size:100;not null"`
	SortOrder int    `json:"sort_order" gorm:"default:1"`

	// Relationships
	School   School    `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
	Sections []Section `json:"sections,omitempty" gorm:"foreignKey:ClassID"`
}

// Section model
type Section struct {
	BaseModel
	ClassID  uint   `json:"class_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"size:50;not null"`
	Capacity int    `json:"capacity" gorm:"default:40"`

	// Relationships
	Class Class `json:"class,omitempty" gorm:"foreignKey:ClassID"`
}

// FeeHead model (tuition, transport, library, ...)
type FeeHead struct {
	BaseModel
	SchoolID uint   `json:"school_id" gorm:"not null;index"`
	Name     string `json:"name" gorm:"size:100;not null"`
	Code     string `json:"code" gorm:"size:50;not null"`

	// Relationships
	School School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
}

// FeeStructure is reference data read by the due generator. Amount is the
// total for the academic year; frequency controls how it is split into dues.
type FeeStructure struct {
	BaseModel
	SchoolID       uint    `json:"school_id" gorm:"not null;uniqueIndex:uq_fee_structure"`
	AcademicYearID uint    `json:"academic_year_id" gorm:"not null;uniqueIndex:uq_fee_structure"`
	ClassID        uint    `json:"class_id" gorm:"not null;uniqueIndex:uq_fee_structure"`
	FeeHeadID      uint    `json:"fee_head_id" gorm:"not null;uniqueIndex:uq_fee_structure"`
	Amount         float64 `json:"amount" gorm:"not null;type:decimal(12,2)"`
	Frequency      string  `json:"frequency" gorm:"size:20;not null;default:'annually'"` // monthly, quarterly, annually

	// Relationships
	AcademicYear AcademicYear `json:"academic_year,omitempty" gorm:"foreignKey:AcademicYearID"`
	Class        Class        `json:"class,omitempty" gorm:"foreignKey:ClassID"`
	FeeHead      FeeHead      `json:"fee_head,omitempty" gorm:"foreignKey:FeeHeadID"`
}

// StudentEnrollment registers a student in one class/section for one academic
// year. ActiveKey is "1" while the enrollment is active and NULL once it is
// terminated, so the composite unique index admits at most one active row per
// (student, year) while allowing any number of closed historical rows.
type StudentEnrollment struct {
	BaseModel
	StudentID      uint       `json:"student_id" gorm:"not null;uniqueIndex:uq_active_enrollment"`
	SchoolID       uint       `json:"school_id" gorm:"not null;index"`
	AcademicYearID uint       `json:"academic_year_id" gorm:"not null;uniqueIndex:uq_active_enrollment"`
	ClassID        uint       `json:"class_id" gorm:"not null;index"`
	SectionID      uint       `json:"section_id" gorm:"not null"`
	RollNumber     int        `json:"roll_number"`
	Status         string     `json:"status" gorm:"size:50;not null;default:'active'"` // active, transferred, left
	ActiveKey      *string    `json:"-" gorm:"size:10;uniqueIndex:uq_active_enrollment"`
	TransferredAt  *time.Time `json:"transferred_at"`

	// Relationships
	Student      Student         `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	AcademicYear AcademicYear    `json:"academic_year,omitempty" gorm:"foreignKey:AcademicYearID"`
	Class        Class           `json:"class,omitempty" gorm:"foreignKey:ClassID"`
	Section      Section         `json:"section,omitempty" gorm:"foreignKey:SectionID"`
	FeeDues      []StudentFeeDue `json:"fee_dues,omitempty" gorm:"foreignKey:EnrollmentID"`
}

// StudentProgression is the append-only record of one year-end transition.
// The unique index on (enrollment_id, to_year_id) is the idempotency backstop.
type StudentProgression struct {
	BaseModel
	EnrollmentID    uint      `json:"enrollment_id" gorm:"not null;uniqueIndex:uq_progression"`
	ToYearID        uint      `json:"to_year_id" gorm:"not null;uniqueIndex:uq_progression"`
	FromYearID      uint      `json:"from_year_id" gorm:"not null"`
	FromClassID     uint      `json:"from_class_id" gorm:"not null"`
	ToClassID       *uint     `json:"to_class_id"` // nil once withdrawn
	NewEnrollmentID *uint     `json:"new_enrollment_id"`
	PromotionStatus string    `json:"promotion_status" gorm:"size:50;not null"` // promoted, detained, withdrawn
	PromotedBy      uint      `json:"promoted_by" gorm:"not null"`
	PromotionDate   time.Time `json:"promotion_date" gorm:"not null"`

	// Relationships
	Enrollment    StudentEnrollment  `json:"enrollment,omitempty" gorm:"foreignKey:EnrollmentID"`
	NewEnrollment *StudentEnrollment `json:"new_enrollment,omitempty" gorm:"foreignKey:NewEnrollmentID"`
}

// StudentFeeDue is one payable installment materialized from a FeeStructure.
// Amount never changes after creation; corrections go through adjustments.
// IsPaid is a cached flag, the authoritative balance is recomputed from
// allocations and adjustments. RowVersion backs optimistic concurrency during
// allocation.
type StudentFeeDue struct {
	BaseModel
	EnrollmentID uint      `json:"enrollment_id" gorm:"not null;index"`
	FeeHeadID    uint      `json:"fee_head_id" gorm:"not null;index"`
	Title        string    `json:"title" gorm:"size:255;not null"`
	Amount       float64   `json:"amount" gorm:"not null;type:decimal(12,2)"`
	DueDate      time.Time `json:"due_date" gorm:"not null;index"`
	IsPaid       bool      `json:"is_paid" gorm:"default:false"`
	RowVersion   uint      `json:"-" gorm:"not null;default:0"`

	// Relationships
	Enrollment StudentEnrollment `json:"enrollment,omitempty" gorm:"foreignKey:EnrollmentID"`
	FeeHead    FeeHead           `json:"fee_head,omitempty" gorm:"foreignKey:FeeHeadID"`
}

// Payment is scoped to the student, not the enrollment, so payment history
// survives across years. TransactionID is unique, which makes gateway
// callbacks idempotent.
type Payment struct {
	BaseModel
	SchoolID      uint       `json:"school_id" gorm:"not null;index"`
	StudentID     uint       `json:"student_id" gorm:"not null;index"`
	Amount        float64    `json:"amount" gorm:"not null;type:decimal(12,2)"`
	Mode          string     `json:"mode" gorm:"size:50;not null"` // cash, card, transfer, gateway
	ReferenceNo   string     `json:"reference_no" gorm:"size:100"`
	TransactionID string     `json:"transaction_id" gorm:"size:100;not null;uniqueIndex"`
	Status        string     `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, success, failed, refunded
	PaidAt        *time.Time `json:"paid_at"`
	ReversedAt    *time.Time `json:"reversed_at"`
	ReversedBy    *uint      `json:"reversed_by"`

	// Relationships
	Student     Student             `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Allocations []PaymentAllocation `json:"allocations,omitempty" gorm:"foreignKey:PaymentID"`
}

// PaymentAllocation applies part of a payment to one due. Append-only.
type PaymentAllocation struct {
	BaseModel
	PaymentID       uint    `json:"payment_id" gorm:"not null;index"`
	DueID           uint    `json:"due_id" gorm:"not null;index"`
	AmountAllocated float64 `json:"amount_allocated" gorm:"not null;type:decimal(12,2)"`

	// Relationships
	Payment Payment       `json:"payment,omitempty" gorm:"foreignKey:PaymentID"`
	Due     StudentFeeDue `json:"due,omitempty" gorm:"foreignKey:DueID"`
}

// PaymentAdjustment is the append-only correction ledger. It never mutates
// payment or due rows.
type PaymentAdjustment struct {
	BaseModel
	PaymentID        *uint   `json:"payment_id" gorm:"index"`
	DueID            *uint   `json:"due_id" gorm:"index"`
	AdjustmentAmount float64 `json:"adjustment_amount" gorm:"not null;type:decimal(12,2)"`
	Type             string  `json:"type" gorm:"size:50;not null"` // refund, adjustment_up, adjustment_down
	Reason           string  `json:"reason" gorm:"size:500;not null"`
	CreatedBy        uint    `json:"created_by" gorm:"not null"`
}

// AuditLog records every state-changing call, including failed attempts
type AuditLog struct {
	BaseModel
	UserID    uint   `json:"user_id"`
	Action    string `json:"action" gorm:"size:100;not null"`
	TableName string `json:"table_name" gorm:"size:100;not null"`
	RecordID  uint   `json:"record_id"`
	OldValue  JSON   `json:"old_value" gorm:"type:json"`
	NewValue  JSON   `json:"new_value" gorm:"type:json"`
	IPAddress string `json:"ip_address" gorm:"size:45"`
	UserAgent string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// AuditArchive tracks audit-log batches exported to S3
type AuditArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending'"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
