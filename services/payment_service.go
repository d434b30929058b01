package services

import (
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentService records payments, allocates them against dues and applies
// adjustment corrections. Every operation is a single transaction; allocation
// serializes concurrent writers with an optimistic check on the due's
// row_version (one automatic retry).
type PaymentService struct{}

func NewPaymentService() *PaymentService {
	return &PaymentService{}
}

// RecordPaymentRequest carries the input for a new payment.
type RecordPaymentRequest struct {
	SchoolID      uint    `json:"school_id" validate:"required"`
	StudentID     uint    `json:"student_id" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Mode          string  `json:"mode" validate:"required"`
	ReferenceNo   string  `json:"reference_no"`
	TransactionID string  `json:"transaction_id"`
}

// AdjustRequest carries the input for an append-only correction.
type AdjustRequest struct {
	DueID     *uint   `json:"due_id"`
	PaymentID *uint   `json:"payment_id"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Type      string  `json:"type" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
}

// RecordPayment inserts a Pending payment. The gateway confirmation arrives
// later as an independent event; only Success payments can be allocated.
func (ps *PaymentService) RecordPayment(actor uint, req RecordPaymentRequest) (*models.Payment, error) {
	payment, err := ps.recordPayment(req)
	if err != nil {
		Audit().EmitFailure(actor, "RECORD_PAYMENT", "payments", req.StudentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "RECORD_PAYMENT",
		TableName: "payments",
		RecordID:  payment.ID,
		NewValue:  payment,
	})
	return payment, nil
}

func (ps *PaymentService) recordPayment(req RecordPaymentRequest) (*models.Payment, error) {
	if req.Amount <= 0 {
		return nil, validationErr("amount must be positive")
	}
	if req.Mode == "" {
		return nil, validationErr("mode is required")
	}
	var student models.Student
	if err := database.DB.First(&student, req.StudentID).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "student %d not found", req.StudentID)
	}
	if student.SchoolID != req.SchoolID {
		return nil, validationErr("student %d does not belong to school %d", req.StudentID, req.SchoolID)
	}

	txnID := req.TransactionID
	if txnID == "" {
		txnID = "PAY-" + uuid.NewString()
	}

	payment := models.Payment{
		SchoolID:      req.SchoolID,
		StudentID:     req.StudentID,
		Amount:        roundMoney(req.Amount),
		Mode:          req.Mode,
		ReferenceNo:   req.ReferenceNo,
		TransactionID: txnID,
		Status:        models.PaymentPending,
	}
	if err := database.DB.Create(&payment).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, conflictErr("DuplicateTransaction", "transaction %s already recorded", txnID)
		}
		return nil, err
	}
	return &payment, nil
}

// ConfirmGateway processes a gateway status callback keyed by transactionId.
// Duplicate callbacks are idempotent: a payment already in the delivered state
// returns unchanged, and only Pending payments transition.
func (ps *PaymentService) ConfirmGateway(transactionID string, success bool) (*models.Payment, error) {
	var payment models.Payment
	if err := database.DB.Where("transaction_id = ?", transactionID).First(&payment).Error; err != nil {
		return nil, notFoundErr(CodeNotFound, "no payment for transaction %s", transactionID)
	}

	target := models.PaymentFailed
	if success {
		target = models.PaymentSuccess
	}
	if payment.Status == target {
		return &payment, nil
	}
	if payment.Status != models.PaymentPending {
		err := stateErr(CodeInvalidState,
			"payment %d is %s and cannot transition to %s", payment.ID, payment.Status, target)
		Audit().EmitFailure(0, "GATEWAY_CONFIRM", "payments", payment.ID, err)
		return nil, err
	}

	updates := map[string]interface{}{"status": target}
	if success {
		updates["paid_at"] = time.Now()
	}
	res := database.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race against another callback; re-read and report.
		if err := database.DB.First(&payment, payment.ID).Error; err != nil {
			return nil, err
		}
		if payment.Status == target {
			return &payment, nil
		}
		return nil, stateErr(CodeInvalidState,
			"payment %d concurrently moved to %s", payment.ID, payment.Status)
	}

	payment.Status = target
	Audit().Emit(AuditEvent{
		Actor:     0,
		Action:    "GATEWAY_CONFIRM",
		TableName: "payments",
		RecordID:  payment.ID,
		NewValue:  map[string]string{"transaction_id": transactionID, "status": target},
	})
	return &payment, nil
}

// Allocate applies part of a Success payment to one due. Both ledger
// invariants are checked inside the transaction; the due's row_version guards
// against the lost-update race, and a stale version is retried once. On any
// failure the transaction rolls back, so no partial allocation row survives.
func (ps *PaymentService) Allocate(actor, paymentID, dueID uint, amount float64) (*models.PaymentAllocation, error) {
	allocation, err := ps.allocate(paymentID, dueID, amount)
	if err != nil {
		Audit().EmitFailure(actor, "ALLOCATE", "payment_allocations", paymentID, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "ALLOCATE",
		TableName: "payment_allocations",
		RecordID:  allocation.ID,
		NewValue:  allocation,
	})
	return allocation, nil
}

func (ps *PaymentService) allocate(paymentID, dueID uint, amount float64) (*models.PaymentAllocation, error) {
	if amount <= 0 {
		return nil, validationErr("allocation amount must be positive")
	}

	var allocation *models.PaymentAllocation
	for attempt := 0; attempt < 2; attempt++ {
		allocation = nil
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			var payment models.Payment
			if err := tx.First(&payment, paymentID).Error; err != nil {
				return notFoundErr(CodeNotFound, "payment %d not found", paymentID)
			}
			if payment.Status != models.PaymentSuccess {
				return stateErr(CodePaymentNotSuccessful,
					"payment %d is %s, only successful payments can be allocated", paymentID, payment.Status)
			}

			var due models.StudentFeeDue
			if err := tx.First(&due, dueID).Error; err != nil {
				return notFoundErr(CodeNotFound, "due %d not found", dueID)
			}

			remaining := outstandingBalance(tx, &due)
			if remaining <= 0 {
				return stateErr(CodeDueNotOutstanding, "due %d has no outstanding balance", dueID)
			}
			if roundMoney(amount-remaining) > 0 {
				return conflictErr(CodeOverAllocation,
					"allocating %.2f would exceed due %d remaining balance %.2f", amount, dueID, remaining)
			}

			var paymentAllocated float64
			tx.Model(&models.PaymentAllocation{}).
				Where("payment_id = ?", paymentID).
				Select("COALESCE(SUM(amount_allocated), 0)").Scan(&paymentAllocated)
			if roundMoney(paymentAllocated+amount-payment.Amount) > 0 {
				return conflictErr(CodeOverAllocation,
					"allocating %.2f would exceed payment %d amount %.2f (already allocated %.2f)",
					amount, paymentID, payment.Amount, paymentAllocated)
			}

			row := models.PaymentAllocation{
				PaymentID:       paymentID,
				DueID:           dueID,
				AmountAllocated: roundMoney(amount),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}

			paid := roundMoney(remaining-amount) <= 0
			res := tx.Model(&models.StudentFeeDue{}).
				Where("id = ? AND row_version = ?", due.ID, due.RowVersion).
				Updates(map[string]interface{}{
					"row_version": due.RowVersion + 1,
					"is_paid":     paid,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStaleDue
			}

			allocation = &row
			return nil
		})
		if err == nil {
			return allocation, nil
		}
		if err == errStaleDue {
			if attempt == 0 {
				continue
			}
			return nil, conflictErr("ConcurrentUpdate",
				"due %d was concurrently modified, allocation aborted", dueID)
		}
		return nil, err
	}
	return allocation, nil
}

var errStaleDue = &AppError{Kind: ErrConflict, Code: "ConcurrentUpdate", Message: "stale due version"}

// AllocateOldestFirst spreads a payment across the student's outstanding dues
// in due-date order, fully satisfying each due before moving to the next. The
// remainder stays unallocated on the payment; disposition of the remainder is
// the caller's decision.
func (ps *PaymentService) AllocateOldestFirst(actor, paymentID uint) ([]models.PaymentAllocation, float64, error) {
	var payment models.Payment
	if err := database.DB.First(&payment, paymentID).Error; err != nil {
		return nil, 0, notFoundErr(CodeNotFound, "payment %d not found", paymentID)
	}
	if payment.Status != models.PaymentSuccess {
		err := stateErr(CodePaymentNotSuccessful,
			"payment %d is %s, only successful payments can be allocated", paymentID, payment.Status)
		Audit().EmitFailure(actor, "ALLOCATE_OLDEST_FIRST", "payments", paymentID, err)
		return nil, 0, err
	}

	available := roundMoney(payment.Amount - ps.allocatedTotal(paymentID))

	var dues []models.StudentFeeDue
	err := database.DB.
		Joins("JOIN student_enrollments ON student_enrollments.id = student_fee_dues.enrollment_id").
		Where("student_enrollments.student_id = ?", payment.StudentID).
		Order("student_fee_dues.due_date ASC, student_fee_dues.id ASC").
		Find(&dues).Error
	if err != nil {
		return nil, 0, err
	}

	var made []models.PaymentAllocation
	for i := range dues {
		if available <= 0 {
			break
		}
		remaining := outstandingBalance(database.DB, &dues[i])
		if remaining <= 0 {
			continue
		}
		take := remaining
		if available < take {
			take = available
		}
		allocation, err := ps.Allocate(actor, paymentID, dues[i].ID, take)
		if err != nil {
			return made, available, err
		}
		made = append(made, *allocation)
		available = roundMoney(available - take)
	}
	return made, available, nil
}

// Reverse refunds a successful payment. Allocations are never deleted;
// instead a Refund adjustment per allocation documents the restoration, and
// the refunded payment status removes its allocations from every balance.
func (ps *PaymentService) Reverse(paymentID, reversedBy uint) error {
	if err := ps.reverse(paymentID, reversedBy); err != nil {
		Audit().EmitFailure(reversedBy, "REVERSE_PAYMENT", "payments", paymentID, err)
		return err
	}

	Audit().Emit(AuditEvent{
		Actor:     reversedBy,
		Action:    "REVERSE_PAYMENT",
		TableName: "payments",
		RecordID:  paymentID,
		NewValue:  map[string]string{"status": models.PaymentRefunded},
	})
	return nil
}

func (ps *PaymentService) reverse(paymentID, reversedBy uint) error {
	var payment models.Payment
	if err := database.DB.First(&payment, paymentID).Error; err != nil {
		return notFoundErr(CodeNotFound, "payment %d not found", paymentID)
	}
	if payment.Status != models.PaymentSuccess {
		return stateErr(CodeInvalidState,
			"payment %d is %s, only successful payments can be reversed", paymentID, payment.Status)
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", paymentID, models.PaymentSuccess).
			Updates(map[string]interface{}{
				"status":      models.PaymentRefunded,
				"reversed_at": now,
				"reversed_by": reversedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return stateErr(CodeInvalidState, "payment %d concurrently changed state", paymentID)
		}

		var allocations []models.PaymentAllocation
		if err := tx.Where("payment_id = ?", paymentID).Find(&allocations).Error; err != nil {
			return err
		}
		for _, alloc := range allocations {
			pid := paymentID
			did := alloc.DueID
			adjustment := models.PaymentAdjustment{
				PaymentID:        &pid,
				DueID:            &did,
				AdjustmentAmount: alloc.AmountAllocated,
				Type:             models.AdjustmentRefund,
				Reason:           "payment reversal",
				CreatedBy:        reversedBy,
			}
			if err := tx.Create(&adjustment).Error; err != nil {
				return err
			}

			var due models.StudentFeeDue
			if err := tx.First(&due, alloc.DueID).Error; err != nil {
				return err
			}
			paid := outstandingBalance(tx, &due) <= 0
			if err := tx.Model(&due).Updates(map[string]interface{}{
				"row_version": due.RowVersion + 1,
				"is_paid":     paid,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Adjust appends a correction. AdjustmentUp raises a due's effective
// outstanding balance (late fee), AdjustmentDown lowers it (waiver), Refund
// targets a payment. The target rules are enforced per type.
func (ps *PaymentService) Adjust(actor uint, req AdjustRequest) (*models.PaymentAdjustment, error) {
	adjustment, err := ps.adjust(actor, req)
	if err != nil {
		Audit().EmitFailure(actor, "ADJUST", "payment_adjustments", 0, err)
		return nil, err
	}

	Audit().Emit(AuditEvent{
		Actor:     actor,
		Action:    "ADJUST",
		TableName: "payment_adjustments",
		RecordID:  adjustment.ID,
		NewValue:  adjustment,
	})
	return adjustment, nil
}

func (ps *PaymentService) adjust(actor uint, req AdjustRequest) (*models.PaymentAdjustment, error) {
	if req.Amount <= 0 {
		return nil, validationErr("adjustment amount must be positive")
	}
	if req.Reason == "" {
		return nil, validationErr("reason is required")
	}

	switch req.Type {
	case models.AdjustmentUp, models.AdjustmentDown:
		if req.DueID == nil || req.PaymentID != nil {
			return nil, &AppError{Kind: ErrValidation, Code: CodeInvalidAdjustmentTarget,
				Message: "due adjustments target exactly one due"}
		}
	case models.AdjustmentRefund:
		if req.PaymentID == nil {
			return nil, &AppError{Kind: ErrValidation, Code: CodeInvalidAdjustmentTarget,
				Message: "refund adjustments target a payment"}
		}
	default:
		return nil, validationErr("type must be %q, %q or %q",
			models.AdjustmentRefund, models.AdjustmentUp, models.AdjustmentDown)
	}

	if req.PaymentID != nil {
		var payment models.Payment
		if err := database.DB.First(&payment, *req.PaymentID).Error; err != nil {
			return nil, notFoundErr(CodeNotFound, "payment %d not found", *req.PaymentID)
		}
	}

	var adjustment *models.PaymentAdjustment
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var due *models.StudentFeeDue
		if req.DueID != nil {
			due = &models.StudentFeeDue{}
			if err := tx.First(due, *req.DueID).Error; err != nil {
				return notFoundErr(CodeNotFound, "due %d not found", *req.DueID)
			}
		}

		row := models.PaymentAdjustment{
			PaymentID:        req.PaymentID,
			DueID:            req.DueID,
			AdjustmentAmount: roundMoney(req.Amount),
			Type:             req.Type,
			Reason:           req.Reason,
			CreatedBy:        actor,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if due != nil {
			paid := outstandingBalance(tx, due) <= 0
			if err := tx.Model(due).Updates(map[string]interface{}{
				"row_version": due.RowVersion + 1,
				"is_paid":     paid,
			}).Error; err != nil {
				return err
			}
		}

		adjustment = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjustment, nil
}

// UnallocatedAmount reports the remainder a payment still holds. Refunded
// payments hold nothing. Remainders are never auto-credited to future dues;
// they stay on the payment until someone allocates them explicitly.
func (ps *PaymentService) UnallocatedAmount(paymentID uint) (float64, error) {
	var payment models.Payment
	if err := database.DB.First(&payment, paymentID).Error; err != nil {
		return 0, notFoundErr(CodeNotFound, "payment %d not found", paymentID)
	}
	if payment.Status == models.PaymentRefunded {
		return 0, nil
	}
	return roundMoney(payment.Amount - ps.allocatedTotal(paymentID)), nil
}

func (ps *PaymentService) allocatedTotal(paymentID uint) float64 {
	var total float64
	if err := database.DB.Model(&models.PaymentAllocation{}).
		Where("payment_id = ?", paymentID).
		Select("COALESCE(SUM(amount_allocated), 0)").Scan(&total).Error; err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Error("Failed to sum allocations")
	}
	return total
}
