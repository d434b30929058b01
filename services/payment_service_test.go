package services

import (
	"strings"
	"testing"

	"schoolhub_go/database"
	"schoolhub_go/models"
)

func TestRecordPaymentGeneratesTransactionID(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)

	payment, err := NewPaymentService().RecordPayment(1, RecordPaymentRequest{
		SchoolID:  f.School.ID,
		StudentID: f.Student.ID,
		Amount:    500,
		Mode:      "cash",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if payment.Status != models.PaymentPending {
		t.Fatalf("new payments must start pending, got %s", payment.Status)
	}
	if !strings.HasPrefix(payment.TransactionID, "PAY-") {
		t.Fatalf("expected a generated transaction id, got %q", payment.TransactionID)
	}
}

func TestRecordPaymentRejectsDuplicateTransaction(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	ps := NewPaymentService()

	req := RecordPaymentRequest{
		SchoolID:      f.School.ID,
		StudentID:     f.Student.ID,
		Amount:        500,
		Mode:          "gateway",
		TransactionID: "TXN-1",
	}
	if _, err := ps.RecordPayment(1, req); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	_, err := ps.RecordPayment(1, req)
	assertCode(t, err, "DuplicateTransaction")
}

func TestConfirmGatewayIsIdempotent(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	ps := NewPaymentService()

	payment, err := ps.RecordPayment(1, RecordPaymentRequest{
		SchoolID:      f.School.ID,
		StudentID:     f.Student.ID,
		Amount:        500,
		Mode:          "gateway",
		TransactionID: "TXN-2",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	first, err := ps.ConfirmGateway("TXN-2", true)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if first.Status != models.PaymentSuccess {
		t.Fatalf("expected success, got %s", first.Status)
	}

	// A repeated success callback changes nothing.
	again, err := ps.ConfirmGateway("TXN-2", true)
	if err != nil {
		t.Fatalf("duplicate callback must be accepted: %v", err)
	}
	if again.Status != models.PaymentSuccess {
		t.Fatalf("expected success, got %s", again.Status)
	}

	// A conflicting callback for a settled payment is rejected.
	_, err = ps.ConfirmGateway("TXN-2", false)
	assertCode(t, err, CodeInvalidState)

	var got models.Payment
	database.DB.First(&got, payment.ID)
	if got.PaidAt == nil {
		t.Fatalf("successful payment must record paid_at")
	}
}

func TestConfirmGatewayFailure(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	ps := NewPaymentService()

	if _, err := ps.RecordPayment(1, RecordPaymentRequest{
		SchoolID:      f.School.ID,
		StudentID:     f.Student.ID,
		Amount:        500,
		Mode:          "gateway",
		TransactionID: "TXN-3",
	}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	payment, err := ps.ConfirmGateway("TXN-3", false)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if payment.Status != models.PaymentFailed {
		t.Fatalf("expected failed, got %s", payment.Status)
	}

	_, err = ps.ConfirmGateway("UNKNOWN", true)
	assertCode(t, err, CodeNotFound)
}

func TestAllocateRequiresSuccessfulPayment(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	dues, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	pending, err := ps.RecordPayment(1, RecordPaymentRequest{
		SchoolID:  f.School.ID,
		StudentID: f.Student.ID,
		Amount:    100,
		Mode:      "cash",
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	_, err = ps.Allocate(1, pending.ID, dues[0].ID, 100)
	assertCode(t, err, CodePaymentNotSuccessful)
}

func TestAllocateMarksDuePaid(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()
	fs := NewFeeDueService()

	dues, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 100)

	if _, err := ps.Allocate(1, payment.ID, dues[0].ID, 100); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	var due models.StudentFeeDue
	database.DB.First(&due, dues[0].ID)
	if !due.IsPaid {
		t.Fatalf("fully allocated due must be flagged paid")
	}
	balance, _ := fs.Outstanding(due.ID)
	if balance != 0 {
		t.Fatalf("expected zero balance, got %.2f", balance)
	}
}

func TestAllocateRejectsOverAllocationOnDue(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	dues, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 500)

	_, err = ps.Allocate(1, payment.ID, dues[0].ID, 150)
	assertCode(t, err, CodeOverAllocation)

	// The rejected allocation must leave no partial row behind.
	var count int64
	database.DB.Model(&models.PaymentAllocation{}).Where("payment_id = ?", payment.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no allocation rows after rejection, found %d", count)
	}
}

func TestAllocateRejectsOverAllocationOnPayment(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	dues, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 150)

	if _, err := ps.Allocate(1, payment.ID, dues[0].ID, 100); err != nil {
		t.Fatalf("first allocate failed: %v", err)
	}
	// Only 50 of the payment remains.
	_, err = ps.Allocate(1, payment.ID, dues[1].ID, 100)
	assertCode(t, err, CodeOverAllocation)
}

func TestAllocateRejectsSettledDue(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	dues, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 500)

	if _, err := ps.Allocate(1, payment.ID, dues[0].ID, 100); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	_, err = ps.Allocate(1, payment.ID, dues[0].ID, 10)
	assertCode(t, err, CodeDueNotOutstanding)
}

func TestAllocateOldestFirst(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()
	fs := NewFeeDueService()

	dues, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 250)

	allocations, remainder, err := ps.AllocateOldestFirst(1, payment.ID)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if len(allocations) != 3 {
		t.Fatalf("expected 3 allocations (100+100+50), got %d", len(allocations))
	}
	if remainder != 0 {
		t.Fatalf("expected zero remainder, got %.2f", remainder)
	}

	// The two oldest dues settle in full, the third partially.
	for i, want := range []float64{0, 0, 50} {
		balance, _ := fs.Outstanding(dues[i].ID)
		if balance != want {
			t.Fatalf("due %d: expected balance %.2f, got %.2f", i, want, balance)
		}
	}
}

func TestAllocateOldestFirstKeepsRemainderOnPayment(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	if _, err := NewFeeDueService().GenerateDues(1, enrollment.ID); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	// 1250 against 1200 of dues leaves 50 on the payment.
	payment := mustSuccessPayment(t, f, 1250)

	allocations, remainder, err := ps.AllocateOldestFirst(1, payment.ID)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if len(allocations) != 12 {
		t.Fatalf("expected 12 allocations, got %d", len(allocations))
	}
	if remainder != 50 {
		t.Fatalf("expected remainder 50, got %.2f", remainder)
	}

	unallocated, err := ps.UnallocatedAmount(payment.ID)
	if err != nil {
		t.Fatalf("unallocated failed: %v", err)
	}
	if unallocated != 50 {
		t.Fatalf("remainder must stay on the payment, got %.2f", unallocated)
	}
}

func TestReverseRestoresBalances(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()
	fs := NewFeeDueService()

	dues, err := fs.GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 200)
	if _, _, err := ps.AllocateOldestFirst(1, payment.ID); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if err := ps.Reverse(payment.ID, 7); err != nil {
		t.Fatalf("reverse failed: %v", err)
	}

	var got models.Payment
	database.DB.First(&got, payment.ID)
	if got.Status != models.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", got.Status)
	}
	if got.ReversedAt == nil || got.ReversedBy == nil || *got.ReversedBy != 7 {
		t.Fatalf("reversal metadata missing: %+v", got)
	}

	// Allocations survive as history; refund adjustments document the undo.
	var allocCount, refundCount int64
	database.DB.Model(&models.PaymentAllocation{}).Where("payment_id = ?", payment.ID).Count(&allocCount)
	database.DB.Model(&models.PaymentAdjustment{}).
		Where("payment_id = ? AND type = ?", payment.ID, models.AdjustmentRefund).Count(&refundCount)
	if allocCount != 2 || refundCount != 2 {
		t.Fatalf("expected 2 allocations and 2 refund adjustments, got %d and %d", allocCount, refundCount)
	}

	// The reversed allocations no longer count against the dues.
	for i := 0; i < 2; i++ {
		balance, _ := fs.Outstanding(dues[i].ID)
		if balance != 100 {
			t.Fatalf("due %d: expected restored balance 100, got %.2f", i, balance)
		}
		var due models.StudentFeeDue
		database.DB.First(&due, dues[i].ID)
		if due.IsPaid {
			t.Fatalf("due %d must be unpaid after reversal", i)
		}
	}

	// A refunded payment holds no allocatable remainder.
	unallocated, _ := ps.UnallocatedAmount(payment.ID)
	if unallocated != 0 {
		t.Fatalf("refunded payment must report 0 unallocated, got %.2f", unallocated)
	}

	// Reversing twice is rejected.
	err = ps.Reverse(payment.ID, 7)
	assertCode(t, err, CodeInvalidState)
}

func TestAdjustTargetRules(t *testing.T) {
	setupTestDB(t)
	f := seedBase(t)
	enrollment := mustEnroll(t, f)
	ps := NewPaymentService()

	dues, err := NewFeeDueService().GenerateDues(1, enrollment.ID)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	payment := mustSuccessPayment(t, f, 100)
	dueID := dues[0].ID
	paymentID := payment.ID

	tests := []struct {
		name string
		req  AdjustRequest
		code string
	}{
		{
			name: "due adjustment with payment target",
			req:  AdjustRequest{DueID: &dueID, PaymentID: &paymentID, Amount: 10, Type: models.AdjustmentUp, Reason: "late fee"},
			code: CodeInvalidAdjustmentTarget,
		},
		{
			name: "due adjustment without due",
			req:  AdjustRequest{Amount: 10, Type: models.AdjustmentDown, Reason: "waiver"},
			code: CodeInvalidAdjustmentTarget,
		},
		{
			name: "refund without payment",
			req:  AdjustRequest{DueID: &dueID, Amount: 10, Type: models.AdjustmentRefund, Reason: "refund"},
			code: CodeInvalidAdjustmentTarget,
		},
		{
			name: "unknown type",
			req:  AdjustRequest{DueID: &dueID, Amount: 10, Type: "write_off", Reason: "bad"},
			code: CodeValidation,
		},
		{
			name: "missing reason",
			req:  AdjustRequest{DueID: &dueID, Amount: 10, Type: models.AdjustmentUp},
			code: CodeValidation,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := ps.Adjust(1, tc.req)
			assertCode(t, err, tc.code)
		})
	}

	// Adjustments never mutate the rows they target.
	var due models.StudentFeeDue
	database.DB.First(&due, dueID)
	if due.Amount != 100 {
		t.Fatalf("due amount must stay 100, got %.2f", due.Amount)
	}
}
