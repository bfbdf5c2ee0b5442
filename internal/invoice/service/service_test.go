package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	auditrepository "github.com/smallbiznis/salonbook/internal/audit/repository"
	auditservice "github.com/smallbiznis/salonbook/internal/audit/service"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	cashrepository "github.com/smallbiznis/salonbook/internal/cashregister/repository"
	cashservice "github.com/smallbiznis/salonbook/internal/cashregister/service"
	"github.com/smallbiznis/salonbook/internal/clock"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/salonbook/internal/commission/repository"
	commissionservice "github.com/smallbiznis/salonbook/internal/commission/service"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	rulerepository "github.com/smallbiznis/salonbook/internal/commissionrule/repository"
	ruleservice "github.com/smallbiznis/salonbook/internal/commissionrule/service"
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/events"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/salonbook/internal/invoice/repository"
	"github.com/smallbiznis/salonbook/internal/migration"
	"github.com/smallbiznis/salonbook/internal/reference"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"github.com/smallbiznis/salonbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	branchID      = snowflake.ID(10)
	customerID    = snowflake.ID(20)
	otherCustomer = snowflake.ID(21)
	staffID       = snowflake.ID(30)
	serviceID     = snowflake.ID(40)
	appointmentID = snowflake.ID(50)
	cashierID     = snowflake.ID(60)
)

type fixture struct {
	db            *gorm.DB
	clock         *clock.FakeClock
	svc           invoicedomain.Service
	cash          *cashservice.Service
	commissionSvc *commissionservice.Service
	ruleSvc       ruledomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	require.NoError(t, migration.AutoMigrate(db))
	seedReferences(t, db)

	log := zap.NewNop()
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	refRepo := reference.NewRepository()
	invoiceRepo := invoicerepository.Provide()
	outbox := events.NewOutbox(events.Params{DB: db, Log: log, GenID: node, Clock: fake})

	cash := cashservice.NewService(cashservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Cfg:     config.Config{BusinessTimezone: "UTC"},
		Repo:    cashrepository.Provide(),
		RefRepo: refRepo,
		Outbox:  outbox,
	})
	ruleSvc := ruleservice.NewService(ruleservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Repo:    rulerepository.Provide(),
		RefRepo: refRepo,
	})
	commissionSvc := commissionservice.NewService(commissionservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        commissionrepository.Provide(),
		InvoiceRepo: invoiceRepo,
		RefRepo:     refRepo,
		RuleSvc:     ruleSvc,
		Outbox:      outbox,
	})
	outbox.Subscribe(events.TopicInvoicePaid, commissionservice.NewHandler(commissionSvc).HandleInvoicePaid)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Repo:       invoiceRepo,
		RefRepo:    refRepo,
		CashBridge: cashservice.NewBridge(cash),
		AuditSvc:   auditSvc,
		Outbox:     outbox,
	})

	return &fixture{db: db, clock: fake, svc: svc, cash: cash, commissionSvc: commissionSvc, ruleSvc: ruleSvc}
}

func seedReferences(t *testing.T, db *gorm.DB) {
	t.Helper()
	staff := staffID
	service := serviceID
	rows := []any{
		&referencedomain.Branch{ID: branchID, Name: "Main", IsActive: true},
		&referencedomain.Customer{ID: customerID, BranchID: branchID, Name: "Ana"},
		&referencedomain.Customer{ID: otherCustomer, BranchID: branchID, Name: "Budi"},
		&referencedomain.Staff{ID: staffID, BranchID: branchID, Name: "Citra", Role: "stylist", IsActive: true},
		&referencedomain.SalonService{ID: serviceID, BranchID: branchID, Name: "Haircut", Price: decimal.NewFromInt(1000), DurationMinutes: 60},
		&referencedomain.Appointment{
			ID:         appointmentID,
			BranchID:   branchID,
			CustomerID: customerID,
			StaffID:    &staff,
			ServiceID:  &service,
			Status:     referencedomain.AppointmentStatusCompleted,
			StartAt:    time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, row := range rows {
		require.NoError(t, db.Create(row).Error)
	}
}

func (f *fixture) createInvoice(t *testing.T, total int64, withAppointment bool) *invoicedomain.Invoice {
	t.Helper()
	req := invoicedomain.CreateInvoiceRequest{
		CustomerID:  customerID,
		BranchID:    branchID,
		TotalAmount: decimal.NewFromInt(total),
	}
	if withAppointment {
		id := appointmentID
		req.AppointmentID = &id
	}
	inv, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return inv
}

func (f *fixture) openDay(t *testing.T) {
	t.Helper()
	_, err := f.cash.OpenDay(context.Background(), cashdomain.OpenDayRequest{
		BranchID:       branchID,
		UserID:         cashierID,
		OpeningBalance: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
}

func (f *fixture) generalRule(t *testing.T, rate int64) *ruledomain.CommissionRule {
	t.Helper()
	start := f.clock.Now().Add(-24 * time.Hour)
	rule, err := f.ruleSvc.Create(context.Background(), ruledomain.CreateRuleRequest{
		BranchID:  branchID,
		RuleType:  ruledomain.RuleTypeGeneral,
		Type:      ruledomain.CommissionTypePercentage,
		Rate:      decimal.NewFromInt(rate),
		StartDate: &start,
	})
	require.NoError(t, err)
	return rule
}

func pay(amount int64, method invoicedomain.PaymentMethod, invoiceID snowflake.ID) invoicedomain.ApplyPaymentRequest {
	return invoicedomain.ApplyPaymentRequest{
		InvoiceID: invoiceID,
		Amount:    decimal.NewFromInt(amount),
		Method:    method,
		UserID:    cashierID,
	}
}

func assertDebtInvariant(t *testing.T, inv *invoicedomain.Invoice) {
	t.Helper()
	assert.True(t, inv.Debt.Equal(inv.TotalAmount.Sub(inv.AmountPaid)), "debt %s total %s paid %s", inv.Debt, inv.TotalAmount, inv.AmountPaid)
	assert.False(t, inv.AmountPaid.GreaterThan(inv.TotalAmount))
}

func TestCreateDerivesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.createInvoice(t, 1000, false)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, invoicedomain.InvoiceSourceSale, inv.Source)
	assert.Equal(t, "1000.00", inv.Debt.StringFixed(2))
	assertDebtInvariant(t, inv)

	partial, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID:  customerID,
		BranchID:    branchID,
		TotalAmount: decimal.NewFromInt(300),
		AmountPaid:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, partial.Status)
	assert.Equal(t, "200.00", partial.Debt.StringFixed(2))

	free, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID: customerID,
		BranchID:   branchID,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, free.Status)
	require.NotNil(t, free.PaidAt)

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, stored.ID)
	assertDebtInvariant(t, stored)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := appointmentID
	missing := snowflake.ID(999)

	cases := []struct {
		name string
		req  invoicedomain.CreateInvoiceRequest
		want error
	}{
		{"negative total", invoicedomain.CreateInvoiceRequest{CustomerID: customerID, BranchID: branchID, TotalAmount: decimal.NewFromInt(-1)}, invoicedomain.ErrInvalidAmount},
		{"paid over total", invoicedomain.CreateInvoiceRequest{CustomerID: customerID, BranchID: branchID, TotalAmount: decimal.NewFromInt(10), AmountPaid: decimal.NewFromInt(11)}, invoicedomain.ErrPaidExceedsTotal},
		{"unknown source", invoicedomain.CreateInvoiceRequest{CustomerID: customerID, BranchID: branchID, Source: "GIFT"}, invoicedomain.ErrInvalidSource},
		{"unknown branch", invoicedomain.CreateInvoiceRequest{CustomerID: customerID, BranchID: missing}, referencedomain.ErrBranchNotFound},
		{"unknown customer", invoicedomain.CreateInvoiceRequest{CustomerID: missing, BranchID: branchID}, referencedomain.ErrCustomerNotFound},
		{"unknown appointment", invoicedomain.CreateInvoiceRequest{CustomerID: customerID, BranchID: branchID, AppointmentID: &missing}, referencedomain.ErrAppointmentNotFound},
		{"appointment of another customer", invoicedomain.CreateInvoiceRequest{CustomerID: otherCustomer, BranchID: branchID, AppointmentID: &apt}, invoicedomain.ErrAppointmentCustomerMatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateRejectsSecondInvoiceForAppointment(t *testing.T) {
	f := newFixture(t)

	first := f.createInvoice(t, 1000, true)
	assert.Equal(t, invoicedomain.InvoiceSourceAppointment, first.Source)

	apt := appointmentID
	_, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		CustomerID:    customerID,
		BranchID:      branchID,
		TotalAmount:   decimal.NewFromInt(500),
		AppointmentID: &apt,
	})
	require.ErrorIs(t, err, invoicedomain.ErrAppointmentInvoiced)
}

func TestPartialThenFullPaymentCreatesCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t)
	rule := f.generalRule(t, 10)
	inv := f.createInvoice(t, 1000, true)

	first, err := f.svc.ApplyPayment(ctx, pay(400, invoicedomain.PaymentMethodCash, inv.ID))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, first.Invoice.Status)
	assert.Equal(t, "600.00", first.Invoice.Debt.StringFixed(2))
	assertDebtInvariant(t, &first.Invoice)
	require.NotNil(t, first.Payment.CashRegisterLogID)

	var income cashdomain.CashRegisterLog
	require.NoError(t, f.db.Where("id = ?", *first.Payment.CashRegisterLogID).First(&income).Error)
	assert.Equal(t, cashdomain.LogTypeIncome, income.Type)
	assert.Equal(t, "400.00", income.Amount.StringFixed(2))
	require.NotNil(t, income.PaymentID)
	assert.Equal(t, first.Payment.ID, *income.PaymentID)

	_, err = f.commissionSvc.GetByInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, commissiondomain.ErrCommissionNotFound)

	second, err := f.svc.ApplyPayment(ctx, pay(600, invoicedomain.PaymentMethodCreditCard, inv.ID))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, second.Invoice.Status)
	assert.True(t, second.Invoice.Debt.IsZero())
	require.NotNil(t, second.Invoice.PaidAt)
	assert.Nil(t, second.Payment.CashRegisterLogID)

	commission, err := f.commissionSvc.GetByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", commission.Amount.StringFixed(2))
	assert.Equal(t, commissiondomain.StatusPending, commission.Status)
	assert.Equal(t, rule.ID, commission.AppliedRuleID)
	assert.Equal(t, staffID, commission.StaffID)
	assert.Equal(t, "10% of 1000.00 under GENERAL rule "+rule.ID.String(), commission.Description)

	var paidEvents int64
	require.NoError(t, f.db.Model(&events.DomainEvent{}).Where("topic = ?", events.TopicInvoicePaid).Count(&paidEvents).Error)
	assert.EqualValues(t, 1, paidEvents)

	payments, err := f.svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, invoicedomain.CompletedSum(payments).Equal(decimal.NewFromInt(1000)))
}

func TestApplyPaymentRejectsOverpayment(t *testing.T) {
	f := newFixture(t)
	inv := f.createInvoice(t, 1000, false)

	_, err := f.svc.ApplyPayment(context.Background(), pay(1100, invoicedomain.PaymentMethodBankTransfer, inv.ID))
	require.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	payments, err := f.svc.ListPayments(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 1000, false)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplyPayment(ctx, pay(200, invoicedomain.PaymentMethodBankTransfer, inv.ID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var applied, rejected int
	for err := range errs {
		if err == nil {
			applied++
			continue
		}
		require.ErrorIs(t, err, invoicedomain.ErrOverpayment)
		rejected++
	}
	assert.Equal(t, 5, applied)
	assert.Equal(t, 3, rejected)

	payments, err := f.svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 5)
	assert.True(t, invoicedomain.CompletedSum(payments).Equal(decimal.NewFromInt(1000)))

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.True(t, stored.AmountPaid.Equal(invoicedomain.CompletedSum(payments)))
	assertDebtInvariant(t, stored)

	var paidEvents int64
	require.NoError(t, f.db.Model(&events.DomainEvent{}).Where("topic = ?", events.TopicInvoicePaid).Count(&paidEvents).Error)
	assert.EqualValues(t, 1, paidEvents)
}

func TestApplyPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 100, false)

	_, err := f.svc.ApplyPayment(ctx, pay(0, invoicedomain.PaymentMethodCash, inv.ID))
	require.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.ApplyPayment(ctx, pay(10, "VOUCHER", inv.ID))
	require.ErrorIs(t, err, invoicedomain.ErrInvalidPaymentMethod)

	req := pay(10, invoicedomain.PaymentMethodCreditCard, inv.ID)
	req.UserID = 0
	_, err = f.svc.ApplyPayment(ctx, req)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidUser)

	_, err = f.svc.ApplyPayment(ctx, pay(10, invoicedomain.PaymentMethodCreditCard, 12345))
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestCashPaymentWithoutOpenRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 500, false)

	_, err := f.svc.ApplyPayment(ctx, pay(200, invoicedomain.PaymentMethodCash, inv.ID))
	require.ErrorIs(t, err, cashdomain.ErrRegisterNotOpen)

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.Zero(t, count)

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	assert.True(t, stored.AmountPaid.IsZero())

	var logs int64
	require.NoError(t, f.db.Model(&cashdomain.CashRegisterLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
}

func (f *fixture) manualIn(t *testing.T, amount int64) *cashdomain.CashRegisterLog {
	t.Helper()
	entry, err := f.cash.RecordMovement(context.Background(), cashdomain.RecordMovementRequest{
		BranchID:    branchID,
		UserID:      cashierID,
		Type:        cashdomain.LogTypeManualIn,
		Amount:      decimal.NewFromInt(amount),
		Description: "cash taken before the invoice existed",
	})
	require.NoError(t, err)
	return entry
}

func TestCashPaymentLinksExistingInflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t)
	inv := f.createInvoice(t, 500, false)
	entry := f.manualIn(t, 200)

	req := pay(200, invoicedomain.PaymentMethodCash, inv.ID)
	req.CashRegisterLogID = &entry.ID
	result, err := f.svc.ApplyPayment(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result.Payment.CashRegisterLogID)
	assert.Equal(t, entry.ID, *result.Payment.CashRegisterLogID)

	var stored cashdomain.CashRegisterLog
	require.NoError(t, f.db.Where("id = ?", entry.ID).First(&stored).Error)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, result.Payment.ID, *stored.PaymentID)

	var logs int64
	require.NoError(t, f.db.Model(&cashdomain.CashRegisterLog{}).Where("type = ?", cashdomain.LogTypeIncome).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestCashPaymentCannotReuseLinkedLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t)
	inv := f.createInvoice(t, 500, false)

	first, err := f.svc.ApplyPayment(ctx, pay(200, invoicedomain.PaymentMethodCash, inv.ID))
	require.NoError(t, err)
	require.NotNil(t, first.Payment.CashRegisterLogID)

	req := pay(300, invoicedomain.PaymentMethodCash, inv.ID)
	req.CashRegisterLogID = first.Payment.CashRegisterLogID
	_, err = f.svc.ApplyPayment(ctx, req)
	require.ErrorIs(t, err, cashdomain.ErrCashLogMismatch)

	req = pay(200, invoicedomain.PaymentMethodCash, inv.ID)
	req.CashRegisterLogID = first.Payment.CashRegisterLogID
	_, err = f.svc.ApplyPayment(ctx, req)
	require.ErrorIs(t, err, cashdomain.ErrCashLogLinked)

	stored, err := f.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", stored.AmountPaid.StringFixed(2))
	assertDebtInvariant(t, stored)

	day, err := f.cash.GetDayDetails(ctx, branchID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "200.00", day.Summary.TotalIncome.StringFixed(2))
}

func TestCashPaymentRejectsUnsuitableLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t)
	inv := f.createInvoice(t, 500, false)

	foreign := &cashdomain.CashRegisterLog{
		ID:           snowflake.ID(777),
		BranchID:     snowflake.ID(11),
		UserID:       cashierID,
		Type:         cashdomain.LogTypeManualIn,
		Amount:       decimal.NewFromInt(200),
		BusinessDate: "2026-03-02",
		CreatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.db.Create(foreign).Error)

	outflow, err := f.cash.RecordMovement(ctx, cashdomain.RecordMovementRequest{
		BranchID: branchID,
		UserID:   cashierID,
		Type:     cashdomain.LogTypeManualOut,
		Amount:   decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	inflow := f.manualIn(t, 200)
	missing := snowflake.ID(999)

	cases := []struct {
		name   string
		logID  snowflake.ID
		amount int64
		method invoicedomain.PaymentMethod
		want   error
	}{
		{"unknown log", missing, 200, invoicedomain.PaymentMethodCash, cashdomain.ErrCashLogNotFound},
		{"log of another branch", foreign.ID, 200, invoicedomain.PaymentMethodCash, cashdomain.ErrCashLogMismatch},
		{"outflow log", outflow.ID, 50, invoicedomain.PaymentMethodCash, cashdomain.ErrCashLogMismatch},
		{"amount differs", inflow.ID, 150, invoicedomain.PaymentMethodCash, cashdomain.ErrCashLogMismatch},
		{"non cash method", inflow.ID, 200, invoicedomain.PaymentMethodCreditCard, invoicedomain.ErrCashLogRequiresCash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := pay(tc.amount, tc.method, inv.ID)
			logID := tc.logID
			req.CashRegisterLogID = &logID
			_, err := f.svc.ApplyPayment(ctx, req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	payments, err := f.svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	var stored cashdomain.CashRegisterLog
	require.NoError(t, f.db.Where("id = ?", inflow.ID).First(&stored).Error)
	assert.Nil(t, stored.PaymentID)
}

func TestRefundCashPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t)
	inv := f.createInvoice(t, 1000, false)

	applied, err := f.svc.ApplyPayment(ctx, pay(1000, invoicedomain.PaymentMethodCash, inv.ID))
	require.NoError(t, err)
	require.Equal(t, invoicedomain.InvoiceStatusPaid, applied.Invoice.Status)

	refunded, err := f.svc.RefundPayment(ctx, invoicedomain.RefundPaymentRequest{
		InvoiceID: inv.ID,
		PaymentID: applied.Payment.ID,
		Reason:    "customer complaint",
		UserID:    cashierID,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.PaymentStatusRefunded, refunded.Payment.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, refunded.Invoice.Status)
	assert.True(t, refunded.Invoice.AmountPaid.IsZero())
	assert.Nil(t, refunded.Invoice.PaidAt)
	assertDebtInvariant(t, &refunded.Invoice)
	require.NotNil(t, refunded.Payment.RefundCashRegisterLogID)

	var outcome cashdomain.CashRegisterLog
	require.NoError(t, f.db.Where("id = ?", *refunded.Payment.RefundCashRegisterLogID).First(&outcome).Error)
	assert.Equal(t, cashdomain.LogTypeOutcome, outcome.Type)
	assert.Equal(t, "1000.00", outcome.Amount.StringFixed(2))

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "invoice.payment_refunded").First(&entry).Error)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, inv.ID.String(), *entry.TargetID)

	_, err = f.svc.RefundPayment(ctx, invoicedomain.RefundPaymentRequest{
		InvoiceID: inv.ID,
		PaymentID: applied.Payment.ID,
		UserID:    cashierID,
	})
	require.ErrorIs(t, err, invoicedomain.ErrPaymentAlreadyRefunded)

	_, err = f.svc.RefundPayment(ctx, invoicedomain.RefundPaymentRequest{
		InvoiceID: inv.ID,
		PaymentID: 4242,
		UserID:    cashierID,
	})
	require.ErrorIs(t, err, invoicedomain.ErrPaymentNotFound)
}

func TestRefundNonCashKeepsRegisterUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 300, false)

	applied, err := f.svc.ApplyPayment(ctx, pay(300, invoicedomain.PaymentMethodCreditCard, inv.ID))
	require.NoError(t, err)

	refunded, err := f.svc.RefundPayment(ctx, invoicedomain.RefundPaymentRequest{
		InvoiceID: inv.ID,
		PaymentID: applied.Payment.ID,
		UserID:    cashierID,
	})
	require.NoError(t, err)
	assert.Nil(t, refunded.Payment.RefundCashRegisterLogID)

	var logs int64
	require.NoError(t, f.db.Model(&cashdomain.CashRegisterLog{}).Count(&logs).Error)
	assert.Zero(t, logs)

	// The refunded amount is payable again.
	_, err = f.svc.ApplyPayment(ctx, pay(300, invoicedomain.PaymentMethodBankTransfer, inv.ID))
	require.NoError(t, err)
}

func TestUpdateRecomputesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 1000, false)

	_, err := f.svc.ApplyPayment(ctx, pay(400, invoicedomain.PaymentMethodCreditCard, inv.ID))
	require.NoError(t, err)

	below := decimal.NewFromInt(300)
	_, err = f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, TotalAmount: &below, UserID: cashierID})
	require.ErrorIs(t, err, invoicedomain.ErrTotalBelowPayments)

	over := decimal.NewFromInt(1200)
	_, err = f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, AmountPaid: &over, UserID: cashierID})
	require.ErrorIs(t, err, invoicedomain.ErrPaidExceedsTotal)

	_, err = f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, TotalAmount: &below})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidUser)

	total := decimal.NewFromInt(400)
	updated, err := f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, TotalAmount: &total, UserID: cashierID})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, updated.Status)
	assertDebtInvariant(t, updated)

	var paidEvents int64
	require.NoError(t, f.db.Model(&events.DomainEvent{}).Where("topic = ?", events.TopicInvoicePaid).Count(&paidEvents).Error)
	assert.EqualValues(t, 1, paidEvents)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "invoice.updated").First(&entry).Error)
	assert.Contains(t, entry.Metadata, "total_amount")
}

func TestCancelledInvoiceRejectsPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createInvoice(t, 200, false)

	status := invoicedomain.InvoiceStatusCancelled
	cancelled, err := f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, Status: &status, UserID: cashierID})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, cancelled.Status)

	notes := "void"
	stillCancelled, err := f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, Notes: &notes, UserID: cashierID})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, stillCancelled.Status)

	_, err = f.svc.ApplyPayment(ctx, pay(50, invoicedomain.PaymentMethodCreditCard, inv.ID))
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceClosed)

	bogus := invoicedomain.InvoiceStatus("ARCHIVED")
	_, err = f.svc.Update(ctx, invoicedomain.UpdateInvoiceRequest{InvoiceID: inv.ID, Status: &bogus, UserID: cashierID})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}
