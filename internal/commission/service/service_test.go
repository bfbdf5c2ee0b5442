package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/salonbook/internal/clock"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	"github.com/smallbiznis/salonbook/internal/commission/repository"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	rulerepository "github.com/smallbiznis/salonbook/internal/commissionrule/repository"
	ruleservice "github.com/smallbiznis/salonbook/internal/commissionrule/service"
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
	branchID   = snowflake.ID(1)
	customerID = snowflake.ID(2)
	staffID    = snowflake.ID(3)
	serviceID  = snowflake.ID(4)
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	svc     *Service
	ruleSvc ruledomain.Service
	outbox  *events.Outbox
	nextID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	require.NoError(t, migration.AutoMigrate(db))
	for _, row := range []any{
		&referencedomain.Branch{ID: branchID, Name: "Main", IsActive: true},
		&referencedomain.Customer{ID: customerID, BranchID: branchID, Name: "Ana"},
		&referencedomain.Staff{ID: staffID, BranchID: branchID, Name: "Citra", Role: "stylist", IsActive: true},
		&referencedomain.SalonService{ID: serviceID, BranchID: branchID, Name: "Color", Price: decimal.NewFromInt(1000), DurationMinutes: 90},
	} {
		require.NoError(t, db.Create(row).Error)
	}

	log := zap.NewNop()
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	refRepo := reference.NewRepository()
	outbox := events.NewOutbox(events.Params{DB: db, Log: log, GenID: node, Clock: fake})
	ruleSvc := ruleservice.NewService(ruleservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Repo:    rulerepository.Provide(),
		RefRepo: refRepo,
	})
	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		InvoiceRepo: invoicerepository.Provide(),
		RefRepo:     refRepo,
		RuleSvc:     ruleSvc,
		Outbox:      outbox,
	})
	return &fixture{db: db, clock: fake, svc: svc, ruleSvc: ruleSvc, outbox: outbox, nextID: 1000}
}

// paidInvoice stores a paid invoice for an appointment with the given staff
// and service.
func (f *fixture) paidInvoice(t *testing.T, total int64, staff, service *snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	f.nextID++
	appointment := &referencedomain.Appointment{
		ID:         snowflake.ID(f.nextID),
		BranchID:   branchID,
		CustomerID: customerID,
		StaffID:    staff,
		ServiceID:  service,
		Status:     referencedomain.AppointmentStatusCompleted,
		StartAt:    f.clock.Now().Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(appointment).Error)

	f.nextID++
	now := f.clock.Now()
	amount := decimal.NewFromInt(total)
	invoice := &invoicedomain.Invoice{
		ID:            snowflake.ID(f.nextID),
		BranchID:      branchID,
		CustomerID:    customerID,
		AppointmentID: &appointment.ID,
		TotalAmount:   amount,
		AmountPaid:    amount,
		Debt:          decimal.Zero,
		Status:        invoicedomain.InvoiceStatusPaid,
		Source:        invoicedomain.InvoiceSourceAppointment,
		PaidAt:        &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.db.Create(invoice).Error)
	return invoice
}

func (f *fixture) rule(t *testing.T, req ruledomain.CreateRuleRequest) *ruledomain.CommissionRule {
	t.Helper()
	start := f.clock.Now().Add(-24 * time.Hour)
	req.BranchID = branchID
	req.StartDate = &start
	rule, err := f.ruleSvc.Create(context.Background(), req)
	require.NoError(t, err)
	return rule
}

func ptr(id snowflake.ID) *snowflake.ID { return &id }

func TestCalculateUsesHighestPriorityRule(t *testing.T) {
	f := newFixture(t)
	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypePercentage, Rate: decimal.NewFromInt(5)})
	staffRule := f.rule(t, ruledomain.CreateRuleRequest{
		RuleType: ruledomain.RuleTypeStaffSpecific,
		Type:     ruledomain.CommissionTypePercentage,
		Rate:     decimal.NewFromInt(10),
		StaffID:  ptr(staffID),
	})
	invoice := f.paidInvoice(t, 1000, ptr(staffID), ptr(serviceID))

	commission, err := f.svc.Calculate(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, commission)
	assert.Equal(t, "100.00", commission.Amount.StringFixed(2))
	assert.Equal(t, staffRule.ID, commission.AppliedRuleID)
	assert.Equal(t, fmt.Sprintf("10%% of 1000.00 under STAFF_SPECIFIC rule %s", staffRule.ID), commission.Description)
	assert.Equal(t, commissiondomain.StatusPending, commission.Status)

	var evt events.DomainEvent
	require.NoError(t, f.db.Where("topic = ?", events.TopicCommissionCreated).First(&evt).Error)
	assert.Equal(t, "commission.created:"+invoice.ID.String(), evt.DedupeKey)
}

func TestCalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypeFixedAmount, FixedAmount: decimal.NewFromInt(50)})
	invoice := f.paidInvoice(t, 400, ptr(staffID), ptr(serviceID))
	ctx := context.Background()

	first, err := f.svc.Calculate(ctx, invoice.ID)
	require.NoError(t, err)
	second, err := f.svc.Calculate(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Calculate(ctx, invoice.ID)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, f.db.Model(&commissiondomain.StaffCommission{}).Where("invoice_id = ?", invoice.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestInsertIgnoreDuplicateRereads(t *testing.T) {
	f := newFixture(t)
	repo := repository.Provide()
	ctx := context.Background()
	invoice := f.paidInvoice(t, 100, ptr(staffID), ptr(serviceID))

	row := func(id snowflake.ID) *commissiondomain.StaffCommission {
		return &commissiondomain.StaffCommission{
			ID:        id,
			InvoiceID: invoice.ID,
			StaffID:   staffID,
			ServiceID: serviceID,
			BranchID:  branchID,
			Amount:    decimal.NewFromInt(10),
			Status:    commissiondomain.StatusPending,
		}
	}

	created, err := repo.InsertIgnoreDuplicate(ctx, f.db, row(1))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertIgnoreDuplicate(ctx, f.db, row(2))
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.FindByInvoice(ctx, f.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), stored.ID)
}

func TestCalculateSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noRule := f.paidInvoice(t, 100, ptr(staffID), ptr(serviceID))
	commission, err := f.svc.Calculate(ctx, noRule.ID)
	require.NoError(t, err)
	assert.Nil(t, commission)

	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypePercentage, Rate: decimal.NewFromInt(10)})

	walkIn := f.paidInvoice(t, 100, nil, nil)
	commission, err = f.svc.Calculate(ctx, walkIn.ID)
	require.NoError(t, err)
	assert.Nil(t, commission)

	unpaid := f.paidInvoice(t, 100, ptr(staffID), ptr(serviceID))
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", unpaid.ID).
		Updates(map[string]any{"status": invoicedomain.InvoiceStatusPartiallyPaid}).Error)
	commission, err = f.svc.Calculate(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Nil(t, commission)

	_, err = f.svc.Calculate(ctx, 987654)
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypePercentage, Rate: decimal.NewFromInt(10)})

	first, err := f.svc.Calculate(ctx, f.paidInvoice(t, 100, ptr(staffID), ptr(serviceID)).ID)
	require.NoError(t, err)
	second, err := f.svc.Calculate(ctx, f.paidInvoice(t, 200, ptr(staffID), ptr(serviceID)).ID)
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.StatusPaid, paid.Status)

	_, err = f.svc.Cancel(ctx, first.ID)
	require.ErrorIs(t, err, commissiondomain.ErrInvalidTransition)

	cancelled, err := f.svc.Cancel(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.StatusCancelled, cancelled.Status)

	_, err = f.svc.MarkPaid(ctx, 424242)
	require.ErrorIs(t, err, commissiondomain.ErrCommissionNotFound)

	pending, err := f.svc.ListByStaff(ctx, commissiondomain.ListByStaffRequest{StaffID: staffID, Status: commissiondomain.StatusPaid})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	all, err := f.svc.ListByStaff(ctx, commissiondomain.ListByStaffRequest{StaffID: staffID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListByStaff(ctx, commissiondomain.ListByStaffRequest{StaffID: staffID, Status: "OWED"})
	require.ErrorIs(t, err, commissiondomain.ErrInvalidStatus)
}

func TestSweepMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypePercentage, Rate: decimal.NewFromInt(10)})

	a := f.paidInvoice(t, 100, ptr(staffID), ptr(serviceID))
	b := f.paidInvoice(t, 300, ptr(staffID), ptr(serviceID))
	f.paidInvoice(t, 300, nil, nil)

	_, err := f.svc.Calculate(ctx, a.ID)
	require.NoError(t, err)

	created, err := f.svc.SweepMissing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	commission, err := f.svc.GetByInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", commission.Amount.StringFixed(2))

	created, err = f.svc.SweepMissing(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestHandleInvoicePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypePercentage, Rate: decimal.NewFromInt(10)})
	invoice := f.paidInvoice(t, 500, ptr(staffID), ptr(serviceID))
	handler := NewHandler(f.svc)

	evt := events.DomainEvent{ID: 1, Topic: events.TopicInvoicePaid, Payload: map[string]any{"invoice_id": invoice.ID.String()}}
	require.NoError(t, handler.HandleInvoicePaid(ctx, evt))
	require.NoError(t, handler.HandleInvoicePaid(ctx, evt))

	commission, err := f.svc.GetByInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", commission.Amount.StringFixed(2))

	byAggregate := events.DomainEvent{ID: 2, Topic: events.TopicInvoicePaid, AggregateID: invoice.ID, Payload: map[string]any{}}
	require.NoError(t, handler.HandleInvoicePaid(ctx, byAggregate))

	bad := events.DomainEvent{ID: 3, Topic: events.TopicInvoicePaid, Payload: map[string]any{"invoice_id": "not-a-number"}}
	require.Error(t, handler.HandleInvoicePaid(ctx, bad))

	require.Error(t, handler.HandleInvoicePaid(ctx, events.DomainEvent{ID: 4}))
}

func TestSweepIsNotStarvedByInvoicesWithoutRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherStaff := snowflake.ID(99)
	require.NoError(t, f.db.Create(&referencedomain.Staff{ID: otherStaff, BranchID: branchID, Name: "Dewi", Role: "stylist", IsActive: true}).Error)
	f.rule(t, ruledomain.CreateRuleRequest{
		RuleType: ruledomain.RuleTypeStaffSpecific,
		Type:     ruledomain.CommissionTypePercentage,
		Rate:     decimal.NewFromInt(10),
		StaffID:  ptr(staffID),
	})

	var ruleless []snowflake.ID
	for i := 0; i < 3; i++ {
		ruleless = append(ruleless, f.paidInvoice(t, 100, ptr(otherStaff), ptr(serviceID)).ID)
	}
	f.clock.Advance(time.Minute)
	owed := f.paidInvoice(t, 500, ptr(staffID), ptr(serviceID))

	created, err := f.svc.SweepMissing(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, created)

	created, err = f.svc.SweepMissing(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	commission, err := f.svc.GetByInvoice(ctx, owed.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", commission.Amount.StringFixed(2))

	var check commissiondomain.SweepCheck
	require.NoError(t, f.db.Where("invoice_id = ?", ruleless[0]).First(&check).Error)
	assert.Equal(t, commissiondomain.SweepOutcomeNoRule, check.Outcome)
	assert.Equal(t, 1, check.Attempts)

	// Not due yet, so nothing is selected.
	created, err = f.svc.SweepMissing(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, created)

	f.clock.Advance(2 * time.Hour)
	created, err = f.svc.SweepMissing(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, created)
	require.NoError(t, f.db.Where("invoice_id = ?", ruleless[0]).First(&check).Error)
	assert.Equal(t, 2, check.Attempts)
}

func TestSweepPicksUpRuleAddedLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invoice := f.paidInvoice(t, 200, ptr(staffID), ptr(serviceID))

	created, err := f.svc.SweepMissing(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, created)

	f.rule(t, ruledomain.CreateRuleRequest{RuleType: ruledomain.RuleTypeGeneral, Type: ruledomain.CommissionTypeFixedAmount, FixedAmount: decimal.NewFromInt(20)})
	f.clock.Advance(noRuleRecheck + time.Second)

	created, err = f.svc.SweepMissing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	var remaining int64
	require.NoError(t, f.db.Model(&commissiondomain.SweepCheck{}).Where("invoice_id = ?", invoice.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
