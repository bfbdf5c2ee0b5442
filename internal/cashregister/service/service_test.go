package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	auditrepo "github.com/smallbiznis/salonbook/internal/audit/repository"
	auditservice "github.com/smallbiznis/salonbook/internal/audit/service"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"github.com/smallbiznis/salonbook/internal/cashregister/repository"
	"github.com/smallbiznis/salonbook/internal/clock"
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/events"
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
	branchID = snowflake.ID(100)
	userID   = snowflake.ID(7)
)

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	svc    *Service
	outbox *events.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	require.NoError(t, migration.AutoMigrate(db))
	require.NoError(t, db.Create(&referencedomain.Branch{ID: branchID, Name: "Main", IsActive: true}).Error)

	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	outbox := events.NewOutbox(events.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  auditrepo.Provide(),
	})

	svc := NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fake,
		Cfg:           config.Config{BusinessTimezone: "UTC"},
		Repo:          repository.Provide(),
		RefRepo:       reference.NewRepository(),
		CashDayConfig: config.NewStaticCashDayConfigHolder(config.DefaultCashDayConfig()),
		Outbox:        outbox,
		AuditSvc:      audit,
	})
	return &fixture{db: db, clock: fake, svc: svc, outbox: outbox}
}

func (f *fixture) open(t *testing.T, amount int64) {
	t.Helper()
	_, err := f.svc.OpenDay(context.Background(), cashdomain.OpenDayRequest{
		BranchID:       branchID,
		UserID:         userID,
		OpeningBalance: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
}

func (f *fixture) move(t *testing.T, logType cashdomain.LogType, amount int64) {
	t.Helper()
	_, err := f.svc.RecordMovement(context.Background(), cashdomain.RecordMovementRequest{
		BranchID: branchID,
		UserID:   userID,
		Type:     logType,
		Amount:   decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
}

func TestOpenDayOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.open(t, 1000)

	_, err := f.svc.OpenDay(ctx, cashdomain.OpenDayRequest{BranchID: branchID, UserID: userID, OpeningBalance: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, cashdomain.ErrAlreadyOpened)

	f.clock.Advance(24 * time.Hour)
	f.open(t, 200)
}

func TestOpenDayValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.OpenDay(ctx, cashdomain.OpenDayRequest{BranchID: branchID, UserID: userID, OpeningBalance: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, cashdomain.ErrInvalidAmount)

	_, err = f.svc.OpenDay(ctx, cashdomain.OpenDayRequest{BranchID: 999, UserID: userID})
	require.ErrorIs(t, err, referencedomain.ErrBranchNotFound)

	_, err = f.svc.OpenDay(ctx, cashdomain.OpenDayRequest{BranchID: branchID})
	require.ErrorIs(t, err, cashdomain.ErrInvalidUser)
}

func TestRecordMovementRequiresOpenDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordMovement(ctx, cashdomain.RecordMovementRequest{
		BranchID: branchID, UserID: userID, Type: cashdomain.LogTypeIncome, Amount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, cashdomain.ErrNotOpened)

	f.open(t, 0)

	_, err = f.svc.RecordMovement(ctx, cashdomain.RecordMovementRequest{
		BranchID: branchID, UserID: userID, Type: cashdomain.LogTypeOpening, Amount: decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, cashdomain.ErrInvalidMovementType)

	_, err = f.svc.RecordMovement(ctx, cashdomain.RecordMovementRequest{
		BranchID: branchID, UserID: userID, Type: cashdomain.LogTypeIncome, Amount: decimal.Zero,
	})
	require.ErrorIs(t, err, cashdomain.ErrInvalidAmount)
}

func TestCloseDayReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.open(t, 1000)
	f.move(t, cashdomain.LogTypeIncome, 500)
	f.move(t, cashdomain.LogTypeOutcome, 200)

	result, err := f.svc.CloseDay(ctx, cashdomain.CloseDayRequest{
		BranchID:      branchID,
		UserID:        userID,
		ActualBalance: decimal.NewFromInt(1250),
	})
	require.NoError(t, err)
	assert.Equal(t, "1300.00", result.Summary.ExpectedBalance.StringFixed(2))
	require.NotNil(t, result.Summary.Difference)
	assert.Equal(t, "-50.00", result.Summary.Difference.StringFixed(2))
	assert.Equal(t, cashdomain.ClassificationWarning, result.Summary.Classification)
	assert.Equal(t, "1250.00", result.ClosingLog.Amount.StringFixed(2))
	assert.Equal(t, cashdomain.LogTypeClosing, result.ClosingLog.Type)

	var evt events.DomainEvent
	require.NoError(t, f.db.Where("topic = ?", events.TopicCashDayClosed).First(&evt).Error)
	assert.Equal(t, "cashday.closed:100:2026-03-02", evt.DedupeKey)
	assert.True(t, evt.Published)

	_, err = f.svc.CloseDay(ctx, cashdomain.CloseDayRequest{BranchID: branchID, UserID: userID, ActualBalance: decimal.NewFromInt(1250)})
	require.ErrorIs(t, err, cashdomain.ErrAlreadyClosed)

	_, err = f.svc.RecordMovement(ctx, cashdomain.RecordMovementRequest{
		BranchID: branchID, UserID: userID, Type: cashdomain.LogTypeIncome, Amount: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, cashdomain.ErrDayClosed)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionCashDayClosed).First(&entry).Error)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, result.ClosingLog.ID.String(), *entry.TargetID)
	assert.Equal(t, "-50.00", entry.Metadata["difference"])
	assert.Equal(t, "2026-03-02", entry.Metadata["business_date"])
}

func TestCloseDayBeforeOpen(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CloseDay(context.Background(), cashdomain.CloseDayRequest{BranchID: branchID, UserID: userID})
	require.ErrorIs(t, err, cashdomain.ErrNotOpened)
}

func TestGetDayDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetDayDetails(ctx, branchID, "02/03/2026")
	require.ErrorIs(t, err, cashdomain.ErrInvalidDate)

	_, err = f.svc.GetDayDetails(ctx, branchID, "2026-03-02")
	require.ErrorIs(t, err, cashdomain.ErrDayNotFound)

	f.open(t, 100)
	f.move(t, cashdomain.LogTypeManualIn, 20)

	day, err := f.svc.GetDayDetails(ctx, branchID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, cashdomain.DayStatusOpen, day.Status)
	require.Len(t, day.Movements, 1)
	assert.Equal(t, "120.00", day.Summary.ExpectedBalance.StringFixed(2))
	assert.Nil(t, day.Summary.Difference)

	_, err = f.svc.CloseDay(ctx, cashdomain.CloseDayRequest{BranchID: branchID, UserID: userID, ActualBalance: decimal.NewFromInt(120)})
	require.NoError(t, err)

	day, err = f.svc.GetDayDetails(ctx, branchID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, cashdomain.DayStatusClosed, day.Status)
	assert.Equal(t, cashdomain.ClassificationBalanced, day.Summary.Classification)
}

func TestBusinessDateUsesTimezone(t *testing.T) {
	f := newFixture(t)
	f.svc.location = time.FixedZone("UTC+7", 7*3600)

	// 20:00 UTC is already the next day at UTC+7.
	f.clock.Set(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-03", f.svc.businessDate())
}

func TestCountOpenDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.svc.CountOpenDays(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.open(t, 10)
	count, err = f.svc.CountOpenDays(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = f.svc.CloseDay(ctx, cashdomain.CloseDayRequest{BranchID: branchID, UserID: userID, ActualBalance: decimal.NewFromInt(10)})
	require.NoError(t, err)
	count, err = f.svc.CountOpenDays(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBridgeRejectsWithoutOpenRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bridge := NewBridge(f.svc)

	_, err := bridge.RecordCashIncomeForPayment(ctx, nil, cashdomain.CashMovementRequest{
		BranchID: branchID, UserID: userID, Amount: decimal.NewFromInt(50),
	})
	require.ErrorIs(t, err, cashdomain.ErrRegisterNotOpen)

	f.open(t, 0)
	paymentID := snowflake.ID(555)
	logID, err := bridge.RecordCashIncomeForPayment(ctx, nil, cashdomain.CashMovementRequest{
		BranchID: branchID, UserID: userID, Amount: decimal.NewFromInt(50), PaymentRef: &paymentID,
	})
	require.NoError(t, err)
	assert.NotZero(t, logID)

	var entry cashdomain.CashRegisterLog
	require.NoError(t, f.db.Where("id = ?", logID).First(&entry).Error)
	assert.Equal(t, cashdomain.LogTypeIncome, entry.Type)
	require.NotNil(t, entry.PaymentID)
	assert.Equal(t, paymentID, *entry.PaymentID)

	_, err = bridge.RecordCashOutcomeForRefund(ctx, nil, cashdomain.CashMovementRequest{
		BranchID: branchID, UserID: userID, Amount: decimal.Zero,
	})
	require.ErrorIs(t, err, cashdomain.ErrInvalidAmount)
}
