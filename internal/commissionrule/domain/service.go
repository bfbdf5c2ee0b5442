package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRuleRequest struct {
	BranchID    snowflake.ID    `json:"branch_id"`
	RuleType    RuleType        `json:"rule_type"`
	Type        CommissionType  `json:"type"`
	Rate        decimal.Decimal `json:"rate"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	ServiceID   *snowflake.ID   `json:"service_id"`
	StaffID     *snowflake.ID   `json:"staff_id"`
	StartDate   *time.Time      `json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
	Description string          `json:"description"`
}

type ResolveRequest struct {
	StaffID   snowflake.ID
	ServiceID snowflake.ID
	BranchID  snowflake.ID
	// At defaults to the current time when zero.
	At time.Time
}

type ListRulesRequest struct {
	BranchID   snowflake.ID
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (*CommissionRule, error)
	GetByID(ctx context.Context, id snowflake.ID) (*CommissionRule, error)
	List(ctx context.Context, req ListRulesRequest) ([]CommissionRule, error)
	Deactivate(ctx context.Context, id snowflake.ID) (*CommissionRule, error)
	Resolve(ctx context.Context, req ResolveRequest) (*CommissionRule, error)
}

var (
	ErrInvalidRuleType       = errors.New("invalid_rule_type")
	ErrInvalidCommissionType = errors.New("invalid_commission_type")
	ErrInvalidRate           = errors.New("invalid_rate")
	ErrInvalidFixedAmount    = errors.New("invalid_fixed_amount")
	ErrMissingStaff          = errors.New("staff_required_for_rule_type")
	ErrMissingService        = errors.New("service_required_for_rule_type")
	ErrUnexpectedStaff       = errors.New("staff_not_allowed_for_rule_type")
	ErrUnexpectedService     = errors.New("service_not_allowed_for_rule_type")
	ErrInvalidDateRange      = errors.New("invalid_date_range")
	ErrRuleNotFound          = errors.New("commission_rule_not_found")
)
