package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RuleType is the tier of a rule. More specific tiers win.
type RuleType string

const (
	RuleTypeGeneral         RuleType = "GENERAL"
	RuleTypeServiceSpecific RuleType = "SERVICE_SPECIFIC"
	RuleTypeStaffSpecific   RuleType = "STAFF_SPECIFIC"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeGeneral, RuleTypeServiceSpecific, RuleTypeStaffSpecific:
		return true
	default:
		return false
	}
}

type CommissionType string

const (
	CommissionTypePercentage  CommissionType = "PERCENTAGE"
	CommissionTypeFixedAmount CommissionType = "FIXED_AMOUNT"
)

func (t CommissionType) Valid() bool {
	return t == CommissionTypePercentage || t == CommissionTypeFixedAmount
}

type CommissionRule struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	BranchID    snowflake.ID    `json:"branch_id" gorm:"not null;index:idx_commission_rules_branch_active,priority:1"`
	RuleType    RuleType        `json:"rule_type" gorm:"type:varchar(32);not null"`
	Type        CommissionType  `json:"type" gorm:"type:varchar(32);not null"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:decimal(5,2);not null;default:0"`
	FixedAmount decimal.Decimal `json:"fixed_amount" gorm:"type:decimal(14,2);not null;default:0"`
	ServiceID   *snowflake.ID   `json:"service_id,omitempty"`
	StaffID     *snowflake.ID   `json:"staff_id,omitempty"`
	StartDate   time.Time       `json:"start_date" gorm:"not null"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	IsActive    bool            `json:"is_active" gorm:"not null;default:true;index:idx_commission_rules_branch_active,priority:2"`
	Description string          `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (CommissionRule) TableName() string { return "commission_rules" }

// InForce reports whether the rule applies at the given instant.
func (r CommissionRule) InForce(at time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.StartDate.After(at) {
		return false
	}
	return r.EndDate == nil || !r.EndDate.Before(at)
}
