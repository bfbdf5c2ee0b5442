package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Actions that overwrite settled money. Anything else is covered by the
// invoice and cash day rows themselves.
const (
	ActionPaymentRefunded = "invoice.payment_refunded"
	ActionInvoiceUpdated  = "invoice.updated"
	ActionCashDayClosed   = "cash_day.closed"
)

const (
	TargetInvoice = "invoice"
	TargetCashDay = "cash_day"
)

// AuditLog is an append-only record of a refund, a manual invoice edit or a
// cash day close.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	BranchID   *snowflake.ID     `json:"branch_id,omitempty" gorm:"index"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(64);index"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what callers hand to Record. Zero fields are filled from the
// request context where possible.
type Entry struct {
	BranchID   snowflake.ID
	ActorType  ActorType
	ActorID    snowflake.ID
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Query struct {
	BranchID   *snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	After      *Cursor
	Limit      int
}
