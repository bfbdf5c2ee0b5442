package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TopicInvoicePaid       = "invoice.paid"
	TopicCommissionCreated = "commission.created"
	TopicCashDayClosed     = "cashday.closed"
)

// MaxAttempts bounds redelivery. Events that keep failing stay in the table
// for manual inspection.
const MaxAttempts = 10

// Event is what producers hand to PublishTx.
type Event struct {
	Topic       string
	AggregateID snowflake.ID
	BranchID    snowflake.ID
	Payload     map[string]any
	DedupeKey   string
}

// DomainEvent is the persisted outbox row.
type DomainEvent struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Topic       string            `json:"topic" gorm:"type:text;not null;index"`
	AggregateID snowflake.ID      `json:"aggregate_id" gorm:"not null"`
	BranchID    snowflake.ID      `json:"branch_id" gorm:"not null"`
	Payload     datatypes.JSONMap `json:"payload" gorm:"not null"`
	DedupeKey   string            `json:"dedupe_key" gorm:"type:varchar(191);not null;uniqueIndex:ux_domain_events_dedupe"`
	Attempts    int               `json:"attempts" gorm:"not null;default:0"`
	LastError   *string           `json:"last_error,omitempty" gorm:"type:text"`
	Published   bool              `json:"published" gorm:"not null;default:false;index"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
}

func (DomainEvent) TableName() string { return "domain_events" }
