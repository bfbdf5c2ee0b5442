package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Branch struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Address   string       `json:"address,omitempty" gorm:"type:text"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Branch) TableName() string { return "branches" }

type Customer struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BranchID  snowflake.ID `json:"branch_id" gorm:"not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Phone     string       `json:"phone,omitempty" gorm:"type:text"`
	Email     string       `json:"email,omitempty" gorm:"type:text"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

type Staff struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BranchID  snowflake.ID `json:"branch_id" gorm:"not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Role      string       `json:"role" gorm:"type:text;not null"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Staff) TableName() string { return "staff" }

type SalonService struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	BranchID        snowflake.ID    `json:"branch_id" gorm:"not null;index"`
	Name            string          `json:"name" gorm:"type:text;not null"`
	Price           decimal.Decimal `json:"price" gorm:"type:decimal(14,2);not null"`
	DurationMinutes int             `json:"duration_minutes" gorm:"not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (SalonService) TableName() string { return "salon_services" }

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "SCHEDULED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// Appointment is read-only here. Staff and service are optional because
// walk-in sales are booked without either.
type Appointment struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	BranchID   snowflake.ID      `json:"branch_id" gorm:"not null;index"`
	CustomerID snowflake.ID      `json:"customer_id" gorm:"not null;index"`
	StaffID    *snowflake.ID     `json:"staff_id,omitempty"`
	ServiceID  *snowflake.ID     `json:"service_id,omitempty"`
	Status     AppointmentStatus `json:"status" gorm:"type:text;not null"`
	StartAt    time.Time         `json:"start_at" gorm:"not null"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null"`
}

func (Appointment) TableName() string { return "appointments" }
