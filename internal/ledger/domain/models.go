package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SegmentType classifies what a segment bills for. Only subscription
// segments carry recurring revenue.
type SegmentType string

const (
	SegmentTypeSubscription SegmentType = "Subscription"
	SegmentTypeServices     SegmentType = "Services"
	SegmentTypeOneTime      SegmentType = "One-Time"
)

// IsRecurring reports whether the segment type contributes ARR.
func (t SegmentType) IsRecurring() bool {
	return t == SegmentTypeSubscription
}

type Customer struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"not null;uniqueIndex" json:"name"`
	City      string            `gorm:"column:city" json:"city,omitempty"`
	State     string            `gorm:"column:state" json:"state,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Customer) TableName() string { return "customers" }

// Contract is a booking. A renewal points back at the contract it renews;
// the reference is a relation only, the predecessor keeps its own segments.
type Contract struct {
	ID                    snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID            snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	RenewalFromContractID *snowflake.ID     `gorm:"index" json:"renewal_from_contract_id,omitempty"`
	Reference             string            `gorm:"column:reference" json:"reference,omitempty"`
	ContractDate          time.Time         `gorm:"type:date;not null" json:"contract_date"`
	TermStartDate         time.Time         `gorm:"type:date;not null" json:"term_start_date"`
	TermEndDate           time.Time         `gorm:"type:date;not null" json:"term_end_date"`
	TotalValue            int64             `gorm:"not null" json:"total_value"`
	Metadata              datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Contract) TableName() string { return "contracts" }

// Segment is the unit of revenue recognition inside a contract. Start and
// end dates are inclusive. Values are stored in minor currency units.
type Segment struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	ContractID           snowflake.ID `gorm:"not null;index" json:"contract_id"`
	SegmentStartDate     time.Time    `gorm:"type:date;not null" json:"segment_start_date"`
	SegmentEndDate       time.Time    `gorm:"type:date;not null" json:"segment_end_date"`
	ARROverrideStartDate *time.Time   `gorm:"type:date" json:"arr_override_start_date,omitempty"`
	ARROverrideNote      string       `gorm:"column:arr_override_note" json:"arr_override_note,omitempty"`
	Title                string       `gorm:"column:title" json:"title,omitempty"`
	Type                 SegmentType  `gorm:"type:text;not null" json:"type"`
	SegmentValue         int64        `gorm:"not null" json:"segment_value"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Segment) TableName() string { return "segments" }
