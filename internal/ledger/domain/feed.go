package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SegmentRow is one flattened segment joined with its contract and customer.
type SegmentRow struct {
	SegmentID             snowflake.ID  `json:"segment_id"`
	ContractID            snowflake.ID  `json:"contract_id"`
	RenewalFromContractID *snowflake.ID `json:"renewal_from_contract_id,omitempty"`
	CustomerID            snowflake.ID  `json:"customer_id"`
	CustomerName          string        `json:"customer_name"`
	ContractDate          time.Time     `json:"contract_date"`
	SegmentStartDate      time.Time     `json:"segment_start_date"`
	SegmentEndDate        time.Time     `json:"segment_end_date"`
	ARROverrideStartDate  *time.Time    `json:"arr_override_start_date,omitempty"`
	ARROverrideNote       string        `json:"arr_override_note,omitempty"`
	Title                 string        `json:"title,omitempty"`
	Type                  SegmentType   `json:"type"`
	SegmentValue          int64         `json:"segment_value"`
}

// RenewsContract returns the predecessor contract id, or zero.
func (r SegmentRow) RenewsContract() snowflake.ID {
	if r.RenewalFromContractID == nil {
		return 0
	}
	return *r.RenewalFromContractID
}

// ContractRow is one booked contract with its owning customer.
type ContractRow struct {
	ContractID            snowflake.ID  `json:"contract_id"`
	RenewalFromContractID *snowflake.ID `json:"renewal_from_contract_id,omitempty"`
	CustomerID            snowflake.ID  `json:"customer_id"`
	CustomerName          string        `json:"customer_name"`
	ContractDate          time.Time     `json:"contract_date"`
	TotalValue            int64         `json:"total_value"`
}

// Filter narrows the feed to one customer and/or one contract.
type Filter struct {
	CustomerID snowflake.ID
	ContractID snowflake.ID
}

// Feed is everything the ARR engine reads in one invocation.
type Feed struct {
	Segments  []SegmentRow
	Contracts []ContractRow
	LoadedAt  time.Time
}

type Repository interface {
	ListSegmentRows(ctx context.Context, db *gorm.DB, filter Filter) ([]SegmentRow, error)
	ListContractRows(ctx context.Context, db *gorm.DB, filter Filter) ([]ContractRow, error)
	InsertCustomer(ctx context.Context, db *gorm.DB, customer *Customer) error
	InsertContract(ctx context.Context, db *gorm.DB, contract *Contract) error
	InsertSegment(ctx context.Context, db *gorm.DB, segment *Segment) error
	FindCustomerByName(ctx context.Context, db *gorm.DB, name string) (*Customer, error)
}

// Loader pulls a fresh feed from the data store. There is no caching: every
// call reads the current ledger.
type Loader interface {
	Load(ctx context.Context, filter Filter) (Feed, error)
}

var (
	ErrLoadFailed        = errors.New("ledger_load_failed")
	ErrInvalidCustomerID = errors.New("invalid_customer_id")
	ErrInvalidContractID = errors.New("invalid_contract_id")
)
