package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/ledger/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type segmentRecord struct {
	SegmentID             snowflake.ID
	ContractID            snowflake.ID
	RenewalFromContractID *snowflake.ID
	CustomerID            snowflake.ID
	CustomerName          string
	ContractDate          time.Time
	SegmentStartDate      time.Time
	SegmentEndDate        time.Time
	ARROverrideStartDate  *time.Time
	ARROverrideNote       string
	Title                 string
	Type                  string
	SegmentValue          int64
}

type contractRecord struct {
	ContractID            snowflake.ID
	RenewalFromContractID *snowflake.ID
	CustomerID            snowflake.ID
	CustomerName          string
	ContractDate          time.Time
	TotalValue            int64
}

func (r *repo) ListSegmentRows(ctx context.Context, db *gorm.DB, filter domain.Filter) ([]domain.SegmentRow, error) {
	query := `SELECT s.id AS segment_id, s.contract_id, c.renewal_from_contract_id,
		c.customer_id, cu.name AS customer_name, c.contract_date,
		s.segment_start_date, s.segment_end_date, s.arr_override_start_date,
		COALESCE(s.arr_override_note, '') AS arr_override_note,
		COALESCE(s.title, '') AS title, s.type, s.segment_value
		FROM segments s
		JOIN contracts c ON c.id = s.contract_id
		JOIN customers cu ON cu.id = c.customer_id`
	where, args := filterClause(filter)
	query += where + ` ORDER BY c.contract_date ASC, s.id ASC`

	var records []segmentRecord
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]domain.SegmentRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, domain.SegmentRow{
			SegmentID:             rec.SegmentID,
			ContractID:            rec.ContractID,
			RenewalFromContractID: normalizeID(rec.RenewalFromContractID),
			CustomerID:            rec.CustomerID,
			CustomerName:          rec.CustomerName,
			ContractDate:          toDate(rec.ContractDate),
			SegmentStartDate:      toDate(rec.SegmentStartDate),
			SegmentEndDate:        toDate(rec.SegmentEndDate),
			ARROverrideStartDate:  toDatePtr(rec.ARROverrideStartDate),
			ARROverrideNote:       rec.ARROverrideNote,
			Title:                 rec.Title,
			Type:                  domain.SegmentType(strings.TrimSpace(rec.Type)),
			SegmentValue:          rec.SegmentValue,
		})
	}
	return rows, nil
}

func (r *repo) ListContractRows(ctx context.Context, db *gorm.DB, filter domain.Filter) ([]domain.ContractRow, error) {
	query := `SELECT c.id AS contract_id, c.renewal_from_contract_id, c.customer_id,
		cu.name AS customer_name, c.contract_date, c.total_value
		FROM contracts c
		JOIN customers cu ON cu.id = c.customer_id`
	where, args := filterClause(filter)
	query += where + ` ORDER BY c.contract_date ASC, c.id ASC`

	var records []contractRecord
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]domain.ContractRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, domain.ContractRow{
			ContractID:            rec.ContractID,
			RenewalFromContractID: normalizeID(rec.RenewalFromContractID),
			CustomerID:            rec.CustomerID,
			CustomerName:          rec.CustomerName,
			ContractDate:          toDate(rec.ContractDate),
			TotalValue:            rec.TotalValue,
		})
	}
	return rows, nil
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, name, city, state, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.Name,
		customer.City,
		customer.State,
		metadataOrEmpty(customer.Metadata),
		customer.CreatedAt,
	).Error
}

func (r *repo) InsertContract(ctx context.Context, db *gorm.DB, contract *domain.Contract) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contracts (id, customer_id, renewal_from_contract_id, reference, contract_date,
		 term_start_date, term_end_date, total_value, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contract.ID,
		contract.CustomerID,
		contract.RenewalFromContractID,
		contract.Reference,
		contract.ContractDate,
		contract.TermStartDate,
		contract.TermEndDate,
		contract.TotalValue,
		metadataOrEmpty(contract.Metadata),
		contract.CreatedAt,
	).Error
}

func (r *repo) InsertSegment(ctx context.Context, db *gorm.DB, segment *domain.Segment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO segments (id, contract_id, segment_start_date, segment_end_date,
		 arr_override_start_date, arr_override_note, title, type, segment_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.ID,
		segment.ContractID,
		segment.SegmentStartDate,
		segment.SegmentEndDate,
		segment.ARROverrideStartDate,
		segment.ARROverrideNote,
		segment.Title,
		string(segment.Type),
		segment.SegmentValue,
		segment.CreatedAt,
	).Error
}

func (r *repo) FindCustomerByName(ctx context.Context, db *gorm.DB, name string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, city, state, metadata, created_at FROM customers WHERE name = ?`,
		name,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func filterClause(filter domain.Filter) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.CustomerID != 0 {
		clauses = append(clauses, "c.customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.ContractID != 0 {
		clauses = append(clauses, "c.id = ?")
		args = append(args, filter.ContractID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func metadataOrEmpty(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return m
}

func normalizeID(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	value := *id
	return &value
}

// Dates are calendar days; drivers may hand back a time of day or a zone.
func toDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toDatePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := toDate(*t)
	return &value
}
