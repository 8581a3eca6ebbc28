package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/smallbiznis/saasops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrUnknownFixture = errors.New("unknown_fixture")

type segmentFixture struct {
	title    string
	kind     ledgerdomain.SegmentType
	start    time.Time
	end      time.Time
	value    int64
	override *time.Time
	note     string
}

type contractFixture struct {
	key      string
	renews   string
	booked   time.Time
	segments []segmentFixture
}

// Fixture is one customer's contract history.
type Fixture struct {
	Name      string
	Customer  string
	contracts []contractFixture
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func subscription(title string, start, end time.Time, value int64) segmentFixture {
	return segmentFixture{title: title, kind: ledgerdomain.SegmentTypeSubscription, start: start, end: end, value: value}
}

var fixtures = map[string]Fixture{
	"case1": {
		Name:     "case1",
		Customer: "Case One Ltd",
		contracts: []contractFixture{
			{key: "initial", booked: day(2022, 5, 1), segments: []segmentFixture{
				subscription("Annual subscription", day(2022, 6, 1), day(2023, 5, 31), 120000_00),
			}},
		},
	},
	"case2": {
		Name:     "case2",
		Customer: "Case Two Ltd",
		contracts: []contractFixture{
			{key: "initial", booked: day(2022, 5, 1), segments: []segmentFixture{
				subscription("Annual subscription", day(2022, 6, 1), day(2023, 5, 31), 120000_00),
			}},
			{key: "renewal", renews: "initial", booked: day(2023, 5, 1), segments: []segmentFixture{
				subscription("Renewal", day(2023, 6, 1), day(2024, 5, 31), 240000_00),
			}},
		},
	},
	"case3": {
		Name:     "case3",
		Customer: "Case Three Ltd",
		contracts: []contractFixture{
			{key: "initial", booked: day(2022, 5, 1), segments: []segmentFixture{
				subscription("Annual subscription", day(2022, 6, 1), day(2023, 5, 31), 120000_00),
			}},
			{key: "renewal", renews: "initial", booked: day(2023, 6, 5), segments: []segmentFixture{
				subscription("Reduced renewal", day(2023, 6, 5), day(2024, 6, 4), 100000_00),
			}},
		},
	},
	"case4": {
		Name:     "case4",
		Customer: "Case Four Ltd",
		contracts: []contractFixture{
			{key: "initial", booked: day(2021, 12, 15), segments: []segmentFixture{
				subscription("Six month pilot", day(2022, 1, 1), day(2022, 6, 30), 30000_00),
				{title: "Onboarding", kind: ledgerdomain.SegmentTypeServices, start: day(2022, 1, 1), end: day(2022, 1, 31), value: 5000_00},
			}},
		},
	},
}

// Names lists the available fixtures in order.
func Names() []string {
	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo ledgerdomain.Repository
}

// Seeder loads fixtures into the ledger. A fixture whose customer already
// exists is skipped, so running it twice is harmless.
type Seeder struct {
	db   *gorm.DB
	log  *zap.Logger
	repo ledgerdomain.Repository
	node *snowflake.Node
}

func NewSeeder(p Params) (*Seeder, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &Seeder{
		db:   p.DB,
		log:  p.Log.Named("seed"),
		repo: p.Repo,
		node: node,
	}, nil
}

type Result struct {
	Inserted []string
	Skipped  []string
}

// Run seeds the named fixtures, or all of them when names is empty.
func (s *Seeder) Run(ctx context.Context, names []string) (Result, error) {
	if len(names) == 0 {
		names = Names()
	}

	var result Result
	for _, name := range names {
		fixture, ok := fixtures[name]
		if !ok {
			return result, fmt.Errorf("%w: %q", ErrUnknownFixture, name)
		}
		inserted, err := s.seedFixture(ctx, fixture)
		if err != nil {
			return result, fmt.Errorf("seed %s: %w", name, err)
		}
		if inserted {
			result.Inserted = append(result.Inserted, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}
	return result, nil
}

func (s *Seeder) seedFixture(ctx context.Context, fixture Fixture) (bool, error) {
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindCustomerByName(ctx, tx, fixture.Customer)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		now := time.Now().UTC()
		customer := &ledgerdomain.Customer{
			ID:        s.node.Generate(),
			Name:      fixture.Customer,
			Metadata:  datatypes.JSONMap{"fixture": fixture.Name},
			CreatedAt: now,
		}
		if err := s.repo.InsertCustomer(ctx, tx, customer); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return nil
			}
			return err
		}

		ids := make(map[string]snowflake.ID, len(fixture.contracts))
		for _, cf := range fixture.contracts {
			contract := &ledgerdomain.Contract{
				ID:           s.node.Generate(),
				CustomerID:   customer.ID,
				Reference:    fixture.Name + "-" + cf.key,
				ContractDate: cf.booked,
				CreatedAt:    now,
			}
			if cf.renews != "" {
				pred, ok := ids[cf.renews]
				if !ok {
					return fmt.Errorf("contract %s renews unknown contract %s", cf.key, cf.renews)
				}
				contract.RenewalFromContractID = &pred
			}
			for i, sf := range cf.segments {
				if i == 0 || sf.start.Before(contract.TermStartDate) {
					contract.TermStartDate = sf.start
				}
				if sf.end.After(contract.TermEndDate) {
					contract.TermEndDate = sf.end
				}
				contract.TotalValue += sf.value
			}
			if err := s.repo.InsertContract(ctx, tx, contract); err != nil {
				return err
			}
			ids[cf.key] = contract.ID

			for _, sf := range cf.segments {
				segment := &ledgerdomain.Segment{
					ID:                   s.node.Generate(),
					ContractID:           contract.ID,
					SegmentStartDate:     sf.start,
					SegmentEndDate:       sf.end,
					ARROverrideStartDate: sf.override,
					ARROverrideNote:      sf.note,
					Title:                sf.title,
					Type:                 sf.kind,
					SegmentValue:         sf.value,
					CreatedAt:            now,
				}
				if err := s.repo.InsertSegment(ctx, tx, segment); err != nil {
					return err
				}
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if inserted {
		s.log.Info("fixture seeded", zap.String("fixture", fixture.Name), zap.String("customer", fixture.Customer))
	}
	return inserted, nil
}
