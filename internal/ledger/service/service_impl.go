package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/saasops/internal/clock"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  ledgerdomain.Repository
	Clock clock.Clock `optional:"true"`
}

// Loader reads the segment ledger for one engine invocation.
type Loader struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  ledgerdomain.Repository
	clock clock.Clock
}

func NewLoader(p Params) ledgerdomain.Loader {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Loader{
		db:    p.DB,
		log:   p.Log.Named("ledger.loader"),
		repo:  p.Repo,
		clock: c,
	}
}

// Load fetches segments and contracts inside one read transaction so both
// halves of the feed see the same snapshot. Either the whole feed loads or
// the call fails.
func (l *Loader) Load(ctx context.Context, filter ledgerdomain.Filter) (ledgerdomain.Feed, error) {
	ctx, span := otel.Tracer("saasops/ledger").Start(ctx, "ledger.Load")
	defer span.End()

	start := time.Now()
	var feed ledgerdomain.Feed
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		segments, err := l.repo.ListSegmentRows(ctx, tx, filter)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		contracts, err := l.repo.ListContractRows(ctx, tx, filter)
		if err != nil {
			return fmt.Errorf("list contracts: %w", err)
		}
		feed.Segments = segments
		feed.Contracts = contracts
		return nil
	})
	if err != nil {
		span.RecordError(err)
		l.log.Error("ledger load failed", zap.Error(err))
		return ledgerdomain.Feed{}, fmt.Errorf("%w: %w", ledgerdomain.ErrLoadFailed, err)
	}
	feed.LoadedAt = l.clock.Now()

	span.SetAttributes(
		attribute.Int("ledger.segments", len(feed.Segments)),
		attribute.Int("ledger.contracts", len(feed.Contracts)),
	)
	l.log.Debug("ledger loaded",
		zap.Int("segments", len(feed.Segments)),
		zap.Int("contracts", len(feed.Contracts)),
		zap.Int64("customer_id", int64(filter.CustomerID)),
		zap.Int64("contract_id", int64(filter.ContractID)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return feed, nil
}
