package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/clock"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/smallbiznis/saasops/internal/ledger/repository"
	"github.com/smallbiznis/saasops/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedLedger(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	repo := repository.Provide()

	require.NoError(t, repo.InsertCustomer(ctx, db, &ledgerdomain.Customer{ID: 1, Name: "Acme", CreatedAt: day(2022, 1, 1)}))
	require.NoError(t, repo.InsertCustomer(ctx, db, &ledgerdomain.Customer{ID: 2, Name: "Beta", CreatedAt: day(2022, 1, 1)}))

	pred := snowflake.ID(10)
	contracts := []ledgerdomain.Contract{
		{ID: 10, CustomerID: 1, ContractDate: day(2022, 5, 1), TermStartDate: day(2022, 6, 1), TermEndDate: day(2023, 5, 31), TotalValue: 120000},
		{ID: 11, CustomerID: 1, RenewalFromContractID: &pred, ContractDate: day(2023, 5, 1), TermStartDate: day(2023, 6, 1), TermEndDate: day(2024, 5, 31), TotalValue: 240000},
		{ID: 20, CustomerID: 2, ContractDate: day(2022, 3, 1), TermStartDate: day(2022, 3, 1), TermEndDate: day(2023, 2, 28), TotalValue: 50000},
	}
	for i := range contracts {
		require.NoError(t, repo.InsertContract(ctx, db, &contracts[i]))
	}

	override := day(2022, 5, 15)
	segments := []ledgerdomain.Segment{
		{ID: 100, ContractID: 10, SegmentStartDate: day(2022, 6, 1), SegmentEndDate: day(2023, 5, 31), ARROverrideStartDate: &override, ARROverrideNote: "early access", Type: ledgerdomain.SegmentTypeSubscription, SegmentValue: 120000},
		{ID: 101, ContractID: 11, SegmentStartDate: day(2023, 6, 1), SegmentEndDate: day(2024, 5, 31), Type: ledgerdomain.SegmentTypeSubscription, SegmentValue: 240000},
		{ID: 200, ContractID: 20, SegmentStartDate: day(2022, 3, 1), SegmentEndDate: day(2022, 3, 31), Type: ledgerdomain.SegmentTypeServices, SegmentValue: 50000},
	}
	for i := range segments {
		require.NoError(t, repo.InsertSegment(ctx, db, &segments[i]))
	}
}

func newTestLoader(t *testing.T, db *gorm.DB, now time.Time) ledgerdomain.Loader {
	return NewLoader(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(now),
	})
}

func TestLoadReadsFullFeed(t *testing.T) {
	db := dbtest.Open(t, &ledgerdomain.Customer{}, &ledgerdomain.Contract{}, &ledgerdomain.Segment{})
	seedLedger(t, db)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	feed, err := newTestLoader(t, db, now).Load(context.Background(), ledgerdomain.Filter{})
	require.NoError(t, err)
	require.Len(t, feed.Segments, 3)
	require.Len(t, feed.Contracts, 3)
	require.Equal(t, now, feed.LoadedAt)

	// ordered by contract date
	require.Equal(t, snowflake.ID(200), feed.Segments[0].SegmentID)
	first := feed.Segments[1]
	require.Equal(t, "Acme", first.CustomerName)
	require.Equal(t, day(2022, 5, 1), first.ContractDate)
	require.Equal(t, day(2022, 6, 1), first.SegmentStartDate)
	require.NotNil(t, first.ARROverrideStartDate)
	require.Equal(t, day(2022, 5, 15), *first.ARROverrideStartDate)
	require.Equal(t, "early access", first.ARROverrideNote)
	require.Zero(t, first.RenewsContract())

	renewal := feed.Segments[2]
	require.Equal(t, snowflake.ID(10), renewal.RenewsContract())
	require.Nil(t, renewal.ARROverrideStartDate)
}

func TestLoadAppliesFilter(t *testing.T) {
	db := dbtest.Open(t, &ledgerdomain.Customer{}, &ledgerdomain.Contract{}, &ledgerdomain.Segment{})
	seedLedger(t, db)
	loader := newTestLoader(t, db, time.Now())

	feed, err := loader.Load(context.Background(), ledgerdomain.Filter{CustomerID: 2})
	require.NoError(t, err)
	require.Len(t, feed.Segments, 1)
	require.Equal(t, ledgerdomain.SegmentTypeServices, feed.Segments[0].Type)

	feed, err = loader.Load(context.Background(), ledgerdomain.Filter{ContractID: 11})
	require.NoError(t, err)
	require.Len(t, feed.Contracts, 1)
	require.Equal(t, int64(240000), feed.Contracts[0].TotalValue)
}

func TestLoadFailureIsWrapped(t *testing.T) {
	db := dbtest.Open(t)

	_, err := newTestLoader(t, db, time.Now()).Load(context.Background(), ledgerdomain.Filter{})
	require.ErrorIs(t, err, ledgerdomain.ErrLoadFailed)
}
