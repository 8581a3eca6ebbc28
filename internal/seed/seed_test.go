package seed

import (
	"context"
	"testing"

	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/smallbiznis/saasops/internal/ledger/repository"
	"github.com/smallbiznis/saasops/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSeeder(t *testing.T) (*Seeder, ledgerdomain.Repository) {
	t.Helper()
	conn := dbtest.Open(t, &ledgerdomain.Customer{}, &ledgerdomain.Contract{}, &ledgerdomain.Segment{})
	repo := repository.Provide()
	seeder, err := NewSeeder(Params{DB: conn, Log: zap.NewNop(), Repo: repo})
	require.NoError(t, err)
	return seeder, repo
}

func TestRunIsIdempotent(t *testing.T) {
	seeder, repo := newTestSeeder(t)
	ctx := context.Background()

	first, err := seeder.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"case1", "case2", "case3", "case4"}, first.Inserted)

	second, err := seeder.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Inserted)
	assert.Len(t, second.Skipped, 4)

	segments, err := repo.ListSegmentRows(ctx, seeder.db, ledgerdomain.Filter{})
	require.NoError(t, err)
	assert.Len(t, segments, 7)
}

func TestRenewalLinks(t *testing.T) {
	seeder, repo := newTestSeeder(t)
	ctx := context.Background()

	_, err := seeder.Run(ctx, []string{"case3"})
	require.NoError(t, err)

	contracts, err := repo.ListContractRows(ctx, seeder.db, ledgerdomain.Filter{})
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	require.Nil(t, contracts[0].RenewalFromContractID)
	require.NotNil(t, contracts[1].RenewalFromContractID)
	assert.Equal(t, contracts[0].ContractID, *contracts[1].RenewalFromContractID)
}

func TestUnknownFixture(t *testing.T) {
	seeder, _ := newTestSeeder(t)
	_, err := seeder.Run(context.Background(), []string{"case9"})
	require.ErrorIs(t, err, ErrUnknownFixture)
}
