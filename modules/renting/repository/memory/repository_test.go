package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/repository/memory"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferGateway(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	_, err := repo.GetOffer(ctx, "missing")
	assert.True(t, errors.Is(err, errs.NotFound))

	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	offers := []entity.Offer{
		{ID: "a", OfferID: 1, NftID: 7, Owner: "0xaaa", Enabled: true, TransactionStatus: entity.TransactionStatusValidated, CreatedDate: base},
		{ID: "b", NftID: 7, Owner: "0xaaa", Enabled: true, TransactionStatus: entity.TransactionStatusInProgress, CreatedDate: base.Add(time.Hour)},
		{ID: "c", NftID: 7, Owner: "0xaaa", ParentID: "a", ChangeKind: entity.ChangeKindUpdate, TransactionStatus: entity.TransactionStatusInProgress, CreatedDate: base.Add(2 * time.Hour)},
		{ID: "d", NftID: 9, Owner: "0xccc", Enabled: true, TransactionStatus: entity.TransactionStatusValidated, CreatedDate: base.Add(3 * time.Hour)},
	}
	for _, offer := range offers {
		require.NoError(t, repo.SaveOffer(ctx, offer))
	}

	byNft, err := repo.ListOffersByNftID(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, byNft, 3)
	assert.Equal(t, "a", byNft[0].ID, "ordered by creation date")

	byOwner, err := repo.ListEnabledOffersByOwner(ctx, "0xAAA", 7)
	require.NoError(t, err)
	assert.Len(t, byOwner, 2, "change-log rows are excluded")

	pending, err := repo.ListPendingOffers(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "pending includes both canonical and change-log rows")

	canonical, err := repo.GetOfferByOfferID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", canonical.ID)

	require.NoError(t, repo.DeleteOffer(ctx, "c"))
	_, err = repo.GetOffer(ctx, "c")
	assert.True(t, errors.Is(err, errs.NotFound))
}

func TestLeaseGateway(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	require.NoError(t, repo.SaveLease(ctx, entity.Lease{ID: 1, NftID: 7, PendingTransactions: []string{"0xdef"}}))
	require.NoError(t, repo.SaveLease(ctx, entity.Lease{ID: 2, NftID: 7}))

	err := repo.SaveLease(ctx, entity.Lease{})
	assert.True(t, errors.Is(err, errs.InvalidArgument))

	byNft, err := repo.ListLeasesByNftID(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, byNft, 2)

	pending, err := repo.ListLeasesWithPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].ID)
}

func TestSettingGateway(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	_, err := repo.GetSetting(ctx, "cursor")
	assert.True(t, errors.Is(err, errs.NotFound))

	require.NoError(t, repo.SaveSetting(ctx, entity.Setting{Key: "cursor", Value: "100"}))
	setting, err := repo.GetSetting(ctx, "cursor")
	require.NoError(t, err)
	assert.Equal(t, "100", setting.Value)
}
