package renting_test

import (
	"context"
	"testing"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/repository/memory"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leaseFixture struct {
	service *renting.LeaseService
	repo    *memory.Repository
}

func newLeaseFixture(t *testing.T) *leaseFixture {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)
	repo := memory.NewRepository()
	return &leaseFixture{
		service: renting.NewLeaseService(repo, bus),
		repo:    repo,
	}
}

func TestCreateFromOffer(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)
	offer := offerTerms()
	offer.Owner = "0xaaa0000000000000000000000000000000000aaa"

	lease, err := f.service.CreateFromOffer(ctx, offer, 42, "0xBBB0000000000000000000000000000000000BBB", "manager@example.org", "0xDEF")
	require.NoError(t, err)

	assert.Equal(t, int64(42), lease.ID)
	assert.Equal(t, offer.NftID, lease.NftID)
	assert.Equal(t, offer.DurationMonths, lease.Months)
	assert.Equal(t, "0xbbb0000000000000000000000000000000000bbb", lease.Manager)
	assert.Equal(t, entity.TransactionStatusInProgress, lease.TransactionStatus)
	assert.Equal(t, []string{"0xdef"}, lease.PendingTransactions)
	assert.False(t, lease.Confirmed)
	assert.True(t, entity.MaxDate.Equal(lease.EndDate))
	assert.Equal(t, []string{"0xbbb0000000000000000000000000000000000bbb", "0xaaa0000000000000000000000000000000000aaa"}, lease.ViewAddresses)
}

func TestCreateFromOfferWithoutTransactionIsSettled(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "")
	require.NoError(t, err)

	assert.Equal(t, entity.TransactionStatusValidated, lease.TransactionStatus)
	assert.Empty(t, lease.PendingTransactions)
}

func TestConfirmAcquisition(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	confirmed, err := f.service.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{
		LeaseID:     42,
		NftID:       7,
		Owner:       "0xAAA0000000000000000000000000000000000AAA",
		Manager:     "0xbbb",
		Months:      12,
		BlockNumber: 50,
	}, "0xdef")
	require.NoError(t, err)

	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, entity.TransactionStatusValidated, confirmed.TransactionStatus)
	assert.Empty(t, confirmed.PendingTransactions, "the acquisition hash must leave pendingTransactions")
	assert.Equal(t, "0xaaa0000000000000000000000000000000000aaa", confirmed.Owner)
	// Without an on-chain end date, the lease runs months from creation.
	assert.True(t, confirmed.CreatedDate.AddDate(0, confirmed.Months, 0).Equal(confirmed.EndDate))
}

func TestConfirmAcquisitionTwiceIsGuarded(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	state := chain.LeaseState{LeaseID: 42, Owner: "0xaaa", Manager: "0xbbb", Months: 12}
	first, err := f.service.ConfirmAcquisition(ctx, lease.ID, state, "0xdef")
	require.NoError(t, err)

	// Duplicate event delivery: no rewrite of the confirmed fields.
	duplicate := state
	duplicate.Owner = "0xintruder"
	second, err := f.service.ConfirmAcquisition(ctx, lease.ID, duplicate, "0xdef")
	require.NoError(t, err)
	assert.Equal(t, first.Owner, second.Owner)
	assert.True(t, second.Confirmed)
}

func TestPayRentsGuards(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)
	_, err = f.service.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{LeaseID: 42, Owner: "0xaaa", Manager: "0xbbb", Months: 12}, "0xdef")
	require.NoError(t, err)

	_, err = f.service.PayRents(ctx, lease.ID, 13, "0xpay1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.InvalidArgument), "payment beyond lease duration is rejected")

	paid, err := f.service.PayRents(ctx, lease.ID, 3, "0xpay1")
	require.NoError(t, err)
	assert.Equal(t, 3, paid.MonthPaymentInProgress)
	assert.Equal(t, []string{"0xpay1"}, paid.PendingTransactions)

	_, err = f.service.PayRents(ctx, lease.ID, 3, "0xpay1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.AlreadyExists))
}

func TestConfirmPaymentSettlesContractCounter(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)
	_, err = f.service.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{LeaseID: 42, Owner: "0xaaa", Manager: "0xbbb", Months: 12}, "0xdef")
	require.NoError(t, err)
	_, err = f.service.PayRents(ctx, lease.ID, 3, "0xpay1")
	require.NoError(t, err)

	settled, err := f.service.ConfirmPayment(ctx, lease.ID, chain.LeaseState{LeaseID: 42, PaidMonths: 3, BlockNumber: 60}, "0xpay1")
	require.NoError(t, err)
	assert.Equal(t, 3, settled.PaidMonths)
	assert.Zero(t, settled.MonthPaymentInProgress)
	assert.Empty(t, settled.PendingTransactions)
	assert.False(t, settled.PaidRentsDate.IsZero())
}

func TestEndLease(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)
	_, err = f.service.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{LeaseID: 42, Owner: "0xaaa", Manager: "0xbbb", Months: 12}, "0xdef")
	require.NoError(t, err)

	_, err = f.service.EndLease(ctx, lease.ID, "0xstranger", "0xend")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.InvalidArgument))

	ending, err := f.service.EndLease(ctx, lease.ID, "0xAAA", "0xend")
	require.NoError(t, err)
	assert.True(t, ending.EndingLease)
	assert.Equal(t, "0xaaa", ending.EndingLeaseAddress)
	assert.False(t, ending.NoticeDate.IsZero())

	closed, err := f.service.ConfirmEnd(ctx, lease.ID, chain.LeaseState{LeaseID: 42, EndDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)}, "0xend")
	require.NoError(t, err)
	assert.False(t, closed.Enabled)
	assert.False(t, closed.EndingLease)
	assert.True(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).Equal(closed.EndDate))
}

func TestFailTransactionDisablesUnconfirmedLease(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	failed, err := f.service.FailTransaction(ctx, lease.ID, "0xdef")
	require.NoError(t, err)
	assert.Empty(t, failed.PendingTransactions)
	assert.Equal(t, entity.TransactionStatusError, failed.TransactionStatus)
	assert.False(t, failed.Enabled)
}

func TestFailTransactionLeavesEarlierSnapshotsIntact(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "")
	require.NoError(t, err)
	_, err = f.service.PayRents(ctx, lease.ID, 1, "0xa")
	require.NoError(t, err)
	_, err = f.service.PayRents(ctx, lease.ID, 1, "0xb")
	require.NoError(t, err)

	snapshot, err := f.service.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"0xa", "0xb"}, snapshot.PendingTransactions)

	_, err = f.service.FailTransaction(ctx, lease.ID, "0xa")
	require.NoError(t, err)

	assert.Equal(t, []string{"0xa", "0xb"}, snapshot.PendingTransactions,
		"a snapshot handed out earlier keeps its own transaction list")
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	f := newLeaseFixture(t)

	lease, err := f.service.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)
	_, err = f.service.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{LeaseID: 42, Owner: "0xaaa", Manager: "0xbbb", Months: 12}, "0xdef")
	require.NoError(t, err)

	// Transfer to the same address, different casing: no-op.
	moved, err := f.service.TransferOwnership(ctx, chain.OwnershipTransfer{From: "0xaaa", To: "0xAAA", NftID: 7})
	require.NoError(t, err)
	assert.Zero(t, moved)

	moved, err = f.service.TransferOwnership(ctx, chain.OwnershipTransfer{From: "0xAAA", To: "0xB", NftID: 7, BlockNumber: 70})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	got, err := f.service.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xb", got.Owner)
}
