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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReader is an in-memory chain.Reader scripted per test.
type stubReader struct {
	mined       map[string]bool
	offerEvents map[string]map[chain.OfferEventKind]chain.OfferState
	leaseEvents map[string]map[chain.LeaseEventKind]chain.LeaseState
	head        uint64
	events      []chain.RentingEvent
	unavailable bool
}

var _ chain.Reader = (*stubReader)(nil)

func newStubReader() *stubReader {
	return &stubReader{
		mined:       make(map[string]bool),
		offerEvents: make(map[string]map[chain.OfferEventKind]chain.OfferState),
		leaseEvents: make(map[string]map[chain.LeaseEventKind]chain.LeaseState),
	}
}

func (s *stubReader) IsTransactionMined(_ context.Context, txHash string) (bool, error) {
	if s.unavailable {
		return false, errors.Wrap(errs.Unavailable, "stub chain down")
	}
	return s.mined[txHash], nil
}

func (s *stubReader) OfferTransactionEvents(_ context.Context, txHash string) (map[chain.OfferEventKind]chain.OfferState, error) {
	if s.unavailable {
		return nil, errors.Wrap(errs.Unavailable, "stub chain down")
	}
	events, ok := s.offerEvents[txHash]
	if !ok {
		return map[chain.OfferEventKind]chain.OfferState{}, nil
	}
	return events, nil
}

func (s *stubReader) LeaseTransactionEvents(_ context.Context, txHash string) (map[chain.LeaseEventKind]chain.LeaseState, error) {
	if s.unavailable {
		return nil, errors.Wrap(errs.Unavailable, "stub chain down")
	}
	events, ok := s.leaseEvents[txHash]
	if !ok {
		return map[chain.LeaseEventKind]chain.LeaseState{}, nil
	}
	return events, nil
}

func (s *stubReader) HeadBlockNumber(_ context.Context) (uint64, error) {
	if s.unavailable {
		return 0, errors.Wrap(errs.Unavailable, "stub chain down")
	}
	return s.head, nil
}

func (s *stubReader) RentingEvents(_ context.Context, _, _ uint64) ([]chain.RentingEvent, error) {
	if s.unavailable {
		return nil, errors.Wrap(errs.Unavailable, "stub chain down")
	}
	return s.events, nil
}

type reconcilerFixture struct {
	reconciler *renting.Reconciler
	offers     *renting.OfferService
	leases     *renting.LeaseService
	repo       *memory.Repository
	reader     *stubReader
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	repo := memory.NewRepository()
	reader := newStubReader()
	offers := renting.NewOfferService(repo, bus)
	leases := renting.NewLeaseService(repo, bus)
	return &reconcilerFixture{
		reconciler: renting.NewReconciler(offers, leases, repo, reader, time.Minute, time.Minute),
		offers:     offers,
		leases:     leases,
		repo:       repo,
		reader:     reader,
	}
}

func TestSweepSkipsUnminedTransactions(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	offer, err := f.offers.CreateOffer(ctx, offerTerms())
	require.NoError(t, err)
	lease, err := f.leases.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	f.reconciler.SweepPendingOffers(ctx)
	f.reconciler.SweepPendingLeases(ctx)

	gotOffer, err := f.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionStatusInProgress, gotOffer.TransactionStatus)

	gotLease, err := f.leases.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xdef"}, gotLease.PendingTransactions, "an unmined transaction stays pending for the next tick")
	assert.False(t, gotLease.Confirmed)
}

func TestSweepConfirmsMinedOfferUpdate(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	offer, err := f.offers.CreateOffer(ctx, offerTerms())
	require.NoError(t, err)
	f.reader.mined["0xabc"] = true
	f.reader.offerEvents["0xabc"] = map[chain.OfferEventKind]chain.OfferState{
		chain.OfferCreated: {OfferID: 11, NftID: 7, Amount: decimal.NewFromInt(100)},
	}
	f.reconciler.SweepPendingOffers(ctx)

	newTerms := offerTerms()
	newTerms.Amount = decimal.NewFromInt(150)
	newTerms.TransactionHash = "0xupd"
	changeLog, err := f.offers.RequestUpdate(ctx, offer.ID, newTerms)
	require.NoError(t, err)

	f.reader.mined["0xupd"] = true
	f.reader.offerEvents["0xupd"] = map[chain.OfferEventKind]chain.OfferState{
		chain.OfferUpdated: {OfferID: 11, NftID: 7, Amount: decimal.NewFromInt(150), BlockNumber: 90},
	}
	f.reconciler.SweepPendingOffers(ctx)

	canonical, err := f.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(canonical.Amount))
	assert.Equal(t, entity.TransactionStatusValidated, canonical.TransactionStatus)
	assert.Equal(t, int64(11), canonical.OfferID)

	_, err = f.offers.GetOffer(ctx, changeLog.ID)
	assert.True(t, errors.Is(err, errs.NotFound), "the change-log row is deleted once folded in")

	// A later tick sees nothing pending: reprocessing is a no-op.
	f.reconciler.SweepPendingOffers(ctx)
	again, err := f.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, canonical.ModifiedDate, again.ModifiedDate)
}

func TestSweepFailsBlankHashImmediately(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	// A pending row with a blank hash can only come from a partial write;
	// seed it directly.
	require.NoError(t, f.repo.SaveOffer(ctx, entity.Offer{
		ID:                "orphan",
		NftID:             7,
		Owner:             "0xaaa",
		Amount:            decimal.NewFromInt(100),
		DurationMonths:    12,
		TransactionStatus: entity.TransactionStatusInProgress,
		Enabled:           true,
		CreatedDate:       time.Now().UTC(),
	}))

	f.reconciler.SweepPendingOffers(ctx)

	got, err := f.offers.GetOffer(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionStatusError, got.TransactionStatus)
	assert.False(t, got.Enabled)
}

func TestSweepConfirmsMinedLeaseAcquisition(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	lease, err := f.leases.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	f.reader.mined["0xdef"] = true
	f.reader.leaseEvents["0xdef"] = map[chain.LeaseEventKind]chain.LeaseState{
		chain.LeaseAcquired: {LeaseID: 42, NftID: 7, Owner: "0xaaa", Manager: "0xbbb", Months: 12, BlockNumber: 80},
	}
	f.reconciler.SweepPendingLeases(ctx)

	got, err := f.leases.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
	assert.Empty(t, got.PendingTransactions)
}

func TestSweepResolvesSiblingTransactionsInOneTick(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	// A confirmed lease with several transactions in flight: failing the
	// first must not hide its mined siblings from the same tick.
	require.NoError(t, f.repo.SaveLease(ctx, entity.Lease{
		ID:                  42,
		NftID:               7,
		Owner:               "0xaaa",
		Manager:             "0xbbb",
		Months:              12,
		Enabled:             true,
		Confirmed:           true,
		TransactionStatus:   entity.TransactionStatusValidated,
		PendingTransactions: []string{"0xa", "0xb", "0xc"},
		CreatedDate:         time.Now().UTC(),
	}))

	// 0xa was mined without a contract event, 0xb carries the rent payment,
	// 0xc is still unmined.
	f.reader.mined["0xa"] = true
	f.reader.mined["0xb"] = true
	f.reader.leaseEvents["0xb"] = map[chain.LeaseEventKind]chain.LeaseState{
		chain.LeasePaid: {LeaseID: 42, NftID: 7, PaidMonths: 3},
	}
	f.reconciler.SweepPendingLeases(ctx)

	got, err := f.leases.GetLease(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PaidMonths, "the mined payment settles in the same tick as the failed sibling")
	assert.Equal(t, []string{"0xc"}, got.PendingTransactions)
}

func TestSweepFailsMinedLeaseTransactionWithoutEvents(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	lease, err := f.leases.CreateFromOffer(ctx, offerTerms(), 42, "0xbbb", "", "0xdef")
	require.NoError(t, err)

	// Mined but no contract event: the call reverted or hit another contract.
	f.reader.mined["0xdef"] = true
	f.reconciler.SweepPendingLeases(ctx)

	got, err := f.leases.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PendingTransactions)
	assert.Equal(t, entity.TransactionStatusError, got.TransactionStatus)
}

func TestSweepPostponesWhenChainUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	offer, err := f.offers.CreateOffer(ctx, offerTerms())
	require.NoError(t, err)

	f.reader.unavailable = true
	f.reconciler.SweepPendingOffers(ctx)

	got, err := f.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionStatusInProgress, got.TransactionStatus, "chain outages never fail a pending row")
}

func TestSweepMinedEventsAppliesOwnershipTransfer(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)

	terms := offerTerms()
	terms.Owner = "0xA"
	offer, err := f.offers.CreateOffer(ctx, terms)
	require.NoError(t, err)

	otherTerms := offerTerms()
	otherTerms.Owner = "0xC"
	other, err := f.offers.CreateOffer(ctx, otherTerms)
	require.NoError(t, err)

	lease, err := f.leases.CreateFromOffer(ctx, terms, 42, "0xbbb", "", "")
	require.NoError(t, err)
	_, err = f.leases.ConfirmAcquisition(ctx, lease.ID, chain.LeaseState{LeaseID: 42, Owner: "0xA", Manager: "0xbbb", Months: 12}, "")
	require.NoError(t, err)

	// First sweep anchors the cursor at the current head.
	f.reader.head = 100
	require.NoError(t, f.reconciler.SweepMinedEvents(ctx))

	f.reader.head = 110
	f.reader.events = []chain.RentingEvent{
		{Transfer: &chain.OwnershipTransfer{From: "0xA", To: "0xB", NftID: 7, BlockNumber: 105}},
	}
	require.NoError(t, f.reconciler.SweepMinedEvents(ctx))

	gotOffer, err := f.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.False(t, gotOffer.Enabled, "the previous owner's offers are disabled")

	untouched, err := f.offers.GetOffer(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, untouched.Enabled, "other owners' offers are untouched")

	gotLease, err := f.leases.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xb", gotLease.Owner, "the lease owner is re-pointed, lower-cased")

	// The cursor advanced: replaying the sweep applies nothing new.
	f.reader.events = nil
	require.NoError(t, f.reconciler.SweepMinedEvents(ctx))
}
