package renting

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/cockroachdb/errors"
)

// lastCheckedBlockKey is the settings cursor holding the highest block whose
// contract events have been applied by the mined-events sweep.
const lastCheckedBlockKey = "renting.lastCheckedBlock"

// Reconciler drives pending offers and leases to their mined outcome and
// applies contract events the services never saw (ownership transfers,
// acquisitions submitted outside this deployment). Each sweep is
// single-flight: a tick that fires while the previous sweep of the same kind
// is still running is skipped.
type Reconciler struct {
	offers   *OfferService
	leases   *LeaseService
	settings datagateway.SettingDataGateway
	reader   chain.Reader

	pollInterval        time.Duration
	minedEventsInterval time.Duration

	pendingSweepRunning atomic.Bool
	eventSweepRunning   atomic.Bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewReconciler(
	offers *OfferService,
	leases *LeaseService,
	settings datagateway.SettingDataGateway,
	reader chain.Reader,
	pollInterval time.Duration,
	minedEventsInterval time.Duration,
) *Reconciler {
	return &Reconciler{
		offers:              offers,
		leases:              leases,
		settings:            settings,
		reader:              reader,
		pollInterval:        pollInterval,
		minedEventsInterval: minedEventsInterval,
		quit:                make(chan struct{}),
		done:                make(chan struct{}),
	}
}

// Run polls until Shutdown is called or ctx is canceled. It blocks the
// calling goroutine.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.done)

	pollTicker := time.NewTicker(r.pollInterval)
	defer pollTicker.Stop()
	eventsTicker := time.NewTicker(r.minedEventsInterval)
	defer eventsTicker.Stop()

	logger.InfoContext(ctx, "Renting reconciler started",
		slogx.Duration("poll_interval", r.pollInterval),
		slogx.Duration("mined_events_interval", r.minedEventsInterval))

	// First pass right away so restarts don't wait a full interval.
	r.runPendingSweep(ctx)
	r.runEventSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-r.quit:
			return nil
		case <-pollTicker.C:
			r.runPendingSweep(ctx)
		case <-eventsTicker.C:
			r.runEventSweep(ctx)
		}
	}
}

// Shutdown stops the poller and waits for the loop to exit.
func (r *Reconciler) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.quit)
		<-r.done
	})
}

func (r *Reconciler) runPendingSweep(ctx context.Context) {
	if !r.pendingSweepRunning.CompareAndSwap(false, true) {
		logger.DebugContext(ctx, "Pending sweep still running, skipping tick")
		return
	}
	defer r.pendingSweepRunning.Store(false)
	r.SweepPendingOffers(ctx)
	r.SweepPendingLeases(ctx)
}

func (r *Reconciler) runEventSweep(ctx context.Context) {
	if !r.eventSweepRunning.CompareAndSwap(false, true) {
		logger.DebugContext(ctx, "Mined-events sweep still running, skipping tick")
		return
	}
	defer r.eventSweepRunning.Store(false)
	if err := r.SweepMinedEvents(ctx); err != nil {
		if errors.Is(err, errs.Unavailable) {
			logger.WarnContext(ctx, "Chain unavailable, mined-events sweep postponed", slogx.Error(err))
			return
		}
		logger.ErrorContext(ctx, "Mined-events sweep failed", slogx.Error(err))
	}
}

// SweepPendingOffers resolves every offer row awaiting a blockchain outcome.
// Failures on one row never block the rest of the sweep.
func (r *Reconciler) SweepPendingOffers(ctx context.Context) {
	pending, err := r.offers.GetPendingOffers(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list pending offers", slogx.Error(err))
		return
	}

	for _, offer := range pending {
		if err := r.reconcileOffer(ctx, offer); err != nil {
			if errors.Is(err, errs.Unavailable) {
				logger.WarnContext(ctx, "Chain unavailable, offer sweep postponed", slogx.Error(err))
				return
			}
			logger.ErrorContext(ctx, "Failed to reconcile pending offer",
				slogx.String("offer_id", offer.ID),
				slogx.String("tx_hash", offer.TransactionHash),
				slogx.Error(err))
		}
	}
}

func (r *Reconciler) reconcileOffer(ctx context.Context, offer entity.Offer) error {
	// A pending row without a transaction hash can never be confirmed.
	if offer.TransactionHash == "" {
		return r.failOffer(ctx, offer)
	}

	mined, err := r.reader.IsTransactionMined(ctx, offer.TransactionHash)
	if err != nil {
		return err
	}
	if !mined {
		return nil
	}

	events, err := r.reader.OfferTransactionEvents(ctx, offer.TransactionHash)
	if err != nil {
		if errors.Is(err, errs.DecodeFailure) {
			return r.failOffer(ctx, offer)
		}
		return err
	}

	if offer.IsChangeLog() {
		state, ok := events[expectedOfferEvent(offer.ChangeKind)]
		outcome := OfferOutcome{Confirmed: ok}
		if ok {
			outcome.State = &state
		}
		_, err := r.offers.CommitPendingChange(ctx, offer.ID, outcome)
		return err
	}

	if state, ok := events[chain.OfferCreated]; ok {
		_, err := r.offers.ConfirmCreation(ctx, offer.ID, state)
		return err
	}
	_, err = r.offers.FailCreation(ctx, offer.ID)
	return err
}

func (r *Reconciler) failOffer(ctx context.Context, offer entity.Offer) error {
	if offer.IsChangeLog() {
		_, err := r.offers.CommitPendingChange(ctx, offer.ID, OfferOutcome{Confirmed: false})
		return err
	}
	_, err := r.offers.FailCreation(ctx, offer.ID)
	return err
}

// SweepPendingLeases resolves every outstanding lease transaction.
func (r *Reconciler) SweepPendingLeases(ctx context.Context) {
	pending, err := r.leases.GetLeasesWithPendingTransactions(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list leases with pending transactions", slogx.Error(err))
		return
	}

	for _, lease := range pending {
		for _, txHash := range lease.PendingTransactions {
			if err := r.reconcileLeaseTransaction(ctx, lease, txHash); err != nil {
				if errors.Is(err, errs.Unavailable) {
					logger.WarnContext(ctx, "Chain unavailable, lease sweep postponed", slogx.Error(err))
					return
				}
				logger.ErrorContext(ctx, "Failed to reconcile pending lease transaction",
					slogx.Int64("lease_id", lease.ID),
					slogx.String("tx_hash", txHash),
					slogx.Error(err))
			}
		}
	}
}

func (r *Reconciler) reconcileLeaseTransaction(ctx context.Context, lease entity.Lease, txHash string) error {
	if txHash == "" {
		_, err := r.leases.FailTransaction(ctx, lease.ID, txHash)
		return err
	}

	mined, err := r.reader.IsTransactionMined(ctx, txHash)
	if err != nil {
		return err
	}
	if !mined {
		return nil
	}

	events, err := r.reader.LeaseTransactionEvents(ctx, txHash)
	if err != nil {
		if errors.Is(err, errs.DecodeFailure) {
			_, err := r.leases.FailTransaction(ctx, lease.ID, txHash)
			return err
		}
		return err
	}

	switch {
	case hasLeaseEvent(events, chain.LeaseAcquired):
		_, err = r.leases.ConfirmAcquisition(ctx, lease.ID, events[chain.LeaseAcquired], txHash)
	case hasLeaseEvent(events, chain.LeasePaid):
		_, err = r.leases.ConfirmPayment(ctx, lease.ID, events[chain.LeasePaid], txHash)
	case hasLeaseEvent(events, chain.LeaseEnded):
		_, err = r.leases.ConfirmEnd(ctx, lease.ID, events[chain.LeaseEnded], txHash)
	default:
		_, err = r.leases.FailTransaction(ctx, lease.ID, txHash)
	}
	return err
}

// SweepMinedEvents scans contract events between the persisted cursor and the
// chain head: ownership transfers re-home leases and cancel the previous
// owner's offers, and acquisition events disable offers acquired outside this
// deployment. The cursor only advances after the whole range is applied.
func (r *Reconciler) SweepMinedEvents(ctx context.Context) error {
	head, err := r.reader.HeadBlockNumber(ctx)
	if err != nil {
		return err
	}

	cursor, found, err := r.loadCursor(ctx)
	if err != nil {
		return err
	}
	if !found {
		// First run: start scanning from the current head.
		return r.saveCursor(ctx, head)
	}
	if cursor >= head {
		return nil
	}

	events, err := r.reader.RentingEvents(ctx, cursor+1, head)
	if err != nil {
		return err
	}

	for _, evt := range events {
		switch {
		case evt.Transfer != nil:
			if err := r.applyTransfer(ctx, *evt.Transfer); err != nil {
				return err
			}
		case evt.Offer != nil && evt.OfferKind == chain.OfferAcquired:
			err := r.offers.MarkOfferAcquired(ctx, evt.Offer.OfferID, evt.Offer.BlockNumber)
			if err != nil && !errors.Is(err, errs.NotFound) {
				return err
			}
		}
	}

	return r.saveCursor(ctx, head)
}

func (r *Reconciler) applyTransfer(ctx context.Context, transfer chain.OwnershipTransfer) error {
	moved, err := r.leases.TransferOwnership(ctx, transfer)
	if err != nil {
		return err
	}
	canceled, err := r.offers.CancelOffersForOwner(ctx, transfer.From, transfer.NftID)
	if err != nil {
		return err
	}
	if moved > 0 || canceled > 0 {
		logger.InfoContext(ctx, "Applied Deed ownership transfer",
			slogx.Int64("nft_id", transfer.NftID),
			slogx.String("from", transfer.From),
			slogx.String("to", transfer.To),
			slogx.Int("leases_transferred", moved),
			slogx.Int("offers_canceled", canceled))
	}
	return nil
}

func (r *Reconciler) loadCursor(ctx context.Context) (uint64, bool, error) {
	setting, err := r.settings.GetSetting(ctx, lastCheckedBlockKey)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	cursor, err := strconv.ParseUint(setting.Value, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupted block cursor %q", setting.Value)
	}
	return cursor, true, nil
}

func (r *Reconciler) saveCursor(ctx context.Context, block uint64) error {
	return r.settings.SaveSetting(ctx, entity.Setting{
		Key:   lastCheckedBlockKey,
		Value: strconv.FormatUint(block, 10),
	})
}

func expectedOfferEvent(kind entity.ChangeKind) chain.OfferEventKind {
	switch kind {
	case entity.ChangeKindUpdate:
		return chain.OfferUpdated
	case entity.ChangeKindDelete:
		return chain.OfferDeleted
	case entity.ChangeKindAcquisition:
		return chain.OfferAcquired
	default:
		return ""
	}
}

func hasLeaseEvent(events map[chain.LeaseEventKind]chain.LeaseState, kind chain.LeaseEventKind) bool {
	_, ok := events[kind]
	return ok
}
