package renting

import (
	"context"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common"
	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// OfferOutcome is the mined result of a pending offer mutation, produced by
// the reconciler and applied through CommitPendingChange.
type OfferOutcome struct {
	// Confirmed is true when the transaction emitted the expected contract
	// event, false when it was mined without one (reverted or wrong call).
	Confirmed bool

	// State carries the decoded on-chain offer state for confirmed
	// outcomes. Nil when Confirmed is false.
	State *chain.OfferState
}

// OfferService owns the offer lifecycle: creation, serialized update/delete
// mutations via change-log rows, acquisition tracking and blockchain outcome
// commits. All writes are single-document, so a crash between the two saves
// of a mutation leaves a change-log row that the reconciler re-drives.
type OfferService struct {
	offers datagateway.OfferDataGateway
	bus    *event.Bus
	now    func() time.Time
}

func NewOfferService(offers datagateway.OfferDataGateway, bus *event.Bus) *OfferService {
	return &OfferService{
		offers: offers,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateOffer stores a new offer awaiting blockchain confirmation. The
// on-chain offer id stays zero and the expiration date stays at the sentinel
// until the creation transaction is mined.
func (s *OfferService) CreateOffer(ctx context.Context, offer entity.Offer) (*entity.Offer, error) {
	if err := validateOffer(offer); err != nil {
		return nil, err
	}

	now := s.now()
	offer.ID = uuid.NewString()
	offer.OfferID = 0
	offer.Owner = common.NormalizeAddress(offer.Owner)
	offer.HostAddress = common.NormalizeAddress(offer.HostAddress)
	if len(offer.ViewAddresses) == 0 {
		offer.ViewAddresses = []string{common.Everyone}
	}
	offer.TransactionStatus = entity.TransactionStatusInProgress
	offer.StartDate = now
	offer.ExpirationDate = entity.MaxDate
	offer.CreatedDate = now
	offer.ModifiedDate = now
	offer.Enabled = true
	offer.ParentID = ""
	offer.ChangeKind = ""
	offer.UpdateID = ""
	offer.DeleteID = ""
	offer.AcquisitionIDs = nil

	if err := s.offers.SaveOffer(ctx, offer); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, OfferCreatedEvent{Offer: offer})
	return &offer, nil
}

// RequestUpdate records a pending update of the canonical offer as a
// change-log row. Only one update or delete may be in flight per offer.
func (s *OfferService) RequestUpdate(ctx context.Context, id string, updated entity.Offer) (*entity.Offer, error) {
	offer, err := s.getMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.HasPendingMutation() {
		return nil, errors.Wrapf(errs.Conflict, "offer %s already has a pending mutation", id)
	}
	if updated.TransactionHash == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "update transaction hash is required")
	}

	changeLog := *offer
	changeLog.ID = uuid.NewString()
	changeLog.ParentID = offer.ID
	changeLog.ChangeKind = entity.ChangeKindUpdate
	changeLog.TransactionHash = common.NormalizeAddress(updated.TransactionHash)
	changeLog.TransactionStatus = entity.TransactionStatusInProgress
	changeLog.CreatedDate = s.now()
	changeLog.ModifiedDate = changeLog.CreatedDate
	changeLog.UpdateID = ""
	changeLog.DeleteID = ""
	changeLog.AcquisitionIDs = nil
	changeLog.ViewAddresses = nil
	applyOfferFields(&changeLog, updated)

	if err := s.offers.SaveOffer(ctx, changeLog); err != nil {
		return nil, err
	}

	offer.UpdateID = changeLog.ID
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, OfferUpdatedEvent{Offer: *offer, ChangeLog: changeLog})
	return &changeLog, nil
}

// RequestDelete records a pending deletion of the canonical offer.
func (s *OfferService) RequestDelete(ctx context.Context, id string, txHash string) (*entity.Offer, error) {
	offer, err := s.getMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.HasPendingMutation() {
		return nil, errors.Wrapf(errs.Conflict, "offer %s already has a pending mutation", id)
	}
	if txHash == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "delete transaction hash is required")
	}

	changeLog := *offer
	changeLog.ID = uuid.NewString()
	changeLog.ParentID = offer.ID
	changeLog.ChangeKind = entity.ChangeKindDelete
	changeLog.TransactionHash = common.NormalizeAddress(txHash)
	changeLog.TransactionStatus = entity.TransactionStatusInProgress
	changeLog.CreatedDate = s.now()
	changeLog.ModifiedDate = changeLog.CreatedDate
	changeLog.UpdateID = ""
	changeLog.DeleteID = ""
	changeLog.AcquisitionIDs = nil
	changeLog.ViewAddresses = nil

	if err := s.offers.SaveOffer(ctx, changeLog); err != nil {
		return nil, err
	}

	offer.DeleteID = changeLog.ID
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, OfferDeletedEvent{Offer: *offer, ChangeLog: changeLog})
	return &changeLog, nil
}

// RequestAcquisition records a tenant candidate's acquisition transaction
// against the offer. Several acquisitions may race for the same offer; each
// transaction hash is tracked once.
func (s *OfferService) RequestAcquisition(ctx context.Context, id string, tenant string, txHash string) (*entity.Offer, error) {
	offer, err := s.getMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if txHash == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "acquisition transaction hash is required")
	}
	txHash = common.NormalizeAddress(txHash)

	for _, changeLogID := range offer.AcquisitionIDs {
		existing, err := s.offers.GetOffer(ctx, changeLogID)
		if err != nil {
			if errors.Is(err, errs.NotFound) {
				continue
			}
			return nil, err
		}
		if existing.TransactionHash == txHash {
			return nil, errors.Wrapf(errs.AlreadyExists, "acquisition %s already tracked on offer %s", txHash, id)
		}
	}

	changeLog := *offer
	changeLog.ID = uuid.NewString()
	changeLog.ParentID = offer.ID
	changeLog.ChangeKind = entity.ChangeKindAcquisition
	changeLog.HostAddress = common.NormalizeAddress(tenant)
	changeLog.TransactionHash = txHash
	changeLog.TransactionStatus = entity.TransactionStatusInProgress
	changeLog.CreatedDate = s.now()
	changeLog.ModifiedDate = changeLog.CreatedDate
	changeLog.UpdateID = ""
	changeLog.DeleteID = ""
	changeLog.AcquisitionIDs = nil
	changeLog.ViewAddresses = nil

	if err := s.offers.SaveOffer(ctx, changeLog); err != nil {
		return nil, err
	}

	offer.AcquisitionIDs = append(offer.AcquisitionIDs, changeLog.ID)
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, OfferAcquisitionInProgressEvent{Offer: *offer, ChangeLog: changeLog})
	return &changeLog, nil
}

// ConfirmCreation applies the mined creation event to a pending offer: the
// on-chain id, dates and amounts become authoritative.
func (s *OfferService) ConfirmCreation(ctx context.Context, id string, state chain.OfferState) (*entity.Offer, error) {
	offer, err := s.getCanonical(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.TransactionStatus == entity.TransactionStatusValidated {
		return offer, nil
	}

	offer.OfferID = state.OfferID
	applyChainState(offer, state)
	offer.TransactionStatus = entity.TransactionStatusValidated
	offer.ModifiedDate = s.now()

	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, OfferCreationConfirmedEvent{Offer: *offer})
	return offer, nil
}

// FailCreation marks a pending offer creation whose transaction was mined
// without an OfferCreated event. The offer leaves the marketplace but the row
// is kept for the owner to inspect.
func (s *OfferService) FailCreation(ctx context.Context, id string) (*entity.Offer, error) {
	offer, err := s.getCanonical(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.TransactionStatus != entity.TransactionStatusInProgress {
		return offer, nil
	}

	offer.TransactionStatus = entity.TransactionStatusError
	offer.Enabled = false
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, OfferTransactionFailedEvent{Offer: *offer})
	return offer, nil
}

// CommitPendingChange applies the mined outcome of a change-log row to its
// canonical offer. The operation is idempotent: committing an outcome that
// was already applied is a no-op.
func (s *OfferService) CommitPendingChange(ctx context.Context, changeLogID string, outcome OfferOutcome) (*entity.Offer, error) {
	changeLog, err := s.offers.GetOffer(ctx, changeLogID)
	if err != nil {
		return nil, err
	}
	if !changeLog.IsChangeLog() {
		return nil, errors.Wrapf(errs.InvalidArgument, "offer %s is not a pending change", changeLogID)
	}
	if changeLog.TransactionStatus != entity.TransactionStatusInProgress {
		// Already committed by an earlier sweep.
		return s.offers.GetOffer(ctx, changeLog.ParentID)
	}

	offer, err := s.offers.GetOffer(ctx, changeLog.ParentID)
	if err != nil {
		return nil, err
	}

	if !outcome.Confirmed {
		return s.failPendingChange(ctx, offer, changeLog)
	}

	switch changeLog.ChangeKind {
	case entity.ChangeKindUpdate:
		applyOfferFields(offer, *changeLog)
		if outcome.State != nil {
			applyChainState(offer, *outcome.State)
		}
		offer.UpdateID = ""
		offer.TransactionStatus = entity.TransactionStatusValidated
		offer.ModifiedDate = s.now()
		if err := s.offers.SaveOffer(ctx, *offer); err != nil {
			return nil, err
		}
		if err := s.offers.DeleteOffer(ctx, changeLog.ID); err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, OfferUpdateConfirmedEvent{Offer: *offer})

	case entity.ChangeKindDelete:
		offer.DeleteID = ""
		offer.Enabled = false
		offer.TransactionStatus = entity.TransactionStatusValidated
		offer.ModifiedDate = s.now()
		if err := s.offers.SaveOffer(ctx, *offer); err != nil {
			return nil, err
		}
		if err := s.offers.DeleteOffer(ctx, changeLog.ID); err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, OfferDeleteConfirmedEvent{Offer: *offer})

	case entity.ChangeKindAcquisition:
		offer.AcquisitionIDs = removeString(offer.AcquisitionIDs, changeLog.ID)
		offer.Enabled = false
		offer.TransactionStatus = entity.TransactionStatusValidated
		offer.ModifiedDate = s.now()
		if err := s.offers.SaveOffer(ctx, *offer); err != nil {
			return nil, err
		}
		if err := s.offers.DeleteOffer(ctx, changeLog.ID); err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, OfferAcquisitionConfirmedEvent{Offer: *offer})

	default:
		return nil, errors.Wrapf(errs.InternalError, "unknown change kind %q on offer %s", changeLog.ChangeKind, changeLog.ID)
	}

	return offer, nil
}

// failPendingChange releases the canonical row's mutation marker and keeps the
// change-log row in ERROR state for inspection.
func (s *OfferService) failPendingChange(ctx context.Context, offer, changeLog *entity.Offer) (*entity.Offer, error) {
	switch changeLog.ChangeKind {
	case entity.ChangeKindUpdate:
		offer.UpdateID = ""
	case entity.ChangeKindDelete:
		offer.DeleteID = ""
	case entity.ChangeKindAcquisition:
		offer.AcquisitionIDs = removeString(offer.AcquisitionIDs, changeLog.ID)
	}
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return nil, err
	}

	changeLog.TransactionStatus = entity.TransactionStatusError
	changeLog.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *changeLog); err != nil {
		return nil, err
	}

	logger.WarnContext(ctx, "Pending offer mutation failed on chain",
		slogx.String("offer_id", offer.ID),
		slogx.String("change_log_id", changeLog.ID),
		slogx.String("change_kind", string(changeLog.ChangeKind)),
		slogx.String("tx_hash", changeLog.TransactionHash))
	s.bus.Publish(ctx, OfferTransactionFailedEvent{Offer: *changeLog})
	return offer, nil
}

// CancelOffersForOwner disables every enabled offer the address holds on the
// Deed. Called when an ownership transfer is observed on chain.
func (s *OfferService) CancelOffersForOwner(ctx context.Context, owner string, nftID int64) (int, error) {
	offers, err := s.offers.ListEnabledOffersByOwner(ctx, owner, nftID)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, offer := range offers {
		offer.Enabled = false
		offer.ModifiedDate = s.now()
		if err := s.offers.SaveOffer(ctx, offer); err != nil {
			return canceled, err
		}
		s.bus.Publish(ctx, OfferCanceledEvent{Offer: offer})
		canceled++
	}
	return canceled, nil
}

// MarkOfferAcquired disables the canonical offer carrying the given on-chain
// id after an acquisition event observed by the block scan, covering
// acquisitions submitted outside this service.
func (s *OfferService) MarkOfferAcquired(ctx context.Context, offerID int64, blockNumber uint64) error {
	offer, err := s.offers.GetOfferByOfferID(ctx, offerID)
	if err != nil {
		return err
	}
	if blockNumber <= offer.LastCheckedBlock {
		return nil
	}
	if !offer.Enabled {
		return nil
	}

	offer.Enabled = false
	offer.LastCheckedBlock = blockNumber
	offer.ModifiedDate = s.now()
	if err := s.offers.SaveOffer(ctx, *offer); err != nil {
		return err
	}
	s.bus.Publish(ctx, OfferAcquisitionConfirmedEvent{Offer: *offer})
	return nil
}

// GetOffer returns the offer document with the given off-chain id.
func (s *OfferService) GetOffer(ctx context.Context, id string) (*entity.Offer, error) {
	return s.offers.GetOffer(ctx, id)
}

// GetPendingOffers returns every row awaiting a blockchain outcome.
func (s *OfferService) GetPendingOffers(ctx context.Context) ([]entity.Offer, error) {
	return s.offers.ListPendingOffers(ctx)
}

func (s *OfferService) getCanonical(ctx context.Context, id string) (*entity.Offer, error) {
	offer, err := s.offers.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.IsChangeLog() {
		return nil, errors.Wrapf(errs.InvalidArgument, "offer %s is a pending change, not a canonical offer", id)
	}
	return offer, nil
}

// getMutable is getCanonical plus the enabled guard used by mutations: a
// disabled offer is gone from the marketplace and behaves as absent.
func (s *OfferService) getMutable(ctx context.Context, id string) (*entity.Offer, error) {
	offer, err := s.getCanonical(ctx, id)
	if err != nil {
		return nil, err
	}
	if !offer.Enabled {
		return nil, errors.Wrapf(errs.NotFound, "offer %s is disabled", id)
	}
	return offer, nil
}

func validateOffer(offer entity.Offer) error {
	switch {
	case offer.NftID <= 0:
		return errors.Wrap(errs.InvalidArgument, "nft id is required")
	case offer.Owner == "":
		return errors.Wrap(errs.InvalidArgument, "owner address is required")
	case offer.TransactionHash == "":
		return errors.Wrap(errs.InvalidArgument, "offer transaction hash is required")
	case !offer.Amount.IsPositive():
		return errors.Wrap(errs.InvalidArgument, "rent amount must be positive")
	case offer.DurationMonths <= 0:
		return errors.Wrap(errs.InvalidArgument, "duration months must be positive")
	case offer.NoticePeriodMonths < 0:
		return errors.Wrap(errs.InvalidArgument, "notice period months must not be negative")
	case offer.ExpirationDays < 0:
		return errors.Wrap(errs.InvalidArgument, "expiration days must not be negative")
	case offer.OwnerMintingPercentage < 0 || offer.OwnerMintingPercentage > 100:
		return errors.Wrap(errs.InvalidArgument, "owner minting percentage must be within [0, 100]")
	}
	return nil
}

// applyOfferFields copies the client-mutable business fields of src onto dst,
// leaving identity, linkage and status fields untouched.
func applyOfferFields(dst *entity.Offer, src entity.Offer) {
	dst.Description = src.Description
	dst.Amount = src.Amount
	dst.AllDurationAmount = src.AllDurationAmount
	dst.DurationMonths = src.DurationMonths
	dst.NoticePeriodMonths = src.NoticePeriodMonths
	dst.ExpirationDays = src.ExpirationDays
	dst.PaymentPeriodicity = src.PaymentPeriodicity
	dst.OwnerMintingPercentage = src.OwnerMintingPercentage
	dst.MintingPower = src.MintingPower
	if len(src.ViewAddresses) > 0 {
		dst.ViewAddresses = src.ViewAddresses
	}
	if src.OwnerEmail != "" {
		dst.OwnerEmail = src.OwnerEmail
	}
}

// applyChainState overwrites the offer's on-chain mirrored fields from a
// decoded contract event.
func applyChainState(offer *entity.Offer, state chain.OfferState) {
	offer.Amount = state.Amount
	offer.AllDurationAmount = state.AllDurationAmount
	offer.DurationMonths = state.DurationMonths
	offer.NoticePeriodMonths = state.NoticePeriodMonths
	offer.ExpirationDays = state.ExpirationDays
	offer.OwnerMintingPercentage = state.OwnerMintingPercentage
	if !state.StartDate.IsZero() {
		offer.StartDate = state.StartDate
	}
	if state.ExpirationDate.IsZero() {
		offer.ExpirationDate = entity.MaxDate
	} else {
		offer.ExpirationDate = state.ExpirationDate
	}
	if state.BlockNumber > offer.LastCheckedBlock {
		offer.LastCheckedBlock = state.BlockNumber
	}
}

// removeString returns a copy without value. The input slice is left intact:
// callers hand out snapshots whose backing array must not change under them.
func removeString(values []string, value string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != value {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
