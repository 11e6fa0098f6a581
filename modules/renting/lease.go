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
)

// LeaseService owns the lease lifecycle: creation from an acquired offer,
// rent payments, end-of-lease requests and the blockchain confirmations of
// each. A lease tracks every outstanding transaction hash, so several
// operations may be pending at once.
type LeaseService struct {
	leases datagateway.LeaseDataGateway
	bus    *event.Bus
	now    func() time.Time
}

func NewLeaseService(leases datagateway.LeaseDataGateway, bus *event.Bus) *LeaseService {
	return &LeaseService{
		leases: leases,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateFromOffer stores an unconfirmed lease derived from the offer being
// acquired. The lease id is the on-chain identifier the renting contract
// assigns to the Deed's lease.
func (s *LeaseService) CreateFromOffer(ctx context.Context, offer entity.Offer, leaseID int64, manager, managerEmail, txHash string) (*entity.Lease, error) {
	if leaseID <= 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "lease id is required")
	}
	if manager == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "manager address is required")
	}

	txHash = common.NormalizeAddress(txHash)
	if existing, err := s.leases.GetLease(ctx, leaseID); err == nil {
		if txHash != "" && existing.HasPendingTransaction(txHash) {
			return nil, errors.Wrapf(errs.AlreadyExists, "acquisition %s already tracked on lease %d", txHash, leaseID)
		}
	} else if !errors.Is(err, errs.NotFound) {
		return nil, err
	}

	// Without a transaction hash there is nothing to reconcile: the lease
	// is recorded as already settled.
	status := entity.TransactionStatusInProgress
	var pendingTxs []string
	if txHash == "" {
		status = entity.TransactionStatusValidated
	} else {
		pendingTxs = []string{txHash}
	}

	now := s.now()
	lease := entity.Lease{
		ID:                     leaseID,
		NftID:                  offer.NftID,
		City:                   offer.City,
		CardType:               offer.CardType,
		Months:                 offer.DurationMonths,
		Owner:                  common.NormalizeAddress(offer.Owner),
		Manager:                common.NormalizeAddress(manager),
		ManagerEmail:           managerEmail,
		ViewAddresses:          []string{common.NormalizeAddress(manager), common.NormalizeAddress(offer.Owner)},
		Amount:                 offer.Amount,
		AllDurationAmount:      offer.AllDurationAmount,
		NoticePeriodMonths:     offer.NoticePeriodMonths,
		PaymentPeriodicity:     offer.PaymentPeriodicity,
		OwnerMintingPercentage: offer.OwnerMintingPercentage,
		MintingPower:           offer.MintingPower,
		PendingTransactions:    pendingTxs,
		TransactionStatus:      status,
		StartDate:              now,
		EndDate:                entity.MaxDate,
		CreatedDate:            now,
		Confirmed:              false,
		Enabled:                true,
	}

	if err := s.leases.SaveLease(ctx, lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseAcquiredEvent{Lease: lease})
	return &lease, nil
}

// ConfirmAcquisition applies the mined LeaseAcquired event. Confirming an
// already confirmed lease only clears the transaction hash; the on-chain
// fields are not rewritten.
func (s *LeaseService) ConfirmAcquisition(ctx context.Context, leaseID int64, state chain.LeaseState, txHash string) (*entity.Lease, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	if lease.Confirmed {
		logger.WarnContext(ctx, "Lease acquisition already confirmed, clearing transaction only",
			slogx.Int64("lease_id", leaseID),
			slogx.String("tx_hash", txHash))
		return s.clearPendingTransaction(ctx, lease, txHash)
	}

	lease.Confirmed = true
	lease.Enabled = true
	lease.TransactionStatus = entity.TransactionStatusValidated
	lease.Owner = common.NormalizeAddress(state.Owner)
	lease.Manager = common.NormalizeAddress(state.Manager)
	if state.Months > 0 {
		lease.Months = state.Months
	}
	lease.PaidMonths = state.PaidMonths
	lease.MonthPaymentInProgress = 0
	if !state.EndDate.IsZero() {
		lease.EndDate = state.EndDate
	} else {
		lease.EndDate = lease.CreatedDate.AddDate(0, lease.Months, 0)
	}
	if state.BlockNumber > lease.LastCheckedBlock {
		lease.LastCheckedBlock = state.BlockNumber
	}
	lease.PendingTransactions = removeString(lease.PendingTransactions, common.NormalizeAddress(txHash))

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseAcquisitionConfirmedEvent{Lease: *lease})
	return lease, nil
}

// PayRents records a rent payment transaction awaiting confirmation.
func (s *LeaseService) PayRents(ctx context.Context, leaseID int64, months int, txHash string) (*entity.Lease, error) {
	if months <= 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "paid months must be positive")
	}
	if txHash == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "payment transaction hash is required")
	}

	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !lease.Enabled {
		return nil, errors.Wrapf(errs.InvalidArgument, "lease %d is not active", leaseID)
	}
	txHash = common.NormalizeAddress(txHash)
	if lease.HasPendingTransaction(txHash) {
		return nil, errors.Wrapf(errs.AlreadyExists, "payment %s already tracked on lease %d", txHash, leaseID)
	}
	if lease.PaidMonths+lease.MonthPaymentInProgress+months > lease.Months {
		return nil, errors.Wrapf(errs.InvalidArgument, "payment of %d months exceeds lease duration", months)
	}

	lease.MonthPaymentInProgress += months
	lease.PendingTransactions = append(lease.PendingTransactions, txHash)

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseRentPaidEvent{Lease: *lease, Months: months})
	return lease, nil
}

// ConfirmPayment applies the mined LeasePaid event: the contract's paid-month
// counter is authoritative.
func (s *LeaseService) ConfirmPayment(ctx context.Context, leaseID int64, state chain.LeaseState, txHash string) (*entity.Lease, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	lease.PaidMonths = state.PaidMonths
	lease.MonthPaymentInProgress = 0
	lease.PaidRentsDate = s.now()
	if !state.EndDate.IsZero() {
		lease.EndDate = state.EndDate
	}
	if state.BlockNumber > lease.LastCheckedBlock {
		lease.LastCheckedBlock = state.BlockNumber
	}
	lease.PendingTransactions = removeString(lease.PendingTransactions, common.NormalizeAddress(txHash))

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseRentPaymentConfirmedEvent{Lease: *lease})
	return lease, nil
}

// EndLease records an end-of-lease request from the owner or the manager,
// awaiting confirmation.
func (s *LeaseService) EndLease(ctx context.Context, leaseID int64, requester, txHash string) (*entity.Lease, error) {
	if txHash == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "end lease transaction hash is required")
	}

	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !lease.Enabled {
		return nil, errors.Wrapf(errs.InvalidArgument, "lease %d is not active", leaseID)
	}
	if !common.SameAddress(requester, lease.Owner) && !common.SameAddress(requester, lease.Manager) {
		return nil, errors.Wrapf(errs.InvalidArgument, "address %s is neither owner nor manager of lease %d", requester, leaseID)
	}
	txHash = common.NormalizeAddress(txHash)
	if lease.HasPendingTransaction(txHash) {
		return nil, errors.Wrapf(errs.AlreadyExists, "end request %s already tracked on lease %d", txHash, leaseID)
	}

	lease.EndingLease = true
	lease.EndingLeaseAddress = common.NormalizeAddress(requester)
	lease.NoticeDate = s.now()
	lease.PendingTransactions = append(lease.PendingTransactions, txHash)

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseEndedEvent{Lease: *lease})
	return lease, nil
}

// ConfirmEnd applies the mined LeaseEnded event and closes the lease.
func (s *LeaseService) ConfirmEnd(ctx context.Context, leaseID int64, state chain.LeaseState, txHash string) (*entity.Lease, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	lease.Enabled = false
	lease.EndingLease = false
	if !state.EndDate.IsZero() {
		lease.EndDate = state.EndDate
	} else {
		lease.EndDate = s.now()
	}
	if state.BlockNumber > lease.LastCheckedBlock {
		lease.LastCheckedBlock = state.BlockNumber
	}
	lease.PendingTransactions = removeString(lease.PendingTransactions, common.NormalizeAddress(txHash))

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, LeaseEndConfirmedEvent{Lease: *lease})
	return lease, nil
}

// FailTransaction removes a pending transaction whose mined receipt carried no
// contract event. An unconfirmed lease whose acquisition failed this way is
// disabled.
func (s *LeaseService) FailTransaction(ctx context.Context, leaseID int64, txHash string) (*entity.Lease, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	txHash = common.NormalizeAddress(txHash)
	lease.PendingTransactions = removeString(lease.PendingTransactions, txHash)
	lease.MonthPaymentInProgress = 0
	lease.EndingLease = false
	lease.EndingLeaseAddress = ""
	if !lease.Confirmed {
		lease.TransactionStatus = entity.TransactionStatusError
		lease.Enabled = false
	}

	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	logger.WarnContext(ctx, "Pending lease transaction failed on chain",
		slogx.Int64("lease_id", leaseID),
		slogx.String("tx_hash", txHash))
	s.bus.Publish(ctx, LeaseTransactionFailedEvent{Lease: *lease, TxHash: txHash})
	return lease, nil
}

// TransferOwnership moves the landlord side of the Deed's active leases to the
// transfer's recipient. A transfer to the same address (any casing) is a
// no-op.
func (s *LeaseService) TransferOwnership(ctx context.Context, transfer chain.OwnershipTransfer) (int, error) {
	if common.SameAddress(transfer.From, transfer.To) {
		return 0, nil
	}

	leases, err := s.leases.ListLeasesByNftID(ctx, transfer.NftID)
	if err != nil {
		return 0, err
	}

	transferred := 0
	for _, lease := range leases {
		if !lease.Enabled || !common.SameAddress(lease.Owner, transfer.From) {
			continue
		}
		if transfer.BlockNumber > 0 && transfer.BlockNumber <= lease.LastCheckedBlock {
			continue
		}
		from := lease.Owner
		lease.Owner = common.NormalizeAddress(transfer.To)
		if transfer.BlockNumber > lease.LastCheckedBlock {
			lease.LastCheckedBlock = transfer.BlockNumber
		}
		if err := s.leases.SaveLease(ctx, lease); err != nil {
			return transferred, err
		}
		s.bus.Publish(ctx, LeaseOwnershipTransferredEvent{Lease: lease, From: from, To: lease.Owner})
		transferred++
	}
	return transferred, nil
}

// GetLease returns the lease with the given on-chain id.
func (s *LeaseService) GetLease(ctx context.Context, id int64) (*entity.Lease, error) {
	return s.leases.GetLease(ctx, id)
}

// GetLeasesWithPendingTransactions returns leases with outstanding
// transaction hashes for the reconciliation sweep.
func (s *LeaseService) GetLeasesWithPendingTransactions(ctx context.Context) ([]entity.Lease, error) {
	return s.leases.ListLeasesWithPendingTransactions(ctx)
}

func (s *LeaseService) clearPendingTransaction(ctx context.Context, lease *entity.Lease, txHash string) (*entity.Lease, error) {
	lease.PendingTransactions = removeString(lease.PendingTransactions, common.NormalizeAddress(txHash))
	if err := s.leases.SaveLease(ctx, *lease); err != nil {
		return nil, err
	}
	return lease, nil
}
