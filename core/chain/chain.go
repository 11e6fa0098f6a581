package chain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OfferEventKind identifies the offer lifecycle events emitted by the renting
// contract.
type OfferEventKind string

const (
	OfferCreated  OfferEventKind = "OFFER_CREATED"
	OfferUpdated  OfferEventKind = "OFFER_UPDATED"
	OfferDeleted  OfferEventKind = "OFFER_DELETED"
	OfferAcquired OfferEventKind = "OFFER_ACQUIRED"
)

// LeaseEventKind identifies the lease lifecycle events emitted by the renting
// contract.
type LeaseEventKind string

const (
	LeaseAcquired LeaseEventKind = "LEASE_ACQUIRED"
	LeasePaid     LeaseEventKind = "LEASE_PAID"
	LeaseEnded    LeaseEventKind = "LEASE_ENDED"
)

// OfferState is the on-chain state of an offer carried by a decoded event.
type OfferState struct {
	OfferID                int64
	NftID                  int64
	Owner                  string
	Amount                 decimal.Decimal
	AllDurationAmount      decimal.Decimal
	DurationMonths         int
	NoticePeriodMonths     int
	ExpirationDays         int
	OwnerMintingPercentage int
	StartDate              time.Time
	ExpirationDate         time.Time
	BlockNumber            uint64
}

// LeaseState is the on-chain state of a lease carried by a decoded event.
type LeaseState struct {
	LeaseID     int64
	OfferID     int64
	NftID       int64
	Owner       string
	Manager     string
	Months      int
	PaidMonths  int
	EndDate     time.Time
	BlockNumber uint64
}

// OwnershipTransfer is a Deed NFT Transfer event.
type OwnershipTransfer struct {
	From        string
	To          string
	NftID       int64
	BlockNumber uint64
}

// RentingEvent is one decoded contract event from a block-range scan. Exactly
// one of the three fields is non-nil.
type RentingEvent struct {
	Transfer *OwnershipTransfer
	Offer    *OfferState
	Lease    *LeaseState

	OfferKind OfferEventKind
	LeaseKind LeaseEventKind
}

// Reader answers finality and event-decoding questions about the renting
// contract. Transient transport failures are reported as errs.Unavailable and
// retried by callers; undecodable transactions as errs.DecodeFailure.
type Reader interface {
	// IsTransactionMined reports whether the transaction is included in a
	// block.
	IsTransactionMined(ctx context.Context, txHash string) (bool, error)

	// OfferTransactionEvents decodes the offer events emitted by a mined
	// transaction. A reverted transaction yields an empty map.
	OfferTransactionEvents(ctx context.Context, txHash string) (map[OfferEventKind]OfferState, error)

	// LeaseTransactionEvents decodes the lease events emitted by a mined
	// transaction. A reverted transaction yields an empty map.
	LeaseTransactionEvents(ctx context.Context, txHash string) (map[LeaseEventKind]LeaseState, error)

	// HeadBlockNumber returns the current chain head.
	HeadBlockNumber(ctx context.Context) (uint64, error)

	// RentingEvents returns all decoded contract events in the inclusive
	// block range [fromBlock, toBlock].
	RentingEvents(ctx context.Context, fromBlock, toBlock uint64) ([]RentingEvent, error)
}
