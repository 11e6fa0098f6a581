package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDate is the sentinel "no expiration assigned yet" timestamp. Offers and
// leases awaiting blockchain confirmation carry it until the confirmed event
// provides the real date.
var MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// TransactionStatus is the blockchain confirmation state of a record.
type TransactionStatus string

const (
	TransactionStatusNone       TransactionStatus = "NONE"
	TransactionStatusInProgress TransactionStatus = "IN_PROGRESS"
	TransactionStatusValidated  TransactionStatus = "VALIDATED"
	TransactionStatusError      TransactionStatus = "ERROR"
)

// ChangeKind tags a change-log row with the pending mutation it represents.
type ChangeKind string

const (
	ChangeKindUpdate      ChangeKind = "UPDATE"
	ChangeKindDelete      ChangeKind = "DELETE"
	ChangeKindAcquisition ChangeKind = "ACQUISITION"
)

// PaymentPeriodicity is how often rent is due.
type PaymentPeriodicity string

const (
	PaymentPeriodicityMonthly PaymentPeriodicity = "ONE_MONTH"
	PaymentPeriodicityYearly  PaymentPeriodicity = "ONE_YEAR"
)

// Offer is a for-rent listing against a Deed. A row with a non-empty ParentID
// is a change-log row: a transient record of a mutation awaiting blockchain
// confirmation, never served to clients directly.
type Offer struct {
	// ID is the off-chain key. OfferID is the on-chain identifier, stable
	// across offer versions, zero until the creation event is mined.
	ID      string `json:"id"`
	OfferID int64  `json:"offerId"`

	NftID       int64  `json:"nftId"`
	City        string `json:"city,omitempty"`
	CardType    string `json:"cardType,omitempty"`
	Owner       string `json:"owner"`
	OwnerEmail  string `json:"ownerEmail,omitempty"`
	HostAddress string `json:"hostAddress,omitempty"`
	Description string `json:"description,omitempty"`

	// ViewAddresses lists wallets permitted to see the offer, or the
	// common.Everyone wildcard.
	ViewAddresses []string `json:"viewAddresses,omitempty"`

	Amount                 decimal.Decimal    `json:"amount"`
	AllDurationAmount      decimal.Decimal    `json:"allDurationAmount"`
	DurationMonths         int                `json:"durationMonths"`
	NoticePeriodMonths     int                `json:"noticePeriodMonths"`
	ExpirationDays         int                `json:"expirationDays"`
	PaymentPeriodicity     PaymentPeriodicity `json:"paymentPeriodicity"`
	OwnerMintingPercentage int                `json:"ownerMintingPercentage"`
	MintingPower           float64            `json:"mintingPower"`

	TransactionHash   string            `json:"offerTransactionHash,omitempty"`
	TransactionStatus TransactionStatus `json:"offerTransactionStatus"`

	StartDate      time.Time `json:"startDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	CreatedDate    time.Time `json:"createdDate"`
	ModifiedDate   time.Time `json:"modifiedDate"`

	Enabled bool `json:"enabled"`

	// Change-log linkage. ParentID non-empty marks this row as a pending
	// mutation of the canonical row with that id; ChangeKind says which
	// mutation. On the canonical row, UpdateID/DeleteID point to the
	// outstanding change-log rows, and AcquisitionIDs collects pending
	// acquisition change-log ids.
	ParentID       string     `json:"parentId,omitempty"`
	ChangeKind     ChangeKind `json:"changeKind,omitempty"`
	UpdateID       string     `json:"updateId,omitempty"`
	DeleteID       string     `json:"deleteId,omitempty"`
	AcquisitionIDs []string   `json:"acquisitionIds,omitempty"`

	// LastCheckedBlock is the last block height whose events were applied
	// to this offer, so stale events are not re-processed.
	LastCheckedBlock uint64 `json:"lastCheckedBlock,omitempty"`
}

// IsChangeLog reports whether the row is a transient pending-mutation record.
func (o Offer) IsChangeLog() bool {
	return o.ParentID != ""
}

// HasPendingMutation reports whether a serialized mutation is already in
// flight on this canonical row.
func (o Offer) HasPendingMutation() bool {
	return o.UpdateID != "" || o.DeleteID != ""
}
