package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lease is a rental agreement derived from an accepted Offer. It becomes
// confirmed only once its acquisition transaction is mined and decoded.
type Lease struct {
	// ID is the on-chain lease identifier assigned by the renting contract.
	ID int64 `json:"id"`

	NftID    int64  `json:"nftId"`
	City     string `json:"city,omitempty"`
	CardType string `json:"cardType,omitempty"`

	Months                 int `json:"months"`
	PaidMonths             int `json:"paidMonths"`
	MonthPaymentInProgress int `json:"monthPaymentInProgress"`

	Owner         string   `json:"owner"`
	Manager       string   `json:"manager"`
	ManagerEmail  string   `json:"managerEmail,omitempty"`
	ViewAddresses []string `json:"viewAddresses,omitempty"`

	Amount                 decimal.Decimal    `json:"amount"`
	AllDurationAmount      decimal.Decimal    `json:"allDurationAmount"`
	NoticePeriodMonths     int                `json:"noticePeriodMonths"`
	PaymentPeriodicity     PaymentPeriodicity `json:"paymentPeriodicity"`
	OwnerMintingPercentage int                `json:"ownerMintingPercentage"`
	MintingPower           float64            `json:"mintingPower"`

	// PendingTransactions is the ordered list of outstanding transaction
	// hashes; a lease may accumulate several pending operations at once.
	PendingTransactions []string          `json:"pendingTransactions,omitempty"`
	TransactionStatus   TransactionStatus `json:"transactionStatus"`

	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	NoticeDate    time.Time `json:"noticeDate,omitempty"`
	PaidRentsDate time.Time `json:"paidRentsDate,omitempty"`
	CreatedDate   time.Time `json:"createdDate"`

	Confirmed bool `json:"confirmed"`
	Enabled   bool `json:"enabled"`

	EndingLease        bool   `json:"endingLease"`
	EndingLeaseAddress string `json:"endingLeaseAddress,omitempty"`

	LastCheckedBlock uint64 `json:"lastCheckedBlock,omitempty"`
}

// HasPendingTransaction reports whether txHash is already tracked on the
// lease (case-insensitive hashes are stored lower-case).
func (l Lease) HasPendingTransaction(txHash string) bool {
	for _, hash := range l.PendingTransactions {
		if hash == txHash {
			return true
		}
	}
	return false
}
