package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// HubReportStatusType is the reward lifecycle status of a Hub report.
type HubReportStatusType string

const (
	StatusNone          HubReportStatusType = "NONE"
	StatusInvalid       HubReportStatusType = "INVALID"
	StatusSent          HubReportStatusType = "SENT"
	StatusErrorSending  HubReportStatusType = "ERROR_SENDING"
	StatusPendingReward HubReportStatusType = "PENDING_REWARD"
	StatusRewarded      HubReportStatusType = "REWARDED"
	StatusRejected      HubReportStatusType = "REJECTED"
)

// HubReport is a Hub's weekly engagement report, identified by its
// content-addressed hash. Ownership fields are decorated from the Deed's
// confirmed lease when the report is received.
type HubReport struct {
	Hash       string `json:"hash"`
	HubAddress string `json:"hubAddress"`
	NftID      int64  `json:"nftId"`
	City       string `json:"city,omitempty"`
	CardType   string `json:"cardType,omitempty"`

	Period   RewardPeriod `json:"period"`
	SentDate time.Time    `json:"sentDate"`

	UsersCount        int64 `json:"usersCount"`
	ParticipantsCount int64 `json:"participantsCount"`
	RecipientsCount   int64 `json:"recipientsCount"`
	AchievementsCount int64 `json:"achievementsCount"`

	HubRewardAmount decimal.Decimal `json:"hubRewardAmount"`

	// Lease ownership snapshot captured at reception time.
	OwnerAddress           string `json:"ownerAddress,omitempty"`
	ManagerAddress         string `json:"managerAddress,omitempty"`
	OwnerMintingPercentage int    `json:"ownerMintingPercentage,omitempty"`

	Status        HubReportStatusType `json:"status"`
	Error         string              `json:"error,omitempty"`
	RewardID      string              `json:"rewardId,omitempty"`
	RewardPayment decimal.Decimal     `json:"rewardPayment"`

	UpdatedDate time.Time `json:"updatedDate"`
}

// UemReward is the aggregated reward computation for one period. Recomputing
// a period overwrites the row with the same converged totals.
type UemReward struct {
	// ID is the period key, so one reward row exists per period.
	ID     string       `json:"id"`
	Period RewardPeriod `json:"period"`

	ReportHashes      []string        `json:"reportHashes,omitempty"`
	HubsCount         int             `json:"hubsCount"`
	AchievementsCount int64           `json:"achievementsCount"`
	Amount            decimal.Decimal `json:"amount"`

	ComputedDate time.Time `json:"computedDate"`
}
