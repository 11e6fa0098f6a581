package datagateway

import (
	"context"

	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
)

// OfferDataGateway is the single-document store contract for offers. All
// operations are atomic per document; no multi-document transactions are
// assumed, so callers rely on guard fields rather than locks.
type OfferDataGateway interface {
	GetOffer(ctx context.Context, id string) (*entity.Offer, error)
	SaveOffer(ctx context.Context, offer entity.Offer) error
	DeleteOffer(ctx context.Context, id string) error

	// GetOfferByOfferID returns the canonical row carrying the given
	// on-chain offer id.
	GetOfferByOfferID(ctx context.Context, offerID int64) (*entity.Offer, error)

	ListOffersByNftID(ctx context.Context, nftID int64) ([]entity.Offer, error)

	// ListEnabledOffersByOwner returns enabled canonical offers owned by
	// the (lower-cased) address for the given Deed.
	ListEnabledOffersByOwner(ctx context.Context, owner string, nftID int64) ([]entity.Offer, error)

	// ListPendingOffers returns every row (canonical or change-log) whose
	// transaction status is IN_PROGRESS, ordered by creation date.
	ListPendingOffers(ctx context.Context) ([]entity.Offer, error)
}

// LeaseDataGateway is the single-document store contract for leases.
type LeaseDataGateway interface {
	GetLease(ctx context.Context, id int64) (*entity.Lease, error)
	SaveLease(ctx context.Context, lease entity.Lease) error

	ListLeasesByNftID(ctx context.Context, nftID int64) ([]entity.Lease, error)

	// ListLeasesWithPendingTransactions returns leases whose
	// pendingTransactions list is non-empty, for the reconciliation sweep.
	ListLeasesWithPendingTransactions(ctx context.Context) ([]entity.Lease, error)
}

// SettingDataGateway persists named sweep cursors.
type SettingDataGateway interface {
	GetSetting(ctx context.Context, key string) (*entity.Setting, error)
	SaveSetting(ctx context.Context, setting entity.Setting) error
}
