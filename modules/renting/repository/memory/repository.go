package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Meeds-io/deeds-dapp-sub003/common"
	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Repository is an in-memory implementation of the renting data gateways,
// used by tests and `--store=memory` development runs. Documents are stored
// by value, so callers never observe each other's mutations before Save.
type Repository struct {
	mu       sync.RWMutex
	offers   map[string]entity.Offer
	leases   map[int64]entity.Lease
	settings map[string]entity.Setting
}

var (
	_ datagateway.OfferDataGateway   = (*Repository)(nil)
	_ datagateway.LeaseDataGateway   = (*Repository)(nil)
	_ datagateway.SettingDataGateway = (*Repository)(nil)
)

func NewRepository() *Repository {
	return &Repository{
		offers:   make(map[string]entity.Offer),
		leases:   make(map[int64]entity.Lease),
		settings: make(map[string]entity.Setting),
	}
}

func (r *Repository) GetOffer(_ context.Context, id string) (*entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	offer, ok := r.offers[id]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "offer %s", id)
	}
	return &offer, nil
}

func (r *Repository) SaveOffer(_ context.Context, offer entity.Offer) error {
	if offer.ID == "" {
		return errors.Wrap(errs.InvalidArgument, "offer id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers[offer.ID] = offer
	return nil
}

func (r *Repository) DeleteOffer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.offers, id)
	return nil
}

func (r *Repository) GetOfferByOfferID(_ context.Context, offerID int64) (*entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, offer := range r.offers {
		if offer.OfferID == offerID && !offer.IsChangeLog() {
			found := offer
			return &found, nil
		}
	}
	return nil, errors.Wrapf(errs.NotFound, "offer with blockchain id %d", offerID)
}

func (r *Repository) ListOffersByNftID(_ context.Context, nftID int64) ([]entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByCreation(lo.Filter(lo.Values(r.offers), func(offer entity.Offer, _ int) bool {
		return offer.NftID == nftID
	})), nil
}

func (r *Repository) ListEnabledOffersByOwner(_ context.Context, owner string, nftID int64) ([]entity.Offer, error) {
	owner = common.NormalizeAddress(owner)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByCreation(lo.Filter(lo.Values(r.offers), func(offer entity.Offer, _ int) bool {
		return offer.Enabled && !offer.IsChangeLog() && offer.NftID == nftID && offer.Owner == owner
	})), nil
}

func (r *Repository) ListPendingOffers(_ context.Context) ([]entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByCreation(lo.Filter(lo.Values(r.offers), func(offer entity.Offer, _ int) bool {
		return offer.TransactionStatus == entity.TransactionStatusInProgress
	})), nil
}

func (r *Repository) GetLease(_ context.Context, id int64) (*entity.Lease, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lease, ok := r.leases[id]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "lease %d", id)
	}
	return &lease, nil
}

func (r *Repository) SaveLease(_ context.Context, lease entity.Lease) error {
	if lease.ID == 0 {
		return errors.Wrap(errs.InvalidArgument, "lease id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leases[lease.ID] = lease
	return nil
}

func (r *Repository) ListLeasesByNftID(_ context.Context, nftID int64) ([]entity.Lease, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	leases := lo.Filter(lo.Values(r.leases), func(lease entity.Lease, _ int) bool {
		return lease.NftID == nftID
	})
	sort.Slice(leases, func(i, j int) bool { return leases[i].ID < leases[j].ID })
	return leases, nil
}

func (r *Repository) ListLeasesWithPendingTransactions(_ context.Context) ([]entity.Lease, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	leases := lo.Filter(lo.Values(r.leases), func(lease entity.Lease, _ int) bool {
		return len(lease.PendingTransactions) > 0
	})
	sort.Slice(leases, func(i, j int) bool { return leases[i].ID < leases[j].ID })
	return leases, nil
}

func (r *Repository) GetSetting(_ context.Context, key string) (*entity.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	setting, ok := r.settings[key]
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "setting %s", key)
	}
	return &setting, nil
}

func (r *Repository) SaveSetting(_ context.Context, setting entity.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[setting.Key] = setting
	return nil
}

func sortedByCreation(offers []entity.Offer) []entity.Offer {
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].CreatedDate.Equal(offers[j].CreatedDate) {
			return offers[i].ID < offers[j].ID
		}
		return offers[i].CreatedDate.Before(offers[j].CreatedDate)
	})
	return offers
}
