package postgres

import (
	"context"

	"github.com/Meeds-io/deeds-dapp-sub003/common"
	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/internal/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Repository stores offers and leases as JSONB documents with a few indexed
// columns for the gateway queries. Upserts are single-row and therefore
// atomic per document; concurrent writers get last-write-wins.
type Repository struct {
	db postgres.DB
}

var (
	_ datagateway.OfferDataGateway   = (*Repository)(nil)
	_ datagateway.LeaseDataGateway   = (*Repository)(nil)
	_ datagateway.SettingDataGateway = (*Repository)(nil)
)

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS renting_offers (
	id TEXT PRIMARY KEY,
	offer_id BIGINT NOT NULL DEFAULT 0,
	nft_id BIGINT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	transaction_status TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	created_date TIMESTAMPTZ NOT NULL,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS renting_offers_nft_id_idx ON renting_offers (nft_id);
CREATE INDEX IF NOT EXISTS renting_offers_status_idx ON renting_offers (transaction_status);
CREATE INDEX IF NOT EXISTS renting_offers_owner_idx ON renting_offers (owner, nft_id);

CREATE TABLE IF NOT EXISTS renting_leases (
	id BIGINT PRIMARY KEY,
	nft_id BIGINT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	pending_count INT NOT NULL DEFAULT 0,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS renting_leases_nft_id_idx ON renting_leases (nft_id);
CREATE INDEX IF NOT EXISTS renting_leases_pending_idx ON renting_leases (pending_count) WHERE pending_count > 0;

CREATE TABLE IF NOT EXISTS renting_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// CreateSchema creates the repository tables when they do not exist yet.
func (r *Repository) CreateSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create renting schema")
	}
	return nil
}

func (r *Repository) GetOffer(ctx context.Context, id string) (*entity.Offer, error) {
	row := r.db.QueryRow(ctx, `SELECT document FROM renting_offers WHERE id = $1`, id)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "offer %s", id)
		}
		return nil, errors.Wrap(err, "failed to get offer")
	}
	return offer, nil
}

func (r *Repository) SaveOffer(ctx context.Context, offer entity.Offer) error {
	if offer.ID == "" {
		return errors.Wrap(errs.InvalidArgument, "offer id is required")
	}
	document, err := marshalOffer(offer)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO renting_offers (id, offer_id, nft_id, owner, enabled, transaction_status, parent_id, created_date, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			offer_id = EXCLUDED.offer_id,
			nft_id = EXCLUDED.nft_id,
			owner = EXCLUDED.owner,
			enabled = EXCLUDED.enabled,
			transaction_status = EXCLUDED.transaction_status,
			parent_id = EXCLUDED.parent_id,
			created_date = EXCLUDED.created_date,
			document = EXCLUDED.document`,
		offer.ID, offer.OfferID, offer.NftID, offer.Owner, offer.Enabled,
		string(offer.TransactionStatus), offer.ParentID, offer.CreatedDate, document,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save offer")
	}
	return nil
}

func (r *Repository) DeleteOffer(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM renting_offers WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete offer")
	}
	return nil
}

func (r *Repository) GetOfferByOfferID(ctx context.Context, offerID int64) (*entity.Offer, error) {
	row := r.db.QueryRow(ctx, `
		SELECT document FROM renting_offers
		WHERE offer_id = $1 AND parent_id = ''
		ORDER BY created_date DESC
		LIMIT 1`, offerID)
	offer, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "offer with blockchain id %d", offerID)
		}
		return nil, errors.Wrap(err, "failed to get offer by blockchain id")
	}
	return offer, nil
}

func (r *Repository) ListOffersByNftID(ctx context.Context, nftID int64) ([]entity.Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM renting_offers
		WHERE nft_id = $1
		ORDER BY created_date ASC`, nftID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list offers by nft id")
	}
	return scanOffers(rows)
}

func (r *Repository) ListEnabledOffersByOwner(ctx context.Context, owner string, nftID int64) ([]entity.Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM renting_offers
		WHERE owner = $1 AND nft_id = $2 AND enabled AND parent_id = ''
		ORDER BY created_date ASC`, common.NormalizeAddress(owner), nftID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enabled offers by owner")
	}
	return scanOffers(rows)
}

func (r *Repository) ListPendingOffers(ctx context.Context) ([]entity.Offer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM renting_offers
		WHERE transaction_status = $1
		ORDER BY created_date ASC`, string(entity.TransactionStatusInProgress))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending offers")
	}
	return scanOffers(rows)
}

func (r *Repository) GetLease(ctx context.Context, id int64) (*entity.Lease, error) {
	row := r.db.QueryRow(ctx, `SELECT document FROM renting_leases WHERE id = $1`, id)
	lease, err := scanLease(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "lease %d", id)
		}
		return nil, errors.Wrap(err, "failed to get lease")
	}
	return lease, nil
}

func (r *Repository) SaveLease(ctx context.Context, lease entity.Lease) error {
	if lease.ID == 0 {
		return errors.Wrap(errs.InvalidArgument, "lease id is required")
	}
	document, err := marshalLease(lease)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO renting_leases (id, nft_id, owner, pending_count, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			nft_id = EXCLUDED.nft_id,
			owner = EXCLUDED.owner,
			pending_count = EXCLUDED.pending_count,
			document = EXCLUDED.document`,
		lease.ID, lease.NftID, lease.Owner, len(lease.PendingTransactions), document,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save lease")
	}
	return nil
}

func (r *Repository) ListLeasesByNftID(ctx context.Context, nftID int64) ([]entity.Lease, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM renting_leases
		WHERE nft_id = $1
		ORDER BY id ASC`, nftID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list leases by nft id")
	}
	return scanLeases(rows)
}

func (r *Repository) ListLeasesWithPendingTransactions(ctx context.Context) ([]entity.Lease, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM renting_leases
		WHERE pending_count > 0
		ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list leases with pending transactions")
	}
	return scanLeases(rows)
}

func (r *Repository) GetSetting(ctx context.Context, key string) (*entity.Setting, error) {
	var setting entity.Setting
	err := r.db.QueryRow(ctx, `SELECT key, value FROM renting_settings WHERE key = $1`, key).
		Scan(&setting.Key, &setting.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(errs.NotFound, "setting %s", key)
		}
		return nil, errors.Wrap(err, "failed to get setting")
	}
	return &setting, nil
}

func (r *Repository) SaveSetting(ctx context.Context, setting entity.Setting) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO renting_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		setting.Key, setting.Value,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save setting")
	}
	return nil
}
