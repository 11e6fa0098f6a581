package postgres

import (
	"encoding/json"

	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting/entity"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

func marshalOffer(offer entity.Offer) ([]byte, error) {
	document, err := json.Marshal(offer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal offer document")
	}
	return document, nil
}

func marshalLease(lease entity.Lease) ([]byte, error) {
	document, err := json.Marshal(lease)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal lease document")
	}
	return document, nil
}

func scanOffer(row pgx.Row) (*entity.Offer, error) {
	var document []byte
	if err := row.Scan(&document); err != nil {
		return nil, err
	}
	var offer entity.Offer
	if err := json.Unmarshal(document, &offer); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal offer document")
	}
	return &offer, nil
}

func scanOffers(rows pgx.Rows) ([]entity.Offer, error) {
	defer rows.Close()
	var offers []entity.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan offer row")
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate offer rows")
	}
	return offers, nil
}

func scanLease(row pgx.Row) (*entity.Lease, error) {
	var document []byte
	if err := row.Scan(&document); err != nil {
		return nil, err
	}
	var lease entity.Lease
	if err := json.Unmarshal(document, &lease); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal lease document")
	}
	return &lease, nil
}

func scanLeases(rows pgx.Rows) ([]entity.Lease, error) {
	defer rows.Close()
	var leases []entity.Lease
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan lease row")
		}
		leases = append(leases, *lease)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate lease rows")
	}
	return leases, nil
}
