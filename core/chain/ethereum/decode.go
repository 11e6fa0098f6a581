package ethereum

import (
	"math/big"
	"strings"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// tokenDecimals is the ERC-20 precision of rent amounts on chain.
const tokenDecimals = 18

// decodeLog maps a raw contract log onto a chain.RentingEvent. Logs emitted
// by unrelated events of the same contract are skipped (nil, nil).
func decodeLog(log types.Log) (*chain.RentingEvent, error) {
	a, err := contractABI()
	if err != nil {
		return nil, errors.Wrap(errs.InternalError, err.Error())
	}
	if len(log.Topics) == 0 {
		return nil, nil
	}

	switch log.Topics[0] {
	case a.Events["OfferCreated"].ID:
		return decodeOfferEvent(chain.OfferCreated, "OfferCreated", log)
	case a.Events["OfferUpdated"].ID:
		return decodeOfferEvent(chain.OfferUpdated, "OfferUpdated", log)
	case a.Events["OfferDeleted"].ID:
		if len(log.Topics) < 3 {
			return nil, errors.Wrapf(errs.DecodeFailure, "OfferDeleted log %s misses indexed topics", log.TxHash)
		}
		return &chain.RentingEvent{
			OfferKind: chain.OfferDeleted,
			Offer: &chain.OfferState{
				OfferID:     log.Topics[1].Big().Int64(),
				NftID:       log.Topics[2].Big().Int64(),
				BlockNumber: log.BlockNumber,
			},
		}, nil
	case a.Events["LeaseAcquired"].ID:
		return decodeLeaseAcquired(log)
	case a.Events["LeasePaid"].ID:
		return decodeLeasePaid(log)
	case a.Events["LeaseEnded"].ID:
		return decodeLeaseEnded(log)
	case a.Events["Transfer"].ID:
		if len(log.Topics) < 4 {
			return nil, errors.Wrapf(errs.DecodeFailure, "Transfer log %s misses indexed topics", log.TxHash)
		}
		return &chain.RentingEvent{
			Transfer: &chain.OwnershipTransfer{
				From:        lowerAddress(ethcommon.BytesToAddress(log.Topics[1].Bytes())),
				To:          lowerAddress(ethcommon.BytesToAddress(log.Topics[2].Bytes())),
				NftID:       log.Topics[3].Big().Int64(),
				BlockNumber: log.BlockNumber,
			},
		}, nil
	default:
		return nil, nil
	}
}

func decodeOfferEvent(kind chain.OfferEventKind, name string, log types.Log) (*chain.RentingEvent, error) {
	values, err := unpackData(name, log)
	if err != nil {
		return nil, err
	}
	if len(log.Topics) < 3 || len(values) < 9 {
		return nil, errors.Wrapf(errs.DecodeFailure, "%s log %s has unexpected shape", name, log.TxHash)
	}

	owner, ok := values[0].(ethcommon.Address)
	if !ok {
		return nil, errors.Wrapf(errs.DecodeFailure, "%s log %s owner is not an address", name, log.TxHash)
	}
	return &chain.RentingEvent{
		OfferKind: kind,
		Offer: &chain.OfferState{
			OfferID:                log.Topics[1].Big().Int64(),
			NftID:                  log.Topics[2].Big().Int64(),
			Owner:                  lowerAddress(owner),
			Amount:                 tokenAmount(values[1]),
			AllDurationAmount:      tokenAmount(values[2]),
			DurationMonths:         toInt(values[3]),
			NoticePeriodMonths:     toInt(values[4]),
			ExpirationDays:         toInt(values[5]),
			OwnerMintingPercentage: toInt(values[6]),
			StartDate:              unixTime(values[7]),
			ExpirationDate:         unixTime(values[8]),
			BlockNumber:            log.BlockNumber,
		},
	}, nil
}

func decodeLeaseAcquired(log types.Log) (*chain.RentingEvent, error) {
	values, err := unpackData("LeaseAcquired", log)
	if err != nil {
		return nil, err
	}
	if len(log.Topics) < 3 || len(values) < 6 {
		return nil, errors.Wrapf(errs.DecodeFailure, "LeaseAcquired log %s has unexpected shape", log.TxHash)
	}

	owner, _ := values[1].(ethcommon.Address)
	manager, _ := values[2].(ethcommon.Address)
	return &chain.RentingEvent{
		LeaseKind: chain.LeaseAcquired,
		Lease: &chain.LeaseState{
			LeaseID:     log.Topics[1].Big().Int64(),
			OfferID:     log.Topics[2].Big().Int64(),
			NftID:       toInt64(values[0]),
			Owner:       lowerAddress(owner),
			Manager:     lowerAddress(manager),
			Months:      toInt(values[3]),
			PaidMonths:  toInt(values[4]),
			EndDate:     unixTime(values[5]),
			BlockNumber: log.BlockNumber,
		},
	}, nil
}

func decodeLeasePaid(log types.Log) (*chain.RentingEvent, error) {
	values, err := unpackData("LeasePaid", log)
	if err != nil {
		return nil, err
	}
	if len(log.Topics) < 2 || len(values) < 3 {
		return nil, errors.Wrapf(errs.DecodeFailure, "LeasePaid log %s has unexpected shape", log.TxHash)
	}

	manager, _ := values[1].(ethcommon.Address)
	return &chain.RentingEvent{
		LeaseKind: chain.LeasePaid,
		Lease: &chain.LeaseState{
			LeaseID:     log.Topics[1].Big().Int64(),
			NftID:       toInt64(values[0]),
			Manager:     lowerAddress(manager),
			PaidMonths:  toInt(values[2]),
			BlockNumber: log.BlockNumber,
		},
	}, nil
}

func decodeLeaseEnded(log types.Log) (*chain.RentingEvent, error) {
	values, err := unpackData("LeaseEnded", log)
	if err != nil {
		return nil, err
	}
	if len(log.Topics) < 2 || len(values) < 2 {
		return nil, errors.Wrapf(errs.DecodeFailure, "LeaseEnded log %s has unexpected shape", log.TxHash)
	}

	manager, _ := values[1].(ethcommon.Address)
	return &chain.RentingEvent{
		LeaseKind: chain.LeaseEnded,
		Lease: &chain.LeaseState{
			LeaseID:     log.Topics[1].Big().Int64(),
			NftID:       toInt64(values[0]),
			Manager:     lowerAddress(manager),
			BlockNumber: log.BlockNumber,
		},
	}, nil
}

func unpackData(name string, log types.Log) ([]interface{}, error) {
	a, err := contractABI()
	if err != nil {
		return nil, errors.Wrap(errs.InternalError, err.Error())
	}
	values, err := a.Events[name].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrapf(errs.DecodeFailure, "can't unpack %s log of tx %s: %s", name, log.TxHash, err.Error())
	}
	return values, nil
}

func lowerAddress(address ethcommon.Address) string {
	return strings.ToLower(address.Hex())
}

func tokenAmount(value interface{}) decimal.Decimal {
	if amount, ok := value.(*big.Int); ok && amount != nil {
		return decimal.NewFromBigInt(amount, -tokenDecimals)
	}
	return decimal.Zero
}

func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case *big.Int:
		if v != nil {
			return v.Int64()
		}
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	}
	return 0
}

func toInt(value interface{}) int {
	return int(toInt64(value))
}

func unixTime(value interface{}) time.Time {
	seconds := toInt64(value)
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
