package ethereum

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// rentingABI holds the event fragments of the Deed renting contract that the
// reconciliation poller cares about. Function fragments are omitted since the
// service never submits transactions.
const rentingABI = `[
  {"type":"event","name":"OfferCreated","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":true},
    {"name":"owner","type":"address","indexed":false},
    {"name":"price","type":"uint256","indexed":false},
    {"name":"allDurationPrice","type":"uint256","indexed":false},
    {"name":"months","type":"uint8","indexed":false},
    {"name":"noticePeriod","type":"uint8","indexed":false},
    {"name":"offerExpirationDays","type":"uint16","indexed":false},
    {"name":"ownerMintingPercentage","type":"uint8","indexed":false},
    {"name":"offerStartDate","type":"uint256","indexed":false},
    {"name":"offerExpirationDate","type":"uint256","indexed":false}]},
  {"type":"event","name":"OfferUpdated","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":true},
    {"name":"owner","type":"address","indexed":false},
    {"name":"price","type":"uint256","indexed":false},
    {"name":"allDurationPrice","type":"uint256","indexed":false},
    {"name":"months","type":"uint8","indexed":false},
    {"name":"noticePeriod","type":"uint8","indexed":false},
    {"name":"offerExpirationDays","type":"uint16","indexed":false},
    {"name":"ownerMintingPercentage","type":"uint8","indexed":false},
    {"name":"offerStartDate","type":"uint256","indexed":false},
    {"name":"offerExpirationDate","type":"uint256","indexed":false}]},
  {"type":"event","name":"OfferDeleted","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":true}]},
  {"type":"event","name":"LeaseAcquired","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"offerId","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":false},
    {"name":"owner","type":"address","indexed":false},
    {"name":"manager","type":"address","indexed":false},
    {"name":"months","type":"uint8","indexed":false},
    {"name":"paidMonths","type":"uint8","indexed":false},
    {"name":"endDate","type":"uint256","indexed":false}]},
  {"type":"event","name":"LeasePaid","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":false},
    {"name":"manager","type":"address","indexed":false},
    {"name":"paidMonths","type":"uint8","indexed":false}]},
  {"type":"event","name":"LeaseEnded","inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"deedId","type":"uint256","indexed":false},
    {"name":"manager","type":"address","indexed":false}]},
  {"type":"event","name":"Transfer","inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"tokenId","type":"uint256","indexed":true}]}
]`

var (
	parseABIOnce sync.Once
	parsedABI    abi.ABI
	parseABIErr  error
)

func contractABI() (abi.ABI, error) {
	parseABIOnce.Do(func() {
		parsedABI, parseABIErr = abi.JSON(strings.NewReader(rentingABI))
	})
	return parsedABI, parseABIErr
}
