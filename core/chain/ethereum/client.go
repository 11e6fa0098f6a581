package ethereum

import (
	"context"
	"math/big"

	"github.com/Meeds-io/deeds-dapp-sub003/common/errs"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client implements chain.Reader on top of an Ethereum-compatible JSON-RPC
// node.
type Client struct {
	eth      *ethclient.Client
	contract ethcommon.Address
}

var _ chain.Reader = (*Client)(nil)

type Config struct {
	RPC             string
	RentingContract string
}

func NewClient(ctx context.Context, conf Config) (*Client, error) {
	if conf.RPC == "" {
		return nil, errors.Wrap(errs.InvalidArgument, "ethereum rpc endpoint is required")
	}
	if !ethcommon.IsHexAddress(conf.RentingContract) {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid renting contract address %q", conf.RentingContract)
	}
	eth, err := ethclient.DialContext(ctx, conf.RPC)
	if err != nil {
		return nil, errors.Wrap(err, "can't connect to ethereum rpc endpoint")
	}
	return &Client{
		eth:      eth,
		contract: ethcommon.HexToAddress(conf.RentingContract),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// IsTransactionMined implements chain.Reader.
func (c *Client) IsTransactionMined(ctx context.Context, txHash string) (bool, error) {
	receipt, err := c.receipt(ctx, txHash)
	if err != nil {
		return false, err
	}
	return receipt != nil, nil
}

// HeadBlockNumber implements chain.Reader.
func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(errs.Unavailable, err.Error())
	}
	return head, nil
}

// OfferTransactionEvents implements chain.Reader.
func (c *Client) OfferTransactionEvents(ctx context.Context, txHash string) (map[chain.OfferEventKind]chain.OfferState, error) {
	logs, err := c.transactionLogs(ctx, txHash)
	if err != nil {
		return nil, err
	}
	events := make(map[chain.OfferEventKind]chain.OfferState)
	for _, log := range logs {
		evt, err := decodeLog(log)
		if err != nil {
			return nil, err
		}
		if evt != nil && evt.Offer != nil {
			events[evt.OfferKind] = *evt.Offer
		}
	}
	return events, nil
}

// LeaseTransactionEvents implements chain.Reader.
func (c *Client) LeaseTransactionEvents(ctx context.Context, txHash string) (map[chain.LeaseEventKind]chain.LeaseState, error) {
	logs, err := c.transactionLogs(ctx, txHash)
	if err != nil {
		return nil, err
	}
	events := make(map[chain.LeaseEventKind]chain.LeaseState)
	for _, log := range logs {
		evt, err := decodeLog(log)
		if err != nil {
			return nil, err
		}
		if evt != nil && evt.Lease != nil {
			events[evt.LeaseKind] = *evt.Lease
		}
	}
	return events, nil
}

// RentingEvents implements chain.Reader.
func (c *Client) RentingEvents(ctx context.Context, fromBlock, toBlock uint64) ([]chain.RentingEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []ethcommon.Address{c.contract},
	})
	if err != nil {
		return nil, errors.Wrap(errs.Unavailable, err.Error())
	}

	events := make([]chain.RentingEvent, 0, len(logs))
	for _, log := range logs {
		evt, err := decodeLog(log)
		if err != nil {
			return nil, err
		}
		if evt != nil {
			events = append(events, *evt)
		}
	}
	return events, nil
}

func (c *Client) receipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, ethcommon.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errs.Unavailable, err.Error())
	}
	return receipt, nil
}

// transactionLogs returns the contract logs of a mined transaction. A
// reverted transaction yields no logs, which callers interpret as a failed
// outcome.
func (c *Client) transactionLogs(ctx context.Context, txHash string) ([]types.Log, error) {
	receipt, err := c.receipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, errors.Wrapf(errs.NotFound, "transaction %s is not mined yet", txHash)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, nil
	}

	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if log != nil && log.Address == c.contract {
			logs = append(logs, *log)
		}
	}
	return logs, nil
}
