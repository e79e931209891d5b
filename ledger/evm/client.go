// Package evm adapts an EVM node into the bridge's LedgerClient and
// WalletClient interfaces. The target contract exposes a single
// invoke(string,bytes[]) entrypoint mirroring the marketplace calling
// convention, and reports everything it does through a Notify(string,
// bytes[]) event.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lootmarkets/ledgerbridge"
)

// invoke returns the Notify events the execution emitted, so an eth_call
// dry run (which mines nothing and therefore produces no logs) still
// surfaces them. Submitted transactions report through the event log as
// usual.
const contractABIJSON = `[
  {"type":"function","name":"invoke","stateMutability":"nonpayable",
   "inputs":[{"name":"operation","type":"string"},{"name":"args","type":"bytes[]"}],
   "outputs":[{"name":"notifications","type":"tuple[]","components":[
     {"name":"name","type":"string"},{"name":"payload","type":"bytes[]"}]}]},
  {"type":"event","name":"Notify","anonymous":false,
   "inputs":[{"name":"name","type":"string","indexed":false},
             {"name":"payload","type":"bytes[]","indexed":false}]}
]`

var contractABI = mustABI(contractABIJSON)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("contract ABI: %v", err))
	}
	return parsed
}

// Client implements ledgerbridge.LedgerClient over an EVM node, signing
// submissions with the operator's ECDSA key.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	bus      *ledgerbridge.Bus
	logger   *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBus republishes the notifications a dry run returns, so reads get
// the same synchronous projection refresh a mined invoke gets from the
// log stream.
func WithBus(bus *ledgerbridge.Bus) ClientOption {
	return func(c *Client) {
		c.bus = bus
	}
}

// NewClient dials the node and derives the operator address from the
// hex-encoded private key (with or without "0x" prefix).
func NewClient(ctx context.Context, rpcURL, contractHex, operatorKeyHex string, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	key, from, err := parseOperatorKey(operatorKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	c := &Client{
		eth:      eth,
		contract: common.HexToAddress(contractHex),
		key:      key,
		from:     from,
		chainID:  chainID,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseOperatorKey(operatorKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid operator key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Operator returns the address submissions are signed with.
func (c *Client) Operator() common.Address { return c.from }

// EthClient exposes the underlying node connection so the wallet adapter
// can share it.
func (c *Client) EthClient() *ethclient.Client { return c.eth }

// PackInvoke encodes one contract call as calldata.
func PackInvoke(operation string, params [][]byte) ([]byte, error) {
	data, err := contractABI.Pack("invoke", operation, params)
	if err != nil {
		return nil, fmt.Errorf("pack invoke %s: %w", operation, err)
	}
	return data, nil
}

// dryRunNotification mirrors one Notify event in invoke's return value.
type dryRunNotification struct {
	Name    string
	Payload [][]byte
}

// TestInvoke executes the call with eth_call and estimates the fee, without
// mutating the chain. The notifications the execution emitted come back in
// the return data and are republished on the bus before TestInvoke returns,
// so callers read a projection the dry run has already refreshed.
func (c *Client) TestInvoke(ctx context.Context, call ledgerbridge.ContractCall) (*ledgerbridge.InvokeResult, error) {
	data, err := PackInvoke(call.Operation, call.Params)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}
	output, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("dry run %s: %w", call.Operation, err)
	}
	c.publishDryRunNotifications(call.Operation, output)
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas for %s: %w", call.Operation, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	return &ledgerbridge.InvokeResult{
		Script:   data,
		Fee:      fee.Uint64(),
		GasLimit: gas,
		GasPrice: gasPrice.Uint64(),
	}, nil
}

func (c *Client) publishDryRunNotifications(operation string, output []byte) {
	if c.bus == nil || len(output) == 0 {
		return
	}
	notes, err := decodeDryRunNotifications(output)
	if err != nil {
		c.logger.Warn("dropping undecodable dry-run notifications",
			"operation", operation, "error", err)
		return
	}
	for _, note := range notes {
		c.bus.Publish(note.Name, note.Payload)
	}
}

func decodeDryRunNotifications(output []byte) ([]dryRunNotification, error) {
	values, err := contractABI.Methods["invoke"].Outputs.Unpack(output)
	if err != nil {
		return nil, fmt.Errorf("unpack invoke output: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("invoke output: want 1 value, got %d", len(values))
	}
	return *abi.ConvertType(values[0], new([]dryRunNotification)).(*[]dryRunNotification), nil
}

// Submit signs the dry-run script and relays it, returning the transaction
// hash.
func (c *Client) Submit(ctx context.Context, result *ledgerbridge.InvokeResult) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("query nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), result.GasLimit,
		new(big.Int).SetUint64(result.GasPrice), result.Script)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("relay transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// GetTransaction reports inclusion via the transaction receipt.
func (c *Client) GetTransaction(ctx context.Context, txID string) (bool, uint64, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txID))
	if errors.Is(err, ethereum.NotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("query receipt %s: %w", txID, err)
	}
	return true, receipt.BlockNumber.Uint64(), nil
}

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) HeaderHeight(ctx context.Context) (uint64, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("query header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// DecodeAddress renders a script-hash payload the way this chain writes
// addresses. Install it on the projector.
func DecodeAddress(scriptHash []byte) string {
	return common.BytesToAddress(scriptHash).Hex()
}
