package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lootmarkets/ledgerbridge"
)

// DecodeNotification unpacks one contract log into an event name and its
// ordered payload.
func DecodeNotification(lg types.Log) (string, [][]byte, error) {
	event := contractABI.Events["Notify"]
	values, err := event.Inputs.Unpack(lg.Data)
	if err != nil {
		return "", nil, fmt.Errorf("unpack notification: %w", err)
	}
	if len(values) != 2 {
		return "", nil, fmt.Errorf("notification has %d fields, want 2", len(values))
	}
	name, ok := values[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("notification name is %T, want string", values[0])
	}
	payload, ok := values[1].([][]byte)
	if !ok {
		return "", nil, fmt.Errorf("notification payload is %T, want [][]byte", values[1])
	}
	return name, payload, nil
}

// StreamNotifications subscribes to the contract's logs and republishes
// every decoded Notify event onto the bus until ctx ends. Run it in its own
// goroutine next to the queue worker.
func (c *Client) StreamNotifications(ctx context.Context, bus *ledgerbridge.Bus) error {
	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{Addresses: []common.Address{c.contract}}
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe to contract logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("log subscription: %w", err)
		case lg := <-logs:
			name, payload, err := DecodeNotification(lg)
			if err != nil {
				c.logger.Warn("dropping undecodable contract log", "tx", lg.TxHash, "error", err)
				continue
			}
			bus.Publish(name, payload)
		}
	}
}
