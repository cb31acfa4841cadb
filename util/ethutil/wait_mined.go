// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package ethutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrTxRejected = errors.New("transaction rejected")
	ErrTxTimedOut = errors.New("timed out waiting for transaction confirmation")
)

type ConfirmationState uint8

const (
	Pending ConfirmationState = iota
	Confirmed
	Rejected
	TimedOut
)

func (s ConfirmationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("ConfirmationState(%d)", uint8(s))
}

func (s ConfirmationState) Terminal() bool {
	return s != Pending
}

type ConfirmationConfig struct {
	Confirmations uint64        `koanf:"confirmations"`
	PollInterval  time.Duration `koanf:"poll-interval"`
	Timeout       time.Duration `koanf:"timeout"`
}

var DefaultConfirmationConfig = ConfirmationConfig{
	Confirmations: 1,
	PollInterval:  time.Second,
	Timeout:       time.Minute,
}

func ConfirmationConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint64(prefix+".confirmations", DefaultConfirmationConfig.Confirmations, "number of blocks, including the inclusion block, before a transaction is treated as durable")
	f.Duration(prefix+".poll-interval", DefaultConfirmationConfig.PollInterval, "how often to poll for the receipt and head block")
	f.Duration(prefix+".timeout", DefaultConfirmationConfig.Timeout, "how long to wait for confirmation before giving up")
}

func (c *ConfirmationConfig) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// ReceiptReader is satisfied by ethclient.Client and the simulated backend client.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// NextConfirmationState is the transition function of the confirmation loop.
// A nil receipt means the transaction is not yet included.
func NextConfirmationState(receipt *types.Receipt, head uint64, confirmations uint64) ConfirmationState {
	if receipt == nil || receipt.BlockNumber == nil {
		return Pending
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Rejected
	}
	included := receipt.BlockNumber.Uint64()
	if head+1 >= included+confirmations {
		return Confirmed
	}
	return Pending
}

func pollConfirmation(ctx context.Context, client ReceiptReader, txHash common.Hash, confirmations uint64) (ConfirmationState, *types.Receipt, error) {
	receipt, err := client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return Pending, nil, nil
	}
	if err != nil {
		return Pending, nil, err
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return Pending, nil, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful || confirmations <= 1 {
		return NextConfirmationState(receipt, receipt.BlockNumber.Uint64(), confirmations), receipt, nil
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return Pending, receipt, err
	}
	return NextConfirmationState(receipt, head, confirmations), receipt, nil
}

// WaitForConfirmation polls until txHash reaches config.Confirmations, its receipt
// reports failure, or config.Timeout elapses. Rejections wrap ErrTxRejected and
// expired windows wrap ErrTxTimedOut. Cancelling ctx returns ctx.Err().
func WaitForConfirmation(ctx context.Context, client ReceiptReader, txHash common.Hash, config *ConfirmationConfig) (*types.Receipt, error) {
	windowCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	state := Pending
	var receipt *types.Receipt
	var lastErr error
	for polls := 1; ; polls++ {
		var err error
		state, receipt, err = pollConfirmation(windowCtx, client, txHash, config.Confirmations)
		if err != nil && windowCtx.Err() == nil {
			// Treated as transient, the window still bounds the wait.
			log.Debug("error polling transaction", "tx", txHash, "poll", polls, "err", err)
			lastErr = err
		}
		switch state {
		case Confirmed:
			log.Debug("transaction confirmed", "tx", txHash, "block", receipt.BlockNumber, "polls", polls)
			return receipt, nil
		case Rejected:
			return receipt, fmt.Errorf("%w: tx %v in block %v", ErrTxRejected, txHash, receipt.BlockNumber)
		}
		select {
		case <-windowCtx.Done():
			if ctx.Err() != nil {
				return receipt, ctx.Err()
			}
			log.Warn("transaction not confirmed in time", "tx", txHash, "state", TimedOut, "polls", polls)
			if lastErr != nil {
				return receipt, fmt.Errorf("%w: tx %v after %v (last error: %v)", ErrTxTimedOut, txHash, config.Timeout, lastErr)
			}
			return receipt, fmt.Errorf("%w: tx %v after %v", ErrTxTimedOut, txHash, config.Timeout)
		case <-ticker.C:
		}
	}
}
