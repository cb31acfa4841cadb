// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package ethutil

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/offchainlabs/nitro-test-infra/util/testhelpers"
)

func receiptAt(block uint64, status uint64) *types.Receipt {
	return &types.Receipt{Status: status, BlockNumber: new(big.Int).SetUint64(block)}
}

func TestNextConfirmationState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		receipt       *types.Receipt
		head          uint64
		confirmations uint64
		want          ConfirmationState
	}{
		{"no receipt", nil, 10, 1, Pending},
		{"included one confirmation", receiptAt(10, types.ReceiptStatusSuccessful), 10, 1, Confirmed},
		{"zero confirmations", receiptAt(10, types.ReceiptStatusSuccessful), 10, 0, Confirmed},
		{"waiting for depth", receiptAt(10, types.ReceiptStatusSuccessful), 11, 3, Pending},
		{"depth reached", receiptAt(10, types.ReceiptStatusSuccessful), 12, 3, Confirmed},
		{"reverted", receiptAt(10, types.ReceiptStatusFailed), 10, 3, Rejected},
	}
	for _, tt := range tests {
		got := NextConfirmationState(tt.receipt, tt.head, tt.confirmations)
		if diff := cmp.Diff(tt.want.String(), got.String()); diff != "" {
			t.Errorf("%s: unexpected state (-want +got):\n%s", tt.name, diff)
		}
	}
	require.False(t, Pending.Terminal())
	require.True(t, TimedOut.Terminal())
}

// scriptedChain includes the transaction after includeAfter receipt polls and
// advances the head by one block on every BlockNumber call.
type scriptedChain struct {
	mutex        sync.Mutex
	polls        int
	includeAfter int
	status       uint64
	head         uint64
	failures     int
	noBlock      bool
}

func (c *scriptedChain) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.polls++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("connection refused")
	}
	if c.includeAfter < 0 || c.polls <= c.includeAfter {
		return nil, ethereum.NotFound
	}
	if c.noBlock {
		return &types.Receipt{Status: c.status}, nil
	}
	return receiptAt(100, c.status), nil
}

func (c *scriptedChain) BlockNumber(_ context.Context) (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.head < 100 {
		c.head = 100
	} else {
		c.head++
	}
	return c.head, nil
}

func fastConfig(confirmations uint64, timeout time.Duration) *ConfirmationConfig {
	return &ConfirmationConfig{
		Confirmations: confirmations,
		PollInterval:  10 * time.Millisecond,
		Timeout:       timeout,
	}
}

func TestWaitForConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	txHash := testhelpers.RandomHash()

	chain := &scriptedChain{includeAfter: 3, status: types.ReceiptStatusSuccessful}
	receipt, err := WaitForConfirmation(ctx, chain, txHash, fastConfig(1, time.Second))
	Require(t, err)
	require.Equal(t, uint64(100), receipt.BlockNumber.Uint64())
	require.Equal(t, 4, chain.polls)

	chain = &scriptedChain{includeAfter: 0, status: types.ReceiptStatusSuccessful}
	_, err = WaitForConfirmation(ctx, chain, txHash, fastConfig(3, time.Second))
	Require(t, err)
	require.GreaterOrEqual(t, chain.head, uint64(102))
}

func TestWaitForConfirmationRejected(t *testing.T) {
	t.Parallel()
	chain := &scriptedChain{includeAfter: 1, status: types.ReceiptStatusFailed}
	receipt, err := WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(1, time.Second))
	require.ErrorIs(t, err, ErrTxRejected)
	require.NotErrorIs(t, err, ErrTxTimedOut)
	require.NotNil(t, receipt)
}

func TestWaitForConfirmationTimedOut(t *testing.T) {
	t.Parallel()
	chain := &scriptedChain{includeAfter: -1}
	timeout := 100 * time.Millisecond
	start := time.Now()
	_, err := WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(1, timeout))
	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrTxTimedOut)
	require.NotErrorIs(t, err, ErrTxRejected)
	require.GreaterOrEqual(t, elapsed, timeout)
	require.Less(t, elapsed, 5*time.Second)
}

func TestWaitForConfirmationTransientErrors(t *testing.T) {
	t.Parallel()
	chain := &scriptedChain{includeAfter: 0, failures: 2, status: types.ReceiptStatusSuccessful}
	_, err := WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(1, time.Second))
	Require(t, err)

	chain = &scriptedChain{includeAfter: 0, failures: 1 << 20}
	_, err = WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(1, 50*time.Millisecond))
	require.ErrorIs(t, err, ErrTxTimedOut)
	require.Contains(t, err.Error(), "connection refused")
}

func TestWaitForConfirmationReceiptWithoutBlock(t *testing.T) {
	t.Parallel()
	chain := &scriptedChain{includeAfter: 0, status: types.ReceiptStatusSuccessful, noBlock: true}
	_, err := WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(1, 50*time.Millisecond))
	require.ErrorIs(t, err, ErrTxTimedOut)

	chain = &scriptedChain{includeAfter: 0, status: types.ReceiptStatusSuccessful, noBlock: true}
	_, err = WaitForConfirmation(context.Background(), chain, testhelpers.RandomHash(), fastConfig(3, 50*time.Millisecond))
	require.ErrorIs(t, err, ErrTxTimedOut)
}

func TestWaitForConfirmationCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := WaitForConfirmation(ctx, &scriptedChain{includeAfter: -1}, testhelpers.RandomHash(), fastConfig(1, time.Minute))
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTxTimedOut)
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
