// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package ethutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

// DetailTxError re-executes a failed transaction as a call at its block to
// recover the revert reason, or to tell an out-of-gas failure apart.
func DetailTxError(ctx context.Context, client ethereum.ContractCaller, txHash common.Hash, txRes *types.Receipt, callMsg ethereum.CallMsg) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if txRes == nil {
		return errors.New("expected receipt")
	}
	if txRes.Status == types.ReceiptStatusSuccessful {
		return nil
	}
	var err error
	if _, err = client.CallContract(ctx, callMsg, txRes.BlockNumber); err == nil {
		return fmt.Errorf("tx failed but call succeeded for tx hash %v", txHash)
	}
	callMsg.Gas = 0
	if _, err = client.CallContract(ctx, callMsg, txRes.BlockNumber); err == nil {
		return fmt.Errorf("%w for tx hash %v", vm.ErrOutOfGas, txHash)
	}
	return fmt.Errorf("call replay got: %w for tx hash %v", err, txHash)
}
