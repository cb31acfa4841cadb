// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package deploy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/go-cmp/cmp"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
})

// Call performs a read-only call of method and returns its first output
// decoded as T. An output of any other Go type is ErrCallMismatch.
func Call[T any](ctx context.Context, caller bind.ContractCaller, address common.Address, contractABI *abi.ABI, method string, args ...interface{}) (T, error) {
	var zero T
	contract := bind.NewBoundContract(address, *contractABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return zero, fmt.Errorf("calling %s at %v: %w", method, address, err)
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%w: %s returned no values", ErrCallMismatch, method)
	}
	value, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, expected %T", ErrCallMismatch, method, out[0], zero)
	}
	return value, nil
}

// Expect calls method and compares its first output with want.
func Expect[T any](ctx context.Context, caller bind.ContractCaller, address common.Address, contractABI *abi.ABI, method string, want T, args ...interface{}) error {
	got, err := Call[T](ctx, caller, address, contractABI, method, args...)
	if err != nil {
		return err
	}
	if !cmp.Equal(want, got, bigIntComparer) {
		return fmt.Errorf("%w: %s (-want +got):\n%s", ErrCallMismatch, method, cmp.Diff(want, got, bigIntComparer))
	}
	return nil
}
