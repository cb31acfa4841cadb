// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package deploy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/util/ethutil"
	"github.com/offchainlabs/nitro-test-infra/util/pretty"
)

var (
	ErrDeploymentFailed  = errors.New("contract deployment failed")
	ErrDeploymentTimeout = errors.New("contract deployment not confirmed in time")
	ErrCallMismatch      = errors.New("contract call returned unexpected value")
)

type Config struct {
	GasLimit     uint64                     `koanf:"gas-limit"`
	Confirmation ethutil.ConfirmationConfig `koanf:"confirmation"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	GasLimit:     3_000_000,
	Confirmation: ethutil.DefaultConfirmationConfig,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint64(prefix+".gas-limit", DefaultConfig.GasLimit, "gas limit of the contract creation transaction")
	ethutil.ConfirmationConfigAddOptions(prefix+".confirmation", f)
}

func (c *Config) Validate() error {
	if c.GasLimit == 0 {
		return errors.New("gas-limit must be positive")
	}
	return c.Confirmation.Validate()
}

// Backend is implemented by ethclient.Client and the simulated backend client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ethereum.ChainIDReader
	BlockNumber(ctx context.Context) (uint64, error)
}

// CompiledContract is the ABI and creation bytecode produced by solc.
type CompiledContract struct {
	ABI      abi.ABI
	RawABI   string
	Bytecode []byte
}

func NewCompiledContract(abiJSON string, binHex string) (*CompiledContract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	binHex = strings.TrimSpace(binHex)
	if !strings.HasPrefix(binHex, "0x") {
		binHex = "0x" + binHex
	}
	bytecode, err := hexutil.Decode(binHex)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	if len(bytecode) == 0 {
		return nil, errors.New("empty bytecode")
	}
	return &CompiledContract{ABI: parsed, RawABI: abiJSON, Bytecode: bytecode}, nil
}

// LoadCompiledContract reads the .abi/.bin pair written by `solc --abi --bin`.
func LoadCompiledContract(abiPath string, binPath string) (*CompiledContract, error) {
	abiJSON, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, err
	}
	bin, err := os.ReadFile(binPath)
	if err != nil {
		return nil, err
	}
	return NewCompiledContract(string(abiJSON), string(bin))
}

type Deployer struct {
	config  ConfigFetcher
	backend Backend
}

func NewDeployer(config ConfigFetcher, backend Backend) *Deployer {
	return &Deployer{
		config:  config,
		backend: backend,
	}
}

func (d *Deployer) Backend() Backend {
	return d.backend
}

// DeployAndVerify signs and submits the creation transaction with key, waits
// for the configured confirmation depth and checks that code exists at the
// created address.
func (d *Deployer) DeployAndVerify(ctx context.Context, contract *CompiledContract, key *ecdsa.PrivateKey, params ...interface{}) (common.Address, error) {
	config := d.config()
	chainId, err := d.backend.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("reading chain id: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainId)
	if err != nil {
		return common.Address{}, err
	}
	auth.Context = ctx
	auth.GasLimit = config.GasLimit

	_, tx, _, err := bind.DeployContract(auth, contract.ABI, contract.Bytecode, d.backend, params...)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: error submitting tx: %v", ErrDeploymentFailed, err)
	}
	log.Info("submitted contract deployment", "tx", tx.Hash(), "from", auth.From, "gas", tx.Gas(), "bytecode", pretty.FirstFewBytes(contract.Bytecode))

	receipt, err := ethutil.WaitForConfirmation(ctx, d.backend, tx.Hash(), &config.Confirmation)
	switch {
	case errors.Is(err, ethutil.ErrTxTimedOut):
		return common.Address{}, fmt.Errorf("%w: %v", ErrDeploymentTimeout, err)
	case errors.Is(err, ethutil.ErrTxRejected):
		callMsg := ethereum.CallMsg{
			From:      auth.From,
			Gas:       tx.Gas(),
			GasFeeCap: tx.GasFeeCap(),
			GasTipCap: tx.GasTipCap(),
			Value:     tx.Value(),
			Data:      tx.Data(),
		}
		detail := ethutil.DetailTxError(ctx, d.backend, tx.Hash(), receipt, callMsg)
		return common.Address{}, fmt.Errorf("%w: %v: %v", ErrDeploymentFailed, err, detail)
	case err != nil:
		return common.Address{}, err
	}

	address := receipt.ContractAddress
	if address == (common.Address{}) {
		address = crypto.CreateAddress(auth.From, tx.Nonce())
	}
	code, err := d.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("reading code at %v: %w", address, err)
	}
	if len(code) == 0 {
		return common.Address{}, fmt.Errorf("%w: no code at %v after tx %v", ErrDeploymentFailed, address, tx.Hash())
	}
	log.Info("contract deployed", "address", address, "tx", tx.Hash(), "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return address, nil
}
