// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package provisioner creates funded accounts on a node that keeps keys in
// its own keystore.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/cmd/genericconf"
	"github.com/offchainlabs/nitro-test-infra/util/ethutil"
)

var (
	ErrNoAccountsAvailable = errors.New("node reports no accounts")
	ErrImportFailed        = errors.New("importing key failed")
	ErrTransferFailed      = errors.New("funding transfer failed")
	ErrTransferTimeout     = errors.New("funding transfer not confirmed in time")
	ErrUnlockFailed        = errors.New("unlocking account failed")
)

type Config struct {
	FundingAmount    string                     `koanf:"funding-amount"`
	TransferGas      uint64                     `koanf:"transfer-gas"`
	ImportPassphrase string                     `koanf:"import-passphrase"`
	Root             genericconf.WalletConfig   `koanf:"root"`
	Confirmation     ethutil.ConfirmationConfig `koanf:"confirmation"`
}

type ConfigFetcher func() *Config

// 100 ETH
var DefaultConfig = Config{
	FundingAmount:    "100000000000000000000",
	TransferGas:      50_000,
	ImportPassphrase: "",
	Root:             genericconf.WalletConfigDefault,
	Confirmation:     ethutil.DefaultConfirmationConfig,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".funding-amount", DefaultConfig.FundingAmount, "wei transferred from the root account to every provisioned account")
	f.Uint64(prefix+".transfer-gas", DefaultConfig.TransferGas, "gas limit of the funding transfer")
	f.String(prefix+".import-passphrase", DefaultConfig.ImportPassphrase, "passphrase protecting imported keys in the node keystore")
	genericconf.WalletConfigAddOptions(prefix+".root", f)
	ethutil.ConfirmationConfigAddOptions(prefix+".confirmation", f)
}

func (c *Config) Funding() (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(c.FundingAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid funding-amount %q: %w", c.FundingAmount, err)
	}
	return amount, nil
}

func (c *Config) Validate() error {
	amount, err := c.Funding()
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return errors.New("funding-amount must be positive")
	}
	if c.TransferGas == 0 {
		return errors.New("transfer-gas must be positive")
	}
	if err := c.Root.Validate(); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	return c.Confirmation.Validate()
}

// NodeClient is the raw JSON-RPC surface the provisioner needs.
type NodeClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

type Account struct {
	Address common.Address
	Balance *uint256.Int
}

type Provisioner struct {
	config   ConfigFetcher
	client   NodeClient
	receipts ethutil.ReceiptReader
}

func NewProvisioner(config ConfigFetcher, client NodeClient, receipts ethutil.ReceiptReader) *Provisioner {
	return &Provisioner{
		config:   config,
		client:   client,
		receipts: receipts,
	}
}

func (p *Provisioner) Balance(ctx context.Context, address common.Address) (*uint256.Int, error) {
	var result hexutil.Big
	if err := p.client.CallContext(ctx, &result, "eth_getBalance", address, "latest"); err != nil {
		return nil, fmt.Errorf("balance of %v: %w", address, err)
	}
	balance, overflow := uint256.FromBig(result.ToInt())
	if overflow {
		return nil, fmt.Errorf("balance of %v overflows 256 bits", address)
	}
	return balance, nil
}

// DiscoverRoot returns the node account holding the largest balance. Ties go
// to whichever account the node lists first.
func (p *Provisioner) DiscoverRoot(ctx context.Context) (Account, error) {
	var addresses []common.Address
	if err := p.client.CallContext(ctx, &addresses, "eth_accounts"); err != nil {
		return Account{}, fmt.Errorf("listing accounts: %w", err)
	}
	if len(addresses) == 0 {
		return Account{}, ErrNoAccountsAvailable
	}
	var root Account
	for i, address := range addresses {
		balance, err := p.Balance(ctx, address)
		if err != nil {
			return Account{}, err
		}
		if i == 0 || balance.Gt(root.Balance) {
			root = Account{Address: address, Balance: balance}
		}
	}
	log.Info("discovered root account", "address", root.Address, "balance", root.Balance.Dec(), "candidates", len(addresses))
	return root, nil
}

// Root returns the configured root account, falling back to DiscoverRoot.
func (p *Provisioner) Root(ctx context.Context) (Account, error) {
	address := p.config().Root.Address()
	if address == nil {
		return p.DiscoverRoot(ctx)
	}
	balance, err := p.Balance(ctx, *address)
	if err != nil {
		return Account{}, err
	}
	return Account{Address: *address, Balance: balance}, nil
}

// Unlock asks the node to unlock address for duration. Unlocking an account
// that is already unlocked succeeds.
func (p *Provisioner) Unlock(ctx context.Context, address common.Address, passphrase string, duration time.Duration) error {
	seconds := uint64(duration / time.Second)
	var unlocked bool
	if err := p.client.CallContext(ctx, &unlocked, "personal_unlockAccount", address, passphrase, seconds); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrUnlockFailed, address, err)
	}
	if !unlocked {
		return fmt.Errorf("%w: node refused to unlock %v", ErrUnlockFailed, address)
	}
	log.Debug("unlocked account", "address", address, "duration", duration)
	return nil
}

func (p *Provisioner) importKey(ctx context.Context, key PrivateKey, passphrase string) (common.Address, error) {
	expected, err := key.Address()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	var imported common.Address
	if err := p.client.CallContext(ctx, &imported, "personal_importRawKey", key.Hex(), passphrase); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	if imported != expected {
		return common.Address{}, fmt.Errorf("%w: node imported %v, key belongs to %v", ErrImportFailed, imported, expected)
	}
	return imported, nil
}

type transferArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Gas   hexutil.Uint64  `json:"gas"`
	Value *hexutil.Big    `json:"value"`
}

func (p *Provisioner) transfer(ctx context.Context, from common.Address, to common.Address, amount *uint256.Int) (common.Hash, error) {
	config := p.config()
	args := transferArgs{
		From:  from,
		To:    &to,
		Gas:   hexutil.Uint64(config.TransferGas),
		Value: (*hexutil.Big)(amount.ToBig()),
	}
	var txHash common.Hash
	if err := p.client.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	receipt, err := ethutil.WaitForConfirmation(ctx, p.receipts, txHash, &config.Confirmation)
	switch {
	case errors.Is(err, ethutil.ErrTxTimedOut):
		return txHash, fmt.Errorf("%w: %v", ErrTransferTimeout, err)
	case errors.Is(err, ethutil.ErrTxRejected):
		return txHash, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	case err != nil:
		return txHash, err
	}
	log.Debug("funding transfer confirmed", "tx", txHash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return txHash, nil
}

// ProvisionFundedAccount imports a fresh key into the node keystore and funds
// it from root, returning once the transfer is confirmed.
func (p *Provisioner) ProvisionFundedAccount(ctx context.Context, root Account) (Account, PrivateKey, error) {
	config := p.config()
	amount, err := config.Funding()
	if err != nil {
		return Account{}, PrivateKey{}, err
	}
	key, err := GeneratePrivateKey()
	if err != nil {
		return Account{}, PrivateKey{}, err
	}
	address, err := p.importKey(ctx, key, config.ImportPassphrase)
	if err != nil {
		return Account{}, PrivateKey{}, err
	}
	if config.Root.Unlock {
		password := config.Root.Pwd()
		if password == nil {
			return Account{}, PrivateKey{}, fmt.Errorf("%w: no password configured for %v", ErrUnlockFailed, root.Address)
		}
		if err := p.Unlock(ctx, root.Address, *password, config.Root.UnlockDuration); err != nil {
			return Account{}, PrivateKey{}, err
		}
	}
	txHash, err := p.transfer(ctx, root.Address, address, amount)
	if err != nil {
		return Account{}, PrivateKey{}, err
	}
	balance, err := p.Balance(ctx, address)
	if err != nil {
		return Account{}, PrivateKey{}, err
	}
	log.Info("provisioned funded account", "address", address, "amount", amount.Dec(), "tx", txHash)
	return Account{Address: address, Balance: balance}, key, nil
}
