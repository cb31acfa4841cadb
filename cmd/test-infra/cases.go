// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/deploy"
	"github.com/offchainlabs/nitro-test-infra/harness"
	"github.com/offchainlabs/nitro-test-infra/provisioner"
	"github.com/offchainlabs/nitro-test-infra/solc"
)

//go:embed testdata/sol_sources/const_fn.sol
var constFnSource []byte

const constFnFile = "const_fn.sol"

const (
	createNewAccountCase = "node_eth::create_new_account"
	deployContractCase   = "node_eth::deploy_contract"
)

// AccountSource hands out funded accounts. *provisioner.Provisioner is the
// production implementation.
type AccountSource interface {
	Root(ctx context.Context) (provisioner.Account, error)
	ProvisionFundedAccount(ctx context.Context, root provisioner.Account) (provisioner.Account, provisioner.PrivateKey, error)
}

type nodeCases struct {
	config   *TestInfraConfig
	accounts AccountSource
	deployer *deploy.Deployer
}

func newNodeCases(config *TestInfraConfig, accounts AccountSource, deployer *deploy.Deployer) *nodeCases {
	return &nodeCases{
		config:   config,
		accounts: accounts,
		deployer: deployer,
	}
}

func (c *nodeCases) attach(accounts AccountSource, deployer *deploy.Deployer) {
	c.accounts = accounts
	c.deployer = deployer
}

func (c *nodeCases) all() []harness.TestCase {
	return []harness.TestCase{
		{Name: createNewAccountCase, Run: c.createNewAccount},
		{Name: deployContractCase, Run: c.deployContract},
	}
}

func (c *nodeCases) fundedAccount(ctx context.Context) (provisioner.Account, provisioner.PrivateKey, error) {
	root, err := c.accounts.Root(ctx)
	if err != nil {
		return provisioner.Account{}, provisioner.PrivateKey{}, err
	}
	return c.accounts.ProvisionFundedAccount(ctx, root)
}

func (c *nodeCases) createNewAccount(ctx context.Context) error {
	account, _, err := c.fundedAccount(ctx)
	if err != nil {
		return err
	}
	want, err := c.config.Provision.Funding()
	if err != nil {
		return err
	}
	if !account.Balance.Eq(want) {
		return harness.Failuref("balance of %v is %v, expected %v", account.Address, account.Balance.Dec(), want.Dec())
	}
	return nil
}

// loadContract compiles the configured source, or the built-in const_fn.sol when
// none is set, into a fresh directory. Prebuilt abi and bin files skip solc.
func (c *nodeCases) loadContract(ctx context.Context) (*deploy.CompiledContract, error) {
	contractConfig := &c.config.Contract
	if contractConfig.Prebuilt() {
		return deploy.LoadCompiledContract(contractConfig.ABI, contractConfig.Bin)
	}
	outDir, err := os.MkdirTemp("", "test-infra-solc-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			log.Warn("failed to remove compiler output", "dir", outDir, "err", err)
		}
	}()
	source := contractConfig.Source
	if source == "" {
		source = filepath.Join(outDir, constFnFile)
		if err := os.WriteFile(source, constFnSource, 0o600); err != nil {
			return nil, err
		}
	}
	artifacts, err := solc.Compile(ctx, &c.config.Solc, source, filepath.Join(outDir, "out"))
	if err != nil {
		return nil, err
	}
	artifact, err := solc.Find(artifacts, contractConfig.Name)
	if err != nil {
		return nil, err
	}
	return deploy.NewCompiledContract(artifact.ABI, artifact.Bin)
}

func (c *nodeCases) deployContract(ctx context.Context) error {
	contract, err := c.loadContract(ctx)
	if err != nil {
		return fmt.Errorf("loading contract: %w", err)
	}
	_, key, err := c.fundedAccount(ctx)
	if err != nil {
		return err
	}
	ecdsaKey, err := key.ToECDSA()
	if err != nil {
		return err
	}
	address, err := c.deployer.DeployAndVerify(ctx, contract, ecdsaKey)
	if err != nil {
		return err
	}
	backend := c.deployer.Backend()
	if err := deploy.Expect(ctx, backend, address, &contract.ABI, "const_fn_10", uint64(10)); err != nil {
		return asFailure(err)
	}
	if err := deploy.Expect(ctx, backend, address, &contract.ABI, "const_fn_true", true); err != nil {
		return asFailure(err)
	}
	return nil
}

func asFailure(err error) error {
	if errors.Is(err, deploy.ErrCallMismatch) {
		return harness.Failure(err)
	}
	return err
}
