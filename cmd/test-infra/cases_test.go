// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	"github.com/offchainlabs/nitro-test-infra/deploy"
	"github.com/offchainlabs/nitro-test-infra/harness"
	"github.com/offchainlabs/nitro-test-infra/provisioner"
	"github.com/offchainlabs/nitro-test-infra/util/ethutil"
	"github.com/offchainlabs/nitro-test-infra/util/rpcclient"
	"github.com/offchainlabs/nitro-test-infra/util/testhelpers"
	"github.com/offchainlabs/nitro-test-infra/util/testhelpers/devnode"
)

var fastConfirmation = ethutil.ConfirmationConfig{
	Confirmations: 1,
	PollInterval:  20 * time.Millisecond,
	Timeout:       5 * time.Second,
}

func testInfraConfig() *TestInfraConfig {
	config := DefaultTestInfraConfig
	config.Provision.Confirmation = fastConfirmation
	config.Deploy.Confirmation = fastConfirmation
	config.Contract.ABI = "testdata/prebuilt/ConstFn.abi"
	config.Contract.Bin = "testdata/prebuilt/ConstFn.bin"
	return &config
}

func nodeProvisioner(t *testing.T, config *TestInfraConfig) (*provisioner.Provisioner, *devnode.Node) {
	t.Helper()
	node := devnode.New(t)
	clientConfig := rpcclient.TestClientConfig
	clientConfig.URL = node.URL()
	client := rpcclient.NewRpcClient(func() *rpcclient.ClientConfig { return &clientConfig })
	Require(t, client.Start(context.Background()))
	t.Cleanup(client.Close)
	return provisioner.NewProvisioner(func() *provisioner.Config { return &config.Provision }, client, client.EthClient()), node
}

func runCase(t *testing.T, cases *nodeCases, name string) harness.Result {
	t.Helper()
	selected, err := harness.Select(cases.all(), []string{name})
	Require(t, err)
	report, err := harness.NewOrchestrator(func() *harness.Config { return &harness.DefaultConfig }).Run(context.Background(), selected)
	Require(t, err)
	require.Len(t, report.Results, 1)
	return report.Results[0]
}

func TestCreateNewAccountCase(t *testing.T) {
	t.Parallel()
	config := testInfraConfig()
	accounts, node := nodeProvisioner(t, config)
	node.AddAccount(testhelpers.RandomAddress(), new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)), "passphrase")

	result := runCase(t, newNodeCases(config, accounts, nil), createNewAccountCase)
	require.Equal(t, harness.Passed, result.Outcome, "err: %v", result.Err)
}

func TestCreateNewAccountCaseNoAccounts(t *testing.T) {
	t.Parallel()
	config := testInfraConfig()
	accounts, _ := nodeProvisioner(t, config)

	result := runCase(t, newNodeCases(config, accounts, nil), createNewAccountCase)
	require.Equal(t, harness.Errored, result.Outcome)
	require.ErrorIs(t, result.Err, provisioner.ErrNoAccountsAvailable)
}

// shortFunding hands out an account whose balance is below the configured
// funding amount.
type shortFunding struct{}

func (shortFunding) Root(context.Context) (provisioner.Account, error) {
	return provisioner.Account{Address: testhelpers.RandomAddress(), Balance: uint256.NewInt(1)}, nil
}

func (shortFunding) ProvisionFundedAccount(context.Context, provisioner.Account) (provisioner.Account, provisioner.PrivateKey, error) {
	return provisioner.Account{Address: testhelpers.RandomAddress(), Balance: uint256.NewInt(1)}, provisioner.PrivateKey{}, nil
}

func TestCreateNewAccountCaseBalanceMismatch(t *testing.T) {
	t.Parallel()
	result := runCase(t, newNodeCases(testInfraConfig(), shortFunding{}, nil), createNewAccountCase)
	require.Equal(t, harness.Failed, result.Outcome)
}

// genesisAccounts hands out a key that was funded in the simulated genesis.
type genesisAccounts struct {
	key *ecdsa.PrivateKey
}

func (g genesisAccounts) Root(context.Context) (provisioner.Account, error) {
	return provisioner.Account{Address: crypto.PubkeyToAddress(g.key.PublicKey), Balance: new(uint256.Int)}, nil
}

func (g genesisAccounts) ProvisionFundedAccount(context.Context, provisioner.Account) (provisioner.Account, provisioner.PrivateKey, error) {
	var key provisioner.PrivateKey
	copy(key[:], crypto.FromECDSA(g.key))
	return provisioner.Account{Address: crypto.PubkeyToAddress(g.key.PublicKey)}, key, nil
}

func simulatedDeployer(t *testing.T, config *TestInfraConfig) (*deploy.Deployer, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	Require(t, err)
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))},
	})
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
		_ = backend.Close()
	})
	return deploy.NewDeployer(func() *deploy.Config { return &config.Deploy }, backend.Client()), key
}

func TestDeployContractCase(t *testing.T) {
	t.Parallel()
	config := testInfraConfig()
	deployer, key := simulatedDeployer(t, config)

	result := runCase(t, newNodeCases(config, genesisAccounts{key}, deployer), deployContractCase)
	require.Equal(t, harness.Passed, result.Outcome, "err: %v", result.Err)
}

func TestDeployContractCaseMissingArtifacts(t *testing.T) {
	t.Parallel()
	config := testInfraConfig()
	config.Contract.Bin = "testdata/prebuilt/Missing.bin"
	deployer, key := simulatedDeployer(t, config)

	result := runCase(t, newNodeCases(config, genesisAccounts{key}, deployer), deployContractCase)
	require.Equal(t, harness.Errored, result.Outcome)
}

// fakeSolc writes a script standing in for solc that checks the source exists
// and emits the prebuilt ConstFn artifacts into the -o directory.
func fakeSolc(t *testing.T) string {
	t.Helper()
	prebuilt, err := filepath.Abs("testdata/prebuilt")
	Require(t, err)
	script := `#!/bin/sh
out=""
source=""
while [ $# -gt 0 ]; do
	case "$1" in
	-o) out="$2"; shift ;;
	--*) ;;
	*) source="$1" ;;
	esac
	shift
done
grep -q "contract ConstFn" "$source" || exit 2
mkdir -p "$out"
cp "` + prebuilt + `/ConstFn.abi" "` + prebuilt + `/ConstFn.bin" "$out/"
`
	path := filepath.Join(t.TempDir(), "solc")
	Require(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDeployContractCaseCompiles(t *testing.T) {
	t.Parallel()
	for _, source := range []string{"", "testdata/sol_sources/const_fn.sol"} {
		config := testInfraConfig()
		config.Contract.ABI = ""
		config.Contract.Bin = ""
		config.Contract.Source = source
		config.Solc.Binary = fakeSolc(t)
		Require(t, config.Contract.Validate())
		deployer, key := simulatedDeployer(t, config)

		result := runCase(t, newNodeCases(config, genesisAccounts{key}, deployer), deployContractCase)
		require.Equal(t, harness.Passed, result.Outcome, "source %q err: %v", source, result.Err)
	}
}

func TestDeployContractCaseCompileFailure(t *testing.T) {
	t.Parallel()
	config := testInfraConfig()
	config.Contract.ABI = ""
	config.Contract.Bin = ""
	config.Contract.Name = "Missing"
	config.Solc.Binary = fakeSolc(t)
	deployer, key := simulatedDeployer(t, config)

	result := runCase(t, newNodeCases(config, genesisAccounts{key}, deployer), deployContractCase)
	require.Equal(t, harness.Errored, result.Outcome)
	require.Contains(t, result.Err.Error(), "Missing")

	config = testInfraConfig()
	config.Contract.ABI = ""
	config.Contract.Bin = ""
	config.Contract.Source = filepath.Join(t.TempDir(), "empty.sol")
	Require(t, os.WriteFile(config.Contract.Source, []byte("pragma solidity ^0.8.0;\n"), 0o600))
	config.Solc.Binary = fakeSolc(t)
	result = runCase(t, newNodeCases(config, genesisAccounts{key}, deployer), deployContractCase)
	require.Equal(t, harness.Errored, result.Outcome)
	require.Contains(t, result.Err.Error(), "compiling")
}

func TestAsFailure(t *testing.T) {
	t.Parallel()
	require.True(t, harness.IsFailure(asFailure(deploy.ErrCallMismatch)))
	require.False(t, harness.IsFailure(asFailure(deploy.ErrDeploymentFailed)))
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
