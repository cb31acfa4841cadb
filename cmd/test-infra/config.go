// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/nitro-test-infra/checkservice"
	"github.com/offchainlabs/nitro-test-infra/cmd/genericconf"
	"github.com/offchainlabs/nitro-test-infra/cmd/util/confighelpers"
	"github.com/offchainlabs/nitro-test-infra/deploy"
	"github.com/offchainlabs/nitro-test-infra/harness"
	"github.com/offchainlabs/nitro-test-infra/provisioner"
	"github.com/offchainlabs/nitro-test-infra/solc"
	"github.com/offchainlabs/nitro-test-infra/util/rpcclient"
)

type ContractConfig struct {
	Source string `koanf:"source"`
	Name   string `koanf:"name"`
	ABI    string `koanf:"abi"`
	Bin    string `koanf:"bin"`
}

var DefaultContractConfig = ContractConfig{
	Source: "",
	Name:   "ConstFn",
	ABI:    "",
	Bin:    "",
}

func ContractConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".source", DefaultContractConfig.Source, "solidity source compiled by the deploy_contract case, relative to the working directory (empty compiles the built-in const_fn.sol)")
	f.String(prefix+".name", DefaultContractConfig.Name, "name of the contract to deploy from the compiled source")
	f.String(prefix+".abi", DefaultContractConfig.ABI, "prebuilt ABI file; skips compilation when set together with bin")
	f.String(prefix+".bin", DefaultContractConfig.Bin, "prebuilt bytecode file; skips compilation when set together with abi")
}

// Prebuilt reports whether compilation is skipped.
func (c *ContractConfig) Prebuilt() bool {
	return c.ABI != "" && c.Bin != ""
}

func (c *ContractConfig) Validate() error {
	if (c.ABI == "") != (c.Bin == "") {
		return errors.New("abi and bin must be set together")
	}
	if !c.Prebuilt() && c.Name == "" {
		return errors.New("name is required unless abi and bin are set")
	}
	return nil
}

type TestInfraConfig struct {
	Conf        genericconf.ConfConfig        `koanf:"conf"`
	LogLevel    string                        `koanf:"log-level"`
	LogType     string                        `koanf:"log-type"`
	FileLogging genericconf.FileLoggingConfig `koanf:"file-logging"`
	Node        rpcclient.ClientConfig        `koanf:"node"`
	Probe       checkservice.ProbeConfig      `koanf:"probe"`
	Solc        solc.Config                   `koanf:"solc"`
	Provision   provisioner.Config            `koanf:"provision"`
	Deploy      deploy.Config                 `koanf:"deploy"`
	Contract    ContractConfig                `koanf:"contract"`
	Harness     harness.Config                `koanf:"harness"`
}

var DefaultTestInfraConfig = TestInfraConfig{
	Conf:        genericconf.ConfConfigDefault,
	LogLevel:    "INFO",
	LogType:     "plaintext",
	FileLogging: genericconf.DefaultFileLoggingConfig,
	Node:        rpcclient.DefaultClientConfig,
	Probe:       checkservice.DefaultProbeConfig,
	Solc:        solc.DefaultConfig,
	Provision:   provisioner.DefaultConfig,
	Deploy:      deploy.DefaultConfig,
	Contract:    DefaultContractConfig,
	Harness:     harness.DefaultConfig,
}

func TestInfraConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", DefaultTestInfraConfig.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", DefaultTestInfraConfig.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	rpcclient.RPCClientAddOptions("node", f, &DefaultTestInfraConfig.Node)
	checkservice.ProbeConfigAddOptions("probe", f)
	solc.ConfigAddOptions("solc", f)
	provisioner.ConfigAddOptions("provision", f)
	deploy.ConfigAddOptions("deploy", f)
	ContractConfigAddOptions("contract", f)
	harness.ConfigAddOptions("harness", f)
}

func (c *TestInfraConfig) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if err := c.Solc.Validate(); err != nil {
		return fmt.Errorf("solc: %w", err)
	}
	if err := c.Provision.Validate(); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	if err := c.Deploy.Validate(); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if err := c.Contract.Validate(); err != nil {
		return fmt.Errorf("contract: %w", err)
	}
	if err := c.Harness.Validate(); err != nil {
		return fmt.Errorf("harness: %w", err)
	}
	return nil
}

// errDumped is returned by parseTestInfraConfig after --conf.dump printed
// the configuration.
var errDumped = errors.New("configuration dumped")

func parseTestInfraConfig(args []string, dump func([]byte)) (*TestInfraConfig, error) {
	f := flag.NewFlagSet("test-infra", flag.ContinueOnError)
	TestInfraConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var config TestInfraConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}

	if config.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"provision.root.password":     "",
			"provision.import-passphrase": "",
		})
		if err != nil {
			return nil, fmt.Errorf("error removing extra parameters before dump: %w", err)
		}
		c, err := confighelpers.MarshalConfig(k)
		if err != nil {
			return nil, err
		}
		dump(c)
		return nil, errDumped
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
