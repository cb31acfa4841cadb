// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/checkservice"
	"github.com/offchainlabs/nitro-test-infra/cmd/genericconf"
	"github.com/offchainlabs/nitro-test-infra/deploy"
	"github.com/offchainlabs/nitro-test-infra/harness"
	"github.com/offchainlabs/nitro-test-infra/provisioner"
	"github.com/offchainlabs/nitro-test-infra/solc"
	"github.com/offchainlabs/nitro-test-infra/util/rpcclient"
)

const (
	exitPassed       = 0
	exitCaseFailed   = 1
	exitSetupFailure = 2
)

func main() {
	os.Exit(mainImpl())
}

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --help \n", progname)
	fmt.Printf("Run a single case:             %s --node.url http://127.0.0.1:8545 --harness.cases %s\n", progname, deployContractCase)
}

func mainImpl() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigint:
			log.Info("shutting down because of signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return run(ctx, os.Args[1:], os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) int {
	config, err := parseTestInfraConfig(args, func(dumped []byte) {
		fmt.Fprintln(out, string(dumped))
	})
	if errors.Is(err, errDumped) {
		return exitPassed
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printSampleUsage(os.Args[0])
		return exitSetupFailure
	}

	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, genericconf.DefaultPathResolver("")); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return exitSetupFailure
	}

	client := rpcclient.NewRpcClient(func() *rpcclient.ClientConfig { return &config.Node })
	defer client.Close()
	// Accounts and deployer are attached once the node is reachable.
	cases := newNodeCases(config, nil, nil)
	selected, err := harness.Select(cases.all(), config.Harness.Cases)
	if err != nil {
		log.Error("invalid case selection", "err", err)
		return exitSetupFailure
	}
	if config.Harness.List {
		for _, testCase := range selected {
			fmt.Fprintln(out, testCase.Name)
		}
		return exitPassed
	}

	orchestrator := harness.NewOrchestrator(
		func() *harness.Config { return &config.Harness },
		harness.Precondition{
			Name: "node reachable",
			Check: func(ctx context.Context) error {
				if err := checkservice.Wait(ctx, config.Node.URL, &config.Probe); err != nil {
					return err
				}
				if err := client.Start(ctx); err != nil {
					return err
				}
				ethClient := client.EthClient()
				cases.attach(
					provisioner.NewProvisioner(func() *provisioner.Config { return &config.Provision }, client, ethClient),
					deploy.NewDeployer(func() *deploy.Config { return &config.Deploy }, ethClient),
				)
				return nil
			},
		},
		harness.Precondition{
			Name: "solc version",
			Check: func(ctx context.Context) error {
				version, err := solc.CheckCompilerVersion(ctx, &config.Solc)
				if err != nil {
					return err
				}
				log.Info("solc version compatible", "version", version, "max", config.Solc.MaxVersion)
				return nil
			},
		},
	)
	report, err := orchestrator.Run(ctx, selected)
	if err != nil {
		log.Error("test run aborted", "err", err)
		return exitSetupFailure
	}
	report.Print(out)
	if report.ExitCode() != 0 {
		return exitCaseFailed
	}
	return exitPassed
}
