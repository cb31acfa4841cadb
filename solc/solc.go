// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package solc drives the external Solidity compiler.
package solc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/util/pretty"
)

var (
	ErrIncompatibleVersion = errors.New("incompatible solc version")
	ErrToolMissing         = errors.New("solc not available")
	ErrUnparseableOutput   = errors.New("unparseable solc version output")
)

type Config struct {
	Binary     string `koanf:"binary"`
	MaxVersion string `koanf:"max-version"`
}

// The target chain does not support PUSH0, which solc emits by default from
// 0.8.20 onwards.
var DefaultConfig = Config{
	Binary:     "solc",
	MaxVersion: "0.8.19",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".binary", DefaultConfig.Binary, "solc executable name or path")
	f.String(prefix+".max-version", DefaultConfig.MaxVersion, "newest solc version whose default output the node supports")
}

func (c *Config) Validate() error {
	if c.Binary == "" {
		return errors.New("solc binary not set")
	}
	if _, err := ParseVersion("Version: " + c.MaxVersion); err != nil {
		return fmt.Errorf("invalid max-version %q: %w", c.MaxVersion, err)
	}
	return nil
}

var versionLine = regexp.MustCompile(`^Version: (0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)([+-][0-9A-Za-z.+-]*)?$`)

// ParseVersion extracts major.minor.patch from `solc --version` output.
// Build metadata after the patch number is ignored.
func ParseVersion(output string) (*semver.Version, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Version:") {
			continue
		}
		match := versionLine.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnparseableOutput, line)
		}
		var parts [3]uint64
		for i := range parts {
			value, err := strconv.ParseUint(match[i+1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrUnparseableOutput, line, err)
			}
			parts[i] = value
		}
		return semver.New(parts[0], parts[1], parts[2], "", ""), nil
	}
	return nil, fmt.Errorf("%w: no version line in %q", ErrUnparseableOutput, output)
}

func run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	return out, nil
}

// CheckCompilerVersion runs `solc --version` and rejects versions above config.MaxVersion.
func CheckCompilerVersion(ctx context.Context, config *Config) (*semver.Version, error) {
	ceiling, err := semver.NewVersion(config.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid max-version %q: %w", config.MaxVersion, err)
	}
	out, err := run(ctx, config.Binary, "--version")
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrToolMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	version, err := ParseVersion(string(out))
	if err != nil {
		log.Warn("unrecognized solc --version output", "binary", config.Binary, "output", pretty.FirstLine(strings.TrimSpace(string(out))))
		return nil, err
	}
	if version.GreaterThan(ceiling) {
		return version, fmt.Errorf("%w: found %v, newest supported is %v", ErrIncompatibleVersion, version, ceiling)
	}
	log.Info("solc version accepted", "version", version, "ceiling", ceiling)
	return version, nil
}

// Artifact is one contract produced by Compile.
type Artifact struct {
	Name string
	ABI  string
	Bin  string
}

// Compile writes ABI and bytecode of every contract in source to outDir.
func Compile(ctx context.Context, config *Config, source string, outDir string) ([]Artifact, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, err
	}
	if _, err := run(ctx, config.Binary, "--abi", "--bin", "--overwrite", "-o", outDir, source); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", source, err)
	}
	abiFiles, err := filepath.Glob(filepath.Join(outDir, "*.abi"))
	if err != nil {
		return nil, err
	}
	sort.Strings(abiFiles)
	var artifacts []Artifact
	for _, abiFile := range abiFiles {
		name := strings.TrimSuffix(filepath.Base(abiFile), ".abi")
		abiJSON, err := os.ReadFile(abiFile)
		if err != nil {
			return nil, err
		}
		bin, err := os.ReadFile(filepath.Join(outDir, name+".bin"))
		if err != nil {
			return nil, fmt.Errorf("missing bytecode for %s: %w", name, err)
		}
		artifacts = append(artifacts, Artifact{
			Name: name,
			ABI:  string(abiJSON),
			Bin:  strings.TrimSpace(string(bin)),
		})
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("solc produced no contracts for %s", source)
	}
	return artifacts, nil
}

// Find returns the artifact with the given contract name.
func Find(artifacts []Artifact, name string) (Artifact, error) {
	for _, artifact := range artifacts {
		if artifact.Name == name {
			return artifact, nil
		}
	}
	return Artifact{}, fmt.Errorf("contract %s not found among %d compiled contracts", name, len(artifacts))
}
