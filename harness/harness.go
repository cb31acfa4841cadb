// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package harness runs named test cases against a node after its
// preconditions hold, and reports one outcome per case.
package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/log"
)

var ErrPreconditionFailed = errors.New("precondition failed")

type Outcome uint8

const (
	Passed Outcome = iota
	Failed
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context) error
}

type Precondition struct {
	Name  string
	Check func(ctx context.Context) error
}

type Config struct {
	Parallelism int           `koanf:"parallelism"`
	CaseTimeout time.Duration `koanf:"case-timeout"`
	Cases       []string      `koanf:"cases"`
	List        bool          `koanf:"list"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	Parallelism: 0,
	CaseTimeout: 5 * time.Minute,
	Cases:       []string{},
	List:        false,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".parallelism", DefaultConfig.Parallelism, "maximum number of cases running at once (0 is unlimited)")
	f.Duration(prefix+".case-timeout", DefaultConfig.CaseTimeout, "deadline of a single case (0 disables)")
	f.StringSlice(prefix+".cases", DefaultConfig.Cases, "run only the cases with these names")
	f.Bool(prefix+".list", DefaultConfig.List, "print the case names and exit")
}

func (c *Config) Validate() error {
	if c.Parallelism < 0 {
		return errors.New("parallelism must not be negative")
	}
	if c.CaseTimeout < 0 {
		return errors.New("case-timeout must not be negative")
	}
	return nil
}

type failure struct {
	err error
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

// Failure marks err as an assertion failure of the case under test, as
// opposed to an error that kept the case from completing.
func Failure(err error) error {
	if err == nil {
		return nil
	}
	return &failure{err: err}
}

// Failuref is Failure(fmt.Errorf(format, args...)).
func Failuref(format string, args ...interface{}) error {
	return Failure(fmt.Errorf(format, args...))
}

func IsFailure(err error) bool {
	var f *failure
	return errors.As(err, &f)
}

// Select returns the cases named in names, keeping the order of cases. An
// empty names selects everything. Unknown names are an error.
func Select(cases []TestCase, names []string) ([]TestCase, error) {
	if len(names) == 0 {
		return cases, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}
	var selected []TestCase
	for _, testCase := range cases {
		if wanted[testCase.Name] {
			selected = append(selected, testCase)
			delete(wanted, testCase.Name)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for name := range wanted {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown cases: %v", strings.Join(unknown, ", "))
	}
	return selected, nil
}

type Orchestrator struct {
	config        ConfigFetcher
	preconditions []Precondition
}

func NewOrchestrator(config ConfigFetcher, preconditions ...Precondition) *Orchestrator {
	return &Orchestrator{
		config:        config,
		preconditions: preconditions,
	}
}

func (o *Orchestrator) checkPreconditions(ctx context.Context) error {
	for _, precondition := range o.preconditions {
		start := time.Now()
		if err := precondition.Check(ctx); err != nil {
			log.Error("precondition failed", "name", precondition.Name, "err", err)
			return fmt.Errorf("%w: %s: %w", ErrPreconditionFailed, precondition.Name, err)
		}
		log.Info("precondition satisfied", "name", precondition.Name, "elapsed", time.Since(start))
	}
	return nil
}

func (o *Orchestrator) runCase(ctx context.Context, testCase TestCase, timeout time.Duration) (result Result) {
	result.Name = testCase.Name
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			log.Error("case panicked", "case", testCase.Name, "panic", r, "stack", string(debug.Stack()))
			result.Outcome = Errored
			result.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	log.Info("running case", "case", testCase.Name)
	err := testCase.Run(ctx)
	switch {
	case err == nil:
		result.Outcome = Passed
	case IsFailure(err):
		result.Outcome = Failed
		result.Err = err
	default:
		result.Outcome = Errored
		result.Err = err
	}
	return result
}

// Run checks every precondition in order and then runs the cases
// concurrently. A failing case never stops the others. The returned error is
// only set when a precondition failed, in which case no case ran.
func (o *Orchestrator) Run(ctx context.Context, cases []TestCase) (*Report, error) {
	config := o.config()
	start := time.Now()
	if err := o.checkPreconditions(ctx); err != nil {
		return nil, err
	}
	results := make([]Result, len(cases))
	var g errgroup.Group
	if config.Parallelism > 0 {
		g.SetLimit(config.Parallelism)
	}
	for i, testCase := range cases {
		i, testCase := i, testCase
		g.Go(func() error {
			results[i] = o.runCase(ctx, testCase, config.CaseTimeout)
			log.Info("case finished", "case", testCase.Name, "outcome", results[i].Outcome, "elapsed", results[i].Duration, "err", results[i].Err)
			return nil
		})
	}
	_ = g.Wait()
	return &Report{Results: results, Elapsed: time.Since(start)}, nil
}
