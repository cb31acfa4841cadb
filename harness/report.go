// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package harness

import (
	"fmt"
	"io"
	"time"

	"github.com/enescakir/emoji"

	"github.com/offchainlabs/nitro-test-infra/util/colors"
)

type Result struct {
	Name     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

type Report struct {
	Results []Result
	Elapsed time.Duration
}

func (r *Report) Count(outcome Outcome) int {
	count := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			count++
		}
	}
	return count
}

func (r *Report) Failing() []string {
	var names []string
	for _, result := range r.Results {
		if result.Outcome != Passed {
			names = append(names, result.Name)
		}
	}
	return names
}

// ExitCode is 0 when every case passed and 1 otherwise.
func (r *Report) ExitCode() int {
	if len(r.Failing()) > 0 {
		return 1
	}
	return 0
}

func (r *Report) Print(w io.Writer) {
	for _, result := range r.Results {
		switch result.Outcome {
		case Passed:
			fmt.Fprintf(w, "%v %s %s (%v)\n", emoji.GreenCircle, colors.Sprint(colors.Green, "PASS"), result.Name, result.Duration.Round(time.Millisecond))
		case Failed:
			fmt.Fprintf(w, "%v %s %s (%v): %v\n", emoji.RedCircle, colors.Sprint(colors.Red, "FAIL"), result.Name, result.Duration.Round(time.Millisecond), result.Err)
		default:
			fmt.Fprintf(w, "%v %s %s (%v): %v\n", emoji.YellowCircle, colors.Sprint(colors.Yellow, "ERROR"), result.Name, result.Duration.Round(time.Millisecond), result.Err)
		}
	}
	summary := fmt.Sprintf("%d passed, %d failed, %d errored in %v", r.Count(Passed), r.Count(Failed), r.Count(Errored), r.Elapsed.Round(time.Millisecond))
	if failing := r.Failing(); len(failing) > 0 {
		fmt.Fprintln(w, colors.Sprint(colors.Red, summary))
		for _, name := range failing {
			fmt.Fprintf(w, "    %s\n", name)
		}
		return
	}
	fmt.Fprintln(w, colors.Sprint(colors.Green, summary))
}
