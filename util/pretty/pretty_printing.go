// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package pretty shortens values for log lines.
package pretty

import "fmt"

const previewLen = 8

// FirstFewBytes renders at most the first eight bytes of b, e.g. bytecode.
func FirstFewBytes(b []byte) string {
	if len(b) <= previewLen {
		return fmt.Sprintf("[% x]", b)
	}
	return fmt.Sprintf("[% x ... ] (%d bytes)", b[:previewLen], len(b))
}

// FirstLine returns the first line of multi-line tool output, quoted.
func FirstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return fmt.Sprintf("%q...", s[:i])
		}
	}
	return fmt.Sprintf("%q", s)
}
