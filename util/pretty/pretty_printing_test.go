// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package pretty

import "testing"

func TestFirstFewBytes(t *testing.T) {
	if got := FirstFewBytes([]byte{0x60, 0x00}); got != "[60 00]" {
		t.Errorf("short slice rendered as %s", got)
	}
	long := make([]byte, 63)
	long[0] = 0x60
	if got := FirstFewBytes(long); got != "[60 00 00 00 00 00 00 00 ... ] (63 bytes)" {
		t.Errorf("long slice rendered as %s", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("solc, the solidity compiler\nVersion: 0.8.19"); got != `"solc, the solidity compiler"...` {
		t.Errorf("got %s", got)
	}
	if got := FirstLine("single"); got != `"single"` {
		t.Errorf("got %s", got)
	}
}
