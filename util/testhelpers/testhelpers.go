// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package testhelpers

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/rand"
	"os"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/nitro-test-infra/util/colors"
)

// Fail a test should an error occur
func RequireImpl(t testing.TB, err error, printables ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatal(colors.Red, printables, err, colors.Clear)
	}
}

func FailImpl(t testing.TB, printables ...interface{}) {
	t.Helper()
	t.Fatal(colors.Red, printables, colors.Clear)
}

func RandomizeSlice(slice []byte) []byte {
	_, err := rand.Read(slice)
	if err != nil {
		panic(err)
	}
	return slice
}

func RandomAddress() common.Address {
	var address common.Address
	RandomizeSlice(address[:])
	return address
}

func RandomHash() common.Hash {
	var hash common.Hash
	RandomizeSlice(hash[:])
	return hash
}

// NewKey returns a fresh secp256k1 key and its address, failing the test on error.
func NewKey(t testing.TB) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	RequireImpl(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

type logRecords struct {
	mutex   sync.Mutex
	records []slog.Record
}

// LogHandler records every message it sees while forwarding to a terminal
// handler. Handlers derived with WithAttrs or WithGroup share the records.
type LogHandler struct {
	t        testing.TB
	recorded *logRecords
	terminal slog.Handler
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.terminal.Enabled(context.Background(), level)
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{t: h.t, recorded: h.recorded, terminal: h.terminal.WithGroup(name)}
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{t: h.t, recorded: h.recorded, terminal: h.terminal.WithAttrs(attrs)}
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.terminal.Handle(ctx, record); err != nil {
		return err
	}
	h.recorded.mutex.Lock()
	defer h.recorded.mutex.Unlock()
	h.recorded.records = append(h.recorded.records, record)
	return nil
}

func (h *LogHandler) WasLogged(pattern string) bool {
	re, err := regexp.Compile(pattern)
	RequireImpl(h.t, err)
	h.recorded.mutex.Lock()
	defer h.recorded.mutex.Unlock()
	for _, record := range h.recorded.records {
		if re.MatchString(record.Message) {
			return true
		}
	}
	return false
}

func newLogHandler(t testing.TB) *LogHandler {
	return &LogHandler{
		t:        t,
		recorded: &logRecords{records: make([]slog.Record, 0)},
		terminal: log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelTrace, false),
	}
}

// InitTestLog installs a recording handler as the default logger.
func InitTestLog(t testing.TB, level slog.Level) *LogHandler {
	handler := newLogHandler(t)
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	log.SetDefault(log.NewLogger(glogger))
	return handler
}
