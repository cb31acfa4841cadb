// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestToSlogLevel(t *testing.T) {
	for input, want := range map[string]interface{}{
		"TRACE": log.LevelTrace,
		"debug": log.LevelDebug,
		"Info":  log.LevelInfo,
		"WARN":  log.LevelWarn,
		"error": log.LevelError,
		"CRIT":  log.LevelCrit,
		"3":     log.LevelInfo,
	} {
		got, err := ToSlogLevel(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
	_, err := ToSlogLevel("loud")
	require.Error(t, err)
}

func TestHandlerFromLogType(t *testing.T) {
	var buf bytes.Buffer
	_, err := HandlerFromLogType("plaintext", &buf)
	require.NoError(t, err)
	handler, err := HandlerFromLogType("json", &buf)
	require.NoError(t, err)
	log.NewLogger(handler).Info("hello", "key", "value")
	require.Contains(t, buf.String(), `"msg":"hello"`)
	_, err = HandlerFromLogType("xml", &buf)
	require.Error(t, err)
}

func TestInitLogWritesFile(t *testing.T) {
	dir := t.TempDir()
	config := DefaultFileLoggingConfig
	config.Enable = true
	config.File = "harness.log"
	require.NoError(t, InitLog("json", "INFO", &config, DefaultPathResolver(dir)))
	log.Info("written to file")
	require.NoError(t, globalFileLoggerFactory.close())

	contents, err := os.ReadFile(filepath.Join(dir, "harness.log"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "written to file")

	require.Error(t, InitLog("yaml", "INFO", &DefaultFileLoggingConfig, DefaultPathResolver(dir)))
}

func TestDefaultPathResolver(t *testing.T) {
	resolve := DefaultPathResolver("/base")
	require.Equal(t, "/base/file.log", resolve("file.log"))
	require.Equal(t, "/abs/file.log", resolve("/abs/file.log"))
	require.Equal(t, "", resolve(""))
}
