// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package confighelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/nitro-test-infra/cmd/genericconf"
)

type sampleConfig struct {
	Conf    genericconf.ConfConfig `koanf:"conf"`
	URL     string                 `koanf:"url"`
	Timeout time.Duration          `koanf:"timeout"`
	Cases   []string               `koanf:"cases"`
}

func sampleFlags() *flag.FlagSet {
	f := flag.NewFlagSet("", flag.ContinueOnError)
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("url", "http://127.0.0.1:8545", "url")
	f.Duration("timeout", time.Minute, "timeout")
	f.StringSlice("cases", nil, "cases")
	return f
}

func parse(t *testing.T, args []string) (*sampleConfig, error) {
	t.Helper()
	k, err := BeginCommonParse(sampleFlags(), args)
	if err != nil {
		return nil, err
	}
	var config sampleConfig
	if err := EndCommonParse(k, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func TestDefaults(t *testing.T) {
	config, err := parse(t, nil)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8545", config.URL)
	require.Equal(t, time.Minute, config.Timeout)
	require.Empty(t, config.Cases)
}

func TestPriority(t *testing.T) {
	dir := t.TempDir()
	confFile := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(confFile, []byte(`{"url":"http://file:1","timeout":"5s"}`), 0o600))

	config, err := parse(t, []string{"--conf.file", confFile})
	require.NoError(t, err)
	require.Equal(t, "http://file:1", config.URL)
	require.Equal(t, 5*time.Second, config.Timeout)

	config, err = parse(t, []string{"--conf.file", confFile, "--conf.string", `{"url":"http://string:2"}`})
	require.NoError(t, err)
	require.Equal(t, "http://string:2", config.URL)
	require.Equal(t, 5*time.Second, config.Timeout)

	config, err = parse(t, []string{"--conf.file", confFile, "--url", "http://flag:3", "--cases", "a,b"})
	require.NoError(t, err)
	require.Equal(t, "http://flag:3", config.URL)
	require.Equal(t, []string{"a", "b"}, config.Cases)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("HARNESS_URL", "http://env:4")
	config, err := parse(t, []string{"--conf.env-prefix", "HARNESS"})
	require.NoError(t, err)
	require.Equal(t, "http://env:4", config.URL)
}

func TestRejectsUnknownKeysAndArgs(t *testing.T) {
	_, err := parse(t, []string{"--conf.string", `{"nope":1}`})
	require.Error(t, err)
	_, err = parse(t, []string{"positional"})
	require.Error(t, err)
}

func TestDumpConfig(t *testing.T) {
	k, err := BeginCommonParse(sampleFlags(), []string{"--conf.dump", "--url", "http://secret"})
	require.NoError(t, err)
	require.NoError(t, DumpConfig(k, map[string]interface{}{"url": ""}))
	out, err := MarshalConfig(k)
	require.NoError(t, err)
	require.Contains(t, string(out), `"dump":false`)
	require.NotContains(t, string(out), "secret")
}
