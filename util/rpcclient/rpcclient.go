// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

type ClientConfig struct {
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	Retries        uint          `koanf:"retries"`
	ConnectionWait time.Duration `koanf:"connection-wait"`
	ArgLogLimit    uint          `koanf:"arg-log-limit"`
	RetryErrors    string        `koanf:"retry-errors"`
}

type ClientConfigFetcher func() *ClientConfig

func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("no url provided for this connection")
	}
	if c.RetryErrors != "" {
		if _, err := regexp.Compile(c.RetryErrors); err != nil {
			return fmt.Errorf("invalid retry-errors expression: %w", err)
		}
	}
	return nil
}

var TestClientConfig = ClientConfig{
	URL:         "http://127.0.0.1:8545",
	Timeout:     5 * time.Second,
	ArgLogLimit: 2048,
}

var DefaultClientConfig = ClientConfig{
	URL:         "http://127.0.0.1:8545",
	Timeout:     30 * time.Second,
	ArgLogLimit: 2048,
}

func RPCClientAddOptions(prefix string, f *flag.FlagSet, defaultConfig *ClientConfig) {
	f.String(prefix+".url", defaultConfig.URL, "url of the node JSON-RPC endpoint")
	f.Duration(prefix+".connection-wait", defaultConfig.ConnectionWait, "how long to wait for initial connection")
	f.Duration(prefix+".timeout", defaultConfig.Timeout, "per-response timeout (0-disabled)")
	f.Uint(prefix+".arg-log-limit", defaultConfig.ArgLogLimit, "limit size of arguments in log entries")
	f.Uint(prefix+".retries", defaultConfig.Retries, "number of retries in case of failure(0 mean one attempt)")
	f.String(prefix+".retry-errors", defaultConfig.RetryErrors, "Errors matching this regular expression are automatically retried")
}

// RpcClient wraps a JSON-RPC connection with per-call timeouts, retries and logging.
type RpcClient struct {
	config ClientConfigFetcher
	client *rpc.Client
	logId  uint64
}

func NewRpcClient(config ClientConfigFetcher) *RpcClient {
	return &RpcClient{
		config: config,
	}
}

func (c *RpcClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Client exposes the underlying connection, nil before Start.
func (c *RpcClient) Client() *rpc.Client {
	return c.client
}

// EthClient returns a typed client sharing this connection.
func (c *RpcClient) EthClient() *ethclient.Client {
	return ethclient.NewClient(c.client)
}

func limitString(limit int, str string) string {
	if limit == 0 || len(str) <= limit {
		return str
	}
	prefix := str[:limit/2-1]
	postfix := str[len(str)-limit/2+1:]
	return fmt.Sprintf("%v..%v", prefix, postfix)
}

func logArgs(limit int, args ...interface{}) string {
	res := "["
	for i, arg := range args {
		marshalled, err := json.Marshal(arg)
		if err != nil {
			res += "\"CANNOT MARSHALL:" + limitString(limit, err.Error()) + "\""
		} else {
			res += limitString(limit, string(marshalled))
		}
		if i < len(args)-1 {
			res += ", "
		}
	}
	res += "]"
	return res
}

// Arguments of these namespaces carry private keys and passphrases.
var secretNamespaces = []string{"personal_"}

const redactedArgs = "[redacted]"

// requestArgsForLog renders the request arguments for the trace log, hiding
// those of secretNamespaces methods entirely.
func requestArgsForLog(limit int, method string, args ...interface{}) string {
	for _, prefix := range secretNamespaces {
		if strings.HasPrefix(method, prefix) {
			return redactedArgs
		}
	}
	return logArgs(limit, args...)
}

func (c *RpcClient) CallContext(ctx_in context.Context, result interface{}, method string, args ...interface{}) error {
	if c.client == nil {
		return errors.New("not connected")
	}
	logId := atomic.AddUint64(&c.logId, 1)
	log.Trace("sending RPC request", "method", method, "logId", logId, "args", requestArgsForLog(int(c.config().ArgLogLimit), method, args...))
	var err error
	for i := 0; i < int(c.config().Retries)+1; i++ {
		if ctx_in.Err() != nil {
			return ctx_in.Err()
		}
		var ctx context.Context
		var cancelCtx context.CancelFunc
		timeout := c.config().Timeout
		if timeout > 0 {
			ctx, cancelCtx = context.WithTimeout(ctx_in, timeout)
		} else {
			ctx, cancelCtx = context.WithCancel(ctx_in)
		}
		err = c.client.CallContext(ctx, result, method, args...)
		cancelCtx()
		logger := log.Trace
		limit := int(c.config().ArgLogLimit)
		if err != nil {
			logger = log.Debug
		}
		logger("rpc response", "method", method, "logId", logId, "err", err, "result", limitString(limit, fmt.Sprintf("%+v", result)), "attempt", i)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx_in.Err() == nil {
			continue
		}
		retryErrors := c.config().RetryErrors
		if retryErrors != "" {
			match, regexErr := regexp.MatchString(retryErrors, err.Error())
			if regexErr != nil {
				log.Warn("rpcclient: bad value for retry-error. Not retrying.", "err", err, "value", retryErrors)
			}
			if match {
				continue
			}
		}
		return err
	}
	return err
}

func (c *RpcClient) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	return c.client.BatchCallContext(ctx, b)
}

// Start dials the configured URL, retrying every second until ConnectionWait elapses.
func (c *RpcClient) Start(ctx_in context.Context) error {
	url := c.config().URL
	if url == "" {
		return errors.New("no url provided for this connection")
	}
	connTimeout := time.After(c.config().ConnectionWait)
	for {
		var ctx context.Context
		var cancelCtx context.CancelFunc
		timeout := c.config().Timeout
		if timeout > 0 {
			ctx, cancelCtx = context.WithTimeout(ctx_in, timeout)
		} else {
			ctx, cancelCtx = context.WithCancel(ctx_in)
		}
		client, err := rpc.DialContext(ctx, url)
		cancelCtx()
		if err == nil {
			c.client = client
			return nil
		}
		if strings.Contains(err.Error(), "parse") ||
			strings.Contains(err.Error(), "malformed") ||
			strings.Contains(err.Error(), "no known transport") {
			return fmt.Errorf("%w: url %s", err, url)
		}
		select {
		case <-connTimeout:
			return fmt.Errorf("timeout trying to connect lastError: %w", err)
		case <-ctx_in.Done():
			return ctx_in.Err()
		case <-time.After(time.Second):
		}
	}
}
