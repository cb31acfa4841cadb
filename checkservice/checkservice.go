// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package checkservice probes network endpoints until they accept connections.
package checkservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/log"
)

var ErrUnreachable = errors.New("endpoint unreachable")

type ProbeConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	Interval    time.Duration `koanf:"interval"`
	DialTimeout time.Duration `koanf:"dial-timeout"`
}

var DefaultProbeConfig = ProbeConfig{
	Timeout:     time.Minute,
	Interval:    time.Second,
	DialTimeout: time.Second,
}

func ProbeConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Duration(prefix+".timeout", DefaultProbeConfig.Timeout, "how long to wait for the endpoint to accept connections")
	f.Duration(prefix+".interval", DefaultProbeConfig.Interval, "delay between connection attempts")
	f.Duration(prefix+".dial-timeout", DefaultProbeConfig.DialTimeout, "timeout of a single connection attempt")
}

func (c *ProbeConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	if c.Interval <= 0 {
		return errors.New("probe interval must be positive")
	}
	return nil
}

// Address turns an endpoint URL into a dialable host:port, filling in the
// scheme's default port when the URL omits one.
func Address(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	switch u.Scheme {
	case "http", "ws":
		return net.JoinHostPort(u.Hostname(), "80"), nil
	case "https", "wss":
		return net.JoinHostPort(u.Hostname(), "443"), nil
	}
	return "", fmt.Errorf("endpoint %q has no port and unknown scheme %q", endpoint, u.Scheme)
}

// WaitUp reports whether endpoint accepted a TCP connection before
// config.Timeout elapsed. Failed attempts are retried every config.Interval.
func WaitUp(ctx context.Context, endpoint string, config *ProbeConfig) bool {
	return Wait(ctx, endpoint, config) == nil
}

// Wait is WaitUp returning ErrUnreachable instead of false.
func Wait(ctx context.Context, endpoint string, config *ProbeConfig) error {
	address, err := Address(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: config.DialTimeout}
	attempts := 0
	dial := func() error {
		attempts++
		conn, err := dialer.DialContext(deadlineCtx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	notify := func(err error, next time.Duration) {
		log.Debug("endpoint not ready", "endpoint", endpoint, "attempt", attempts, "retryIn", next, "err", err)
	}
	start := time.Now()
	err = backoff.RetryNotify(dial, backoff.WithContext(backoff.NewConstantBackOff(config.Interval), deadlineCtx), notify)
	if err == nil {
		log.Info("endpoint is up", "endpoint", endpoint, "attempts", attempts, "elapsed", time.Since(start))
		return nil
	}
	return fmt.Errorf("%w: %s after %d attempts in %v: %v", ErrUnreachable, endpoint, attempts, config.Timeout, err)
}
