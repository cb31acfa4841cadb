// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package genericconf

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
)

const PASSWORD_NOT_SET = "PASSWORD_NOT_SET"

// WalletConfig describes an account whose key lives in the node's keystore.
type WalletConfig struct {
	Account        string        `koanf:"account"`
	Password       string        `koanf:"password"`
	Unlock         bool          `koanf:"unlock"`
	UnlockDuration time.Duration `koanf:"unlock-duration"`
}

func (w *WalletConfig) Pwd() *string {
	if w.Password == PASSWORD_NOT_SET {
		return nil
	}
	return &w.Password
}

// Address returns the configured account, or nil when discovery should pick one.
func (w *WalletConfig) Address() *common.Address {
	if w.Account == "" {
		return nil
	}
	addr := common.HexToAddress(w.Account)
	return &addr
}

func (w *WalletConfig) Validate() error {
	if w.Account != "" && !common.IsHexAddress(w.Account) {
		return errors.New("invalid account address " + w.Account)
	}
	if w.Unlock && w.Pwd() == nil {
		return errors.New("unlock requested but no password set")
	}
	if w.UnlockDuration < 0 {
		return errors.New("unlock-duration must not be negative")
	}
	return nil
}

var WalletConfigDefault = WalletConfig{
	Account:        "",
	Password:       "passphrase",
	Unlock:         false,
	UnlockDuration: 65535 * time.Second,
}

func WalletConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".account", WalletConfigDefault.Account, "account to use (default is the node account holding the largest balance)")
	f.String(prefix+".password", WalletConfigDefault.Password, "keystore passphrase used to unlock the account")
	f.Bool(prefix+".unlock", WalletConfigDefault.Unlock, "unlock the account through personal_unlockAccount before it signs")
	f.Duration(prefix+".unlock-duration", WalletConfigDefault.UnlockDuration, "how long the node keeps the account unlocked")
}
