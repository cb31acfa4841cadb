// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package provisioner

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey is a raw secp256k1 secret. It formats as a redacted string so it
// never ends up in logs.
type PrivateKey [32]byte

// GeneratePrivateKey reads 32 bytes from the system CSPRNG. The bytes are not
// checked against the curve order.
func GeneratePrivateKey() (PrivateKey, error) {
	var key PrivateKey
	if _, err := rand.Read(key[:]); err != nil {
		return PrivateKey{}, fmt.Errorf("reading random key: %w", err)
	}
	return key, nil
}

// Hex is the unprefixed encoding personal_importRawKey expects.
func (k PrivateKey) Hex() string {
	return hex.EncodeToString(k[:])
}

func (k PrivateKey) ToECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(k[:])
}

func (k PrivateKey) Address() (common.Address, error) {
	key, err := k.ToECDSA()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (k PrivateKey) String() string {
	return "PrivateKey(redacted)"
}

func (k PrivateKey) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(k.String()))
}
