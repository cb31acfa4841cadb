// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package devnode serves an in-memory stand-in for a dev node's eth and
// personal JSON-RPC namespaces over HTTP.
package devnode

import (
	"encoding/binary"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

const transferGasUsed = 21_000

// Mode controls what happens to submitted transfers.
type Mode uint8

const (
	MineTransfers Mode = iota
	RevertTransfers
	DropTransfers
)

type Node struct {
	mutex         sync.Mutex
	accounts      []common.Address
	balances      map[common.Address]*big.Int
	passwords     map[common.Address]string
	unlocked      map[common.Address]bool
	receipts      map[common.Hash]*types.Receipt
	head          uint64
	nonce         uint64
	mode          Mode
	failImports   bool
	requireUnlock bool

	server *rpc.Server
	http   *httptest.Server
}

// New starts a node listening on a loopback port; it is stopped on test cleanup.
func New(t testing.TB) *Node {
	n := &Node{
		balances:  make(map[common.Address]*big.Int),
		passwords: make(map[common.Address]string),
		unlocked:  make(map[common.Address]bool),
		receipts:  make(map[common.Hash]*types.Receipt),
		server:    rpc.NewServer(),
	}
	if err := n.server.RegisterName("eth", &ethAPI{n}); err != nil {
		t.Fatal(err)
	}
	if err := n.server.RegisterName("personal", &personalAPI{n}); err != nil {
		t.Fatal(err)
	}
	n.http = httptest.NewServer(n.server)
	t.Cleanup(func() {
		n.http.Close()
		n.server.Stop()
	})
	return n
}

func (n *Node) URL() string {
	return n.http.URL
}

// AddAccount registers a keystore account protected by password.
func (n *Node) AddAccount(address common.Address, balance *big.Int, password string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.accounts = append(n.accounts, address)
	n.balances[address] = new(big.Int).Set(balance)
	n.passwords[address] = password
}

func (n *Node) Balance(address common.Address) *big.Int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return new(big.Int).Set(n.balance(address))
}

func (n *Node) Unlocked(address common.Address) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.unlocked[address]
}

func (n *Node) SetMode(mode Mode) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.mode = mode
}

func (n *Node) SetFailImports(fail bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.failImports = fail
}

// SetRequireUnlock makes eth_sendTransaction refuse accounts not unlocked first.
func (n *Node) SetRequireUnlock(require bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.requireUnlock = require
}

func (n *Node) balance(address common.Address) *big.Int {
	balance, ok := n.balances[address]
	if !ok {
		return new(big.Int)
	}
	return balance
}

type ethAPI struct {
	n *Node
}

func (api *ethAPI) Accounts() []common.Address {
	api.n.mutex.Lock()
	defer api.n.mutex.Unlock()
	return append([]common.Address{}, api.n.accounts...)
}

func (api *ethAPI) GetBalance(address common.Address, _ string) *hexutil.Big {
	return (*hexutil.Big)(api.n.Balance(address))
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	api.n.mutex.Lock()
	defer api.n.mutex.Unlock()
	return hexutil.Uint64(api.n.head)
}

type SendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
}

func (api *ethAPI) SendTransaction(args SendTxArgs) (common.Hash, error) {
	n := api.n
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if _, ok := n.passwords[args.From]; !ok {
		return common.Hash{}, errors.New("unknown account")
	}
	if n.requireUnlock && !n.unlocked[args.From] {
		return common.Hash{}, errors.New("authentication needed: password or unlock")
	}
	if args.To == nil || args.Value == nil {
		return common.Hash{}, errors.New("only value transfers are supported")
	}
	if args.Gas != nil && uint64(*args.Gas) < transferGasUsed {
		return common.Hash{}, errors.New("intrinsic gas too low")
	}
	value := args.Value.ToInt()
	cost := new(big.Int).Add(value, big.NewInt(transferGasUsed))
	if n.balance(args.From).Cmp(cost) < 0 {
		return common.Hash{}, errors.New("insufficient funds for gas * price + value")
	}

	n.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], n.nonce)
	txHash := crypto.Keccak256Hash(args.From.Bytes(), args.To.Bytes(), value.Bytes(), nonce[:])

	if n.mode == DropTransfers {
		return txHash, nil
	}
	n.head++
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: transferGasUsed,
		GasUsed:           transferGasUsed,
		Logs:              []*types.Log{},
		TxHash:            txHash,
		BlockNumber:       new(big.Int).SetUint64(n.head),
		BlockHash:         crypto.Keccak256Hash(txHash.Bytes()),
	}
	gasFee := big.NewInt(transferGasUsed)
	n.balances[args.From] = new(big.Int).Sub(n.balance(args.From), gasFee)
	if n.mode == RevertTransfers {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		n.balances[args.From] = new(big.Int).Sub(n.balances[args.From], value)
		n.balances[*args.To] = new(big.Int).Add(n.balance(*args.To), value)
	}
	n.receipts[txHash] = receipt
	return txHash, nil
}

func (api *ethAPI) GetTransactionReceipt(txHash common.Hash) *types.Receipt {
	api.n.mutex.Lock()
	defer api.n.mutex.Unlock()
	return api.n.receipts[txHash]
}

type personalAPI struct {
	n *Node
}

func (api *personalAPI) ImportRawKey(privkey string, password string) (common.Address, error) {
	n := api.n
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.failImports {
		return common.Address{}, errors.New("keystore is read-only")
	}
	key, err := crypto.HexToECDSA(privkey)
	if err != nil {
		return common.Address{}, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	if _, ok := n.passwords[address]; ok {
		return common.Address{}, errors.New("account already exists")
	}
	n.accounts = append(n.accounts, address)
	n.passwords[address] = password
	return address, nil
}

func (api *personalAPI) UnlockAccount(address common.Address, password string, _ *uint64) (bool, error) {
	n := api.n
	n.mutex.Lock()
	defer n.mutex.Unlock()
	expected, ok := n.passwords[address]
	if !ok {
		return false, errors.New("no key for given address or file")
	}
	if password != expected {
		return false, errors.New("could not decrypt key with given password")
	}
	n.unlocked[address] = true
	return true, nil
}
