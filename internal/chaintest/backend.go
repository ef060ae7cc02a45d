// Package chaintest provides an in-memory node for tests: contracts are
// registered with call and transaction handlers and every submitted
// transaction is "mined" instantly unless the mining policy says otherwise.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"fundportal/pkg/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallHandler answers a read-only call with the method outputs.
type CallHandler func(args []interface{}) ([]interface{}, error)

// TxHandler executes a transaction and returns the logs it emits. A non-nil
// error produces a reverted receipt.
type TxHandler func(from common.Address, args []interface{}) ([]*types.Log, error)

// Contract is a registered fake contract.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
	calls   map[string]CallHandler
	txs     map[string]TxHandler
}

// OnCall registers the handler for a view method.
func (c *Contract) OnCall(method string, h CallHandler) *Contract {
	c.calls[method] = h
	return c
}

// OnTx registers the handler for a state changing method.
func (c *Contract) OnTx(method string, h TxHandler) *Contract {
	c.txs[method] = h
	return c
}

// Backend implements chain.Backend in memory.
type Backend struct {
	mu sync.Mutex

	chainID       *big.Int
	NetworkIDErr  error
	networkID     *big.Int
	contracts     map[common.Address]*Contract
	balances      map[common.Address]*big.Int
	accounts      []common.Address
	AccountsErr   error
	BalanceErr    error
	syncing       *ethereum.SyncProgress
	SyncErr       error
	clientVersion string
	gasPrice      *big.Int
	blockNumber   uint64

	pendingNonce map[common.Address]uint64
	minedNonce   map[common.Address]uint64
	sent         []*types.Transaction
	receipts     map[common.Hash]*types.Receipt
	mine         func(tx *types.Transaction) bool
}

var _ chain.Backend = (*Backend)(nil)

// New creates a backend for chainID. Network id defaults to the chain id.
func New(chainID int64) *Backend {
	return &Backend{
		chainID:       big.NewInt(chainID),
		networkID:     big.NewInt(chainID),
		contracts:     make(map[common.Address]*Contract),
		balances:      make(map[common.Address]*big.Int),
		clientVersion: "Geth/v1.13.5-stable",
		gasPrice:      big.NewInt(1_000_000_000),
		blockNumber:   1,
		pendingNonce:  make(map[common.Address]uint64),
		minedNonce:    make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		mine:          func(*types.Transaction) bool { return true },
	}
}

// Register adds a contract at address with the given ABI.
func (b *Backend) Register(address common.Address, parsed abi.ABI) *Contract {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &Contract{
		Address: address,
		ABI:     parsed,
		calls:   make(map[string]CallHandler),
		txs:     make(map[string]TxHandler),
	}
	b.contracts[address] = c
	return c
}

// SetMinePolicy decides which submitted transactions get mined. Transactions
// that are not mined stay pending forever.
func (b *Backend) SetMinePolicy(fn func(tx *types.Transaction) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mine = fn
}

func (b *Backend) SetAccounts(accounts ...common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = accounts
}

func (b *Backend) SetBalance(account common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = wei
}

func (b *Backend) SetNetworkID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.networkID = big.NewInt(id)
}

// SetSyncing sets the sync progress; nil means the node is synced.
func (b *Backend) SetSyncing(p *ethereum.SyncProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncing = p
}

func (b *Backend) SetClientVersion(v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clientVersion = v
}

func (b *Backend) SetGasPrice(p *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gasPrice = p
}

// Sent returns every transaction submitted so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

// MakeLog builds the log event would emit from address. args are given in
// the event's input order; indexed ones become topics.
func MakeLog(address common.Address, parsed abi.ABI, event string, args ...interface{}) (*types.Log, error) {
	ev, ok := parsed.Events[event]
	if !ok {
		return nil, fmt.Errorf("no event %q in ABI", event)
	}
	if len(args) != len(ev.Inputs) {
		return nil, fmt.Errorf("event %s takes %d args, got %d", event, len(ev.Inputs), len(args))
	}
	topics := []common.Hash{ev.ID}
	var nonIndexed []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			nonIndexed = append(nonIndexed, args[i])
			continue
		}
		t, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", in.Name, err)
		}
		topics = append(topics, t[0][0])
	}
	data, err := ev.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", event, err)
	}
	return &types.Log{Address: address, Topics: topics, Data: data}, nil
}

// MustLog is MakeLog that panics, for use inside handlers.
func MustLog(address common.Address, parsed abi.ABI, event string, args ...interface{}) *types.Log {
	l, err := MakeLog(address, parsed, event, args...)
	if err != nil {
		panic(err)
	}
	return l
}

// NewTransactor returns a fresh key and transact options for the backend's chain.
func (b *Backend) NewTransactor() (*bind.TransactOpts, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(key, b.chainID)
}

func (b *Backend) lookup(to *common.Address, data []byte) (*Contract, *abi.Method, []interface{}, error) {
	if to == nil {
		return nil, nil, nil, errors.New("contract creation not supported")
	}
	c, ok := b.contracts[*to]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, nil, errors.New("call data too short")
	}
	method, err := c.ABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unpack %s args: %w", method.Name, err)
	}
	return c, method, args, nil
}

// ---- bind.ContractCaller ----

func (b *Backend) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.contracts[contract]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	c, method, args, err := b.lookup(msg.To, msg.Data)
	var h CallHandler
	if err == nil {
		h = c.calls[method.Name]
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("no call handler for %s", method.Name)
	}
	outs, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(outs...)
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return b.CodeAt(ctx, account, nil)
}

func (b *Backend) PendingCallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return b.CallContract(ctx, msg, nil)
}

// ---- bind.ContractTransactor ----

func (b *Backend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(b.blockNumber)}, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingNonce[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tx.Nonce() < b.minedNonce[from] {
		return errors.New("nonce too low")
	}
	b.sent = append(b.sent, tx)
	if next := tx.Nonce() + 1; next > b.pendingNonce[from] {
		b.pendingNonce[from] = next
	}
	if !b.mine(tx) {
		return nil
	}

	c, method, args, err := b.lookup(tx.To(), tx.Data())
	if err != nil {
		return err
	}
	h := c.txs[method.Name]
	if h == nil {
		return fmt.Errorf("no transaction handler for %s", method.Name)
	}

	b.blockNumber++
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 50_000,
		GasUsed:           50_000,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(b.blockNumber),
	}
	// handlers may call back into the backend, release the lock meanwhile
	b.mu.Unlock()
	logs, herr := h(from, args)
	b.mu.Lock()
	if herr != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		for i, l := range logs {
			l.TxHash = tx.Hash()
			l.BlockNumber = b.blockNumber
			l.Index = uint(i)
			receipt.Logs = append(receipt.Logs, l)
		}
	}
	b.minedNonce[from] = tx.Nonce() + 1
	b.receipts[tx.Hash()] = receipt
	return nil
}

// ---- bind.ContractFilterer ----

func (b *Backend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *Backend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

// ---- bind.DeployBackend ----

func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// ---- status queries ----

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BalanceErr != nil {
		return nil, b.BalanceErr
	}
	if v, ok := b.balances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockNumber, nil
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) NetworkID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NetworkIDErr != nil {
		return nil, b.NetworkIDErr
	}
	return new(big.Int).Set(b.networkID), nil
}

func (b *Backend) SyncProgress(context.Context) (*ethereum.SyncProgress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SyncErr != nil {
		return nil, b.SyncErr
	}
	if b.syncing == nil {
		return nil, nil
	}
	p := *b.syncing
	return &p, nil
}

func (b *Backend) Accounts(context.Context) ([]common.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.AccountsErr != nil {
		return nil, b.AccountsErr
	}
	out := make([]common.Address, len(b.accounts))
	copy(out, b.accounts)
	return out, nil
}

func (b *Backend) ClientVersion(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientVersion, nil
}
