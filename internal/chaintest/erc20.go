package chaintest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC20 is a fake token contract keeping balances and allowances in memory.
type ERC20 struct {
	mu         sync.Mutex
	Address    common.Address
	abi        abi.ABI
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

// NewERC20 registers a token at address on b. parsed must contain balanceOf,
// allowance, transfer, approve and the Transfer and Approval events.
func NewERC20(b *Backend, address common.Address, parsed abi.ABI) *ERC20 {
	t := &ERC20{
		Address:    address,
		abi:        parsed,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}
	b.Register(address, parsed).
		OnCall("balanceOf", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{t.BalanceOf(args[0].(common.Address))}, nil
		}).
		OnCall("allowance", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{t.Allowance(args[0].(common.Address), args[1].(common.Address))}, nil
		}).
		OnTx("transfer", t.transfer).
		OnTx("approve", t.approve)
	return t
}

func (t *ERC20) Mint(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Add(t.balance(owner), amount)
}

func (t *ERC20) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(owner))
}

func (t *ERC20) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *ERC20) balance(owner common.Address) *big.Int {
	if v, ok := t.balances[owner]; ok {
		return v
	}
	return new(big.Int)
}

func (t *ERC20) transfer(from common.Address, args []interface{}) ([]*types.Log, error) {
	to := args[0].(common.Address)
	value := args[1].(*big.Int)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balance(from).Cmp(value) < 0 {
		return nil, errors.New("insufficient balance")
	}
	t.balances[from] = new(big.Int).Sub(t.balance(from), value)
	t.balances[to] = new(big.Int).Add(t.balance(to), value)

	l, err := MakeLog(t.Address, t.abi, "Transfer", from, to, value)
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}

func (t *ERC20) approve(owner common.Address, args []interface{}) ([]*types.Log, error) {
	spender := args[0].(common.Address)
	value := args[1].(*big.Int)

	t.mu.Lock()
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(value)
	t.mu.Unlock()

	l, err := MakeLog(t.Address, t.abi, "Approval", owner, spender, value)
	if err != nil {
		return nil, err
	}
	return []*types.Log{l}, nil
}
