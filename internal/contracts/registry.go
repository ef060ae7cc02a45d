// Package contracts resolves the token, fund and data feed contracts the
// portal talks to and converts quantities to and from their integer form.
package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

var ErrUnknownToken = errors.New("unknown token symbol")

const boundCacheSize = 128

// TokenInfo is a token registry entry.
type TokenInfo struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Registry maps token symbols to contracts and binds contract instances,
// caching them by kind and address.
type Registry struct {
	backend  bind.ContractBackend
	tokens   map[string]TokenInfo
	dataFeed common.Address
	bound    *lru.Cache[string, *bind.BoundContract]
}

// NewRegistry builds a registry over backend for the given tokens and data
// feed address.
func NewRegistry(backend bind.ContractBackend, tokens []TokenInfo, dataFeed common.Address) (*Registry, error) {
	cache, err := lru.New[string, *bind.BoundContract](boundCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create contract cache: %w", err)
	}
	r := &Registry{
		backend:  backend,
		tokens:   make(map[string]TokenInfo, len(tokens)),
		dataFeed: dataFeed,
		bound:    cache,
	}
	for _, t := range tokens {
		if _, dup := r.tokens[t.Symbol]; dup {
			return nil, fmt.Errorf("duplicate token %q", t.Symbol)
		}
		r.tokens[t.Symbol] = t
	}
	return r, nil
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// TokenInfo returns the registry entry for symbol.
func (r *Registry) TokenInfo(symbol string) (TokenInfo, error) {
	t, ok := r.tokens[symbol]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%q: %w", symbol, ErrUnknownToken)
	}
	return t, nil
}

// Address returns the contract address of symbol.
func (r *Registry) Address(symbol string) (common.Address, error) {
	t, err := r.TokenInfo(symbol)
	if err != nil {
		return common.Address{}, err
	}
	return t.Address, nil
}

// ToProcessable converts quantity of symbol into its contract integer.
func (r *Registry) ToProcessable(quantity decimal.Decimal, symbol string) (*big.Int, error) {
	t, err := r.TokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	return ToProcessable(quantity, t.Decimals)
}

// ToReadable converts a contract integer of symbol into a readable quantity.
// An empty symbol uses DefaultDecimals.
func (r *Registry) ToReadable(quantity *big.Int, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return ToReadable(quantity, DefaultDecimals), nil
	}
	t, err := r.TokenInfo(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return ToReadable(quantity, t.Decimals), nil
}

// Token returns the bound ERC-20 contract of symbol.
func (r *Registry) Token(symbol string) (*Token, error) {
	t, err := r.TokenInfo(symbol)
	if err != nil {
		return nil, err
	}
	return &Token{
		TokenInfo: t,
		contract:  r.bind("token", t.Address, tokenABI),
	}, nil
}

// Fund returns the bound fund contract at address.
func (r *Registry) Fund(address common.Address) *Fund {
	return &Fund{
		Address:  address,
		contract: r.bind("fund", address, fundABI),
	}
}

// DataFeed returns the bound data feed contract.
func (r *Registry) DataFeed() *DataFeed {
	return &DataFeed{
		Address:  r.dataFeed,
		contract: r.bind("datafeed", r.dataFeed, dataFeedABI),
	}
}

func (r *Registry) bind(kind string, address common.Address, parsed abi.ABI) *bind.BoundContract {
	key := kind + ":" + address.Hex()
	if c, ok := r.bound.Get(key); ok {
		return c
	}
	c := bind.NewBoundContract(address, parsed, r.backend, r.backend, r.backend)
	r.bound.Add(key, c)
	return c
}
