package txutil

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoSigner = errors.New("no local key for account")

// Keyring signs transactions with locally held keys.
type Keyring struct {
	chainID *big.Int
	keys    map[common.Address]*ecdsa.PrivateKey
	order   []common.Address
}

func NewKeyring(chainID *big.Int, keys ...*ecdsa.PrivateKey) *Keyring {
	k := &Keyring{
		chainID: chainID,
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := k.keys[addr]; dup {
			continue
		}
		k.keys[addr] = key
		k.order = append(k.order, addr)
	}
	return k
}

// ParseKey decodes a hex private key, with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Accounts returns the signable addresses in insertion order.
func (k *Keyring) Accounts() []common.Address {
	out := make([]common.Address, len(k.order))
	copy(out, k.order)
	return out
}

// Default returns the first account, or the zero address for an empty keyring.
func (k *Keyring) Default() common.Address {
	if len(k.order) == 0 {
		return common.Address{}
	}
	return k.order[0]
}

func (k *Keyring) Has(addr common.Address) bool {
	_, ok := k.keys[addr]
	return ok
}

// Transactor returns transact options signing as from.
func (k *Keyring) Transactor(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	key, ok := k.keys[from]
	if !ok {
		return nil, fmt.Errorf("%s: %w", from.Hex(), ErrNoSigner)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, k.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
