package assets_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"fundportal/internal/assets"
	"fundportal/internal/chaintest"
	"fundportal/internal/contracts"
	"fundportal/internal/ensure"
	"fundportal/internal/journal"
	"fundportal/internal/memorystore"
	"fundportal/internal/txutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	mlnAddress = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	recipient  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	spender    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type harness struct {
	backend *chaintest.Backend
	token   *chaintest.ERC20
	store   *memorystore.MemoryActionStore
	service *assets.Service
	account common.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := chaintest.New(1337)
	token := chaintest.NewERC20(backend, mlnAddress, contracts.ParsedTokenABI())

	registry, err := contracts.NewRegistry(backend, []contracts.TokenInfo{
		{Symbol: "MLN-T", Address: mlnAddress, Decimals: 18},
	}, common.Address{})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyring := txutil.NewKeyring(big.NewInt(1337), key)

	logger := zaptest.NewLogger(t)
	booster := txutil.NewBooster(backend, txutil.BoostOptions{
		StallTimeout: 50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  2,
		BumpPercent:  20,
	}, logger, nil)
	store := memorystore.NewActionStore()

	return &harness{
		backend: backend,
		token:   token,
		store:   store,
		service: assets.NewService(registry, booster, keyring, journal.NewRecorder(store, logger, nil), logger),
		account: keyring.Default(),
	}
}

func mln(s string) *big.Int {
	n, err := contracts.ToProcessable(decimal.RequireFromString(s), 18)
	if err != nil {
		panic(err)
	}
	return n
}

// go test -v --run TestGetBalance
func TestGetBalance(t *testing.T) {
	h := newHarness(t)
	h.token.Mint(h.account, mln("12.5"))

	bal, err := h.service.GetBalance(context.Background(), "MLN-T", h.account)
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())

	// zero address falls back to the default account
	bal, err = h.service.GetBalance(context.Background(), "MLN-T", common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())

	_, err = h.service.GetBalance(context.Background(), "XYZ", h.account)
	assert.True(t, errors.Is(err, contracts.ErrUnknownToken))
}

// go test -v --run TestTransferTo
func TestTransferTo(t *testing.T) {
	h := newHarness(t)
	h.token.Mint(h.account, mln("10"))

	ok, err := h.service.TransferTo(context.Background(), "MLN-T", recipient, decimal.RequireFromString("2.25"), common.Address{})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, mln("2.25").String(), h.token.BalanceOf(recipient).String())
	assert.Equal(t, mln("7.75").String(), h.token.BalanceOf(h.account).String())

	sent := h.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, mlnAddress, *sent[0].To())

	actions, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, journal.KindTransfer, actions[0].Kind)
	assert.Equal(t, journal.StatusConfirmed, actions[0].Status)
	assert.Equal(t, sent[0].Hash().Hex(), actions[0].TxHash)
	assert.Equal(t, "2.25", actions[0].Quantity)
}

// go test -v --run TestTransferToReverted
func TestTransferToReverted(t *testing.T) {
	h := newHarness(t)

	ok, err := h.service.TransferTo(context.Background(), "MLN-T", recipient, decimal.NewFromInt(1), h.account)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, txutil.ErrReverted))

	actions, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, journal.StatusFailed, actions[0].Status)
	assert.NotEmpty(t, actions[0].TxHash)
}

// go test -v --run TestTransferToRejectsInput
func TestTransferToRejectsInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.TransferTo(ctx, "MLN-T", recipient, decimal.RequireFromString("0.0000000000000000001"), h.account)
	assert.True(t, errors.Is(err, contracts.ErrPrecision))

	_, err = h.service.TransferTo(ctx, "MLN-T", recipient, decimal.NewFromInt(1), recipient)
	assert.True(t, errors.Is(err, txutil.ErrNoSigner))

	_, err = h.service.TransferTo(ctx, "DOGE", recipient, decimal.NewFromInt(1), h.account)
	assert.True(t, errors.Is(err, contracts.ErrUnknownToken))

	assert.Empty(t, h.backend.Sent())
}

// go test -v --run TestTransferToWithoutEvent
func TestTransferToWithoutEvent(t *testing.T) {
	h := newHarness(t)
	h.backend.Register(mlnAddress, contracts.ParsedTokenABI()).
		OnTx("transfer", func(common.Address, []interface{}) ([]*types.Log, error) {
			return nil, nil
		})

	ok, err := h.service.TransferTo(context.Background(), "MLN-T", recipient, decimal.NewFromInt(1), h.account)
	require.NoError(t, err)
	assert.False(t, ok)

	actions, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, journal.StatusFailed, actions[0].Status)
	assert.NotEmpty(t, actions[0].TxHash)
	assert.Contains(t, actions[0].Error, "Transfer")
}

// go test -v --run TestApprove
func TestApprove(t *testing.T) {
	h := newHarness(t)

	err := h.service.Approve(context.Background(), "MLN-T", spender, decimal.RequireFromString("3.01"), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, mln("3.01").String(), h.token.Allowance(h.account, spender).String())
}

// go test -v --run TestApproveWithoutEvent
func TestApproveWithoutEvent(t *testing.T) {
	h := newHarness(t)
	h.backend.Register(mlnAddress, contracts.ParsedTokenABI()).
		OnTx("approve", func(common.Address, []interface{}) ([]*types.Log, error) {
			return nil, nil
		})

	err := h.service.Approve(context.Background(), "MLN-T", spender, decimal.NewFromInt(1), h.account)
	var ee *ensure.EnsureError
	assert.True(t, errors.As(err, &ee))
}

// go test -v --run TestDefaultAccount
func TestDefaultAccount(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.account, h.service.DefaultAccount())

	h.service.SetDefaultAccount(func() common.Address { return recipient })
	assert.Equal(t, recipient, h.service.DefaultAccount())

	h.service.SetDefaultAccount(func() common.Address { return common.Address{} })
	assert.Equal(t, h.account, h.service.DefaultAccount())
}
