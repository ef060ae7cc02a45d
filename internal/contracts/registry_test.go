package contracts_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"fundportal/internal/chaintest"
	"fundportal/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mlnAddress  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdAddress  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	fundAddress = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	feedAddress = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	holder      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newRegistry(t *testing.T, backend *chaintest.Backend) *contracts.Registry {
	t.Helper()
	reg, err := contracts.NewRegistry(backend, []contracts.TokenInfo{
		{Symbol: "MLN-T", Address: mlnAddress, Decimals: 18},
		{Symbol: "USD-T", Address: usdAddress, Decimals: 6},
	}, feedAddress)
	require.NoError(t, err)
	return reg
}

// go test -v --run TestRegistryLookups
func TestRegistryLookups(t *testing.T) {
	reg := newRegistry(t, chaintest.New(42))
	assert.Equal(t, 2, reg.Len())

	addr, err := reg.Address("USD-T")
	require.NoError(t, err)
	assert.Equal(t, usdAddress, addr)

	_, err = reg.Address("DOGE")
	assert.True(t, errors.Is(err, contracts.ErrUnknownToken))

	n, err := reg.ToProcessable(decimal.RequireFromString("2.5"), "USD-T")
	require.NoError(t, err)
	assert.Equal(t, "2500000", n.String())

	r, err := reg.ToReadable(big.NewInt(2500000), "USD-T")
	require.NoError(t, err)
	assert.Equal(t, "2.5", r.String())

	r, err = reg.ToReadable(big.NewInt(1_000_000_000_000_000_000), "")
	require.NoError(t, err)
	assert.Equal(t, "1", r.String())
}

// go test -v --run TestRegistryDuplicate
func TestRegistryDuplicate(t *testing.T) {
	_, err := contracts.NewRegistry(chaintest.New(42), []contracts.TokenInfo{
		{Symbol: "MLN-T"}, {Symbol: "MLN-T"},
	}, common.Address{})
	assert.Error(t, err)
}

// go test -v --run TestTokenCalls
func TestTokenCalls(t *testing.T) {
	backend := chaintest.New(42)
	backend.Register(mlnAddress, contracts.ParsedTokenABI()).
		OnCall("balanceOf", func(args []interface{}) ([]interface{}, error) {
			if args[0].(common.Address) == holder {
				return []interface{}{big.NewInt(5)}, nil
			}
			return []interface{}{big.NewInt(0)}, nil
		}).
		OnCall("allowance", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(9)}, nil
		})

	reg := newRegistry(t, backend)
	token, err := reg.Token("MLN-T")
	require.NoError(t, err)

	ctx := context.Background()
	bal, err := token.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())

	allowance, err := token.Allowance(ctx, holder, fundAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(9), allowance.Int64())

	// bound contracts are cached
	again, err := reg.Token("MLN-T")
	require.NoError(t, err)
	assert.Same(t, token.Contract(), again.Contract())
}

// go test -v --run TestFundAndFeedCalls
func TestFundAndFeedCalls(t *testing.T) {
	backend := chaintest.New(42)
	backend.Register(fundAddress, contracts.ParsedFundABI()).
		OnCall("isSubscribeAllowed", func([]interface{}) ([]interface{}, error) {
			return []interface{}{true}, nil
		}).
		OnCall("requests", func(args []interface{}) ([]interface{}, error) {
			id := args[0].(*big.Int)
			return []interface{}{
				holder, uint8(0), uint8(1),
				big.NewInt(3), big.NewInt(4), big.NewInt(5), big.NewInt(6),
				id, big.NewInt(1500000000), big.NewInt(1500000100),
			}, nil
		})
	backend.Register(feedAddress, contracts.ParsedDataFeedABI()).
		OnCall("isValid", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{args[0].(common.Address) == mlnAddress}, nil
		})

	reg := newRegistry(t, backend)
	ctx := context.Background()

	fund := reg.Fund(fundAddress)
	allowed, err := fund.IsSubscribeAllowed(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)

	req, err := fund.Requests(ctx, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, holder, req.Participant)
	assert.Equal(t, uint8(1), req.RequestType)
	assert.Equal(t, int64(3), req.ShareQuantity.Int64())
	assert.Equal(t, int64(7), req.LastDataFeedUpdateID.Int64())
	assert.Equal(t, int64(1500000100), req.Time().Unix())

	feed := reg.DataFeed()
	valid, err := feed.IsValid(ctx, mlnAddress)
	require.NoError(t, err)
	assert.True(t, valid)
	valid, err = feed.IsValid(ctx, usdAddress)
	require.NoError(t, err)
	assert.False(t, valid)
}

// go test -v --run TestCallWithoutContract
func TestCallWithoutContract(t *testing.T) {
	reg := newRegistry(t, chaintest.New(42))
	_, err := reg.Fund(fundAddress).IsSubscribeAllowed(context.Background())
	assert.Error(t, err)
}
