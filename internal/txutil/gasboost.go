package txutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"fundportal/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

var (
	ErrReverted = errors.New("transaction reverted")
	ErrStalled  = errors.New("transaction not mined")
)

// Backend is what the booster needs beyond the bound contract.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type BoostOptions struct {
	StallTimeout time.Duration
	PollInterval time.Duration
	MaxAttempts  uint64
	BumpPercent  int64
}

// Booster submits a transaction and, when it does not get mined within the
// stall timeout, replaces it under the same nonce at a higher gas price.
type Booster struct {
	backend Backend
	opts    BoostOptions
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewBooster(backend Backend, opts BoostOptions, logger *zap.Logger, m *metrics.Collector) *Booster {
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}
	if opts.BumpPercent < 10 {
		opts.BumpPercent = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Booster{backend: backend, opts: opts, logger: logger, metrics: m}
}

// Submit calls method on contract and returns the mined receipt. A reverted
// receipt is returned together with ErrReverted.
func (b *Booster) Submit(ctx context.Context, contract *bind.BoundContract, opts *bind.TransactOpts, method string, args ...interface{}) (*types.Receipt, error) {
	if opts == nil || opts.Signer == nil {
		return nil, errors.New("transact options without signer")
	}
	txOpts := *opts
	txOpts.Context = ctx
	txOpts.GasFeeCap, txOpts.GasTipCap = nil, nil

	if txOpts.Nonce == nil {
		nonce, err := b.backend.PendingNonceAt(ctx, txOpts.From)
		if err != nil {
			return nil, fmt.Errorf("pending nonce of %s: %w", txOpts.From.Hex(), err)
		}
		txOpts.Nonce = new(big.Int).SetUint64(nonce)
	}
	price := txOpts.GasPrice
	if price == nil {
		suggested, err := b.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		price = suggested
	}

	var (
		hashes  []common.Hash
		receipt *types.Receipt
		attempt uint64
	)
	// the stall wait is the delay between attempts
	backoff := retry.WithMaxRetries(b.opts.MaxAttempts-1, retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			price = BumpGasPrice(price, b.opts.BumpPercent)
		}
		txOpts.GasPrice = price
		b.metrics.ObserveBoostAttempt(method)

		tx, err := contract.Transact(&txOpts, method, args...)
		switch {
		case err == nil:
			hashes = append(hashes, tx.Hash())
			b.logger.Info("transaction sent",
				zap.String("method", method),
				zap.String("tx", tx.Hash().Hex()),
				zap.Uint64("nonce", tx.Nonce()),
				zap.String("gas_price", price.String()),
				zap.Uint64("attempt", attempt))
		case len(hashes) > 0 && isReplacementError(err):
			// an earlier attempt was mined or is still known to the pool
			b.logger.Debug("replacement rejected", zap.String("method", method), zap.Error(err))
		default:
			return fmt.Errorf("send %s: %w", method, err)
		}

		r, err := b.wait(ctx, hashes)
		if errors.Is(err, ErrStalled) {
			b.logger.Warn("transaction stalled, boosting gas price",
				zap.String("method", method),
				zap.Uint64("attempt", attempt),
				zap.Duration("stall_timeout", b.opts.StallTimeout))
			return retry.RetryableError(fmt.Errorf("%s after %d attempts: %w", method, attempt, ErrStalled))
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s in tx %s: %w", method, receipt.TxHash.Hex(), ErrReverted)
	}
	return receipt, nil
}

// wait polls receipts of hashes until one is found, the stall timeout passes
// or ctx is done.
func (b *Booster) wait(ctx context.Context, hashes []common.Hash) (*types.Receipt, error) {
	stall := time.NewTimer(b.opts.StallTimeout)
	defer stall.Stop()
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		for _, h := range hashes {
			r, err := b.backend.TransactionReceipt(ctx, h)
			if err == nil && r != nil {
				return r, nil
			}
			if err != nil && !errors.Is(err, ethereum.NotFound) {
				b.logger.Warn("receipt lookup failed", zap.String("tx", h.Hex()), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stall.C:
			return nil, ErrStalled
		case <-ticker.C:
		}
	}
}

// BumpGasPrice raises price by percent, and by at least one wei.
func BumpGasPrice(price *big.Int, percent int64) *big.Int {
	bumped := new(big.Int).Mul(price, big.NewInt(100+percent))
	bumped.Div(bumped, big.NewInt(100))
	if bumped.Cmp(price) <= 0 {
		bumped.Add(price, big.NewInt(1))
	}
	return bumped
}

func isReplacementError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"nonce too low", "already known", "replacement transaction underpriced"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
