// Package assets implements the token actions: balance reads, approvals and
// transfers.
package assets

import (
	"context"
	"fmt"

	"fundportal/internal/contracts"
	"fundportal/internal/ensure"
	"fundportal/internal/journal"
	"fundportal/internal/txutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service runs token actions against the registry's contracts.
type Service struct {
	registry *contracts.Registry
	booster  *txutil.Booster
	keyring  *txutil.Keyring
	recorder *journal.Recorder
	logger   *zap.Logger

	defaultAccount func() common.Address
}

func NewService(registry *contracts.Registry, booster *txutil.Booster, keyring *txutil.Keyring, recorder *journal.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		booster:  booster,
		keyring:  keyring,
		recorder: recorder,
		logger:   logger,
	}
}

// SetDefaultAccount installs the lookup used when an action is given the
// zero address as sender.
func (s *Service) SetDefaultAccount(fn func() common.Address) {
	s.defaultAccount = fn
}

// DefaultAccount returns the account actions use when none is given.
func (s *Service) DefaultAccount() common.Address {
	if s.defaultAccount != nil {
		if a := s.defaultAccount(); a != (common.Address{}) {
			return a
		}
	}
	return s.keyring.Default()
}

func (s *Service) orDefault(a common.Address) common.Address {
	if a == (common.Address{}) {
		return s.DefaultAccount()
	}
	return a
}

// GetBalance returns the readable token balance of owner.
func (s *Service) GetBalance(ctx context.Context, symbol string, owner common.Address) (decimal.Decimal, error) {
	token, err := s.registry.Token(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := token.BalanceOf(ctx, s.orDefault(owner))
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", symbol, err)
	}
	return contracts.ToReadable(raw, token.Decimals), nil
}

// Approve lets spender move quantity of symbol on behalf of from.
func (s *Service) Approve(ctx context.Context, symbol string, spender common.Address, quantity decimal.Decimal, from common.Address) (err error) {
	from = s.orDefault(from)
	id := s.recorder.Begin(ctx, journal.Action{
		Kind:     journal.KindApprove,
		From:     from.Hex(),
		Target:   spender.Hex(),
		Symbol:   symbol,
		Quantity: quantity.String(),
	})
	var out journal.Outcome
	defer func() {
		out.Err = err
		s.recorder.End(ctx, id, journal.KindApprove, out)
	}()

	token, err := s.registry.Token(symbol)
	if err != nil {
		return err
	}
	amount, err := contracts.ToProcessable(quantity, token.Decimals)
	if err != nil {
		return err
	}
	opts, err := s.keyring.Transactor(ctx, from)
	if err != nil {
		return err
	}

	receipt, err := s.booster.Submit(ctx, token.Contract(), opts, "approve", spender, amount)
	if receipt != nil {
		out.TxHash = receipt.TxHash.Hex()
	}
	if err != nil {
		return fmt.Errorf("approve %s: %w", symbol, err)
	}
	_, findErr := txutil.FindEventInLog(token.ABI(), "Approval", receipt)
	if err := ensure.That(findErr == nil, "Approval of %s %s to %s failed", quantity, symbol, spender.Hex()); err != nil {
		return err
	}

	s.logger.Info("approved",
		zap.String("symbol", symbol),
		zap.String("spender", spender.Hex()),
		zap.String("quantity", quantity.String()),
		zap.String("tx", out.TxHash))
	return nil
}

// TransferTo sends quantity of symbol from from to to. It reports whether
// the receipt carries a Transfer event.
func (s *Service) TransferTo(ctx context.Context, symbol string, to common.Address, quantity decimal.Decimal, from common.Address) (ok bool, err error) {
	from = s.orDefault(from)
	id := s.recorder.Begin(ctx, journal.Action{
		Kind:     journal.KindTransfer,
		From:     from.Hex(),
		Target:   to.Hex(),
		Symbol:   symbol,
		Quantity: quantity.String(),
	})
	var out journal.Outcome
	defer func() {
		if err != nil {
			out.Err = err
		}
		s.recorder.End(ctx, id, journal.KindTransfer, out)
	}()

	token, err := s.registry.Token(symbol)
	if err != nil {
		return false, err
	}
	amount, err := contracts.ToProcessable(quantity, token.Decimals)
	if err != nil {
		return false, err
	}
	opts, err := s.keyring.Transactor(ctx, from)
	if err != nil {
		return false, err
	}

	receipt, err := s.booster.Submit(ctx, token.Contract(), opts, "transfer", to, amount)
	if receipt != nil {
		out.TxHash = receipt.TxHash.Hex()
	}
	if err != nil {
		return false, fmt.Errorf("transfer %s: %w", symbol, err)
	}

	_, findErr := txutil.FindEventInLog(token.ABI(), "Transfer", receipt)
	ok = findErr == nil
	// a mined transfer without the event is journaled as failed
	out.Err = findErr
	s.logger.Info("transferred",
		zap.String("symbol", symbol),
		zap.String("to", to.Hex()),
		zap.String("quantity", quantity.String()),
		zap.String("tx", out.TxHash),
		zap.Bool("confirmed", ok))
	return ok, nil
}
