// Package participation implements fund subscriptions.
package participation

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"fundportal/internal/assets"
	"fundportal/internal/contracts"
	"fundportal/internal/ensure"
	"fundportal/internal/journal"
	"fundportal/internal/txutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultIncentive is paid to whoever executes the request when the caller
// does not name an incentive.
var DefaultIncentive = decimal.RequireFromString("0.01")

// Subscription is a pending subscription request.
type Subscription struct {
	NumShares   decimal.Decimal
	AtTimestamp time.Time
	ID          *big.Int
}

type Service struct {
	registry    *contracts.Registry
	assets      *assets.Service
	booster     *txutil.Booster
	keyring     *txutil.Keyring
	recorder    *journal.Recorder
	quoteSymbol string
	logger      *zap.Logger
}

func NewService(registry *contracts.Registry, assetService *assets.Service, booster *txutil.Booster, keyring *txutil.Keyring, recorder *journal.Recorder, quoteSymbol string, logger *zap.Logger) *Service {
	if quoteSymbol == "" {
		quoteSymbol = "MLN-T"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:    registry,
		assets:      assetService,
		booster:     booster,
		keyring:     keyring,
		recorder:    recorder,
		quoteSymbol: quoteSymbol,
		logger:      logger,
	}
}

// Subscribe offers offeredValue of the quote token to the fund at fundAddress
// for numShares, paying incentiveValue to the executor. An invalid incentive
// means DefaultIncentive and a zero subscriber means the default account.
func (s *Service) Subscribe(ctx context.Context, fundAddress common.Address, numShares, offeredValue decimal.Decimal, incentiveValue decimal.NullDecimal, subscriber common.Address) (sub *Subscription, err error) {
	incentive := DefaultIncentive
	if incentiveValue.Valid {
		incentive = incentiveValue.Decimal
	}
	if subscriber == (common.Address{}) {
		subscriber = s.assets.DefaultAccount()
	}

	id := s.recorder.Begin(ctx, journal.Action{
		Kind:     journal.KindSubscribe,
		From:     subscriber.Hex(),
		Target:   fundAddress.Hex(),
		Symbol:   s.quoteSymbol,
		Quantity: offeredValue.String(),
	})
	var out journal.Outcome
	defer func() {
		out.Err = err
		s.recorder.End(ctx, id, journal.KindSubscribe, out)
	}()

	fund := s.registry.Fund(fundAddress)
	dataFeed := s.registry.DataFeed()
	quoteAddress, err := s.registry.Address(s.quoteSymbol)
	if err != nil {
		return nil, err
	}

	balance, err := s.assets.GetBalance(ctx, s.quoteSymbol, subscriber)
	if err != nil {
		return nil, err
	}
	total := offeredValue.Add(incentive)
	if err := ensure.That(balance.GreaterThanOrEqual(total),
		"Insufficient %s. Need %s have: %s", s.quoteSymbol, total, balance); err != nil {
		return nil, err
	}

	allowed, err := fund.IsSubscribeAllowed(ctx)
	if err != nil {
		return nil, err
	}
	if err := ensure.That(allowed, "Subscriptions to fund are disabled"); err != nil {
		return nil, err
	}
	if err := ensure.That(incentive.IsPositive(), "incentiveValue must be greater than 0"); err != nil {
		return nil, err
	}

	valid, err := dataFeed.IsValid(ctx, quoteAddress)
	if err != nil {
		return nil, err
	}
	if err := ensure.That(valid, "Data not valid"); err != nil {
		return nil, err
	}

	// rejected input must not leave an allowance behind
	give, err := s.registry.ToProcessable(offeredValue, s.quoteSymbol)
	if err != nil {
		return nil, err
	}
	shares, err := s.registry.ToProcessable(numShares, s.quoteSymbol)
	if err != nil {
		return nil, err
	}
	fee, err := s.registry.ToProcessable(incentive, s.quoteSymbol)
	if err != nil {
		return nil, err
	}
	opts, err := s.keyring.Transactor(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	if err := s.assets.Approve(ctx, s.quoteSymbol, fundAddress, total, subscriber); err != nil {
		return nil, err
	}

	receipt, err := s.booster.Submit(ctx, fund.Contract(), opts, "requestSubscription", give, shares, fee)
	if receipt != nil {
		out.TxHash = receipt.TxHash.Hex()
	}
	if err != nil {
		return nil, fmt.Errorf("request subscription: %w", err)
	}

	entry, err := txutil.FindEventInLog(fund.ABI(), "RequestUpdated", receipt)
	if err != nil {
		return nil, err
	}
	requestID, err := entry.Big("id")
	if err != nil {
		return nil, err
	}
	request, err := fund.Requests(ctx, requestID)
	if err != nil {
		return nil, err
	}
	numSharesRequested, err := s.registry.ToReadable(request.ShareQuantity, "")
	if err != nil {
		return nil, err
	}

	sub = &Subscription{
		NumShares:   numSharesRequested,
		AtTimestamp: request.Time(),
		ID:          requestID,
	}
	out.RequestID = requestID.String()
	out.Shares = numSharesRequested.String()

	s.logger.Info("subscription requested",
		zap.String("fund", fundAddress.Hex()),
		zap.String("request_id", out.RequestID),
		zap.String("shares", out.Shares),
		zap.String("tx", out.TxHash))
	return sub, nil
}
