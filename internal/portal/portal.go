// Package portal wires configuration, node connection, journal and actions
// into one client.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fundportal/config"
	"fundportal/internal/assets"
	"fundportal/internal/contracts"
	"fundportal/internal/journal"
	"fundportal/internal/memorystore"
	"fundportal/internal/metrics"
	"fundportal/internal/network"
	"fundportal/internal/participation"
	"fundportal/internal/retention"
	"fundportal/internal/session"
	"fundportal/internal/txutil"
	"fundportal/pkg/chain"
	"fundportal/pkg/storage/postgres"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Portal is a fully wired client.
type Portal struct {
	Config   *config.Config
	Logger   *zap.Logger
	Backend  chain.Backend
	Endpoint string

	Session     *session.Session
	Store       *session.Store
	Registry    *contracts.Registry
	Keyring     *txutil.Keyring
	Booster     *txutil.Booster
	Journal     journal.Store
	Preferences journal.Preferences
	Recorder    *journal.Recorder
	Metrics     *metrics.Collector

	Monitor       *network.Monitor
	Assets        *assets.Service
	Participation *participation.Service

	closers []func() error
}

// New dials the configured node and builds the client around it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Portal, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Ethereum.Timeout)
	defer cancel()
	node, err := chain.Dial(dialCtx, cfg.Ethereum.RPCURL)
	if err != nil {
		return nil, err
	}

	p, err := Build(ctx, cfg, logger, node, node.Endpoint())
	if err != nil {
		node.Close()
		return nil, err
	}
	p.closers = append(p.closers, func() error { node.Close(); return nil })
	return p, nil
}

// Build assembles a client over an existing backend.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, backend chain.Backend, endpoint string) (*Portal, error) {
	p := &Portal{
		Config:   cfg,
		Logger:   logger,
		Backend:  backend,
		Endpoint: endpoint,
		Session:  session.New(),
		Store:    session.NewStore(),
		Metrics:  metrics.NewCollector(),
	}

	tokens, err := TokenInfos(cfg.Tokens)
	if err != nil {
		return nil, err
	}
	var dataFeed common.Address
	if cfg.Fund.DataFeed != "" {
		if !common.IsHexAddress(cfg.Fund.DataFeed) {
			return nil, fmt.Errorf("fund.data_feed: invalid address %q", cfg.Fund.DataFeed)
		}
		dataFeed = common.HexToAddress(cfg.Fund.DataFeed)
	}
	if p.Registry, err = contracts.NewRegistry(backend, tokens, dataFeed); err != nil {
		return nil, err
	}

	if p.Keyring, err = buildKeyring(ctx, cfg, backend); err != nil {
		return nil, err
	}

	if cfg.Postgres.Enabled() {
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		p.Journal, p.Preferences = client, client
		p.closers = append(p.closers, client.Close)
	} else {
		logger.Info("no database configured, journal kept in memory")
		p.Journal, p.Preferences = memorystore.NewActionStore(), memorystore.NewPreferenceStore()
	}
	p.Recorder = journal.NewRecorder(p.Journal, logger.Named("journal"), p.Metrics)

	p.Booster = txutil.NewBooster(backend, txutil.BoostOptions{
		StallTimeout: cfg.Boost.StallTimeout,
		PollInterval: cfg.Boost.PollInterval,
		MaxAttempts:  cfg.Boost.MaxAttempts,
		BumpPercent:  cfg.Boost.BumpPercent,
	}, logger.Named("boost"), p.Metrics)

	p.Monitor = network.NewMonitor(backend, p.Session, p.Store, p.Preferences, network.Options{
		Endpoint:      endpoint,
		PollInterval:  cfg.Monitor.PollInterval,
		HeadRate:      cfg.Monitor.HeadRate,
		LocalAccounts: p.Keyring.Accounts(),
	}, logger.Named("monitor"), p.Metrics)
	if cfg.Ethereum.WSURL != "" {
		p.Monitor.SetHeadWatcher(chain.NewHeadWatcher(cfg.Ethereum.WSURL, logger.Named("heads")))
	}

	p.Assets = assets.NewService(p.Registry, p.Booster, p.Keyring, p.Recorder, logger.Named("assets"))
	p.Assets.SetDefaultAccount(p.Monitor.DefaultAccount)
	p.Participation = participation.NewService(p.Registry, p.Assets, p.Booster, p.Keyring, p.Recorder,
		cfg.Fund.QuoteSymbol, logger.Named("participation"))

	return p, nil
}

// TokenInfos converts the configured tokens into registry entries.
func TokenInfos(tokens []config.TokenConfig) ([]contracts.TokenInfo, error) {
	out := make([]contracts.TokenInfo, 0, len(tokens))
	for _, t := range tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", t.Symbol, t.Address)
		}
		decimals := int32(contracts.DefaultDecimals)
		if t.Decimals != nil {
			decimals = *t.Decimals
		}
		if decimals < 0 || decimals > 77 {
			return nil, fmt.Errorf("token %s: decimals %d out of range", t.Symbol, decimals)
		}
		out = append(out, contracts.TokenInfo{
			Symbol:   t.Symbol,
			Address:  common.HexToAddress(t.Address),
			Decimals: decimals,
		})
	}
	return out, nil
}

func buildKeyring(ctx context.Context, cfg *config.Config, backend chain.Backend) (*txutil.Keyring, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	hexKey, err := cfg.Signer.ResolveKey(ctx, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("resolve signer key: %w", err)
	}
	if hexKey == "" {
		return txutil.NewKeyring(chainID), nil
	}
	key, err := txutil.ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return txutil.NewKeyring(chainID, key), nil
}

// Startup runs the monitor's first round of checks once.
func (p *Portal) Startup(ctx context.Context) error {
	return p.Monitor.Startup(ctx)
}

// Watch runs the monitor, the metrics endpoint and journal retention until
// ctx is done.
func (p *Portal) Watch(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if spec := p.Config.Retention.Schedule; spec != "" {
		sched, err := retention.NewScheduler(spec, &retention.Pruner{
			Store:   p.Journal,
			MaxAge:  p.Config.Retention.MaxAge,
			Logger:  p.Logger.Named("retention"),
			Metrics: p.Metrics,
		})
		if err != nil {
			return err
		}
		sched.Start(ctx)
	}

	var (
		wg         sync.WaitGroup
		metricsErr error
	)
	if addr := p.Config.Metrics.Listen; addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Metrics.Serve(ctx, addr, p.Logger); err != nil {
				metricsErr = fmt.Errorf("metrics endpoint: %w", err)
				cancel()
			}
		}()
	}

	err := p.Monitor.Run(ctx)
	cancel()
	wg.Wait()
	if metricsErr != nil {
		return metricsErr
	}
	if parent.Err() != nil && errors.Is(err, parent.Err()) {
		return nil
	}
	return err
}

// Close releases the database and node connections.
func (p *Portal) Close() error {
	var result *multierror.Error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
