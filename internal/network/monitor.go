// Package network keeps the session in step with the node: network name,
// sync progress, available accounts and the selected account.
package network

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"fundportal/internal/journal"
	"fundportal/internal/metrics"
	"fundportal/internal/session"
	"fundportal/pkg/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Node is the part of the chain backend the monitor reads.
type Node interface {
	NetworkID(ctx context.Context) (*big.Int, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ClientVersion(ctx context.Context) (string, error)
}

type Options struct {
	Endpoint     string
	PollInterval time.Duration
	HeadRate     time.Duration
	// LocalAccounts are the signer addresses, listed after the node's own.
	LocalAccounts []common.Address
}

type Monitor struct {
	node    Node
	session *session.Session
	store   *session.Store
	prefs   journal.Preferences
	watcher *chain.HeadWatcher
	logger  *zap.Logger
	metrics *metrics.Collector
	opts    Options

	mu             sync.RWMutex
	defaultAccount common.Address
}

func NewMonitor(node Node, sess *session.Session, store *session.Store, prefs journal.Preferences, opts Options, logger *zap.Logger, m *metrics.Collector) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.HeadRate <= 0 {
		opts.HeadRate = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		node:    node,
		session: sess,
		store:   store,
		prefs:   prefs,
		logger:  logger,
		metrics: m,
		opts:    opts,
	}
}

// SetHeadWatcher makes Run refresh on every new head as well as on the poll
// interval.
func (m *Monitor) SetHeadWatcher(w *chain.HeadWatcher) {
	m.watcher = w
}

// DefaultAccount returns the account actions use when none is given.
func (m *Monitor) DefaultAccount() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultAccount
}

func (m *Monitor) setDefaultAccount(a common.Address) {
	m.mu.Lock()
	m.defaultAccount = a
	m.mu.Unlock()
}

// Startup initializes the session and runs the first round of checks.
// Check errors are logged and returned together, the session is updated
// regardless.
func (m *Monitor) Startup(ctx context.Context) error {
	m.logger.Info("monitor startup", zap.String("endpoint", m.opts.Endpoint))
	m.session.Init()

	var result *multierror.Error
	if err := m.CheckNetwork(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.CheckIfSyncing(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	m.session.Set(session.KeyIsServerConnected, true)
	m.InitProvider(ctx)

	if err := result.ErrorOrNil(); err != nil {
		m.logger.Warn("startup checks failed", zap.Error(err))
		return err
	}
	return nil
}

// Refresh re-runs the periodic checks.
func (m *Monitor) Refresh(ctx context.Context) error {
	var result *multierror.Error
	if err := m.CheckIfSyncing(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if n, err := m.node.BlockNumber(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("block number: %w", err))
	} else if m.session.GetBool(session.KeyIsSynced) {
		m.session.Set(session.KeyCurrentBlock, n)
		m.metrics.SetHeadBlock(n)
	}
	return result.ErrorOrNil()
}

// CheckNetwork names the network the node is on, then checks accounts.
func (m *Monitor) CheckNetwork(ctx context.Context) error {
	id, err := m.node.NetworkID(ctx)
	m.metrics.ObserveRefresh("network", err)
	var result *multierror.Error
	if err != nil {
		m.logger.Warn("network id unavailable", zap.Error(err))
		result = multierror.Append(result, fmt.Errorf("network id: %w", err))
	} else {
		m.session.Set(session.KeyNetwork, chain.NetworkName(id))
	}
	if err := m.CheckAccounts(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// CheckAccounts keeps the default account among the available ones,
// preferring the persisted choice, then the session's, then the first.
func (m *Monitor) CheckAccounts(ctx context.Context) error {
	accounts, err := m.listAccounts(ctx)
	m.metrics.ObserveRefresh("accounts", err)
	if err != nil {
		m.session.Set(session.KeyIsClientConnected, false)
		return fmt.Errorf("accounts: %w", err)
	}

	current := m.DefaultAccount()
	if !contains(accounts, current) {
		current = common.Address{}
		if saved, ok := m.savedAccount(ctx); ok && contains(accounts, saved) {
			current = saved
		} else if fromSession := m.session.GetString(session.KeySelectedAccount); common.IsHexAddress(fromSession) &&
			contains(accounts, common.HexToAddress(fromSession)) {
			current = common.HexToAddress(fromSession)
		} else if len(accounts) > 0 {
			current = accounts[0]
		}
		m.setDefaultAccount(current)
	}

	var result error
	if current == (common.Address{}) {
		m.session.Set(session.KeySelectedAccount, nil)
		m.session.Unset(session.KeySelectedAccountBalance)
	} else {
		if m.prefs != nil {
			if err := m.prefs.SetPreference(ctx, session.KeySelectedAccount, current.Hex()); err != nil {
				m.logger.Warn("persist selected account failed", zap.Error(err))
			}
		}
		if balance, err := m.node.BalanceAt(ctx, current, nil); err != nil {
			m.session.Unset(session.KeySelectedAccountBalance)
			result = fmt.Errorf("balance of %s: %w", current.Hex(), err)
		} else {
			m.session.Set(session.KeySelectedAccountBalance, balance)
		}
		m.session.Set(session.KeySelectedAccount, current.Hex())
	}

	list := make([]string, len(accounts))
	for i, a := range accounts {
		list[i] = a.Hex()
	}
	m.session.Set(session.KeyAccountCount, len(accounts))
	m.session.Set(session.KeyClientAccountList, list)
	m.session.Set(session.KeyIsClientConnected, true)
	return result
}

// CheckIfSyncing writes the sync progress, or marks the node synced and
// checks the network when it is not syncing.
func (m *Monitor) CheckIfSyncing(ctx context.Context) error {
	progress, err := m.node.SyncProgress(ctx)
	m.metrics.ObserveRefresh("sync", err)
	if err != nil {
		m.logger.Error("sync status unavailable", zap.Error(err))
		return fmt.Errorf("sync progress: %w", err)
	}
	if progress != nil {
		m.session.Set(session.KeyStartingBlock, progress.StartingBlock)
		m.session.Set(session.KeyCurrentBlock, progress.CurrentBlock)
		m.session.Set(session.KeyHighestBlock, progress.HighestBlock)
		m.session.Set(session.KeyIsSynced, false)
		m.metrics.SetSynced(false)
		m.metrics.SetHeadBlock(progress.CurrentBlock)
		return nil
	}
	m.session.Set(session.KeyIsSynced, true)
	m.metrics.SetSynced(true)
	return m.CheckNetwork(ctx)
}

// InitProvider detects the provider kind and dispatches it into the store.
func (m *Monitor) InitProvider(ctx context.Context) chain.Provider {
	p := chain.DetectProvider(ctx, m.opts.Endpoint, m.node)
	m.store.Dispatch(session.Action{Type: session.SetProvider, Provider: string(p)})
	m.logger.Info("provider detected", zap.String("provider", string(p)))
	return p
}

// Run starts up and then refreshes on the poll interval and on new heads
// until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	_ = m.Startup(ctx)

	heads := make(chan chain.Head, 1)
	if m.watcher != nil {
		m.watcher.SetHeadHandler(func(h chain.Head) {
			select {
			case heads <- h:
			default:
			}
		})
		if err := m.watcher.Connect(ctx); err != nil {
			m.logger.Warn("head watcher unavailable, will retry", zap.Error(err))
		}
		go m.watcher.Listen(ctx)
	}

	limiter := rate.NewLimiter(rate.Every(m.opts.HeadRate), 1)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.refresh(ctx, "poll")
		case h := <-heads:
			m.metrics.SetHeadBlock(h.Number)
			allowed := limiter.Allow()
			m.metrics.ObserveHead(allowed)
			if !allowed {
				continue
			}
			m.refresh(ctx, "head")
		}
	}
}

func (m *Monitor) refresh(ctx context.Context, trigger string) {
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("refresh failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (m *Monitor) listAccounts(ctx context.Context) ([]common.Address, error) {
	accounts, err := m.node.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range m.opts.LocalAccounts {
		if !contains(accounts, a) {
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

func (m *Monitor) savedAccount(ctx context.Context) (common.Address, bool) {
	if m.prefs == nil {
		return common.Address{}, false
	}
	v, ok, err := m.prefs.GetPreference(ctx, session.KeySelectedAccount)
	if err != nil {
		m.logger.Warn("read selected account failed", zap.Error(err))
		return common.Address{}, false
	}
	if !ok || !common.IsHexAddress(v) {
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func contains(list []common.Address, a common.Address) bool {
	if a == (common.Address{}) {
		return false
	}
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
