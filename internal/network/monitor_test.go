package network_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundportal/internal/chaintest"
	"fundportal/internal/memorystore"
	"fundportal/internal/metrics"
	"fundportal/internal/network"
	"fundportal/internal/session"
	"fundportal/pkg/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	accountA = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	accountB = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	accountC = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	signer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
)

type harness struct {
	backend *chaintest.Backend
	session *session.Session
	store   *session.Store
	prefs   *memorystore.MemoryPreferenceStore
	monitor *network.Monitor
}

func newHarness(t *testing.T, endpoint string) *harness {
	t.Helper()
	backend := chaintest.New(42)
	backend.SetAccounts(accountA, accountB, accountC)
	backend.SetBalance(accountA, big.NewInt(7))

	h := &harness{
		backend: backend,
		session: session.New(),
		store:   session.NewStore(),
		prefs:   memorystore.NewPreferenceStore(),
	}
	h.monitor = network.NewMonitor(backend, h.session, h.store, h.prefs, network.Options{
		Endpoint:      endpoint,
		PollInterval:  10 * time.Millisecond,
		LocalAccounts: []common.Address{signer, accountA},
	}, zaptest.NewLogger(t), nil)
	return h
}

// go test -v --run TestStartup
func TestStartup(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:8545")
	require.NoError(t, h.monitor.Startup(context.Background()))

	assert.Equal(t, "Kovan", h.session.GetString(session.KeyNetwork))
	assert.True(t, h.session.GetBool(session.KeyIsSynced))
	assert.True(t, h.session.GetBool(session.KeyIsServerConnected))
	assert.True(t, h.session.GetBool(session.KeyIsClientConnected))
	assert.True(t, h.session.GetBool(session.KeyFromPortfolio))
	assert.True(t, h.session.GetBool(session.KeyShowModal))

	assert.Equal(t, accountA.Hex(), h.session.GetString(session.KeySelectedAccount))
	assert.Equal(t, accountA, h.monitor.DefaultAccount())
	balance, ok := h.session.Get(session.KeySelectedAccountBalance)
	require.True(t, ok)
	assert.Equal(t, "7", balance.(*big.Int).String())

	assert.Equal(t, uint64(4), h.session.GetUint64(session.KeyAccountCount))
	list, _ := h.session.Get(session.KeyClientAccountList)
	assert.Equal(t, []string{accountA.Hex(), accountB.Hex(), accountC.Hex(), signer.Hex()}, list)

	saved, ok, err := h.prefs.GetPreference(context.Background(), session.KeySelectedAccount)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, accountA.Hex(), saved)

	assert.Equal(t, string(chain.ProviderLocalNode), h.store.State().Provider)
}

// go test -v --run TestCheckIfSyncing
func TestCheckIfSyncing(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:8545")
	h.session.Init()
	h.backend.SetSyncing(&ethereum.SyncProgress{StartingBlock: 300, CurrentBlock: 312, HighestBlock: 512})

	require.NoError(t, h.monitor.CheckIfSyncing(context.Background()))
	assert.Equal(t, uint64(300), h.session.GetUint64(session.KeyStartingBlock))
	assert.Equal(t, uint64(312), h.session.GetUint64(session.KeyCurrentBlock))
	assert.Equal(t, uint64(512), h.session.GetUint64(session.KeyHighestBlock))
	assert.False(t, h.session.GetBool(session.KeyIsSynced))
	// network is only checked once the node is synced
	assert.Equal(t, false, mustGet(t, h.session, session.KeyNetwork))

	h.backend.SyncErr = errors.New("rpc down")
	assert.Error(t, h.monitor.CheckIfSyncing(context.Background()))
}

// go test -v --run TestAccountSelection
func TestAccountSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("persisted preference wins", func(t *testing.T) {
		h := newHarness(t, "")
		require.NoError(t, h.prefs.SetPreference(ctx, session.KeySelectedAccount, accountB.Hex()))
		h.session.Set(session.KeySelectedAccount, accountC.Hex())
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		assert.Equal(t, accountB, h.monitor.DefaultAccount())
	})

	t.Run("session next", func(t *testing.T) {
		h := newHarness(t, "")
		h.session.Set(session.KeySelectedAccount, accountC.Hex())
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		assert.Equal(t, accountC, h.monitor.DefaultAccount())
	})

	t.Run("current account is kept", func(t *testing.T) {
		h := newHarness(t, "")
		h.session.Set(session.KeySelectedAccount, accountC.Hex())
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		require.NoError(t, h.prefs.SetPreference(ctx, session.KeySelectedAccount, accountB.Hex()))
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		assert.Equal(t, accountC, h.monitor.DefaultAccount())
	})

	t.Run("account gone", func(t *testing.T) {
		h := newHarness(t, "")
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		require.Equal(t, accountA, h.monitor.DefaultAccount())
		h.backend.SetAccounts(accountB)
		require.NoError(t, h.monitor.CheckAccounts(ctx))
		// accountA is still a local signer
		assert.Equal(t, accountA, h.monitor.DefaultAccount())
	})
}

// go test -v --run TestCheckAccountsFailures
func TestCheckAccountsFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "")

	h.backend.BalanceErr = errors.New("balance unavailable")
	err := h.monitor.CheckAccounts(ctx)
	require.Error(t, err)
	assert.Equal(t, accountA.Hex(), h.session.GetString(session.KeySelectedAccount))
	_, ok := h.session.Get(session.KeySelectedAccountBalance)
	assert.False(t, ok)
	assert.True(t, h.session.GetBool(session.KeyIsClientConnected))

	h.backend.AccountsErr = errors.New("accounts unavailable")
	assert.Error(t, h.monitor.CheckAccounts(ctx))
	assert.False(t, h.session.GetBool(session.KeyIsClientConnected))
}

// go test -v --run TestNoAccounts
func TestNoAccounts(t *testing.T) {
	h := newHarness(t, "")
	h.monitor = network.NewMonitor(h.backend, h.session, h.store, nil, network.Options{}, zaptest.NewLogger(t), nil)
	h.backend.SetAccounts()

	require.NoError(t, h.monitor.CheckAccounts(context.Background()))
	assert.Equal(t, common.Address{}, h.monitor.DefaultAccount())
	assert.Nil(t, mustGet(t, h.session, session.KeySelectedAccount))
	assert.Equal(t, uint64(0), h.session.GetUint64(session.KeyAccountCount))
}

// go test -v --run TestStartupAggregatesErrors
func TestStartupAggregatesErrors(t *testing.T) {
	h := newHarness(t, "https://node.example.org")
	h.backend.NetworkIDErr = errors.New("no network")
	h.backend.AccountsErr = errors.New("no accounts")
	h.backend.SetClientVersion("MetaMask/v10.0.0")

	err := h.monitor.Startup(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no network"))
	assert.True(t, strings.Contains(err.Error(), "no accounts"))

	// startup still completes
	assert.True(t, h.session.GetBool(session.KeyIsServerConnected))
	assert.False(t, h.session.GetBool(session.KeyIsClientConnected))
	assert.Equal(t, string(chain.ProviderMetaMask), h.store.State().Provider)
}

// go test -v --run TestRun
func TestRun(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.session.GetString(session.KeySelectedAccount) == accountA.Hex()
	}, time.Second, 5*time.Millisecond)

	h.backend.SetBalance(accountA, big.NewInt(99))
	require.Eventually(t, func() bool {
		v, ok := h.session.Get(session.KeySelectedAccountBalance)
		return ok && v.(*big.Int).Int64() == 99
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

// burstServer acknowledges eth_subscribe, then writes count heads a few
// milliseconds apart once release is closed.
func burstServer(t *testing.T, release <-chan struct{}, count int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]interface{}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xbeef"}`))

		<-release
		for i := 1; i <= count; i++ {
			msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xbeef","result":{"number":"0x%x","hash":"0x01"}}}`, i)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
			time.Sleep(20 * time.Millisecond)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func headCount(reg *prometheus.Registry, outcome string) float64 {
	families, _ := reg.Gather()
	for _, mf := range families {
		if mf.GetName() != "fundportal_monitor_heads_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// go test -v --run TestRunRefreshesOnHeads
func TestRunRefreshesOnHeads(t *testing.T) {
	backend := chaintest.New(42)
	backend.SetAccounts(accountA)
	backend.SetBalance(accountA, big.NewInt(7))
	sess := session.New()
	collector := metrics.NewCollector()

	// the poll ticker never fires, so every refresh after Startup comes from a head
	monitor := network.NewMonitor(backend, sess, session.NewStore(), memorystore.NewPreferenceStore(), network.Options{
		PollInterval: time.Hour,
		HeadRate:     time.Hour,
	}, zap.NewNop(), collector)

	release := make(chan struct{})
	server := burstServer(t, release, 5)
	watcher := chain.NewHeadWatcher("ws"+strings.TrimPrefix(server.URL, "http"), zap.NewNop())
	monitor.SetHeadWatcher(watcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return watcher.SubscriptionID() == "0xbeef"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, accountA.Hex(), sess.GetString(session.KeySelectedAccount))

	backend.SetBalance(accountA, big.NewInt(99))
	close(release)

	require.Eventually(t, func() bool {
		v, ok := sess.Get(session.KeySelectedAccountBalance)
		return ok && v.(*big.Int).Int64() == 99
	}, 2*time.Second, 5*time.Millisecond)

	backend.SetBalance(accountA, big.NewInt(100))
	require.Eventually(t, func() bool {
		return headCount(collector.Registry(), "limited") >= 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1.0, headCount(collector.Registry(), "refreshed"))
	assert.LessOrEqual(t, headCount(collector.Registry(), "limited"), 4.0)
	v, _ := sess.Get(session.KeySelectedAccountBalance)
	assert.Equal(t, int64(99), v.(*big.Int).Int64(), "limited heads must not refresh")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func mustGet(t *testing.T, s *session.Session, key string) any {
	t.Helper()
	v, ok := s.Get(key)
	require.True(t, ok, "key %s not set", key)
	return v
}
