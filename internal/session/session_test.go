package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestInit
func TestInit(t *testing.T) {
	s := New()
	s.Init()

	assert.False(t, s.GetBool(KeyNetwork))
	assert.False(t, s.GetBool(KeyIsClientConnected))
	assert.Equal(t, uint64(0), s.GetUint64(KeyHighestBlock))
	assert.True(t, s.GetBool(KeyFromPortfolio))
	assert.True(t, s.GetBool(KeyShowModal))

	v, ok := s.Get(KeySelectedOrderID)
	assert.True(t, ok)
	assert.Nil(t, v)
}

// go test -v --run TestTypedGetters
func TestTypedGetters(t *testing.T) {
	s := New()
	s.Set(KeyNetwork, "Kovan")
	s.Set(KeyCurrentBlock, 12)

	assert.Equal(t, "Kovan", s.GetString(KeyNetwork))
	assert.False(t, s.GetBool(KeyNetwork))
	assert.Equal(t, uint64(12), s.GetUint64(KeyCurrentBlock))
	assert.Equal(t, "", s.GetString("missing"))
}

// go test -v --run TestWatchNotifiesChanges
func TestWatchNotifiesChanges(t *testing.T) {
	s := New()
	ch, stop := s.Watch(8)

	s.Set(KeyNetwork, "Main")
	s.Set(KeyNetwork, "Main") // unchanged, no notification
	s.Set(KeyClientAccountList, []string{"0x1"})
	s.Set(KeyClientAccountList, []string{"0x1"})
	s.Unset(KeyNetwork)
	s.Unset("never-set")

	stop()
	var keys []string
	for k := range ch {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{KeyNetwork, KeyClientAccountList, KeyNetwork}, keys)

	// stopping twice is harmless
	stop()
}

// go test -v --run TestWatchNeverBlocks
func TestWatchNeverBlocks(t *testing.T) {
	s := New()
	_, stop := s.Watch(1)
	defer stop()

	for i := 0; i < 100; i++ {
		s.Set(KeyCurrentBlock, uint64(i))
	}
	assert.Equal(t, uint64(99), s.GetUint64(KeyCurrentBlock))
}

// go test -v --run TestSnapshotIsCopy
func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	s.Set(KeyNetwork, "Main")
	snap := s.Snapshot()
	snap[KeyNetwork] = "Kovan"

	assert.Equal(t, "Main", s.GetString(KeyNetwork))
	assert.Equal(t, []string{KeyNetwork}, s.Keys())
}

// go test -v --run TestStoreDispatch
func TestStoreDispatch(t *testing.T) {
	store := NewStore()

	var seen []string
	store.Subscribe(func(st State) { seen = append(seen, st.Provider) })

	store.Dispatch(Action{Type: SetProvider, Provider: "LocalNode"})
	store.Dispatch(Action{Type: "unknown", Provider: "ignored"})
	store.Dispatch(Action{Type: SetProvider, Provider: "MetaMask"})

	require.Equal(t, []string{"LocalNode", "LocalNode", "MetaMask"}, seen)
	assert.Equal(t, "MetaMask", store.State().Provider)
}
