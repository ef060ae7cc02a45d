// Package session holds the reactive UI state the network monitor writes and
// the front ends read: a key/value Session and a reducer Store.
package session

import (
	"reflect"
	"sort"
	"sync"
)

// Keys written by the network monitor and the startup routine.
const (
	KeyNetwork                = "network"
	KeyIsClientConnected      = "isClientConnected"
	KeyIsServerConnected      = "isServerConnected"
	KeyIsSynced               = "isSynced"
	KeyStartingBlock          = "startingBlock"
	KeyCurrentBlock           = "currentBlock"
	KeyHighestBlock           = "highestBlock"
	KeySelectedAccount        = "selectedAccount"
	KeySelectedAccountBalance = "selectedAccountBalance"
	KeyAccountCount           = "getAccountCount"
	KeyClientAccountList      = "clientAccountList"
	KeyFromPortfolio          = "fromPortfolio"
	KeySelectedOrderID        = "selectedOrderId"
	KeyShowModal              = "showModal"
)

// Session is a concurrency safe key/value store with change notification.
type Session struct {
	mu       sync.RWMutex
	values   map[string]any
	watchers map[int]chan string
	nextID   int
}

func New() *Session {
	return &Session{
		values:   make(map[string]any),
		watchers: make(map[int]chan string),
	}
}

// Set stores value under key and notifies watchers if it changed. Watchers
// that are not keeping up miss the notification; Set never blocks.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	old, existed := s.values[key]
	s.values[key] = value
	changed := !existed || !reflect.DeepEqual(old, value)
	s.mu.Unlock()

	if changed {
		s.notify(key)
	}
}

// Unset removes key.
func (s *Session) Unset(key string) {
	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if existed {
		s.notify(key)
	}
}

func (s *Session) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- key:
		default:
		}
	}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

func (s *Session) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

func (s *Session) GetUint64(key string) uint64 {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case uint64:
		return n
	case int:
		if n >= 0 {
			return uint64(n)
		}
	}
	return 0
}

// Snapshot returns a copy of all values.
func (s *Session) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Watch returns a channel receiving the key of every change and a function
// that stops the watch and closes the channel.
func (s *Session) Watch(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Init resets the flags the UI expects before the first network check.
func (s *Session) Init() {
	s.Set(KeyNetwork, false)
	s.Set(KeyIsClientConnected, false)
	s.Set(KeyHighestBlock, uint64(0))
	s.Set(KeyFromPortfolio, true)
	s.Set(KeySelectedOrderID, nil)
	s.Set(KeyShowModal, true)
}
