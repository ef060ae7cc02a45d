package session

import "sync"

// ActionType identifies a store action.
type ActionType string

const (
	SetProvider ActionType = "network/SET_PROVIDER"
)

// Action is dispatched into the Store.
type Action struct {
	Type     ActionType
	Provider string
}

// State is the store content.
type State struct {
	Provider string
}

// Store applies dispatched actions to State through a reducer.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers []func(State)
}

func NewStore() *Store {
	return &Store{}
}

// Dispatch reduces action into the state and calls every subscriber with the
// new state.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.state = reduce(s.state, action)
	state := s.state
	subs := make([]func(State), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called after each dispatch.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func reduce(state State, action Action) State {
	switch action.Type {
	case SetProvider:
		state.Provider = action.Provider
	}
	return state
}
