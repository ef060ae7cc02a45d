// Package txutil submits contract transactions and decodes their receipts.
package txutil

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrEventNotFound = errors.New("event not found in receipt")

// LogEntry is a decoded event log.
type LogEntry struct {
	Event string
	Args  map[string]interface{}
	Log   *types.Log
}

// FindEventInLog returns the first log of receipt emitted as event name of
// parsed, with indexed and non-indexed arguments decoded into Args.
func FindEventInLog(parsed abi.ABI, name string, receipt *types.Receipt) (*LogEntry, error) {
	event, ok := parsed.Events[name]
	if !ok {
		return nil, fmt.Errorf("abi has no event %q", name)
	}
	if receipt == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrEventNotFound)
	}

	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		args := make(map[string]interface{}, len(event.Inputs))
		if err := event.Inputs.UnpackIntoMap(args, l.Data); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", name, err)
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			return nil, fmt.Errorf("decode %s topics: %w", name, err)
		}
		return &LogEntry{Event: name, Args: args, Log: l}, nil
	}
	return nil, fmt.Errorf("%s in tx %s: %w", name, receipt.TxHash.Hex(), ErrEventNotFound)
}

// Big returns argument name as an integer.
func (e *LogEntry) Big(name string) (*big.Int, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("%s has no argument %q", e.Event, name)
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s has type %T", e.Event, name, v)
	}
	return n, nil
}

// Address returns argument name as an address.
func (e *LogEntry) Address(name string) (common.Address, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%s has no argument %q", e.Event, name)
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s.%s has type %T", e.Event, name, v)
	}
	return a, nil
}
