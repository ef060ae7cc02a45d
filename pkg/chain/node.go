// Package chain connects to an Ethereum node and exposes the small surface the
// portal needs on top of go-ethereum's ethclient.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend is everything the portal calls on a node: contract bindings,
// receipts, and the status queries used by the network monitor.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	ClientVersion(ctx context.Context) (string, error)
}

// Node is a Backend backed by a JSON-RPC connection.
type Node struct {
	*ethclient.Client
	rpc      *rpc.Client
	endpoint string
}

// Dial connects to the node at endpoint (http(s), ws(s) or an IPC path).
func Dial(ctx context.Context, endpoint string) (*Node, error) {
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Node{
		Client:   ethclient.NewClient(rc),
		rpc:      rc,
		endpoint: endpoint,
	}, nil
}

// Endpoint returns the address the node was dialed with.
func (n *Node) Endpoint() string {
	return n.endpoint
}

// Accounts lists the accounts managed by the node (eth_accounts).
func (n *Node) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := n.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// ClientVersion returns the web3_clientVersion string, e.g. "Geth/v1.13.5-stable/linux-amd64/go1.21.4".
func (n *Node) ClientVersion(ctx context.Context) (string, error) {
	var version string
	if err := n.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", fmt.Errorf("web3_clientVersion: %w", err)
	}
	return strings.TrimSpace(version), nil
}

var _ Backend = (*Node)(nil)
