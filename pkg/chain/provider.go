package chain

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// Provider names the kind of node the client talks to.
type Provider string

const (
	ProviderLocalNode Provider = "LocalNode"
	ProviderMetaMask  Provider = "MetaMask"
	ProviderUnknown   Provider = "Unknown"
)

// ClientVersioner is implemented by backends that can report web3_clientVersion.
type ClientVersioner interface {
	ClientVersion(ctx context.Context) (string, error)
}

// DetectProvider tells a local node apart from an injected or remote wallet
// provider. Loopback and IPC endpoints are local; anything else is identified
// by its client version.
func DetectProvider(ctx context.Context, endpoint string, v ClientVersioner) Provider {
	if IsLocalEndpoint(endpoint) {
		return ProviderLocalNode
	}
	if v == nil {
		return ProviderUnknown
	}
	version, err := v.ClientVersion(ctx)
	if err != nil {
		return ProviderUnknown
	}
	if strings.Contains(strings.ToLower(version), "metamask") {
		return ProviderMetaMask
	}
	return ProviderUnknown
}

// IsLocalEndpoint reports whether endpoint is an IPC path or a loopback URL.
func IsLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.HasSuffix(endpoint, ".ipc") || strings.HasPrefix(endpoint, "/") {
		return true
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
