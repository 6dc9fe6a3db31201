package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Market data collaborators.
	DefiLlamaAPIBase    = "https://api.llama.fi"
	DefiLlamaYieldsBase = "https://yields.llama.fi"

	// Price oracle collaborator.
	PythHermesBase = "https://hermes.pyth.network"

	// Default chain collaborator.
	AptosMainnetFullnode = "https://fullnode.mainnet.aptoslabs.com"
)

// IsAllowedBaseURL accepts https endpoints and plain http only on loopback
// hosts, which is what tests and local fullnodes use.
func IsAllowedBaseURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	host := strings.TrimSpace(parsed.Hostname())
	if host == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if scheme == "https" {
		return true
	}
	return scheme == "http" && isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
