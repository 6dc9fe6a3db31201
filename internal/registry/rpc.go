package registry

import (
	"fmt"
	"strings"
)

// Aptos fullnode REST endpoints by network name.
// These values are used whenever a command does not pass --fullnode-url.
var fullnodeByNetwork = map[string]string{
	"mainnet": AptosMainnetFullnode,
	"testnet": "https://fullnode.testnet.aptoslabs.com",
	"devnet":  "https://fullnode.devnet.aptoslabs.com",
}

func DefaultFullnodeURL(network string) (string, bool) {
	value, ok := fullnodeByNetwork[strings.ToLower(strings.TrimSpace(network))]
	return value, ok
}

func ResolveFullnodeURL(override, network string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimRight(strings.TrimSpace(override), "/"), nil
	}
	if value, ok := DefaultFullnodeURL(network); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default fullnode configured for network %q; provide --fullnode-url", network)
}
