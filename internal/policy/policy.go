package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
)

// CheckCommandAllowed enforces the --enable-commands allowlist. An entry
// naming a command group ("protocols") admits every command under it.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if entry == normPath || strings.HasPrefix(normPath, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command "+normPath+" blocked by --enable-commands policy")
}

// Exempt reports whether a command stays reachable under any allowlist.
// Agents need version and schema to discover what they are allowed to run.
func Exempt(commandPath string) bool {
	switch normalize(commandPath) {
	case "", "version", "schema":
		return true
	}
	return false
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
