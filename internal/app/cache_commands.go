package app

import (
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
)

type cacheSweep struct {
	Action  string `json:"action,omitempty"`
	Removed int64  `json:"removed"`
}

func (s *runtimeState) requireCache() error {
	if s.cache == nil {
		return clierr.New(clierr.CodeUsage, "cache is disabled (--no-cache or cache.enabled=false)")
	}
	return nil
}

func (s *runtimeState) newCacheCommand() *cobra.Command {
	root := &cobra.Command{Use: "cache", Short: "Inspect and clear cached action results"}

	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Cached entries per action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireCache(); err != nil {
				return err
			}
			stats, err := s.cache.Stats()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read cache stats", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), stats, nil, cacheMetaBypass(), nil, false)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete entries past their TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireCache(); err != nil {
				return err
			}
			n, err := s.cache.Prune()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "prune cache", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cacheSweep{Removed: n}, nil, cacheMetaBypass(), nil, false)
		},
	})

	var action string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete all entries, or only those of one action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.requireCache(); err != nil {
				return err
			}
			if action != "" {
				parsed, ok := intent.Parse(action)
				if !ok {
					return clierr.New(clierr.CodeUsage, "unknown action "+action)
				}
				action = string(parsed)
			}
			n, err := s.cache.Purge(action)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "purge cache", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cacheSweep{Action: action, Removed: n}, nil, cacheMetaBypass(), nil, false)
		},
	}
	purge.Flags().StringVar(&action, "action", "", "Only purge results of this action")
	root.AddCommand(purge)

	return root
}
