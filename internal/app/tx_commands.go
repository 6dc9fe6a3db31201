package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/journal"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

// journalPaths places the transaction journal next to the result cache.
func journalPaths(cachePath string) (string, string) {
	dir := filepath.Dir(cachePath)
	return filepath.Join(dir, "journal.db"), filepath.Join(dir, "journal.lock")
}

func (s *runtimeState) openJournal() (*journal.Store, error) {
	if s.journal != nil {
		return s.journal, nil
	}
	path, lockPath := journalPaths(s.settings.CachePath)
	store, err := journal.Open(path, lockPath)
	if err != nil {
		return nil, err
	}
	s.journal = store
	return store, nil
}

// journalEntry describes a transaction reply. ok is false for replies of
// read-only actions.
func journalEntry(reply actions.Reply) (journal.Entry, bool) {
	if reply.Response.Result == nil {
		return journal.Entry{}, false
	}
	var (
		summary   string
		submitted *model.TxResult
	)
	switch r := (*reply.Response.Result).(type) {
	case model.Transfer:
		symbol := r.Symbol
		if symbol == "" {
			symbol = r.Token
		}
		summary = fmt.Sprintf("%s %s to %s", r.AmountDecimal, symbol, r.Recipient)
		submitted = r.Submitted
	case model.NFTMint:
		summary = fmt.Sprintf("%q in collection %q", r.Name, r.Collection)
		submitted = r.Submitted
	default:
		return journal.Entry{}, false
	}
	raw, err := json.Marshal(*reply.Response.Result)
	if err != nil {
		return journal.Entry{}, false
	}

	entry := journal.Entry{Action: string(reply.Action), Status: journal.StatusUnsigned, Summary: summary, Result: raw}
	if submitted != nil {
		entry.Hash = submitted.Hash
		entry.Status = journal.StatusSubmitted
		if !submitted.Success {
			entry.Status = journal.StatusFailed
		}
	}
	return entry, true
}

// recordTransaction journals transfer and mint replies. Failures are logged
// and never fail the command.
func (s *runtimeState) recordTransaction(reply actions.Reply) {
	entry, ok := journalEntry(reply)
	if !ok {
		return
	}
	store, err := s.openJournal()
	if err != nil {
		s.logger().WithError(err).Warn("open transaction journal")
		return
	}
	stored, err := store.Record(entry)
	if err != nil {
		s.logger().WithError(err).Warn("record transaction")
		return
	}
	s.logger().WithField("id", stored.ID).WithField("status", stored.Status).Info("transaction recorded")
}

func (s *runtimeState) newTxCommand() *cobra.Command {
	root := &cobra.Command{Use: "tx", Short: "Transactions built by transfer and nft mint"}

	var actionName, status string
	var limit int
	list := &cobra.Command{
		Use:     "list",
		Short:   "Recorded transactions, newest first",
		Example: `  defi-agent tx list --status submitted --limit 5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := journal.Filter{Limit: limit}
			if limit < 0 || limit > 100 {
				return clierr.New(clierr.CodeUsage, "--limit must be between 1 and 100")
			}
			if actionName != "" {
				parsed, ok := intent.Parse(actionName)
				if !ok || (parsed != intent.ActionTransfer && parsed != intent.ActionMintNFT) {
					return clierr.New(clierr.CodeUsage, "--action must be transfer or mint_nft")
				}
				filter.Action = string(parsed)
			}
			if status != "" {
				parsed, ok := journal.ParseStatus(status)
				if !ok {
					return clierr.New(clierr.CodeUsage, "--status must be unsigned, submitted or failed")
				}
				filter.Status = parsed
			}
			store, err := s.openJournal()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open transaction journal", err)
			}
			entries, err := store.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list transactions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries, nil, cacheMetaBypass(), nil, false)
		},
	}
	list.Flags().StringVar(&actionName, "action", "", "Only transactions of this action (transfer, mint_nft)")
	list.Flags().StringVar(&status, "status", "", "Only transactions with this status (unsigned, submitted, failed)")
	list.Flags().IntVar(&limit, "limit", 0, "Number of transactions to return (default 20)")
	root.AddCommand(list)

	root.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "One recorded transaction with its full payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openJournal()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open transaction journal", err)
			}
			entry, err := store.Get(args[0])
			if err != nil {
				if errors.Is(err, journal.ErrNotFound) {
					return clierr.Wrap(clierr.CodeNotFound, "transaction "+args[0], err)
				}
				return clierr.Wrap(clierr.CodeInternal, "read transaction", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entry, nil, cacheMetaBypass(), nil, false)
		},
	})

	return root
}
