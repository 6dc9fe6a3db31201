package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/chain/aptos"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/extract"
	"github.com/ggonzalez94/defi-agent/internal/id"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/llmparse"
	"github.com/ggonzalez94/defi-agent/internal/mcpserver"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/providers"
	"github.com/ggonzalez94/defi-agent/internal/registry"
	"github.com/ggonzalez94/defi-agent/internal/schema"
	"github.com/ggonzalez94/defi-agent/internal/version"
)

const (
	marketDataTTL = 5 * time.Minute
	historicalTTL = time.Hour
	priceTTL      = time.Minute
)

func actionAnnotation(action intent.Action) map[string]string {
	return map[string]string{schema.ActionAnnotation: string(action)}
}

// actionTTL is how long a successful result may be served from cache.
// Zero means the action is never cached.
func actionTTL(action intent.Action, p actions.Params) time.Duration {
	switch action {
	case intent.ActionTransfer, intent.ActionMintNFT:
		return 0
	case intent.ActionPrice:
		return priceTTL
	case intent.ActionProtocolTVL:
		if p.At != nil {
			return historicalTTL
		}
	}
	return marketDataTTL
}

// runAction executes one agent action and renders its reply. Read-only
// actions go through the result cache; transactions never do.
func (s *runtimeState) runAction(commandPath string, action intent.Action, p actions.Params) error {
	s.lastAction = action
	fetch := s.actionFetch(action, p)
	if ttl := actionTTL(action, p); ttl > 0 {
		return s.runCached(commandPath, string(action), s.actionCacheKey(action, p), ttl, decodeReply, fetch)
	}

	s.resetCommandDiagnostics()
	timeout := s.settings.Timeout
	if action == intent.ActionTransfer || action == intent.ActionMintNFT {
		timeout += aptos.DefaultOptions().WaitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	data, status, warnings, partial, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, status, partial)
	if err != nil {
		return err
	}
	if reply, ok := data.(actions.Reply); ok {
		s.recordTransaction(reply)
	}
	return s.emitSuccess(commandPath, data, warnings, cacheMetaBypass(), status, partial)
}

// actionCacheKey covers everything that shapes a reply: the parameters and
// the chain used when the request names none.
func (s *runtimeState) actionCacheKey(action intent.Action, p actions.Params) string {
	return cacheKey(string(action), struct {
		Params       actions.Params `json:"params"`
		DefaultChain string         `json:"default_chain"`
	}{p, s.extractor.Tables().DefaultChain})
}

func (s *runtimeState) actionFetch(action intent.Action, p actions.Params) fetchFn {
	return func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
		start := time.Now()
		reply := actions.Reply{Action: action, Response: s.service.Run(ctx, action, p)}
		err := reply.Err()
		status := []model.ProviderStatus{{
			Name:      s.providerName(action),
			Status:    statusFromErr(err),
			LatencyMS: time.Since(start).Milliseconds(),
		}}
		if err != nil {
			return nil, status, nil, false, err
		}
		warnings, partial := replyDiagnostics(reply)
		return reply, status, warnings, partial, nil
	}
}

func (s *runtimeState) providerName(action intent.Action) string {
	var p any
	switch action {
	case intent.ActionPrice:
		p = s.priceProvider
	case intent.ActionPools:
		p = s.yieldProvider
	case intent.ActionTransfer, intent.ActionMintNFT:
		p = s.submitter
		if p == nil {
			return "unsigned"
		}
	default:
		p = s.marketProvider
	}
	if named, ok := p.(providers.Provider); ok && named != nil {
		return named.Info().Name
	}
	if p != nil {
		return "aptos"
	}
	return "unconfigured"
}

// replyDiagnostics surfaces notes the result carries as envelope warnings.
func replyDiagnostics(reply actions.Reply) ([]string, bool) {
	if reply.Response.Result == nil {
		return nil, false
	}
	switch r := (*reply.Response.Result).(type) {
	case model.ProtocolTVL:
		if r.Note != "" {
			return []string{r.Note}, false
		}
	case model.ProtocolComparison:
		if len(r.Missing) > 0 {
			return []string{"no TVL data for: " + strings.Join(r.Missing, ", ")}, true
		}
	case model.Transfer:
		if r.Submitted == nil {
			return []string{"transaction not submitted; payload is unsigned"}, false
		}
	case model.NFTMint:
		if r.Submitted == nil {
			return []string{"transaction not submitted; payload is unsigned"}, false
		}
	}
	return nil, false
}

func (s *runtimeState) newAskCommand() *cobra.Command {
	var actionName string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ask <request...>",
		Short: "Answer a natural-language DeFi request",
		Long: "Classifies the request into one action, extracts its parameters from the text " +
			"(optionally with Anthropic when --llm is set) and runs it.",
		Example: `  defi-agent ask "What's Uniswap's TVL on Arbitrum?"
  defi-agent ask --markdown "top 5 chains"
  defi-agent ask --dry-run "send 1.5 APT to 0x1b2c..."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Text: strings.Join(args, " "), Action: actionName, DryRun: dryRun}
			if s.parser != nil && strings.TrimSpace(actionName) == "" {
				ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
				p = llmparse.Enrich(ctx, s.parser, p, s.log)
				cancel()
			}
			action, err := s.service.Resolve(p)
			if err != nil {
				return err
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), action, p)
		},
	}
	cmd.Flags().StringVar(&actionName, "action", "", "Run this action instead of classifying the request")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Return unsigned payloads even when a signer is configured")
	return cmd
}

type extractionReport struct {
	Text       string         `json:"text"`
	Action     intent.Action  `json:"action,omitempty"`
	Keyword    string         `json:"keyword,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Chain      extract.Result `json:"chain"`
	Protocol   extract.Result `json:"protocol"`
	Token      extract.Result `json:"token"`
	Chains     []string       `json:"chains"`
	Protocols  []string       `json:"protocols"`
	Limit      int            `json:"limit"`
	At         *time.Time     `json:"at,omitempty"`
	Amount     string         `json:"amount,omitempty"`
	Recipient  string         `json:"recipient,omitempty"`
	Quoted     []string       `json:"quoted,omitempty"`
}

func buildExtractionReport(ex *extract.Extractor, text string) extractionReport {
	report := extractionReport{
		Text:      text,
		Chain:     ex.Chain(text),
		Protocol:  ex.Protocol(text),
		Token:     ex.Token(text),
		Chains:    ex.Chains(text),
		Protocols: ex.Protocols(text),
		Limit:     ex.Limit(text),
		Quoted:    ex.Quoted(text),
	}
	if m, ok := intent.NewClassifier(ex).Classify(text); ok {
		report.Action, report.Keyword, report.Confidence = m.Action, m.Keyword, m.Confidence
	}
	if ts, ok := ex.Timestamp(text); ok {
		report.At = &ts
	}
	if amount, ok := ex.Amount(text); ok {
		report.Amount = amount
	}
	if recipient, ok := ex.Recipient(text); ok {
		report.Recipient = recipient
	}
	return report
}

func (s *runtimeState) newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "extract <request...>",
		Short:   "Show what keyword extraction finds in a request, without calling providers",
		Example: `  defi-agent extract "compare aave vs compound on ethereum"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := buildExtractionReport(s.extractor, strings.Join(args, " "))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, nil, cacheMetaBypass(), nil, false)
		},
	}
}

type normalized struct {
	Kind      string `json:"kind"`
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
	Symbol    string `json:"symbol,omitempty"`
	Decimals  *int   `json:"decimals,omitempty"`
}

func (s *runtimeState) newNormalizeCommand() *cobra.Command {
	root := &cobra.Command{Use: "normalize", Short: "Map user input onto canonical identifiers"}
	kinds := []struct {
		name  string
		short string
		apply func(n *id.Normalizer, input string) normalized
	}{
		{"token", "Normalize a token symbol, coin type or asset address", func(n *id.Normalizer, input string) normalized {
			res := normalized{Kind: "token", Input: input, Canonical: n.Token(input)}
			if info, ok := registry.TokenByID(res.Canonical); ok {
				decimals := info.Decimals
				res.Symbol, res.Decimals = info.Symbol, &decimals
			}
			return res
		}},
		{"chain", "Normalize a chain name, alias or numeric chain id", func(n *id.Normalizer, input string) normalized {
			return normalized{Kind: "chain", Input: input, Canonical: n.Chain(input)}
		}},
		{"protocol", "Normalize a protocol name into its DefiLlama slug", func(n *id.Normalizer, input string) normalized {
			return normalized{Kind: "protocol", Input: input, Canonical: n.Protocol(input)}
		}},
	}
	for _, kind := range kinds {
		kind := kind
		root.AddCommand(&cobra.Command{
			Use:   kind.name + " <input>",
			Short: kind.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if strings.TrimSpace(args[0]) == "" {
					return clierr.New(clierr.CodeUsage, kind.name+" input is empty")
				}
				n := id.NewNormalizer(s.extractor.Tables(), s.log)
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), kind.apply(n, args[0]), nil, cacheMetaBypass(), nil, false)
			},
		})
	}
	return root
}

type actionListing struct {
	model.ActionInfo
	Commands []string `json:"commands,omitempty"`
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Agent action catalog"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the actions ask can run, with their parameters and CLI commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			byAction := map[string][]string{}
			for path, action := range schema.Actions(s.root) {
				byAction[action] = append(byAction[action], trimRootPath(path))
			}
			catalog := actions.Catalog()
			listing := make([]actionListing, 0, len(catalog))
			for _, info := range catalog {
				commands := byAction[info.Name]
				sort.Strings(commands)
				listing = append(listing, actionListing{ActionInfo: info, Commands: commands})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), listing, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newServeMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve every action as an MCP tool over stdio",
		Long:  "Runs a Model Context Protocol server on stdin/stdout. Logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mcpserver.New(s.service, s.parser, version.CLIVersion, s.log)
			s.log.WithField("llm", s.parser != nil).Info("serving mcp over stdio")
			if err := srv.ServeStdio(); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "serve mcp", err)
			}
			return nil
		},
	}
}
