package app

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/mcpserver"
)

func (s *runtimeState) newTVLCommand() *cobra.Command {
	var protocol, chain, at string
	cmd := &cobra.Command{
		Use:   "tvl [request...]",
		Short: "Current or historical TVL of a protocol, or of a chain when no protocol is named",
		Example: `  defi-agent tvl --protocol uniswap --chain arbitrum
  defi-agent tvl "thala tvl last week"
  defi-agent tvl --protocol aave --at 2024-01-31`,
		Annotations: actionAnnotation(intent.ActionProtocolTVL),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Text: strings.Join(args, " "), Protocol: protocol, Chain: chain}
			if strings.TrimSpace(at) != "" {
				ts, err := mcpserver.ParseDate(at)
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "parse --at", err)
				}
				p.At = &ts
			}
			if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(protocol) == "" && strings.TrimSpace(chain) == "" {
				return clierr.New(clierr.CodeUsage, "pass --protocol, --chain or a request")
			}
			action := intent.ActionProtocolTVL
			if strings.TrimSpace(protocol) == "" && !s.extractor.Protocol(p.Text).Found {
				action = intent.ActionChainTVL
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), action, p)
		},
	}
	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol name or DefiLlama slug")
	cmd.Flags().StringVar(&chain, "chain", "", "Restrict to one chain")
	cmd.Flags().StringVar(&at, "at", "", "Historical date (YYYY-MM-DD or RFC3339)")
	return cmd
}

func (s *runtimeState) newProtocolsCommand() *cobra.Command {
	root := &cobra.Command{Use: "protocols", Short: "Protocol market data"}

	var chain, category string
	var limit int
	top := &cobra.Command{
		Use:         "top [request...]",
		Short:       "Protocols ranked by TVL on a chain",
		Example:     `  defi-agent protocols top --chain optimism --limit 10`,
		Annotations: actionAnnotation(intent.ActionTopProtocols),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Text: strings.Join(args, " "), Chain: chain, Category: category, Limit: limit}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionTopProtocols, p)
		},
	}
	top.Flags().StringVar(&chain, "chain", "", "Chain filter (defaults to the configured default chain)")
	top.Flags().StringVar(&category, "category", "", "DefiLlama category filter, e.g. Dexs or Lending")
	top.Flags().IntVar(&limit, "limit", 0, "Number of protocols to return (1-100, default 5)")
	root.AddCommand(top)

	var compareChain string
	compare := &cobra.Command{
		Use:   "compare <protocol> <protocol> [protocol...]",
		Short: "Side by side TVL of two or more protocols",
		Example: `  defi-agent protocols compare aave compound
  defi-agent protocols compare "thala vs joule on aptos"`,
		Annotations: actionAnnotation(intent.ActionCompareProtocols),
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Chain: compareChain}
			if len(args) == 1 {
				p.Text = args[0]
			} else {
				p.Protocols = args
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionCompareProtocols, p)
		},
	}
	compare.Flags().StringVar(&compareChain, "chain", "", "Compare TVL on one chain only")
	root.AddCommand(compare)

	return root
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain market data"}

	var limit int
	top := &cobra.Command{
		Use:         "top",
		Short:       "Chains ranked by TVL",
		Example:     `  defi-agent chains top --limit 10`,
		Annotations: actionAnnotation(intent.ActionTopChains),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionTopChains, actions.Params{Limit: limit})
		},
	}
	top.Flags().IntVar(&limit, "limit", 0, "Number of chains to return (1-100, default 5)")
	root.AddCommand(top)

	tvl := &cobra.Command{
		Use:         "tvl <chain>",
		Short:       "Current TVL of one chain",
		Example:     `  defi-agent chains tvl aptos`,
		Annotations: actionAnnotation(intent.ActionChainTVL),
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Chain: strings.Join(args, " ")}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionChainTVL, p)
		},
	}
	root.AddCommand(tvl)

	return root
}

func (s *runtimeState) newPoolsCommand() *cobra.Command {
	var chain, protocol, token string
	var minTVL float64
	var limit int
	cmd := &cobra.Command{
		Use:   "pools [request...]",
		Short: "Yield pools ranked by TVL",
		Example: `  defi-agent pools --chain aptos --token usdc --min-tvl 1000000
  defi-agent pools "top 3 pools for thala"`,
		Annotations: actionAnnotation(intent.ActionPools),
		RunE: func(cmd *cobra.Command, args []string) error {
			if minTVL < 0 {
				return clierr.New(clierr.CodeUsage, "--min-tvl must not be negative")
			}
			p := actions.Params{
				Text:      strings.Join(args, " "),
				Chain:     chain,
				Protocol:  protocol,
				Token:     token,
				MinTVLUSD: minTVL,
				Limit:     limit,
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionPools, p)
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "Chain filter")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol filter")
	cmd.Flags().StringVar(&token, "token", "", "Token symbol the pool must contain")
	cmd.Flags().Float64Var(&minTVL, "min-tvl", 0, "Minimum pool TVL in USD")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of pools to return (1-100, default 5)")
	return cmd
}

func (s *runtimeState) newPriceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "price <token>",
		Short: "Latest Pyth price of a token in USD",
		Example: `  defi-agent price APT
  defi-agent price "what's the price of thala token"`,
		Annotations: actionAnnotation(intent.ActionPrice),
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{Text: strings.Join(args, " ")}
			if len(args) == 1 && len(strings.Fields(args[0])) == 1 {
				p.Token = args[0]
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionPrice, p)
		},
	}
}
