package app

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/intent"
)

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var token, amount, baseUnits, recipient string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "transfer [request...]",
		Short: "Transfer a coin or fungible asset on Aptos",
		Long: "Builds the transfer entry function. With a signer configured the transaction is " +
			"submitted and awaited; otherwise, or with --dry-run, the unsigned payload is returned.",
		Example: `  defi-agent transfer --token APT --amount 1.5 --to 0x1b2c...
  defi-agent transfer --dry-run "send 10 usdc to 0x1b2c..."`,
		Annotations: actionAnnotation(intent.ActionTransfer),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{
				Text:            strings.Join(args, " "),
				Token:           token,
				Amount:          amount,
				AmountBaseUnits: baseUnits,
				Recipient:       recipient,
				DryRun:          dryRun,
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionTransfer, p)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token symbol, coin type or fungible asset address")
	cmd.Flags().StringVar(&amount, "amount", "", "Decimal amount, e.g. 1.5")
	cmd.Flags().StringVar(&baseUnits, "amount-base-units", "", "Amount in base units; takes precedence over --amount")
	cmd.Flags().StringVar(&recipient, "to", "", "Recipient account address")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Return the unsigned payload without submitting")
	return cmd
}

func (s *runtimeState) newNFTCommand() *cobra.Command {
	root := &cobra.Command{Use: "nft", Short: "Digital asset commands"}

	var collection, name, description, uri string
	var dryRun bool
	mint := &cobra.Command{
		Use:   "mint [request...]",
		Short: "Mint a digital asset into an existing collection",
		Example: `  defi-agent nft mint --collection Art --name Sunset --uri https://example.com/sunset.json
  defi-agent nft mint --dry-run 'mint an NFT called "Sunset" in collection "Art"'`,
		Annotations: actionAnnotation(intent.ActionMintNFT),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{
				Text:        strings.Join(args, " "),
				Collection:  collection,
				Name:        name,
				Description: description,
				URI:         uri,
				DryRun:      dryRun,
			}
			return s.runAction(trimRootPath(cmd.CommandPath()), intent.ActionMintNFT, p)
		},
	}
	mint.Flags().StringVar(&collection, "collection", "", "Collection name")
	mint.Flags().StringVar(&name, "name", "", "Token name")
	mint.Flags().StringVar(&description, "description", "", "Token description (defaults to the name)")
	mint.Flags().StringVar(&uri, "uri", "", "Metadata URI")
	mint.Flags().BoolVar(&dryRun, "dry-run", false, "Return the unsigned payload without submitting")
	root.AddCommand(mint)

	return root
}
