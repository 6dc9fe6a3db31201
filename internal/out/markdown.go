package out

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

// Markdown renders an action response as a chat reply. Failures become an
// apology that repeats what was missing or wrong and, for parameter
// problems, shows an example request for the action.
func Markdown(action string, resp model.Response[any]) string {
	if !resp.Success || resp.Result == nil {
		return apology(action, resp.Error)
	}
	var b strings.Builder
	switch r := (*resp.Result).(type) {
	case model.ProtocolTVL:
		writeProtocolTVL(&b, r)
	case model.ChainTVL:
		fmt.Fprintf(&b, "**%s** TVL: %s\n", r.Chain, FormatUSD(r.TVLUSD))
	case []model.ProtocolTVL:
		b.WriteString("Top protocols by TVL:\n\n")
		for i, p := range r {
			rank := p.Rank
			if rank == 0 {
				rank = i + 1
			}
			fmt.Fprintf(&b, "%d. **%s**", rank, nameOr(p.Name, p.Protocol))
			if p.Category != "" {
				fmt.Fprintf(&b, " (%s)", p.Category)
			}
			fmt.Fprintf(&b, ": %s\n", FormatUSD(p.TVLUSD))
		}
	case []model.ChainTVL:
		b.WriteString("Top chains by TVL:\n\n")
		for i, c := range r {
			rank := c.Rank
			if rank == 0 {
				rank = i + 1
			}
			fmt.Fprintf(&b, "%d. **%s**: %s\n", rank, c.Chain, FormatUSD(c.TVLUSD))
		}
	case model.ProtocolComparison:
		if r.Chain != "" {
			fmt.Fprintf(&b, "TVL comparison on %s:\n\n", r.Chain)
		} else {
			b.WriteString("TVL comparison across all chains:\n\n")
		}
		b.WriteString("| # | Protocol | TVL |\n|---|---|---|\n")
		for _, p := range r.Protocols {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", p.Rank, nameOr(p.Name, p.Protocol), FormatUSD(p.TVLUSD))
		}
		if len(r.Missing) > 0 {
			fmt.Fprintf(&b, "\nNo data for: %s\n", strings.Join(r.Missing, ", "))
		}
	case []model.Pool:
		b.WriteString("| Pool | Project | Chain | TVL | APY |\n|---|---|---|---|---|\n")
		for _, p := range r {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %.2f%% |\n", p.Symbol, p.Project, p.Chain, FormatUSD(p.TVLUSD), p.APY)
		}
	case model.Price:
		fmt.Fprintf(&b, "**%s**: %s", r.Symbol, formatPrice(r.PriceUSD))
		if r.Confidence > 0 {
			fmt.Fprintf(&b, " (±%s)", formatPrice(r.Confidence))
		}
		if r.PublishTime != "" {
			fmt.Fprintf(&b, " as of %s", r.PublishTime)
		}
		b.WriteString("\n")
	case model.Transfer:
		symbol := nameOr(r.Symbol, r.Token)
		fmt.Fprintf(&b, "Transfer of **%s %s** to `%s`\n", r.AmountDecimal, symbol, r.Recipient)
		writeSubmission(&b, r.Payload, r.Submitted)
	case model.NFTMint:
		fmt.Fprintf(&b, "Mint of **%s** in collection **%s**\n", r.Name, r.Collection)
		writeSubmission(&b, r.Payload, r.Submitted)
	default:
		writeJSON(&b, r)
	}
	return b.String()
}

func writeProtocolTVL(b *strings.Builder, r model.ProtocolTVL) {
	name := nameOr(r.Name, r.Protocol)
	where := "across all chains"
	if r.Chain != "" {
		where = "on " + r.Chain
	}
	if r.AsOf != "" {
		fmt.Fprintf(b, "**%s** TVL %s on %s: %s\n", name, where, r.AsOf, FormatUSD(r.TVLUSD))
	} else {
		fmt.Fprintf(b, "**%s** TVL %s: %s\n", name, where, FormatUSD(r.TVLUSD))
	}
	if r.Note != "" {
		fmt.Fprintf(b, "\n_%s_\n", r.Note)
	}
}

func writeSubmission(b *strings.Builder, payload model.EntryFunction, tx *model.TxResult) {
	if tx == nil {
		b.WriteString("\nNot submitted. Unsigned payload:\n\n")
		writeJSON(b, payload)
		return
	}
	status := "succeeded"
	if !tx.Success {
		status = "failed"
	}
	fmt.Fprintf(b, "\nTransaction %s: `%s`\n", status, tx.Hash)
}

func writeJSON(b *strings.Builder, v any) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%v\n", v)
		return
	}
	b.WriteString("```json\n")
	b.Write(buf)
	b.WriteString("\n```\n")
}

func apology(action string, e *model.ResponseError) string {
	if e == nil {
		return "Sorry, something went wrong and I have no details about it.\n"
	}
	msg := strings.TrimSuffix(e.Message, ".")
	var b strings.Builder
	switch e.Code {
	case clierr.TagInvalidParams:
		fmt.Fprintf(&b, "Sorry, I couldn't complete that request: %s.\n", msg)
		if example := exampleFor(action); example != "" {
			fmt.Fprintf(&b, "\nTry something like: \"%s\"\n", example)
		}
	case clierr.TagNotFound:
		fmt.Fprintf(&b, "Sorry, I couldn't find that: %s.\n", msg)
	case clierr.TagAPIError:
		fmt.Fprintf(&b, "Sorry, the data source isn't responding right now (%s). Please try again in a moment.\n", msg)
	case clierr.TagDataFormat:
		fmt.Fprintf(&b, "Sorry, the data source returned something I couldn't read (%s).\n", msg)
	default:
		fmt.Fprintf(&b, "Sorry, something went wrong on my side (%s).\n", msg)
	}
	return b.String()
}

func exampleFor(action string) string {
	for _, info := range actions.Catalog() {
		if info.Name == action && len(info.Examples) > 0 {
			return info.Examples[0]
		}
	}
	return ""
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}

// FormatUSD abbreviates large dollar amounts: $1.23B, $4.50M, $7.10K.
func FormatUSD(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

func formatPrice(v float64) string {
	if v != 0 && v < 0.01 && v > -0.01 {
		return fmt.Sprintf("$%.6g", v)
	}
	return fmt.Sprintf("$%.2f", v)
}
