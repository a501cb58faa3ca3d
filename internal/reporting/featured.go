package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/0xsequence/token-directory/internal/featured"
)

// RenderFeatured renders a featured run as Markdown.
func RenderFeatured(s *featured.Summary) string {
	var sb strings.Builder

	sb.WriteString("# Featured\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s | Mode: %s | Chains: %d | Failed: %d\n\n",
		s.RunID, mode(s.Write), len(s.Outcomes), s.Failed()))

	for _, o := range s.Outcomes {
		sb.WriteString(fmt.Sprintf("## %s\n\n", o.Chain))
		switch {
		case o.Err != nil:
			sb.WriteString(fmt.Sprintf("**Error:** %v\n\n", o.Err))
			continue
		case o.Skipped != "":
			sb.WriteString(fmt.Sprintf("Skipped: %s.\n\n", o.Skipped))
			continue
		}

		res := o.Result
		sb.WriteString(fmt.Sprintf("Eligible: %d | Resolved: %d | Ranked: %d | Removed: %d\n\n",
			res.Eligible, res.Resolved, len(res.Ranked), len(res.Removed)))
		if res.FallbackSkipped {
			sb.WriteString("Contract fallback skipped: too many unresolved tokens.\n\n")
		}
		for _, n := range res.Native {
			sb.WriteString(fmt.Sprintf("Native: %s -> %d\n", n, featured.NativeRank))
		}
		if len(res.Native) > 0 {
			sb.WriteString("\n")
		}

		if len(res.Ranked) > 0 {
			sb.WriteString("| Rank | Symbol | Address | Volume (USD) | Change |\n")
			sb.WriteString("|------|--------|---------|--------------|--------|\n")
			for _, t := range res.Ranked {
				sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
					t.Rank, cell(t.Symbol), t.Address, FormatUSD(t.Volume), change(t.OldRank, t.Rank)))
			}
			sb.WriteString("\n")
		}
		if len(res.Removed) > 0 {
			sb.WriteString("Removed:\n\n")
			for _, t := range res.Removed {
				sb.WriteString(fmt.Sprintf("- %s (%s), was %d\n", cell(t.Symbol), t.Address, t.OldRank))
			}
			sb.WriteString("\n")
		}
		if o.Written {
			sb.WriteString("Written.\n\n")
		}
	}

	if !s.Write {
		sb.WriteString("Dry run. Pass --write to apply changes.\n")
	}
	return sb.String()
}

func change(old *int, rank int) string {
	switch {
	case old == nil:
		return "new"
	case *old == rank:
		return "="
	default:
		return fmt.Sprintf("%d -> %d", *old, rank)
	}
}

// RenderFeaturedCSV renders ranked tokens of every chain as CSV.
func RenderFeaturedCSV(s *featured.Summary) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"chain", "rank", "symbol", "address", "coin_id", "volume_usd", "old_rank"}); err != nil {
		return "", err
	}
	for _, o := range s.Outcomes {
		if o.Result == nil {
			continue
		}
		for _, t := range o.Result.Ranked {
			old := ""
			if t.OldRank != nil {
				old = strconv.Itoa(*t.OldRank)
			}
			row := []string{o.Chain, strconv.Itoa(t.Rank), t.Symbol, t.Address, t.CoinID, t.Volume.String(), old}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

// FormatUSD renders d rounded to whole dollars with thousands separators.
func FormatUSD(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-$" + string(out)
	}
	return "$" + string(out)
}
