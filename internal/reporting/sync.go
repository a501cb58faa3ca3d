// Package reporting renders human-readable summaries of sync, featured,
// index and external runs.
package reporting

import (
	"fmt"
	"strings"

	"github.com/0xsequence/token-directory/internal/pipeline"
	"github.com/0xsequence/token-directory/internal/storage"
)

// RenderSync renders a sync run as Markdown.
func RenderSync(r *pipeline.RunResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Sync: %s\n\n", r.Source))
	sb.WriteString(fmt.Sprintf("Run: %s | Mode: %s | Chains: %d | Added: %d | Failed: %d\n\n",
		r.RunID, mode(r.Write), len(r.Chains), r.Added(), r.Failed()))

	for _, c := range r.Chains {
		sb.WriteString(fmt.Sprintf("## %s/%s\n\n", c.Chain, c.File))
		if c.Err != nil {
			sb.WriteString(fmt.Sprintf("**Error:** %v\n\n", c.Err))
			continue
		}
		if len(c.Additions) == 0 {
			sb.WriteString("No new tokens to add.\n\n")
			writeSkipped(&sb, c.Skipped)
			continue
		}

		verb := "Would add"
		if c.Written {
			verb = "Added"
		}
		sb.WriteString(fmt.Sprintf("%s %d of %d candidates", verb, len(c.Additions), c.Candidates))
		if c.OldVersion != nil && c.NewVersion != nil {
			sb.WriteString(fmt.Sprintf(" (version %s -> %s)", c.OldVersion, c.NewVersion))
		} else if c.NewVersion != nil {
			sb.WriteString(fmt.Sprintf(" (version %s)", c.NewVersion))
		}
		sb.WriteString(".\n\n")

		if example, err := storage.EncodeJSON(c.Additions[0]); err == nil {
			sb.WriteString("Example entry:\n\n```json\n")
			sb.Write(example)
			sb.WriteString("```\n\n")
		}

		sb.WriteString("| Symbol | Address | Decimals |\n")
		sb.WriteString("|--------|---------|----------|\n")
		for _, t := range c.Additions {
			dec := "-"
			if t.Decimals != nil {
				dec = fmt.Sprintf("%d", *t.Decimals)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", cell(t.SymbolString()), t.Address, dec))
		}
		sb.WriteString("\n")
		writeSkipped(&sb, c.Skipped)
	}

	if !r.Write {
		sb.WriteString("Dry run. Pass --write to apply changes.\n")
	}
	return sb.String()
}

func writeSkipped(sb *strings.Builder, skipped []pipeline.ItemError) {
	if len(skipped) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("Skipped %d:\n\n", len(skipped)))
	for _, s := range skipped {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", s.Address, s.Reason))
	}
	sb.WriteString("\n")
}

func mode(write bool) string {
	if write {
		return "write"
	}
	return "dry-run"
}

// cell escapes a value for a Markdown table.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
