package reporting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/external"
	"github.com/0xsequence/token-directory/internal/indexer"
)

// RenderIndex summarizes an index document.
func RenderIndex(doc *domain.IndexDocument) string {
	var sb strings.Builder
	names := make([]string, 0, len(doc.Index))
	files := 0
	for name, f := range doc.Index {
		names = append(names, name)
		files += len(f.TokenLists)
	}
	sort.Strings(names)

	sb.WriteString(fmt.Sprintf("Indexed %d folders, %d files.\n", len(names), files))
	for _, name := range names {
		f := doc.Index[name]
		flag := ""
		if f.Deprecated {
			flag = " (deprecated)"
		}
		sb.WriteString(fmt.Sprintf("  %s chainId=%d files=%d%s\n", name, f.ChainID, len(f.TokenLists), flag))
	}
	return sb.String()
}

// RenderDrift describes differences between the persisted and rebuilt index.
func RenderDrift(d *indexer.Drift) string {
	if d.Clean() {
		return "Index is up to date.\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Index is stale: %s\n", d))
	for _, group := range []struct {
		label string
		items []string
	}{
		{"changed", d.Changed},
		{"missing", d.Missing},
		{"extra", d.Extra},
		{"folder", d.Folders},
	} {
		for _, item := range group.items {
			sb.WriteString(fmt.Sprintf("  %-7s %s\n", group.label, item))
		}
	}
	return sb.String()
}

// RenderExternal renders an external check report.
func RenderExternal(r *external.Report) string {
	var sb strings.Builder
	sb.WriteString("Results:\n")
	for _, res := range r.Results {
		if res.Err != nil {
			sb.WriteString(fmt.Sprintf("FAIL %s: %v\n", res.Name, res.Err))
			continue
		}
		sb.WriteString(fmt.Sprintf("OK   %s: valid JSON (%s MB)\n", res.Name, megabytes(res.Size)))
		sb.WriteString(fmt.Sprintf("     Hash: %s\n", res.Hash))
		if res.Saved {
			sb.WriteString(fmt.Sprintf("     Saved to: %s/%s.json\n", domain.ExternalFolder, res.Name))
		}
	}
	sb.WriteString("\n")
	if n := r.Failed(); n > 0 {
		sb.WriteString(fmt.Sprintf("Found %d failing external token lists out of %d total.\n", n, len(r.Results)))
		sb.WriteString(fmt.Sprintf("Total size of successful downloads: %s MB\n", megabytes(r.TotalBytes())))
	} else {
		sb.WriteString(fmt.Sprintf("All %d external token lists are valid.\n", len(r.Results)))
		sb.WriteString(fmt.Sprintf("Total size of all downloads: %s MB\n", megabytes(r.TotalBytes())))
	}
	return sb.String()
}

func megabytes(n int) string {
	return fmt.Sprintf("%.2f", float64(n)/(1024*1024))
}
