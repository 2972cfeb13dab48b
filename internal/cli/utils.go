// Package cli formats kura results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", r.Score, r.ID, r.Filename, models.Deref(r.AlbumName))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if response.Mode != "" {
		fmt.Fprintf(w, " (%s)", response.Mode)
	}
	fmt.Fprintln(w)
	if len(response.FiltersApplied) > 0 {
		fmt.Fprintf(w, "Filters: %s\n", formatFilters(response.FiltersApplied))
	}
	fmt.Fprintln(w)
	for i, r := range response.Results {
		writeOneResult(w, i+1, r)
	}
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "#%d | Score: %.4f | %s\n", rank, r.Score, r.Filename)
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	var meta []string
	if r.AssetType != nil {
		meta = append(meta, "type="+*r.AssetType)
	}
	if r.MediaType != nil {
		meta = append(meta, "media="+*r.MediaType)
	}
	if r.AlbumName != nil {
		meta = append(meta, "album="+*r.AlbumName)
	}
	if r.Width != nil && r.Height != nil {
		meta = append(meta, fmt.Sprintf("%dx%d", *r.Width, *r.Height))
	}
	if len(meta) > 0 {
		fmt.Fprintln(w, strings.Join(meta, "  "))
	}
	if r.SemanticDescription != nil {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(*r.SemanticDescription, 200))
	}
	if r.Reasoning != nil {
		fmt.Fprintf(w, "Why: %s\n", *r.Reasoning)
	}
	fmt.Fprintln(w)
}

func formatFilters(f map[string]any) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return strings.Join(parts, ", ")
}

// WriteSyncStatus prints pipeline status. diskUsage may be nil.
func WriteSyncStatus(w io.Writer, st *models.SyncStatus, diskUsage *int64) {
	fmt.Fprintf(w, "total_assets:       %d\n", st.TotalAssets)
	fmt.Fprintf(w, "pending:            %d\n", st.ByStatus.Pending)
	fmt.Fprintf(w, "classified:         %d\n", st.ByStatus.Classified)
	fmt.Fprintf(w, "enriched:           %d\n", st.ByStatus.Enriched)
	fmt.Fprintf(w, "indexed:            %d\n", st.ByStatus.Indexed)
	fmt.Fprintf(w, "failed:             %d\n", st.ByStatus.Failed)
	fmt.Fprintf(w, "embedding_version:  %d\n", st.EmbeddingVersion)
	if st.LastProcessed != nil {
		fmt.Fprintf(w, "last_processed:     %s\n", st.LastProcessed.Format("2006-01-02 15:04:05 MST"))
	}
	if diskUsage != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # %s\n", *diskUsage, HumanBytes(*diskUsage))
	}
}

// HumanBytes renders n with a binary unit suffix.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
