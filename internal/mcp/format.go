package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// maxSnippet bounds the text shown per result.
const maxSnippet = 500

// markdowner is implemented by tool outputs with a text rendering.
type markdowner interface {
	Markdown() string
}

// Markdown renders the search output for the client transcript.
func (o SearchOutput) Markdown() string {
	if o.Mode == retrieval.ModeStructured {
		return FormatRecords(o.Query, o.Records)
	}
	return FormatSearchResults(o.Query, o.Results)
}

// Markdown renders the structured query output.
func (o StructuredQueryOutput) Markdown() string {
	return FormatRecords("", o.Records)
}

// FormatSearchResults formats ranked results as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	writeCount(&sb, len(results))

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, r.ID, r.Score)
		fmt.Fprintf(&sb, "lexical: %.3f, vector: %.3f, version: %d\n\n", r.LexicalScore, r.VectorScore, r.Version)
		if len(r.Metadata) > 0 {
			fmt.Fprintf(&sb, "**Metadata:** %s\n\n", formatFields(r.Metadata))
		}
		sb.WriteString(snippet(r.Text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// FormatRecords formats structured query rows as markdown.
func FormatRecords(query string, records []search.Record) string {
	if len(records) == 0 {
		if query == "" {
			return "No matching documents"
		}
		return fmt.Sprintf("No matching documents for `%s`", query)
	}

	var sb strings.Builder
	if query != "" {
		fmt.Fprintf(&sb, "## Structured Query `%s`\n\n", query)
	}
	writeCount(&sb, len(records))
	for i, r := range records {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			if k != "text" {
				fields[k] = v
			}
		}
		fmt.Fprintf(&sb, "### %d. %s\n", i+1, r.ID)
		if len(fields) > 0 {
			fmt.Fprintf(&sb, "%s\n", formatFields(fields))
		}
		if text, ok := r.Fields["text"].(string); ok {
			sb.WriteString("\n")
			sb.WriteString(snippet(text))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeCount(sb *strings.Builder, n int) {
	fmt.Fprintf(sb, "Found %d result", n)
	if n != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
}

// formatFields renders fields as `key`=value pairs in key order.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("`%s`=%v", k, fields[k])
	}
	return strings.Join(parts, ", ")
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= maxSnippet {
		return text
	}
	return string(r[:maxSnippet-3]) + "..."
}
