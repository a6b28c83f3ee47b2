// Package output provides consistent CLI output for document operations and
// query results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/search"
)

// Formats accepted by the --format flag.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// maxLine bounds the text preview printed per result.
const maxLine = 120

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	return f == FormatText || f == FormatJSON
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Document prints the outcome of a write: "added 101 (version 1)".
func (w *Writer) Document(verb string, res index.Result) {
	if res.Version == 0 {
		w.Statusf("•", "%s %s (no document)", verb, res.ID)
		return
	}
	w.Successf("%s %s (version %d)", verb, res.ID, res.Version)
}

// Results prints ranked hybrid results, one block per hit.
func (w *Writer) Results(query string, results []search.Result) {
	if len(results) == 0 {
		w.Statusf("", "No results for %q", query)
		return
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%2d. %s  score=%.3f lexical=%.3f vector=%.3f v%d\n",
			i+1, r.ID, r.Score, r.LexicalScore, r.VectorScore, r.Version)
		if len(r.Metadata) > 0 {
			_, _ = fmt.Fprintf(w.out, "    %s\n", Fields(r.Metadata))
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", Preview(r.Text))
	}
}

// Records prints structured query rows. The text field is previewed on its
// own line.
func (w *Writer) Records(records []search.Record) {
	if len(records) == 0 {
		w.Status("", "No matching documents")
		return
	}
	for i, r := range records {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			if k != "text" {
				fields[k] = v
			}
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", i+1, r.ID, Fields(fields))
		if text, ok := r.Fields["text"].(string); ok {
			_, _ = fmt.Fprintf(w.out, "    %s\n", Preview(text))
		}
	}
}

// Fields renders fields as key=value pairs in key order.
func Fields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}

// Preview returns the first line of text cut to maxLine runes.
func Preview(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i]) + " ..."
	}
	r := []rune(line)
	if len(r) <= maxLine {
		return line
	}
	return string(r[:maxLine-3]) + "..."
}
