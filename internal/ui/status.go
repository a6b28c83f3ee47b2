package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// StatusInfo is the index status shown by the stats command.
type StatusInfo struct {
	retrieval.Stats
	Provider       string `json:"provider"`
	EmbedderStatus string `json:"embedder_status"`

	// Inconsistencies is -1 when no consistency check ran.
	Inconsistencies int `json:"inconsistencies"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor || DetectNoColor())}
}

// Render writes status as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}
	w.printf("%s\n\n", r.styles.Header.Render("Index Status: "+info.DataDir))

	w.printf("  Documents:    %d\n", info.Documents)
	w.printf("  Tombstoned:   %d\n", info.Tombstoned)
	w.printf("  Pending:      %d\n", info.PendingPurges)
	w.printf("  Generation:   %d\n\n", info.Generation)

	w.printf("  Indexes:\n")
	w.printf("    Lexical:    %d entries, %d terms\n", info.LexicalEntries, info.LexicalTerms)
	w.printf("    Vector:     %d entries (%s)\n\n", info.VectorEntries, info.VectorBackend)

	w.printf("  Embedder:\n")
	w.printf("    Provider:   %s\n", info.Provider)
	w.printf("    Model:      %s\n", info.Model)
	w.printf("    Dimensions: %d\n", info.Dimensions)
	w.printf("    Status:     %s\n", r.renderStatus(info.EmbedderStatus))

	if info.Inconsistencies >= 0 {
		w.printf("\n  Consistency:  %s\n", r.renderConsistency(info.Inconsistencies))
	}
	return w.err
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "unavailable":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func (r *StatusRenderer) renderConsistency(n int) string {
	if n == 0 {
		return r.styles.Success.Render("ok")
	}
	return r.styles.Error.Render(fmt.Sprintf("%d inconsistencies (run check --repair)", n))
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
