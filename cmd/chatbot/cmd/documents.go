package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/output"
)

// documentOptions holds the flags shared by add and update.
type documentOptions struct {
	file   string
	meta   []string
	format string
}

func (d *documentOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&d.file, "file", "f", "", "Read the text from a file, or - for stdin")
	cmd.Flags().StringArrayVarP(&d.meta, "meta", "m", nil, "Metadata key=value (repeatable; JSON values are decoded)")
	cmd.Flags().StringVar(&d.format, "format", output.FormatText, "Output format: text, json")
}

func newAddCmd(g *globalOptions) *cobra.Command {
	var (
		id   string
		opts documentOptions
	)

	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Add a new document",
		Long: `Add a document to the store and both indexes.

The id must not exist yet. Without --id a random UUID is used.`,
		Example: `  chatbot add --id 101 "Quantum computing uses qubits."
  chatbot add --id law-2013 --file luat.txt --meta year=2013 --meta topic=land`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(opts.format) {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			text, metadata, err := opts.read(cmd, args)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}

			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			res, err := svc.Add(cmd.Context(), id, text, metadata)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if opts.format == output.FormatJSON {
				return out.JSON(res)
			}
			out.Document("added", res)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Document id (default: random UUID)")
	opts.register(cmd)
	return cmd
}

func newUpdateCmd(g *globalOptions) *cobra.Command {
	var opts documentOptions

	cmd := &cobra.Command{
		Use:   "update <id> [text...]",
		Short: "Replace the text and metadata of a document",
		Long: `Replace a live document. Its version is incremented and both indexes
are rewritten. Metadata is replaced, not merged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(opts.format) {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			text, metadata, err := opts.read(cmd, args[1:])
			if err != nil {
				return err
			}

			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			res, err := svc.Update(cmd.Context(), args[0], text, metadata)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if opts.format == output.FormatJSON {
				return out.JSON(res)
			}
			out.Document("updated", res)
			return nil
		},
	}

	opts.register(cmd)
	return cmd
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents",
		Long: `Tombstone documents so they stop appearing in results at once. Index
entries are purged in the background. Deleting an absent id succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			out := output.New(cmd.OutOrStdout())
			for _, id := range args {
				res, err := svc.Delete(cmd.Context(), id)
				if err != nil {
					return err
				}
				out.Document("deleted", res)
			}
			return svc.FlushPurges(cmd.Context())
		},
	}
	return cmd
}

// documentView is the JSON form of get.
type documentView struct {
	ID       string         `json:"id"`
	Version  int64          `json:"version"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newGetCmd(g *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a live document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			doc, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if format == output.FormatJSON {
				return out.JSON(documentView{ID: doc.ID, Version: doc.Version, Text: doc.Text, Metadata: doc.Metadata})
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "%s (version %d)\n", doc.ID, doc.Version)
			if len(doc.Metadata) > 0 {
				_, _ = fmt.Fprintf(w, "%s\n", output.Fields(doc.Metadata))
			}
			_, _ = fmt.Fprintf(w, "\n%s\n", doc.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", output.FormatText, "Output format: text, json")
	return cmd
}

// read returns the document text from args or --file and the parsed
// --meta pairs.
func (d *documentOptions) read(cmd *cobra.Command, args []string) (string, map[string]any, error) {
	metadata, err := parseMetadata(d.meta)
	if err != nil {
		return "", nil, err
	}

	switch {
	case d.file != "" && len(args) > 0:
		return "", nil, fmt.Errorf("pass the text as arguments or with --file, not both")
	case d.file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), metadata, nil
	case d.file != "":
		data, err := os.ReadFile(d.file)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", d.file, err)
		}
		return string(data), metadata, nil
	default:
		return strings.Join(args, " "), metadata, nil
	}
}

// parseMetadata turns key=value pairs into a metadata map. A value that is
// valid JSON is decoded, so year=2013 is a number and tags=["a"] a list.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		metadata[key] = v
	}
	return metadata, nil
}
