package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/telemetry"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
	"github.com/NguyenDuy1910/chatbot/pkg/version"
)

// ServerName is reported in the MCP handshake.
const ServerName = "chatbot"

// Backend is the engine surface the tools call. *retrieval.Service
// implements it.
type Backend interface {
	Add(ctx context.Context, id, text string, metadata map[string]any) (index.Result, error)
	Update(ctx context.Context, id, text string, metadata map[string]any) (index.Result, error)
	Delete(ctx context.Context, id string) (index.Result, error)
	Query(ctx context.Context, input string, opts search.SearchOptions) (*retrieval.QueryResponse, error)
	StructuredQuery(ctx context.Context, req search.StructuredRequest) ([]search.Record, error)
	ResetIndex(ctx context.Context) error
	Get(ctx context.Context, id string) (*store.Document, error)
	Stats(ctx context.Context) (*retrieval.Stats, error)
	QueryStats() *telemetry.Snapshot
	Embedder() embed.Embedder
}

var _ Backend = (*retrieval.Service)(nil)

// Server is the MCP server over a Backend.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	config  *config.Config
	logger  *slog.Logger

	// newID generates ids for add_document calls without one.
	newID func() string
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{ToolAddDocument, "Add a document with an optional id and flat metadata. Fails with a conflict if the id is already live; a deleted id is resurrected."},
	{ToolUpdateDocument, "Replace the text and metadata of a live document. Fails if the document does not exist or was changed concurrently."},
	{ToolDeleteDocument, "Delete a document by id. It disappears from search immediately; deleting an absent id succeeds."},
	{ToolSearch, "Hybrid keyword and semantic search over the documents. Returns up to top_n results ranked by fused score. A query starting with /sql runs a structured query instead."},
	{ToolStructuredQuery, "Filter documents by id, version and metadata with conditions joined by AND, sorted by the given keys. Either pass the /sql text form or filters."},
	{ToolResetIndex, "Remove every document and index entry. Requires confirm=true."},
	{ToolIndexStatus, "Report document counts, index sizes, pending purges and the active embedding model."},
}

// NewServer creates an MCP server with every tool registered.
func NewServer(backend Backend, cfg *config.Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		backend: backend,
		config:  cfg,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolAddDocument:
		return callWith(ctx, args, s.addDocument)
	case ToolUpdateDocument:
		return callWith(ctx, args, s.updateDocument)
	case ToolDeleteDocument:
		return callWith(ctx, args, s.deleteDocument)
	case ToolSearch:
		return callWith(ctx, args, s.search)
	case ToolStructuredQuery:
		return callWith(ctx, args, s.structuredQuery)
	case ToolResetIndex:
		return callWith(ctx, args, s.resetIndex)
	case ToolIndexStatus:
		return callWith(ctx, args, s.indexStatus)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// callWith decodes args into In and runs fn.
func callWith[In, Out any](ctx context.Context, args map[string]any, fn func(context.Context, In) (Out, error)) (any, error) {
	var in In
	if len(args) > 0 {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	out, err := fn(ctx, in)
	if err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

func (s *Server) addDocument(ctx context.Context, in AddDocumentInput) (DocumentOutput, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.newID()
	}
	var res index.Result
	err := s.logged(ToolAddDocument, slog.String("id", id), func() (err error) {
		res, err = s.backend.Add(ctx, id, in.Text, in.Metadata)
		return err
	})
	return DocumentOutput(res), err
}

func (s *Server) updateDocument(ctx context.Context, in UpdateDocumentInput) (DocumentOutput, error) {
	if in.ID == "" {
		return DocumentOutput{}, NewInvalidParamsError("id is required")
	}
	var res index.Result
	err := s.logged(ToolUpdateDocument, slog.String("id", in.ID), func() (err error) {
		res, err = s.backend.Update(ctx, in.ID, in.Text, in.Metadata)
		return err
	})
	return DocumentOutput(res), err
}

func (s *Server) deleteDocument(ctx context.Context, in DeleteDocumentInput) (DocumentOutput, error) {
	if in.ID == "" {
		return DocumentOutput{}, NewInvalidParamsError("id is required")
	}
	var res index.Result
	err := s.logged(ToolDeleteDocument, slog.String("id", in.ID), func() (err error) {
		res, err = s.backend.Delete(ctx, in.ID)
		return err
	})
	return DocumentOutput(res), err
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	opts := search.SearchOptions{TopN: in.TopN, CertaintyThreshold: in.Certainty}
	if in.LexicalWeight != nil || in.VectorWeight != nil {
		var w search.Weights
		switch {
		case in.LexicalWeight != nil && in.VectorWeight != nil:
			w = search.Weights{Lexical: *in.LexicalWeight, Vector: *in.VectorWeight}
		case in.LexicalWeight != nil:
			w = search.Weights{Lexical: *in.LexicalWeight, Vector: 1 - *in.LexicalWeight}
		default:
			w = search.Weights{Lexical: 1 - *in.VectorWeight, Vector: *in.VectorWeight}
		}
		opts.Weights = &w
	}

	var resp *retrieval.QueryResponse
	err := s.logged(ToolSearch, slog.String("query", in.Query), func() (err error) {
		resp, err = s.backend.Query(ctx, in.Query, opts)
		return err
	})
	if err != nil {
		return SearchOutput{}, err
	}
	return SearchOutput{Query: in.Query, Mode: resp.Mode, Results: resp.Results, Records: resp.Records}, nil
}

func (s *Server) structuredQuery(ctx context.Context, in StructuredQueryInput) (StructuredQueryOutput, error) {
	req, err := in.request()
	if err != nil {
		return StructuredQueryOutput{}, err
	}

	var records []search.Record
	err = s.logged(ToolStructuredQuery, slog.Int("filters", len(req.Filters)), func() (err error) {
		records, err = s.backend.StructuredQuery(ctx, req)
		return err
	})
	if records == nil {
		records = []search.Record{}
	}
	return StructuredQueryOutput{Records: records}, err
}

func (in StructuredQueryInput) request() (search.StructuredRequest, error) {
	if strings.TrimSpace(in.Query) != "" {
		req, err := search.ParseStructured(in.Query)
		if err != nil {
			return req, err
		}
		if in.Limit > 0 {
			req.Limit = in.Limit
		}
		return req, nil
	}

	req := search.StructuredRequest{Limit: in.Limit}
	for _, f := range in.Filters {
		req.Filters = append(req.Filters, store.Filter{
			Field:  f.Field,
			Op:     strings.ToUpper(strings.TrimSpace(f.Op)),
			Values: jsonValues(f.Values),
		})
	}
	for _, k := range in.Sort {
		req.Sort = append(req.Sort, store.SortKey{Field: k.Field, Desc: k.Desc})
	}
	return req, nil
}

// jsonValues turns integral JSON numbers back into int64 so equality on
// integer metadata matches.
func jsonValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			out[i] = int64(f)
			continue
		}
		out[i] = v
	}
	return out
}

func (s *Server) resetIndex(ctx context.Context, in ResetIndexInput) (ResetIndexOutput, error) {
	if !in.Confirm {
		return ResetIndexOutput{}, NewInvalidParamsError("reset_index removes every document; pass confirm=true")
	}
	err := s.logged(ToolResetIndex, slog.Bool("confirm", true), func() error {
		return s.backend.ResetIndex(ctx)
	})
	if err != nil {
		return ResetIndexOutput{}, err
	}
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return ResetIndexOutput{}, err
	}
	return ResetIndexOutput{Reset: true, Generation: stats.Generation}, nil
}

func (s *Server) indexStatus(ctx context.Context, _ IndexStatusInput) (*IndexStatusOutput, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, err
	}

	out := &IndexStatusOutput{
		Stats:   *stats,
		Queries: *s.backend.QueryStats(),
		Embeddings: EmbeddingInfo{
			Provider: s.config.Embeddings.Provider,
			Model:    stats.Model,
			Status:   "unavailable",
		},
	}
	if e := s.backend.Embedder(); e != nil {
		out.Embeddings.Dimensions = e.Dimensions()
		if e.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}
	return out, nil
}

// logged runs fn with start and completion logs sharing a request id.
func (s *Server) logged(tool string, attr slog.Attr, fn func() error) error {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Debug("tool_started",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		attr)

	err := fn()
	if err != nil {
		s.logger.Warn("tool_failed",
			slog.String("tool", tool),
			slog.String("request_id", requestID),
			attr,
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("tool_completed",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		attr,
		slog.Duration("duration", time.Since(start)))
	return nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	addTool(s, ToolAddDocument, s.addDocument)
	addTool(s, ToolUpdateDocument, s.updateDocument)
	addTool(s, ToolDeleteDocument, s.deleteDocument)
	addTool(s, ToolSearch, s.search)
	addTool(s, ToolStructuredQuery, s.structuredQuery)
	addTool(s, ToolResetIndex, s.resetIndex)
	addTool(s, ToolIndexStatus, s.indexStatus)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func addTool[In, Out any](s *Server, name string, fn func(context.Context, In) (Out, error)) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: describe(name)},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			out, err := fn(ctx, in)
			if err != nil {
				var zero Out
				return nil, zero, MapError(err)
			}
			if md, ok := any(out).(markdowner); ok {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: md.Markdown()}},
				}, out, nil
			}
			return nil, out, nil
		})
}

func describe(name string) string {
	for _, t := range tools {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// Serve runs the server on the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
