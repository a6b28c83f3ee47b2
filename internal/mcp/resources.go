package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	DocumentURIPrefix   = "chatbot://documents/"
	DocumentURITemplate = DocumentURIPrefix + "{id}"
	StatsURI            = "chatbot://stats"
)

// documentResource is the JSON body of a document resource.
type documentResource struct {
	ID       string         `json:"id"`
	Version  int64          `json:"version"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// registerResources registers the document template and the stats
// resource.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "document",
			URITemplate: DocumentURITemplate,
			Description: "A live document by id",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readDocument(ctx, req.Params.URI)
		},
	)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "stats",
			URI:         StatsURI,
			Description: "Document and index counts",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readStats(ctx)
		},
	)
}

// readDocument returns the live document named by uri.
func (s *Server) readDocument(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := strings.CutPrefix(uri, DocumentURIPrefix)
	if !ok || id == "" {
		return nil, NewResourceNotFoundError(uri)
	}

	doc, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(uri, documentResource{
		ID:       doc.ID,
		Version:  doc.Version,
		Text:     doc.Text,
		Metadata: doc.Metadata,
	})
}

func (s *Server) readStats(ctx context.Context) (*mcp.ReadResourceResult, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(StatsURI, stats)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(content)},
		},
	}, nil
}
