package mcp

import (
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/internal/telemetry"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// Tool names.
const (
	ToolAddDocument     = "add_document"
	ToolUpdateDocument  = "update_document"
	ToolDeleteDocument  = "delete_document"
	ToolSearch          = "search"
	ToolStructuredQuery = "structured_query"
	ToolResetIndex      = "reset_index"
	ToolIndexStatus     = "index_status"
)

// AddDocumentInput defines the input schema for the add_document tool.
type AddDocumentInput struct {
	ID       string         `json:"id,omitempty" jsonschema:"document id; a UUID is generated when empty"`
	Text     string         `json:"text" jsonschema:"document text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"flat key-value metadata usable in structured queries"`
}

// UpdateDocumentInput defines the input schema for the update_document tool.
type UpdateDocumentInput struct {
	ID       string         `json:"id" jsonschema:"id of a live document"`
	Text     string         `json:"text" jsonschema:"replacement text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"replacement metadata"`
}

// DeleteDocumentInput defines the input schema for the delete_document tool.
type DeleteDocumentInput struct {
	ID string `json:"id" jsonschema:"document id; deleting an absent id succeeds"`
}

// DocumentOutput is the result of a write.
type DocumentOutput struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"natural language query, or a /sql structured query"`
	TopN          int      `json:"top_n,omitempty" jsonschema:"maximum number of results, default 3"`
	Certainty     *float64 `json:"certainty,omitempty" jsonschema:"minimum vector similarity in [0,1] a result must reach"`
	LexicalWeight *float64 `json:"lexical_weight,omitempty" jsonschema:"fusion weight of the keyword score; with vector_weight it must sum to 1"`
	VectorWeight  *float64 `json:"vector_weight,omitempty" jsonschema:"fusion weight of the vector score"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string          `json:"query"`
	Mode    string          `json:"mode" jsonschema:"hybrid or structured"`
	Results []search.Result `json:"results,omitempty" jsonschema:"ranked documents for a hybrid query"`
	Records []search.Record `json:"records,omitempty" jsonschema:"matching rows for a structured query"`
}

// FilterInput is one structured query condition.
type FilterInput struct {
	Field  string `json:"field" jsonschema:"id, version, or a metadata key"`
	Op     string `json:"op" jsonschema:"one of =, !=, <, <=, >, >=, IN"`
	Values []any  `json:"values" jsonschema:"operand; IN takes several"`
}

// SortInput is one structured query sort key.
type SortInput struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// StructuredQueryInput defines the input schema for the structured_query
// tool. Query, when set, is parsed instead of Filters and Sort.
type StructuredQueryInput struct {
	Query   string        `json:"query,omitempty" jsonschema:"text form, e.g. /sql WHERE year >= 2010 ORDER BY year DESC LIMIT 5"`
	Filters []FilterInput `json:"filters,omitempty" jsonschema:"conditions joined by AND"`
	Sort    []SortInput   `json:"sort,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// StructuredQueryOutput defines the output schema for the structured_query tool.
type StructuredQueryOutput struct {
	Records []search.Record `json:"records"`
}

// ResetIndexInput defines the input schema for the reset_index tool.
type ResetIndexInput struct {
	Confirm bool `json:"confirm" jsonschema:"must be true; every document is removed"`
}

// ResetIndexOutput defines the output schema for the reset_index tool.
type ResetIndexOutput struct {
	Reset      bool  `json:"reset"`
	Generation int64 `json:"generation"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Stats      retrieval.Stats    `json:"stats"`
	Embeddings EmbeddingInfo      `json:"embeddings"`
	Queries    telemetry.Snapshot `json:"queries"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"`
}
