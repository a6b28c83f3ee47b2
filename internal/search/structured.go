package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/store"
)

// StructuredPrefix marks a query as a structured filter expression.
const StructuredPrefix = "/sql"

// StructuredRequest is a conjunction of filters with caller sort keys.
type StructuredRequest struct {
	Filters []store.Filter  `json:"filters"`
	Sort    []store.SortKey `json:"sort,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Record is one structured query row. Fields holds the metadata plus the
// reserved "text" and "version" keys.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// IsStructured reports whether query uses the "/sql" form.
func IsStructured(query string) bool {
	q := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToLower(q), StructuredPrefix) {
		return false
	}
	rest := q[len(StructuredPrefix):]
	return rest == "" || unicode.IsSpace(rune(rest[0]))
}

// StructuredQuery filters live documents by id, version and metadata. It
// never reads the lexical or vector index.
func (p *Planner) StructuredQuery(ctx context.Context, req StructuredRequest) ([]Record, error) {
	q, err := req.query()
	if err != nil {
		return nil, err
	}
	rows, err := p.docs.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		fields := make(map[string]any, len(row.Metadata)+2)
		for k, v := range row.Metadata {
			fields[k] = v
		}
		fields["text"] = row.Text
		fields["version"] = row.Version
		records[i] = Record{ID: row.ID, Fields: fields}
	}
	return records, nil
}

func (r StructuredRequest) query() (store.Query, error) {
	if r.Limit < 0 {
		return store.Query{}, errors.New(errors.ErrCodeInvalidFilter, "limit must not be negative", nil).
			WithDetail("limit", strconv.Itoa(r.Limit))
	}
	q := store.Query{Filters: r.Filters, Sort: r.Sort, Limit: r.Limit}
	if err := store.ValidateQuery(q); err != nil {
		return store.Query{}, err
	}
	return q, nil
}

// ParseStructured parses the "/sql" text form:
//
//	/sql [WHERE cond {AND cond}] [ORDER BY field [ASC|DESC] {, field [ASC|DESC]}] [LIMIT n]
//	cond  := field op value | field IN ( value {, value} )
//	op    := = | != | < | <= | > | >=
//	value := 'string' | "string" | number | true | false
//
// Keywords are case-insensitive. Anything left over is an error.
func ParseStructured(input string) (StructuredRequest, error) {
	if !IsStructured(input) {
		return StructuredRequest{}, parseError(input, "query must start with "+StructuredPrefix)
	}
	src := strings.TrimSpace(input)[len(StructuredPrefix):]
	toks, err := lex(src)
	if err != nil {
		return StructuredRequest{}, parseError(input, err.Error())
	}

	p := &parser{toks: toks}
	req, err := p.parse()
	if err != nil {
		return StructuredRequest{}, parseError(input, err.Error())
	}
	if _, err := req.query(); err != nil {
		ce, _ := errors.As(err)
		return StructuredRequest{}, ce.WithDetail("query", input)
	}
	return req, nil
}

func parseError(input, reason string) *errors.ChatbotError {
	return errors.New(errors.ErrCodeInvalidFilter, "invalid structured query: "+reason, nil).
		WithDetail("query", input)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '\'' || r == '"':
			s, n, err := lexString(src[i:], byte(r))
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s})
			i += n
		case r == '(' || r == ')' || r == ',':
			toks = append(toks, token{kind: tokPunct, text: string(r)})
			i++
		case r == '=' || r == '<' || r == '>' || r == '!':
			op := string(r)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
			}
			if op == "!" {
				return nil, fmt.Errorf("unknown operator %q", op)
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i += len(op)
		case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
			j := i + 1
			for j < len(src) && (isDigit(src[j]) || strings.IndexByte(".eE+-", src[j]) >= 0) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j]})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i + size
			for j < len(src) {
				r2, n := utf8.DecodeRuneInString(src[j:])
				if r2 != '_' && r2 != '.' && !unicode.IsLetter(r2) && !unicode.IsDigit(r2) {
					break
				}
				j += n
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return toks, nil
}

// lexString reads a quoted string starting at src[0]. A doubled quote
// inside the string stands for one quote.
func lexString(src string, quote byte) (string, int, error) {
	var sb strings.Builder
	for i := 1; i < len(src); i++ {
		if src[i] != quote {
			sb.WriteByte(src[i])
			continue
		}
		if i+1 < len(src) && src[i+1] == quote {
			sb.WriteByte(quote)
			i++
			continue
		}
		return sb.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

type parser struct {
	toks []token
	pos  int
}

func (p *parser) parse() (StructuredRequest, error) {
	var req StructuredRequest

	if p.keyword("WHERE") {
		for {
			f, err := p.condition()
			if err != nil {
				return req, err
			}
			req.Filters = append(req.Filters, f)
			if !p.keyword("AND") {
				break
			}
		}
	}

	if p.keyword("ORDER") {
		if !p.keyword("BY") {
			return req, fmt.Errorf("expected BY after ORDER")
		}
		for {
			field, err := p.field()
			if err != nil {
				return req, err
			}
			key := store.SortKey{Field: field}
			if p.keyword("DESC") {
				key.Desc = true
			} else {
				p.keyword("ASC")
			}
			req.Sort = append(req.Sort, key)
			if !p.punct(",") {
				break
			}
		}
	}

	if p.keyword("LIMIT") {
		t, ok := p.next()
		if !ok || t.kind != tokNumber {
			return req, fmt.Errorf("expected a number after LIMIT")
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid LIMIT %q", t.text)
		}
		req.Limit = n
	}

	if t, ok := p.peek(); ok {
		return req, fmt.Errorf("unexpected %q", t.text)
	}
	return req, nil
}

func (p *parser) condition() (store.Filter, error) {
	field, err := p.field()
	if err != nil {
		return store.Filter{}, err
	}
	f := store.Filter{Field: field}

	if p.keyword("IN") {
		f.Op = store.OpIn
		if !p.punct("(") {
			return f, fmt.Errorf("expected ( after IN")
		}
		for {
			v, err := p.value()
			if err != nil {
				return f, err
			}
			f.Values = append(f.Values, v)
			if p.punct(")") {
				return f, nil
			}
			if !p.punct(",") {
				return f, fmt.Errorf("expected , or ) in IN list")
			}
		}
	}

	t, ok := p.next()
	if !ok {
		return f, fmt.Errorf("missing operator after %q", field)
	}
	if t.kind != tokOp {
		return f, fmt.Errorf("unknown operator %q", t.text)
	}
	f.Op = t.text

	v, err := p.value()
	if err != nil {
		return f, err
	}
	f.Values = []any{v}
	return f, nil
}

func (p *parser) field() (string, error) {
	t, ok := p.next()
	if !ok {
		return "", fmt.Errorf("missing field name")
	}
	if t.kind != tokIdent || isKeyword(t.text) {
		return "", fmt.Errorf("invalid field name %q", t.text)
	}
	return t.text, nil
}

func (p *parser) value() (any, error) {
	t, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("missing value")
	}
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return f, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, fmt.Errorf("invalid value %q", t.text)
}

func (p *parser) keyword(kw string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) punct(s string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func isKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "WHERE", "AND", "ORDER", "BY", "ASC", "DESC", "LIMIT", "IN":
		return true
	}
	return false
}
