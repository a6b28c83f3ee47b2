package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// Filter operators accepted by Query.
const (
	OpEq  = "="
	OpNe  = "!="
	OpLt  = "<"
	OpLte = "<="
	OpGt  = ">"
	OpGte = ">="
	OpIn  = "IN"
)

// MetadataPrefix addresses a metadata key that collides with a column name,
// e.g. "metadata.id".
const MetadataPrefix = "metadata."

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateField reports whether field can be used in a filter or sort key.
func ValidateField(field string) error {
	name := strings.TrimPrefix(field, MetadataPrefix)
	if !fieldPattern.MatchString(name) {
		return errors.New(errors.ErrCodeInvalidFilter, "invalid field name", nil).
			WithDetail("field", field)
	}
	return nil
}

// fieldExpr maps a field to its SQL expression. id and version are columns;
// anything else is a metadata JSON path.
func fieldExpr(field string) (string, []any, error) {
	switch field {
	case "id", "version":
		return field, nil, nil
	}
	if err := ValidateField(field); err != nil {
		return "", nil, err
	}
	return "json_extract(metadata, ?)", []any{"$." + strings.TrimPrefix(field, MetadataPrefix)}, nil
}

// ValidateQuery checks every filter and sort key of q without running it.
func ValidateQuery(q Query) error {
	_, _, err := buildQuery(q)
	return err
}

func buildQuery(q Query) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "deleted = 0")

	for _, f := range q.Filters {
		expr, exprArgs, err := fieldExpr(f.Field)
		if err != nil {
			return "", nil, err
		}
		clause, valueArgs, err := predicate(expr, f)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		args = append(args, exprArgs...)
		args = append(args, valueArgs...)
	}

	var order []string
	var orderArgs []any
	for _, k := range q.Sort {
		expr, exprArgs, err := fieldExpr(k.Field)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		order = append(order, expr+" "+dir)
		orderArgs = append(orderArgs, exprArgs...)
	}
	order = append(order, "id ASC")

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(documentColumns)
	sb.WriteString(" FROM documents WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	args = append(args, orderArgs...)

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

func predicate(expr string, f Filter) (string, []any, error) {
	if len(f.Values) == 0 {
		return "", nil, invalidFilter(f, "missing value")
	}

	values := make([]any, len(f.Values))
	for i, v := range f.Values {
		sv, err := sqlValue(v)
		if err != nil {
			return "", nil, invalidFilter(f, err.Error())
		}
		values[i] = sv
	}

	switch f.Op {
	case OpEq, OpNe:
		if len(values) != 1 {
			return "", nil, invalidFilter(f, "expected one value")
		}
		return expr + " " + f.Op + " ?", values, nil
	case OpLt, OpLte, OpGt, OpGte:
		if len(values) != 1 {
			return "", nil, invalidFilter(f, "expected one value")
		}
		if _, ok := f.Values[0].(bool); ok {
			return "", nil, invalidFilter(f, "range comparison on a boolean")
		}
		return expr + " " + f.Op + " ?", values, nil
	case OpIn:
		return expr + " IN (" + placeholders(len(values)) + ")", values, nil
	default:
		return "", nil, invalidFilter(f, "unknown operator")
	}
}

// sqlValue converts a filter operand to a driver value. Booleans compare
// as 1/0, which is how json_extract reports JSON true/false.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case string, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case bool:
		return boolToInt(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func invalidFilter(f Filter, reason string) error {
	return errors.New(errors.ErrCodeInvalidFilter, "invalid filter: "+reason, nil).
		WithDetail("field", f.Field).
		WithDetail("op", f.Op)
}
