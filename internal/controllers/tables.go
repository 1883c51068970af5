package controllers

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campus_shuttle/internal/backend"
)

type columnKind int

const (
	textColumn columnKind = iota
	integerColumn
	floatColumn
	boolColumn
	timeColumn
)

type tableSchema struct {
	columns  map[string]columnKind
	nullable map[string]bool
}

// schemas whitelists the tables and columns reachable over /rest.
var schemas = map[string]tableSchema{
	"shuttles": {
		columns: map[string]columnKind{
			"id":             textColumn,
			"vehicle_number": textColumn,
			"route_type":     textColumn,
			"current_seats":  integerColumn,
			"total_seats":    integerColumn,
			"latitude":       floatColumn,
			"longitude":      floatColumn,
			"is_active":      boolColumn,
			"driver_id":      textColumn,
			"updated_at":     timeColumn,
		},
		nullable: map[string]bool{"driver_id": true},
	},
	"rides": {
		columns: map[string]columnKind{
			"id":           textColumn,
			"student_id":   textColumn,
			"vehicle_code": textColumn,
			"status":       textColumn,
			"created_at":   timeColumn,
		},
	},
	"profiles": {
		columns: map[string]columnKind{
			"id":             textColumn,
			"user_type":      textColumn,
			"full_name":      textColumn,
			"phone":          textColumn,
			"license_number": textColumn,
			"updated_at":     timeColumn,
		},
	},
}

// parseQuery reads PostgREST-style parameters: col=eq.value,
// order=col.desc and limit=n.
func parseQuery(table string, schema tableSchema, params url.Values) (backend.Query, error) {
	q := backend.Query{Table: table}
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		raw := values[len(values)-1]
		switch key {
		case "select":
			// Every column is always returned.
		case "order":
			col, dir, _ := strings.Cut(raw, ".")
			if _, ok := schema.columns[col]; !ok {
				return q, fmt.Errorf("unknown order column %q", col)
			}
			if dir != "" && dir != "asc" && dir != "desc" {
				return q, fmt.Errorf("invalid order direction %q", dir)
			}
			q.Order = &backend.Order{Column: col, Descending: dir == "desc"}
		case "limit":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return q, fmt.Errorf("invalid limit %q", raw)
			}
			q.Limit = n
		default:
			kind, ok := schema.columns[key]
			if !ok {
				return q, fmt.Errorf("unknown column %q", key)
			}
			value, found := strings.CutPrefix(raw, "eq.")
			if !found {
				return q, fmt.Errorf("only eq filters are supported (column %q)", key)
			}
			v, err := coerceParam(kind, value)
			if err != nil {
				return q, fmt.Errorf("column %q: %w", key, err)
			}
			q.Filters = append(q.Filters, backend.Eq(key, v))
		}
	}
	return q, nil
}

func coerceParam(kind columnKind, raw string) (any, error) {
	switch kind {
	case integerColumn:
		return strconv.ParseInt(raw, 10, 64)
	case floatColumn:
		return strconv.ParseFloat(raw, 64)
	case boolColumn:
		return strconv.ParseBool(raw)
	case timeColumn:
		if _, err := time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// coerceRecord checks a JSON body against the schema and converts numbers
// to the column types.
func coerceRecord(schema tableSchema, body map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(body))
	for col, v := range body {
		kind, ok := schema.columns[col]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		if v == nil {
			if !schema.nullable[col] {
				return nil, fmt.Errorf("column %q cannot be null", col)
			}
			out[col] = nil
			continue
		}
		cv, err := coerceValue(kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		out[col] = cv
	}
	return out, nil
}

func coerceValue(kind columnKind, v any) (any, error) {
	switch kind {
	case integerColumn:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(f), nil
	case floatColumn:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", v)
		}
		return f, nil
	case boolColumn:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %v", v)
		}
		return b, nil
	case timeColumn:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a timestamp, got %v", v)
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %v", v)
		}
		return s, nil
	}
}
