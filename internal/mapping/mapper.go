// Package mapping copies declared fields from upstream JSON onto local records.
package mapping

import (
	"errors"
	"fmt"

	"wpsync/internal/domain"
)

// Field maps one upstream JSON key onto a record.
type Field struct {
	Name    string
	Extract func(src map[string]any) any
	Assign  func(rec *domain.Record, v any)
}

// Table is the statically declared field list of a content type.
type Table []Field

// Apply copies every field of the table from src onto rec. Keys absent
// from src assign an empty value. Nothing is persisted.
func (t Table) Apply(rec *domain.Record, src map[string]any) {
	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(t))
	}
	for _, f := range t {
		f.Assign(rec, f.Extract(src))
	}
}

// Names returns the upstream keys of the table in declaration order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, f := range t {
		names[i] = f.Name
	}
	return names
}

// Copy stores the raw value of key in Record.Fields.
func Copy(key string) Field {
	return Field{
		Name:    key,
		Extract: lookup(key),
		Assign: func(rec *domain.Record, v any) {
			rec.Fields[key] = v
		},
	}
}

// Title reads "title", accepting both {"rendered": "..."} and a plain string.
func Title() Field {
	return Field{
		Name: "title",
		Extract: func(src map[string]any) any {
			switch v := src["title"].(type) {
			case string:
				return v
			case map[string]any:
				s, _ := v["rendered"].(string)
				return s
			default:
				return ""
			}
		},
		Assign: func(rec *domain.Record, v any) {
			rec.Title, _ = v.(string)
		},
	}
}

// Status copies "status" onto Record.Status.
func Status() Field {
	return Field{
		Name:    "status",
		Extract: lookup("status"),
		Assign: func(rec *domain.Record, v any) {
			rec.Status, _ = v.(string)
		},
	}
}

// FromNames builds a table for a content type declared in configuration.
// "title" and "status" land on their dedicated record columns.
func FromNames(names []string) (Table, error) {
	if len(names) == 0 {
		return nil, errors.New("no fields declared")
	}

	seen := make(map[string]struct{}, len(names))
	table := make(Table, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, errors.New("empty field name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = struct{}{}

		switch name {
		case "title":
			table = append(table, Title())
		case "status":
			table = append(table, Status())
		default:
			table = append(table, Copy(name))
		}
	}
	return table, nil
}

func lookup(key string) func(map[string]any) any {
	return func(src map[string]any) any {
		return src[key]
	}
}
