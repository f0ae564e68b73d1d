// Package variables resolves dotted placeholder keys ("employee.full_name",
// "system.current_date") against a typed context of field providers. Unknown
// namespaces and missing fields resolve to nil rather than erroring, because
// mapping keys are registered independently of resolver code.
package variables

import (
	"fmt"
	"strings"
	"time"
)

// FieldProvider exposes named fields of one context namespace. Implementations
// report ok=false for fields they do not carry; the resolver turns that into a
// nil value, never an error.
type FieldProvider interface {
	Get(field string) (any, bool)
}

// MapProvider adapts a plain map to a FieldProvider. Request records from the
// HR/Legal collaborators arrive in this shape.
type MapProvider map[string]any

func (m MapProvider) Get(field string) (any, bool) {
	v, ok := m[field]
	return v, ok
}

// FuncProvider adapts a lookup function to a FieldProvider.
type FuncProvider func(field string) (any, bool)

func (f FuncProvider) Get(field string) (any, bool) { return f(field) }

// Context carries the namespace providers for one resolution run.
type Context struct {
	Employee     FieldProvider
	Organization FieldProvider
	Request      FieldProvider

	// Now anchors the system namespace; zero means wall-clock time.
	Now time.Time
}

func (c Context) provider(namespace string) FieldProvider {
	switch namespace {
	case "employee":
		return c.Employee
	case "organization":
		return c.Organization
	case "request":
		return c.Request
	case "system":
		return systemProvider{now: c.now()}
	}
	return nil
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// systemProvider serves computed system fields.
type systemProvider struct {
	now time.Time
}

func (p systemProvider) Get(field string) (any, bool) {
	switch field {
	case "current_date":
		return p.now.Format("2006-01-02"), true
	case "current_datetime":
		return p.now.Format(time.RFC3339), true
	case "current_year":
		return p.now.Year(), true
	}
	return nil, false
}

// Resolve looks up one dotted key. Unknown namespace, missing provider, or
// missing field all yield nil.
func Resolve(key string, ctx Context) any {
	namespace, field, ok := strings.Cut(key, ".")
	if !ok || field == "" {
		return nil
	}
	provider := ctx.provider(namespace)
	if provider == nil {
		return nil
	}
	value, ok := provider.Get(field)
	if !ok {
		return nil
	}
	return value
}

// MissingVariable annotates an unresolved placeholder with the namespace its
// mapping pointed at, so callers can tell the user where the gap is.
type MissingVariable struct {
	Placeholder string `json:"placeholder"`
	Key         string `json:"key"`
	Namespace   string `json:"namespace"`
}

// Validation is the report of a dry-run resolution over a template's declared
// variables.
type Validation struct {
	Valid         bool              `json:"valid"`
	Missing       []MissingVariable `json:"missing_variables,omitempty"`
	ResolvedCount int               `json:"resolved_count"`
}

// Validate attempts every placeholder through its mapping and reports which
// resolve to nil. It never errors; generation decides what is fatal.
func Validate(placeholders []string, mappings map[string]string, ctx Context) Validation {
	report := Validation{Valid: true}
	for _, placeholder := range placeholders {
		key, mapped := mappings[placeholder]
		if !mapped {
			key = placeholder
		}
		if Resolve(key, ctx) == nil {
			namespace, _, _ := strings.Cut(key, ".")
			report.Missing = append(report.Missing, MissingVariable{
				Placeholder: placeholder,
				Key:         key,
				Namespace:   namespace,
			})
			report.Valid = false
			continue
		}
		report.ResolvedCount++
	}
	return report
}

// ResolveAll materializes the resolved snapshot for a set of placeholders,
// formatting values as strings for substitution. Unresolved placeholders are
// omitted.
func ResolveAll(placeholders []string, mappings map[string]string, ctx Context) map[string]string {
	values := make(map[string]string, len(placeholders))
	for _, placeholder := range placeholders {
		key, mapped := mappings[placeholder]
		if !mapped {
			key = placeholder
		}
		if value := Resolve(key, ctx); value != nil {
			values[placeholder] = Format(value)
		}
	}
	return values
}

// Format renders a resolved value for document substitution.
func Format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
