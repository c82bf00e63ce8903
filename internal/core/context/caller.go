// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// Caller identifies the authenticated client of the table API.
type Caller struct {
	Subject string
	// Tables the caller may query; "*" grants every table.
	Tables []string
}

type callerContextKey struct{}

// WithCaller adds Caller to context.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCaller returns Caller from context.
func GetCaller(ctx context.Context) *Caller {
	if v, ok := ctx.Value(callerContextKey{}).(*Caller); ok {
		return v
	}
	return nil
}

// GetSubject returns the caller subject from context or empty string.
func GetSubject(ctx context.Context) string {
	if c := GetCaller(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// CanQuery reports whether the caller may read the given table.
func (c *Caller) CanQuery(table string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Tables, "*") || slices.Contains(c.Tables, table)
}
