// Package types holds the JSON envelopes shared by every API response.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ListPage wraps a slice with its length so clients can tell an empty page
// from a missing field.
type ListPage[T any] struct {
	Items      []T    `json:"items"`
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func NewListPage[T any](items []T) ListPage[T] {
	if items == nil {
		items = []T{}
	}
	return ListPage[T]{Items: items, Count: len(items)}
}

// WithCursor attaches the token for the following page.
func (p ListPage[T]) WithCursor(cursor string) ListPage[T] {
	p.NextCursor = cursor
	return p
}
