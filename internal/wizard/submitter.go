package wizard

import "context"

// Submitter receives the assembled values of a completed wizard and returns
// the identifier of the created record. Values hold plain strings, bools,
// float64s (nil when unset) and []map[string]any for groups.
type Submitter interface {
	Submit(ctx context.Context, flow string, values map[string]any) (string, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, flow string, values map[string]any) (string, error)

func (fn SubmitterFunc) Submit(ctx context.Context, flow string, values map[string]any) (string, error) {
	return fn(ctx, flow, values)
}
