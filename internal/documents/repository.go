package documents

import "context"

// Repository persists one document per subject. Upsert must be a single
// atomic insert-or-replace keyed by sub; GetBySub returns (nil, nil) when no
// document exists.
type Repository interface {
	Upsert(ctx context.Context, sub string, payload []byte) error
	GetBySub(ctx context.Context, sub string) (*Document, error)
}
