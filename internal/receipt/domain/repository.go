package domain

import "context"

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks

// Repository is the registry of accepted receipts. Entries are insert-only:
// Put on an existing id returns ErrDuplicateID and leaves the entry untouched.
// Get returns nil, nil when no entry exists.
type Repository interface {
	Put(ctx context.Context, record ReceiptPoints) error
	Get(ctx context.Context, id string) (*ReceiptPoints, error)
}
