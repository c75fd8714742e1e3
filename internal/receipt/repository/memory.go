package repository

import (
	"context"
	"sync"

	"github.com/smallbiznis/receiptpoints/internal/receipt/domain"
)

type memoryRepo struct {
	mu      sync.RWMutex
	entries map[string]domain.ReceiptPoints
}

// NewMemory returns a process-local registry. Everything is lost on exit.
func NewMemory() domain.Repository {
	return &memoryRepo{entries: make(map[string]domain.ReceiptPoints)}
}

func (r *memoryRepo) Put(ctx context.Context, record domain.ReceiptPoints) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[record.ID]; exists {
		return domain.ErrDuplicateID
	}
	r.entries[record.ID] = record
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (*domain.ReceiptPoints, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	record, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &record, nil
}
