package domain

import (
	"context"
	"errors"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

type ProcessResult struct {
	ID string `json:"id"`
}

type PointsResult struct {
	Points int64 `json:"points"`
}

type Service interface {
	Process(ctx context.Context, receipt Receipt) (ProcessResult, error)
	Points(ctx context.Context, id string) (PointsResult, error)
}

var (
	ErrInvalidReceipt   = errors.New("invalid_receipt")
	ErrMalformedReceipt = errors.New("malformed_receipt")
	ErrNotFound         = errors.New("not_found")
	ErrDuplicateID      = errors.New("duplicate_id")
)
