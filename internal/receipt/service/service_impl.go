package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/receiptpoints/internal/clock"
	"github.com/smallbiznis/receiptpoints/internal/idgen"
	"github.com/smallbiznis/receiptpoints/internal/observability/logger"
	"github.com/smallbiznis/receiptpoints/internal/observability/metrics"
	"github.com/smallbiznis/receiptpoints/internal/receipt/domain"
	"github.com/smallbiznis/receiptpoints/internal/receipt/points"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	IDGen   idgen.Generator
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	idgen   idgen.Generator
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("receipt.service"),
		repo:    p.Repo,
		idgen:   p.IDGen,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Process scores an accepted receipt and records only its id and score.
func (s *Service) Process(ctx context.Context, receipt domain.Receipt) (domain.ProcessResult, error) {
	id := s.idgen.NewID()
	log := logger.WithContext(ctx, s.log).With(zap.String("receipt_id", id))

	breakdown, err := points.Explain(receipt)
	if err != nil {
		log.Debug("receipt rejected", zap.Error(err))
		s.metrics.RecordProcessed(ctx, metrics.OutcomeInvalid, 0)
		return domain.ProcessResult{}, err
	}

	total := breakdown.Total()
	log.Debug("receipt scored",
		zap.Int64("points", total),
		zap.Any("breakdown", breakdown),
	)

	record := domain.ReceiptPoints{
		ID:        id,
		Points:    total,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Put(ctx, record); err != nil {
		s.metrics.RecordProcessed(ctx, metrics.OutcomeError, 0)
		if errors.Is(err, domain.ErrDuplicateID) {
			log.Error("generated receipt id collided with an existing entry")
		}
		return domain.ProcessResult{}, fmt.Errorf("store receipt points: %w", err)
	}

	s.metrics.RecordProcessed(ctx, metrics.OutcomeAccepted, total)
	log.Info("receipt accepted", zap.Int64("points", total))
	return domain.ProcessResult{ID: id}, nil
}

func (s *Service) Points(ctx context.Context, id string) (domain.PointsResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.metrics.RecordLookup(ctx, metrics.OutcomeNotFound)
		return domain.PointsResult{}, domain.ErrNotFound
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		s.metrics.RecordLookup(ctx, metrics.OutcomeError)
		return domain.PointsResult{}, fmt.Errorf("load receipt points: %w", err)
	}
	if record == nil {
		s.metrics.RecordLookup(ctx, metrics.OutcomeNotFound)
		return domain.PointsResult{}, domain.ErrNotFound
	}

	s.metrics.RecordLookup(ctx, metrics.OutcomeFound)
	return domain.PointsResult{Points: record.Points}, nil
}
