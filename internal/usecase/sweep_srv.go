package usecase

import (
	"context"
	"fmt"

	"cinema-reservation/internal/data/repository"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/telemetry"

	"go.uber.org/zap"
)

type HoldSweeper interface {
	ExpireHolds(ctx context.Context) (*SweepResult, error)
}

type SweepResult struct {
	Holds    int64
	Payments int64
}

type holdSweeper struct {
	repo *repository.Repository
	tx   database.Transactor
	log  *zap.Logger
}

func NewHoldSweeper(repo *repository.Repository, tx database.Transactor, log *zap.Logger) HoldSweeper {
	return &holdSweeper{
		repo: repo,
		tx:   tx,
		log:  log.With(zap.String("service", "sweeper")),
	}
}

// ExpireHolds moves every lapsed hold to expired and every lapsed pending
// charge to expired in one transaction, using the database clock.
func (s *holdSweeper) ExpireHolds(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sweeper.ExpireHolds")
	defer span.End()

	var result SweepResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		holds, err := s.repo.Booking.ExpireLapsedHolds(ctx)
		if err != nil {
			return err
		}
		payments, err := s.repo.Payment.ExpireLapsedPending(ctx)
		if err != nil {
			return err
		}
		result = SweepResult{Holds: holds, Payments: payments}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("expire holds: %w", err)
	}

	if result.Holds > 0 || result.Payments > 0 {
		s.log.Info("Expired lapsed holds",
			zap.Int64("bookings", result.Holds),
			zap.Int64("payments", result.Payments),
		)
	}

	return &result, nil
}
