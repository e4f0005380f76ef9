package roulette

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("result store is required")
	noOpLogger      = zap.NewNop()
)

// ServiceError tags a failure with a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "roulette.service.new"
	opSubmit     = "roulette.submit"
	opEditNumber = "roulette.edit_number"
	opFetch      = "roulette.fetch"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig wires the submission service.
type ServiceConfig struct {
	Store  Store
	Policy SubmissionPolicy
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service records and edits spin outcomes against the store.
type Service struct {
	store  Store
	policy SubmissionPolicy
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates dependencies and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	policy := cfg.Policy
	if policy.Clock == nil {
		policy.Clock = clock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{store: cfg.Store, policy: policy, clock: clock, logger: logger}, nil
}

// Submit validates a raw submission against the entry window, the number set
// and the daily quota, then writes it in one atomic create. Validation errors
// surface unwrapped so callers can match them; no retry is attempted.
func (s *Service) Submit(ctx context.Context, userID, number string, viewDate time.Time) (Result, error) {
	if err := s.policy.CheckWindow(viewDate); err != nil {
		return Result{}, err
	}

	count, err := s.store.CountInWindow(ctx, DayWindow(s.clock()))
	if err != nil {
		// The quota pre-check is best effort; the write path still gets an
		// authoritative say, so a failed count does not block submission.
		s.logger.Warn("daily count unavailable, continuing",
			zap.String("operation", opSubmit), zap.Error(err))
		count = 0
	}

	pending, err := s.policy.Validate(number, userID, count)
	if err != nil {
		return Result{}, err
	}

	id, err := s.store.Create(ctx, pending)
	if err != nil {
		s.logger.Error("result create failed",
			zap.String("operation", opSubmit),
			zap.String("number", pending.Number),
			zap.Error(err))
		return Result{}, err
	}

	s.logger.Info("result recorded",
		zap.String("result_id", id),
		zap.String("number", pending.Number),
		zap.String("sector", string(pending.Sector)))

	return Result{
		ID:        id,
		Number:    pending.Number,
		Sector:    pending.Sector,
		Timestamp: pending.Timestamp,
		UserID:    pending.UserID,
	}, nil
}

// EditNumber rewrites a recorded result's number and recomputes its sector.
// The timestamp is left untouched, so spin ordering is unaffected.
func (s *Service) EditNumber(ctx context.Context, id, number string) (Sector, error) {
	if !IsValid(number) {
		return "", ErrInvalidNumber
	}
	sector, ok := Classify(number)
	if !ok {
		return "", ErrSectorResolutionFailed
	}
	if err := s.store.UpdateNumber(ctx, id, number, sector); err != nil {
		s.logger.Error("result update failed",
			zap.String("operation", opEditNumber),
			zap.String("result_id", id),
			zap.Error(err))
		return "", err
	}
	return sector, nil
}

// Fetch performs a one-shot read for the scope's window and renumbers spins.
func (s *Service) Fetch(ctx context.Context, scope Scope) ([]Result, error) {
	results, err := s.store.Query(ctx, scope.Window())
	if err != nil {
		s.logger.Error("scope query failed",
			zap.String("operation", opFetch),
			zap.Error(err))
		return nil, err
	}
	return Renumber(results), nil
}
