// Package numerator implements document auto-numbering over a persisted,
// row-locked counter per (entity type, year).
// It implements core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookkeeping/internal/core/apperror"
	corenumerator "bookkeeping/internal/core/numerator"
	"bookkeeping/internal/core/tx"
	"bookkeeping/pkg/logger"
)

var tracer = otel.Tracer("bookkeeping/numerator")

// Well-known series.
const (
	IssueVouchers    = "issue_vouchers"
	ReturnVouchers   = "return_vouchers"
	TransferVouchers = "transfer_vouchers"
	Payments         = "payments"
	Customers        = "customers"
	Cheques          = "cheques"
)

// Service hands out document numbers.
//
// Every call runs read-increment-write on the sequence row under an exclusive
// lock, so numbers are never cached in memory and survive restarts and
// multiple instances.
type Service struct {
	repo corenumerator.Repository
	txm  tx.Manager

	// configs is written during startup and read afterwards
	mu       sync.RWMutex
	configs  map[string]corenumerator.Config
	defaults corenumerator.Config

	now func() time.Time
}

// Ensure compile-time interface compliance.
var _ corenumerator.Generator = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithDefaults sets the config used by series without their own.
func WithDefaults(cfg corenumerator.Config) Option {
	return func(s *Service) { s.defaults = cfg.Normalize() }
}

// WithClock overrides the source of the current year.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a numerator service.
func New(repo corenumerator.Repository, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		txm:      txm,
		configs:  make(map[string]corenumerator.Config),
		defaults: corenumerator.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure sets the numbering config of one series.
func (s *Service) Configure(entityType string, cfg corenumerator.Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return apperror.NewValidation(fmt.Sprintf("sequence %s: %v", entityType, err))
	}
	s.mu.Lock()
	s.configs[entityType] = cfg
	s.mu.Unlock()
	return nil
}

func (s *Service) config(entityType string) corenumerator.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[entityType]; ok {
		return cfg
	}
	return s.defaults
}

// Next generates the next number of the series for the current year.
func (s *Service) Next(ctx context.Context, entityType string) (string, error) {
	return s.NextNumber(ctx, entityType, s.now().Year())
}

// NextNumber generates the next number of (entityType, year).
// Pattern: YEAR/N (e.g., 2025/17), or PREFIX+YEAR/0000N with a prefix.
//
// The row is created at zero when absent, then locked, incremented and
// written back within one transaction. Exceeding the configured maximum
// returns SEQUENCE_LIMIT_EXCEEDED and leaves the row unchanged. Years before
// the current one are closed: their rows are never rewritten and the call
// fails with IMMUTABLE_PERIOD.
func (s *Service) NextNumber(ctx context.Context, entityType string, year int) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if err := validateKey(entityType, year); err != nil {
		return "", err
	}
	if year < s.now().Year() {
		return "", apperror.NewImmutablePeriod(entityType, year)
	}

	ctx, span := tracer.Start(ctx, "numerator.NextNumber",
		trace.WithAttributes(
			attribute.String("sequence.entity_type", entityType),
			attribute.Int("sequence.year", year),
		))
	defer span.End()

	cfg := s.config(entityType)
	var num int64

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.repo.LockSequence(ctx, entityType, year)
		if err != nil {
			return fmt.Errorf("lock sequence: %w", err)
		}

		next, ok := cfg.Next(seq.LastNumber)
		if !ok {
			return apperror.NewSequenceLimitExceeded(entityType, year, cfg.MaxValue)
		}

		seq.LastNumber = next
		seq.UpdatedAt = s.now().UTC()
		if err := s.repo.SaveSequence(ctx, seq); err != nil {
			return fmt.Errorf("save sequence: %w", err)
		}
		num = next
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if apperror.IsSequenceLimitExceeded(err) {
			logger.Error(ctx, "sequence limit exceeded",
				"entity_type", entityType,
				"year", year,
				"max_value", cfg.MaxValue,
			)
		}
		return "", err
	}

	return cfg.Format(year, num), nil
}

// Current returns the last number handed out without incrementing.
// ok is false when the series has not been used in that year.
func (s *Service) Current(ctx context.Context, entityType string, year int) (string, bool, error) {
	if err := validateKey(entityType, year); err != nil {
		return "", false, err
	}
	seq, ok, err := s.repo.GetSequence(ctx, entityType, year)
	if err != nil {
		return "", false, fmt.Errorf("get sequence: %w", err)
	}
	if !ok || seq.LastNumber == 0 {
		return "", false, nil
	}
	return s.config(entityType).Format(year, seq.LastNumber), true, nil
}

// Remaining returns how many numbers the series can still hand out in year.
func (s *Service) Remaining(ctx context.Context, entityType string, year int) (int64, error) {
	if err := validateKey(entityType, year); err != nil {
		return 0, err
	}
	cfg := s.config(entityType)
	seq, _, err := s.repo.GetSequence(ctx, entityType, year)
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	// numbers below MinValue are skipped, never handed out
	last := seq.LastNumber
	if last < cfg.MinValue-cfg.IncrementBy {
		last = cfg.MinValue - cfg.IncrementBy
	}
	remaining := (cfg.MaxValue - last) / cfg.IncrementBy
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// SetLastNumber sets last_number of a series (for data migration purposes).
// Years before the current one are closed and cannot be rewritten.
func (s *Service) SetLastNumber(ctx context.Context, entityType string, year int, value int64) error {
	if err := validateKey(entityType, year); err != nil {
		return err
	}
	if year < s.now().Year() {
		return apperror.NewImmutablePeriod(entityType, year)
	}
	cfg := s.config(entityType)
	if value < 0 || value > cfg.MaxValue {
		return apperror.NewValidation(fmt.Sprintf("last number %d is outside [0, %d]", value, cfg.MaxValue))
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.repo.LockSequence(ctx, entityType, year)
		if err != nil {
			return fmt.Errorf("lock sequence: %w", err)
		}
		seq.LastNumber = value
		seq.UpdatedAt = s.now().UTC()
		return s.repo.SaveSequence(ctx, seq)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sequence last number set",
		"entity_type", entityType,
		"year", year,
		"last_number", value,
	)
	return nil
}

func validateKey(entityType string, year int) error {
	if entityType == "" {
		return apperror.NewValidation("entity type is required")
	}
	if year <= 0 {
		return apperror.NewValidation(fmt.Sprintf("invalid year %d", year))
	}
	return nil
}

