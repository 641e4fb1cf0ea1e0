package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookkeeping/internal/core/apperror"
	appctx "bookkeeping/internal/core/context"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/types"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/pkg/logger"
)

var tracer = otel.Tracer("bookkeeping/ledger")

// Amounts are persisted as NUMERIC(14, 2): two decimal places, below 10^12.
const amountScale = 2

var amountLimit = decimal.New(1, 12)

// validAmount reports whether amount is positive and storable without
// rounding or overflow.
func validAmount(amount types.Money) bool {
	return amount.IsPositive() &&
		amount.Equal(amount.Truncate(amountScale)) &&
		amount.LessThan(amountLimit)
}

// Service records customer debits and credits and derives balances.
//
// Entries are never mutated, so posting needs no lock beyond the insert. When
// ctx carries a transaction the insert joins it.
type Service struct {
	repo      Repository
	customers catalogs.CustomerReader
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new accounts ledger service.
func NewService(repo Repository, customers catalogs.CustomerReader, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		customers: customers,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordDebit posts an amount the customer owes.
func (s *Service) RecordDebit(ctx context.Context, customerID id.ID, amount types.Money, description string, ref *entity.Reference) (entity.LedgerEntry, error) {
	return s.record(ctx, entity.EntryDebit, customerID, amount, description, ref)
}

// RecordCredit posts a payment, discount or return that reduces what the
// customer owes.
func (s *Service) RecordCredit(ctx context.Context, customerID id.ID, amount types.Money, description string, ref *entity.Reference) (entity.LedgerEntry, error) {
	return s.record(ctx, entity.EntryCredit, customerID, amount, description, ref)
}

func (s *Service) record(ctx context.Context, typ entity.EntryType, customerID id.ID, amount types.Money, description string, ref *entity.Reference) (entity.LedgerEntry, error) {
	ctx = appctx.WithOperation(ctx, &appctx.OperationContext{Name: "ledger.Record", Reference: ref.String()})
	ctx, span := tracer.Start(ctx, "ledger.Record",
		trace.WithAttributes(
			attribute.String("ledger.customer_id", customerID.String()),
			attribute.String("ledger.type", string(typ)),
			attribute.String("ledger.amount", amount.String()),
		))
	defer span.End()

	// amount is checked before anything is looked up
	if !validAmount(amount) {
		return entity.LedgerEntry{}, apperror.NewInvalidAmount(amount.String())
	}
	if err := ref.Validate(); err != nil {
		return entity.LedgerEntry{}, apperror.NewValidation(err.Error())
	}
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		return entity.LedgerEntry{}, err
	}

	e := entity.LedgerEntry{
		ID:          id.New(),
		CustomerID:  customerID,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Reference:   ref,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.InsertEntry(ctx, e); err != nil {
		span.RecordError(err)
		return entity.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	logger.Info(ctx, "ledger entry recorded",
		"entry_id", e.ID,
		"customer_id", customerID,
		"type", typ,
		"amount", amount.String(),
	)
	return e, nil
}

// Balance returns Σdebit − Σcredit for a customer. Positive means the
// customer owes money, negative means the customer holds a credit.
func (s *Service) Balance(ctx context.Context, customerID id.ID) (types.Money, error) {
	balance, err := s.repo.GetCustomerBalance(ctx, customerID)
	if err != nil {
		return types.Zero(), fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Entries returns the customer's entries newest first, optionally limited to
// an inclusive date range.
func (s *Service) Entries(ctx context.Context, customerID id.ID, from, to *time.Time) ([]entity.LedgerEntry, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperror.NewValidation("date range end is before its start")
	}
	entries, err := s.repo.GetEntries(ctx, customerID, EntryFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	return entries, nil
}

// EntriesWithRunningBalance returns all entries newest first, each with the
// balance as of and including it. The first element carries the final balance.
func (s *Service) EntriesWithRunningBalance(ctx context.Context, customerID id.ID) ([]entity.EntryWithBalance, error) {
	entries, err := s.Entries(ctx, customerID, nil, nil)
	if err != nil {
		return nil, err
	}

	out := make([]entity.EntryWithBalance, len(entries))
	balance := types.Zero()
	for i := len(entries) - 1; i >= 0; i-- {
		balance = balance.Add(entries[i].Signed())
		out[i] = entity.EntryWithBalance{Entry: entries[i], Balance: balance}
	}
	return out, nil
}

// Outstanding is a customer with a non-zero balance.
type Outstanding struct {
	Customer catalogs.Customer `json:"customer"`
	Balance  types.Money       `json:"balance"`
}

// CustomersWithOutstandingBalance lists customers whose balance is not zero,
// in either direction.
func (s *Service) CustomersWithOutstandingBalance(ctx context.Context) ([]Outstanding, error) {
	balances, err := s.repo.GetNonZeroBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	out := make([]Outstanding, 0, len(balances))
	for _, b := range balances {
		c, err := s.customers.GetCustomer(ctx, b.CustomerID)
		if err != nil {
			return nil, err
		}
		out = append(out, Outstanding{Customer: c, Balance: b.Balance})
	}
	return out, nil
}

// TotalOutstanding returns the net receivable across all customers.
func (s *Service) TotalOutstanding(ctx context.Context) (types.Money, error) {
	total, err := s.repo.GetTotalBalance(ctx)
	if err != nil {
		return types.Zero(), fmt.Errorf("get total balance: %w", err)
	}
	return total, nil
}
