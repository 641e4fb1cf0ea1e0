package entity

import (
	"time"

	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/types"
)

// EntryType is the side of a ledger entry.
type EntryType string

const (
	// EntryDebit increases what the customer owes
	EntryDebit EntryType = "DEBIT"
	// EntryCredit decreases it (payments, discounts, returns)
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is an immutable debit or credit against a customer account.
type LedgerEntry struct {
	ID          id.ID       `json:"id"`
	CustomerID  id.ID       `json:"customerId"`
	Type        EntryType   `json:"type"`
	Amount      types.Money `json:"amount"`
	Description string      `json:"description"`
	Reference   *Reference  `json:"reference,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Signed returns the amount as it contributes to the balance.
func (e LedgerEntry) Signed() types.Money {
	if e.Type == EntryCredit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// EntryWithBalance pairs an entry with the running balance including it.
type EntryWithBalance struct {
	Entry   LedgerEntry `json:"entry"`
	Balance types.Money `json:"balance"`
}

// CustomerBalance is a customer's net position.
// Positive means the customer owes money, negative means credit.
type CustomerBalance struct {
	CustomerID id.ID       `db:"customer_id" json:"customerId"`
	Balance    types.Money `db:"balance" json:"balance"`
}
