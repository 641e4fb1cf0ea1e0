package entity

import (
	"time"

	"bookkeeping/internal/core/id"
)

// MovementType defines the direction of a stock movement.
type MovementType string

const (
	MovementIssue       MovementType = "ISSUE"
	MovementReturn      MovementType = "RETURN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIssue, MovementReturn, MovementTransferOut, MovementTransferIn:
		return true
	}
	return false
}

// Outgoing reports whether the movement decreases stock.
func (t MovementType) Outgoing() bool {
	return t == MovementIssue || t == MovementTransferOut
}

// InventoryMovement is an immutable record of a stock change.
// Movements are never updated or deleted.
type InventoryMovement struct {
	ID        id.ID        `json:"id"`
	ProductID id.ID        `json:"productId"`
	BranchID  id.ID        `json:"branchId"`
	Type      MovementType `json:"type"`
	Quantity  int64        `json:"qtyUnits"`
	Note      string       `json:"note"`
	Reference *Reference   `json:"reference,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NewInventoryMovement creates a movement with a fresh id.
func NewInventoryMovement(productID, branchID id.ID, typ MovementType, qty int64, note string, ref *Reference, at time.Time) InventoryMovement {
	return InventoryMovement{
		ID:        id.New(),
		ProductID: productID,
		BranchID:  branchID,
		Type:      typ,
		Quantity:  qty,
		Note:      note,
		Reference: ref,
		CreatedAt: at,
	}
}

// Delta returns quantity with sign based on movement type.
// Issue and transfer-out are negative.
func (m InventoryMovement) Delta() int64 {
	if m.Type.Outgoing() {
		return -m.Quantity
	}
	return m.Quantity
}

// StockBalance is the cached current stock of a product in a branch.
// It is only ever written together with the movement that changes it.
type StockBalance struct {
	ProductID    id.ID     `db:"product_id" json:"productId"`
	BranchID     id.ID     `db:"branch_id" json:"branchId"`
	CurrentStock int64     `db:"current_stock" json:"currentStock"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ReplayStock folds movements in creation order into a stock value.
func ReplayStock(movements []InventoryMovement) int64 {
	var stock int64
	for _, m := range movements {
		stock += m.Delta()
	}
	return stock
}
