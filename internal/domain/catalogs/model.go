// Package catalogs holds the read-only views of products, branches and
// customers that the bookkeeping core consumes. The core never writes them.
package catalogs

import (
	"bookkeeping/internal/core/id"
)

// Product is the slice of the product catalog the stock ledger needs.
type Product struct {
	ID           id.ID  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	ReorderLevel int64  `db:"reorder_level" json:"reorderLevel"`
}

// Branch is a stock-holding location.
type Branch struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Customer is an account holder in the accounts ledger.
type Customer struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
