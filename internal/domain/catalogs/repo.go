package catalogs

import (
	"context"

	"bookkeeping/internal/core/id"
)

// ProductReader resolves products. GetProduct returns an apperror NOT_FOUND
// when the product does not exist.
type ProductReader interface {
	GetProduct(ctx context.Context, productID id.ID) (Product, error)
}

// BranchReader resolves branches.
type BranchReader interface {
	GetBranch(ctx context.Context, branchID id.ID) (Branch, error)
}

// CustomerReader resolves customers.
type CustomerReader interface {
	GetCustomer(ctx context.Context, customerID id.ID) (Customer, error)
}
