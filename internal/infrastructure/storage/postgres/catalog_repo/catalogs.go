package catalog_repo

import (
	"context"

	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/internal/infrastructure/storage/postgres"
)

// ProductRepo implements catalogs.ProductReader.
type ProductRepo struct {
	*BaseCatalogRepo[catalogs.Product]
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{NewBaseCatalogRepo[catalogs.Product](txm, "products", "product")}
}

func (r *ProductRepo) GetProduct(ctx context.Context, productID id.ID) (catalogs.Product, error) {
	return r.GetByID(ctx, productID)
}

// BranchRepo implements catalogs.BranchReader.
type BranchRepo struct {
	*BaseCatalogRepo[catalogs.Branch]
}

// NewBranchRepo creates a new branch repository.
func NewBranchRepo(txm *postgres.TxManager) *BranchRepo {
	return &BranchRepo{NewBaseCatalogRepo[catalogs.Branch](txm, "branches", "branch")}
}

func (r *BranchRepo) GetBranch(ctx context.Context, branchID id.ID) (catalogs.Branch, error) {
	return r.GetByID(ctx, branchID)
}

// CustomerRepo implements catalogs.CustomerReader.
type CustomerRepo struct {
	*BaseCatalogRepo[catalogs.Customer]
}

// NewCustomerRepo creates a new customer repository.
func NewCustomerRepo(txm *postgres.TxManager) *CustomerRepo {
	return &CustomerRepo{NewBaseCatalogRepo[catalogs.Customer](txm, "customers", "customer")}
}

func (r *CustomerRepo) GetCustomer(ctx context.Context, customerID id.ID) (catalogs.Customer, error) {
	return r.GetByID(ctx, customerID)
}

var (
	_ catalogs.ProductReader  = (*ProductRepo)(nil)
	_ catalogs.BranchReader   = (*BranchRepo)(nil)
	_ catalogs.CustomerReader = (*CustomerRepo)(nil)
)
