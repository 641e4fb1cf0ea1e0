package catalog_repo

import (
	"testing"

	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/catalogs"
)

func TestBaseCatalogRepo_ByIDQuery(t *testing.T) {
	repo := NewProductRepo(nil)
	productID := id.New()

	sql, args, err := repo.byIDQuery(productID).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "SELECT id, name, reorder_level FROM products WHERE id = $1 LIMIT 1"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 1 || args[0] != productID.String() {
		t.Errorf("Args mismatch\nwant: [%v]\ngot:  %v", productID, args)
	}
}

func TestBaseCatalogRepo_UpsertQuery(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (string, []any, error)
		wantSQL string
	}{
		{
			name: "product",
			build: NewProductRepo(nil).
				upsertQuery(catalogs.Product{ID: id.New(), Name: "Gauze", ReorderLevel: 30}).ToSql,
			wantSQL: "INSERT INTO products (id,name,reorder_level) VALUES ($1,$2,$3) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, reorder_level = EXCLUDED.reorder_level",
		},
		{
			name:    "customer",
			build:   NewCustomerRepo(nil).upsertQuery(catalogs.Customer{ID: id.New(), Name: "Nile Pharmacy"}).ToSql,
			wantSQL: "INSERT INTO customers (id,name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := tt.build()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
		})
	}
}
