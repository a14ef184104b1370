package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a SKU does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Product is one catalog row.
type Product struct {
	ID         int64  `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// GetProductBySKU looks up a single product. This is the query the demo
// memoizes through the cache.
func GetProductBySKU(ctx context.Context, db *sql.DB, sku string) (Product, error) {
	var p Product
	err := db.QueryRowContext(ctx,
		`SELECT id, sku, name, price_cents FROM products WHERE sku = ?`, sku,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("failed to query product %q: %w", sku, err)
	}
	return p, nil
}

// Seed inserts n demo products with SKUs sku-0 .. sku-(n-1). Existing rows
// are left alone so reruns against the same database are safe.
func Seed(ctx context.Context, db *sql.DB, n int) error {
	for i := 0; i < n; i++ {
		_, err := db.ExecContext(ctx,
			`INSERT INTO products (sku, name, price_cents)
			 VALUES (?, ?, ?)
			 ON CONFLICT(sku) DO NOTHING`,
			fmt.Sprintf("sku-%d", i),
			fmt.Sprintf("Demo product %d", i),
			int64(100+i*25),
		)
		if err != nil {
			return fmt.Errorf("failed to seed product %d: %w", i, err)
		}
	}
	return nil
}
