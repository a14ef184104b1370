package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeedAndLookup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, db, 5))

	p, err := GetProductBySKU(ctx, db, "sku-3")
	require.NoError(t, err)
	assert.Equal(t, "sku-3", p.SKU)
	assert.Equal(t, "Demo product 3", p.Name)
	assert.Equal(t, int64(175), p.PriceCents)
	assert.Positive(t, p.ID)
}

func TestSeedIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, db, 3))
	require.NoError(t, Seed(ctx, db, 3))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestLookupMissingSKU(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetProductBySKU(context.Background(), db, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
