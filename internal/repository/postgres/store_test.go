package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/search-service/pkg/database"
)

func setupStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewStore(mock), mock
}

func productColumnNames() []string {
	return []string{
		"id", "seller_id", "title", "description", "category_id", "condition",
		"status", "brand", "tags", "price", "views_count", "favorites_count",
		"watches_count", "sales_count", "images_count", "free_shipping",
		"has_returns", "featured", "promoted", "latitude", "longitude",
		"created_at", "updated_at",
		"s_id", "s_display_name", "s_rating", "s_verified",
		"c_id", "c_name", "c_path",
	}
}

func TestCountProducts(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM products`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.CountProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts(t *testing.T) {
	store, mock := setupStore(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	lat, lon := 40.7, -74.0
	sellerRating := 4.5
	verified := true

	rows := pgxmock.NewRows(productColumnNames()).AddRow(
		"prod-1", "seller-1", "Vintage Camera", "Nice camera", ptrStr("cat-1"), ptrStr("used"),
		"active", ptrStr("Leica"), []string{"camera"}, 499.99, int64(100), int64(5),
		int64(8), int64(1), 4, true,
		false, true, false, &lat, &lon,
		now, now,
		ptrStr("seller-1"), ptrStr("camerashop"), &sellerRating, &verified,
		ptrStr("cat-1"), ptrStr("Photography"), ptrStr("electronics/photography"),
	)

	mock.ExpectQuery(`FROM products p`).
		WithArgs(100, 0).
		WillReturnRows(rows)

	records, err := store.ListProducts(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "prod-1", rec.ID)
	assert.Equal(t, "Leica", rec.Brand)
	assert.Equal(t, "used", rec.Condition)
	require.NotNil(t, rec.Seller)
	assert.Equal(t, "camerashop", rec.Seller.Name)
	assert.True(t, rec.Seller.Verified)
	require.NotNil(t, rec.Category)
	assert.Equal(t, "electronics/photography", rec.Category.Path)
	require.NotNil(t, rec.Lat)
	assert.InDelta(t, 40.7, *rec.Lat, 0.0001)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts_NullableJoinsLeaveFieldsEmpty(t *testing.T) {
	store, mock := setupStore(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(productColumnNames()).AddRow(
		"prod-2", "seller-2", "Mystery Box", "No category", nil, nil,
		"active", nil, []string{}, 9.99, int64(0), int64(0),
		int64(0), int64(0), 0, false,
		false, false, false, nil, nil,
		now, now,
		nil, nil, nil, nil,
		nil, nil, nil,
	)

	mock.ExpectQuery(`FROM products p`).
		WithArgs(50, 10).
		WillReturnRows(rows)

	records, err := store.ListProducts(context.Background(), 10, 50)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Empty(t, rec.CategoryID)
	assert.Empty(t, rec.Brand)
	assert.Nil(t, rec.Seller)
	assert.Nil(t, rec.Category)
	assert.Nil(t, rec.Lat)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts_QueryError(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery(`FROM products p`).
		WithArgs(100, 0).
		WillReturnError(errors.New("connection reset"))

	_, err := store.ListProducts(context.Background(), 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list products")
}

func TestListCategories(t *testing.T) {
	store, mock := setupStore(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "parent_id", "name", "path", "level", "product_count", "created_at", "updated_at",
	}).AddRow(
		"cat-1", ptrStr("cat-root"), "Photography", "electronics/photography", 2, int64(57), now, now,
	).AddRow(
		"cat-root", nil, "Electronics", "electronics", 1, int64(900), now, now,
	)

	mock.ExpectQuery(`FROM categories c`).
		WithArgs(100, 0).
		WillReturnRows(rows)

	records, err := store.ListCategories(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "cat-root", records[0].ParentID)
	assert.Equal(t, int64(57), records[0].ProductCount)
	assert.Empty(t, records[1].ParentID, "root categories have no parent")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptrStr(s string) *string { return &s }
