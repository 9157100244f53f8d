package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func seedProduct(t *testing.T, s *MemStore, name string, price float64, stock int, category string) Product {
	t.Helper()

	np := NewProduct{Name: name, Price: price, Stock: stock}
	if category != "" {
		np.Category = &category
	}

	p, err := s.CreateProduct(context.Background(), np)
	require.NoError(t, err)
	return p
}

func TestMemStore_CreateAndGetProduct(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, NewProduct{
		Name:        "Laptop",
		Description: strPtr("Thin and light"),
		Price:       999.99,
		Stock:       5,
		Category:    strPtr("Electronics"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	require.NotNil(t, p.CategoryName)
	assert.Equal(t, "Electronics", *p.CategoryName)
	require.NotNil(t, p.CategoryID)

	got, found, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, p, got)

	_, found, err = s.GetProduct(ctx, "p_missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemStore_ListProducts_Filters(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	laptop := seedProduct(t, s, "Laptop", 999, 5, "Electronics")
	phone := seedProduct(t, s, "Phone", 499, 10, "Electronics")
	novel := seedProduct(t, s, "Novel", 12, 3, "Books")
	_, err := s.CreateProduct(ctx, NewProduct{
		Name:        "Mystery box",
		Description: strPtr("A phone-sized surprise"),
		Price:       20,
	})
	require.NoError(t, err)

	all, err := s.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, laptop.ID, all[0].ID, "insertion order preserved")

	// category filter is a case-insensitive substring match
	got, err := s.ListProducts(ctx, ProductFilter{Category: "electro"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, laptop.ID, got[0].ID)
	assert.Equal(t, phone.ID, got[1].ID)

	// search matches name or description
	got, err = s.ListProducts(ctx, ProductFilter{Search: "PHONE"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// filters compose with AND
	got, err = s.ListProducts(ctx, ProductFilter{Category: "books", Search: "nov"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, novel.ID, got[0].ID)

	got, err = s.ListProducts(ctx, ProductFilter{Category: "books", Search: "phone"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemStore_UpdateProduct_Partial(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	p := seedProduct(t, s, "Laptop", 999, 5, "Electronics")

	got, found, err := s.UpdateProduct(ctx, p.ID, ProductPatch{Stock: intPtr(42)})
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, 42, got.Stock)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Price, got.Price)
	assert.Equal(t, p.Description, got.Description)
	assert.Equal(t, p.CategoryID, got.CategoryID)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.False(t, got.UpdatedAt.Before(p.UpdatedAt))

	_, found, err = s.UpdateProduct(ctx, "p_missing", ProductPatch{Stock: intPtr(1)})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemStore_UpdateProduct_CategoryFindOrCreate(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	p1 := seedProduct(t, s, "Laptop", 999, 5, "Electronics")
	p2 := seedProduct(t, s, "Novel", 12, 3, "Books")

	got, found, err := s.UpdateProduct(ctx, p2.ID, ProductPatch{Category: strPtr("Electronics")})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, *p1.CategoryID, *got.CategoryID, "existing category reused")

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}

func TestMemStore_DeleteProduct(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	p := seedProduct(t, s, "Laptop", 999, 5, "")

	found, err := s.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemStore_CreateCategory_Conflict(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	c, err := s.CreateCategory(ctx, "Books")
	require.NoError(t, err)

	dup, err := s.CreateCategory(ctx, "Books")
	require.ErrorIs(t, err, ErrCategoryExists)
	assert.Equal(t, c, dup, "existing record returned on conflict")

	// uniqueness is case-sensitive
	lower, err := s.CreateCategory(ctx, "books")
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, lower.ID)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)
}

func TestMemStore_CategorySummary(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	seedProduct(t, s, "Laptop", 999, 5, "Electronics")
	seedProduct(t, s, "Phone", 499, 10, "Electronics")
	seedProduct(t, s, "Novel", 12, 3, "Books")
	seedProduct(t, s, "Loose screw", 0.5, 1000, "")

	// category with no products must not show up
	_, err := s.CreateCategory(ctx, "Empty shelf")
	require.NoError(t, err)

	summary, err := s.CategorySummary(ctx)
	require.NoError(t, err)

	require.Len(t, summary, 2)
	assert.Equal(t, CategoryCount{CategoryName: "Electronics", ProductCount: 2}, summary[0])
	assert.Equal(t, CategoryCount{CategoryName: "Books", ProductCount: 1}, summary[1])

	total := 0
	for _, cc := range summary {
		total += cc.ProductCount
	}
	assert.Equal(t, 3, total, "counts sum to number of categorized products")
}

func TestMemStore_AveragePriceByCategory(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	seedProduct(t, s, "Laptop", 10, 1, "Electronics")
	seedProduct(t, s, "Phone", 20, 1, "Electronics")
	seedProduct(t, s, "Sticker", 0.1, 1, "Misc")
	seedProduct(t, s, "Magnet", 0.25, 1, "Misc")
	seedProduct(t, s, "Uncategorized", 5, 1, "")

	avgs, err := s.AveragePriceByCategory(ctx)
	require.NoError(t, err)

	require.Len(t, avgs, 2)
	assert.Equal(t, CategoryAverage{CategoryName: "Electronics", AveragePrice: 15.0}, avgs[0])
	assert.Equal(t, CategoryAverage{CategoryName: "Misc", AveragePrice: 0.18}, avgs[1])
}

func TestMemStore_HighStock(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	seedProduct(t, s, "Low", 1, 50, "")
	mid := seedProduct(t, s, "Mid", 1, 150, "")
	top := seedProduct(t, s, "Top", 1, 500, "")
	seedProduct(t, s, "Edge", 1, 100, "")

	got, err := s.HighStock(ctx, 100)
	require.NoError(t, err)

	require.Len(t, got, 2, "strictly greater than the threshold")
	assert.Equal(t, top.ID, got[0].ID)
	assert.Equal(t, mid.ID, got[1].ID)
}

func TestMemStore_ConcurrentCreates_UniqueIDs(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	const workers = 20
	const perWorker = 10

	ids := make(chan string, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				p, err := s.CreateProduct(ctx, NewProduct{Name: "Widget", Price: 1})
				assert.NoError(t, err)
				ids <- p.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}
