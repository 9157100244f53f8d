package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore keeps everything in process memory. Products stay in insertion
// order; all access goes through the mutex.
type MemStore struct {
	mu         sync.RWMutex
	products   []Product
	categories []Category
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := Product{
		ID:          newProductID(),
		Name:        np.Name,
		Description: np.Description,
		Price:       np.Price,
		Stock:       np.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if np.Category != nil {
		c := s.findOrCreateCategory(*np.Category)
		p.CategoryID = &c.ID
		p.CategoryName = &c.Name
	}

	s.products = append(s.products, p)
	return p, nil
}

func (s *MemStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.ID == id {
			return p, true, nil
		}
	}
	return Product{}, false, nil
}

func (s *MemStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if matchesFilter(p, f) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchesFilter(p Product, f ProductFilter) bool {
	if f.Category != "" {
		if p.CategoryName == nil {
			return false
		}
		if !containsFold(*p.CategoryName, f.Category) {
			return false
		}
	}

	if f.Search != "" {
		inName := containsFold(p.Name, f.Search)
		inDesc := p.Description != nil && containsFold(*p.Description, f.Search)
		if !inName && !inDesc {
			return false
		}
	}

	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *MemStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.products {
		if s.products[i].ID != id {
			continue
		}

		p := &s.products[i]
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = patch.Description
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if patch.Category != nil {
			c := s.findOrCreateCategory(*patch.Category)
			p.CategoryID = &c.ID
			p.CategoryName = &c.Name
		}
		p.UpdatedAt = time.Now().UTC()

		return *p, true, nil
	}

	return Product{}, false, nil
}

func (s *MemStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// findOrCreateCategory assumes the caller holds the write lock.
// Name matching is case-sensitive.
func (s *MemStore) findOrCreateCategory(name string) Category {
	for _, c := range s.categories {
		if c.Name == name {
			return c
		}
	}

	c := Category{ID: newCategoryID(), Name: name}
	s.categories = append(s.categories, c)
	return c
}

func (s *MemStore) CreateCategory(ctx context.Context, name string) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.Name == name {
			return c, ErrCategoryExists
		}
	}

	c := Category{ID: newCategoryID(), Name: name}
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *MemStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *MemStore) CategorySummary(ctx context.Context) ([]CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, p := range s.products {
		if p.CategoryName != nil {
			counts[*p.CategoryName]++
		}
	}

	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{CategoryName: name, ProductCount: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCount != out[j].ProductCount {
			return out[i].ProductCount > out[j].ProductCount
		}
		return out[i].CategoryName < out[j].CategoryName
	})
	return out, nil
}

func (s *MemStore) AveragePriceByCategory(ctx context.Context) ([]CategoryAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := map[string]decimal.Decimal{}
	counts := map[string]int64{}
	for _, p := range s.products {
		if p.CategoryName == nil {
			continue
		}
		name := *p.CategoryName
		sums[name] = sums[name].Add(decimal.NewFromFloat(p.Price))
		counts[name]++
	}

	out := make([]CategoryAverage, 0, len(sums))
	for name, sum := range sums {
		avg := sum.Div(decimal.NewFromInt(counts[name]))
		out = append(out, CategoryAverage{
			CategoryName: name,
			AveragePrice: avg.Round(2).InexactFloat64(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

func (s *MemStore) HighStock(ctx context.Context, minStock int) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Stock > minStock {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock > out[j].Stock })
	return out, nil
}
