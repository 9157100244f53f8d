package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrCategoryExists  = errors.New("category already exists")
)

type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	Price        float64   `json:"price"`
	Stock        int       `json:"stock"`
	CategoryID   *string   `json:"category_id"`
	CategoryName *string   `json:"category_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewProduct carries the validated fields of a create request.
// Category, when set, is a category name resolved via find-or-create.
type NewProduct struct {
	Name        string
	Description *string
	Price       float64
	Stock       int
	Category    *string
}

// ProductPatch is a partial update: nil means "leave unchanged".
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Stock       *int
	Category    *string
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Stock == nil && p.Category == nil
}

// ProductFilter restricts a listing. Both terms are case-insensitive
// substring matches; Category applies to the category name, Search to the
// product name or description. Empty means no restriction.
type ProductFilter struct {
	Category string
	Search   string
}

type CategoryCount struct {
	CategoryName string `json:"category_name"`
	ProductCount int    `json:"product_count"`
}

type CategoryAverage struct {
	CategoryName string  `json:"category_name"`
	AveragePrice float64 `json:"average_price"`
}

type Store interface {
	CreateProduct(ctx context.Context, np NewProduct) (Product, error)
	GetProduct(ctx context.Context, id string) (Product, bool, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error)
	DeleteProduct(ctx context.Context, id string) (bool, error)

	// CreateCategory fails with ErrCategoryExists when the name is taken;
	// in that case the returned Category is the existing record.
	CreateCategory(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CategorySummary(ctx context.Context) ([]CategoryCount, error)
	AveragePriceByCategory(ctx context.Context) ([]CategoryAverage, error)
	HighStock(ctx context.Context, minStock int) ([]Product, error)

	Ping(ctx context.Context) error
}

func newProductID() string  { return "p_" + uuid.NewString() }
func newCategoryID() string { return "c_" + uuid.NewString() }

// roundAvg rounds a price average to two decimal places, half away from zero.
func roundAvg(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
