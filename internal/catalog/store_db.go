package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

// PostgresStore is the durable variant. Ids and timestamps are generated in
// the application so both store variants behave the same.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

const productSelect = `
	SELECT p.id, p.name, p.description, p.price, p.stock,
	       p.category_id, c.name AS category_name,
	       p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
`

func scanProduct(row interface{ Scan(dest ...any) error }, p *Product) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.CategoryID, &p.CategoryName,
		&p.CreatedAt, &p.UpdatedAt,
	)
}

func (s *PostgresStore) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
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

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if np.Category != nil {
			c, err := findOrCreateCategory(ctx, tx, *np.Category)
			if err != nil {
				return err
			}
			p.CategoryID = &c.ID
			p.CategoryName = &c.Name
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, name, description, price, stock, category_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, p.Name, p.Description, p.Price, p.Stock, p.CategoryID, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}

		return tx.Commit()
	})

	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id)
		return scanProduct(row, &p)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)

	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf(`c.name ILIKE '%%' || $%d || '%%'`, len(args)))
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(p.name ILIKE '%%' || $%d || '%%' OR p.description ILIKE '%%' || $%d || '%%')`, n, n))
	}

	q := productSelect
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY p.seq ASC"

	var out []Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			var p Product
			if err := scanProduct(rows, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	var (
		p     Product
		found bool
	)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		sets := []string{"updated_at = $1"}
		args := []any{time.Now().UTC()}

		add := func(col string, v any) {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}

		if patch.Name != nil {
			add("name", *patch.Name)
		}
		if patch.Description != nil {
			add("description", *patch.Description)
		}
		if patch.Price != nil {
			add("price", *patch.Price)
		}
		if patch.Stock != nil {
			add("stock", *patch.Stock)
		}
		if patch.Category != nil {
			c, err := findOrCreateCategory(ctx, tx, *patch.Category)
			if err != nil {
				return err
			}
			add("category_id", c.ID)
		}

		args = append(args, id)
		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE products SET %s WHERE id = $%d",
			strings.Join(sets, ", "), len(args)), args...)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return tx.Commit()
		}
		found = true

		row := tx.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id)
		if err := scanProduct(row, &p); err != nil {
			return err
		}
		return tx.Commit()
	})

	if err != nil {
		return Product{}, false, err
	}
	return p, found, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	var found bool

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})

	return found, err
}

// findOrCreateCategory upserts by name and returns the surviving record.
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
func findOrCreateCategory(ctx context.Context, tx *sql.Tx, name string) (Category, error) {
	var c Category
	err := tx.QueryRowContext(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`, newCategoryID(), name).Scan(&c.ID, &c.Name)
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (Category, error) {
	c := Category{ID: newCategoryID(), Name: name}

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (id, name) VALUES ($1, $2)
		`, c.ID, c.Name)

		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}

		row := s.db.QueryRowContext(ctx, `
			SELECT id, name FROM categories WHERE name = $1
		`, name)
		if err := row.Scan(&c.ID, &c.Name); err != nil {
			return err
		}
		return ErrCategoryExists
	})

	if err != nil && !errors.Is(err, ErrCategoryExists) {
		return Category{}, err
	}
	return c, err
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name FROM categories ORDER BY seq ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Category, 0, 8)
		for rows.Next() {
			var c Category
			if err := rows.Scan(&c.ID, &c.Name); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) CategorySummary(ctx context.Context) ([]CategoryCount, error) {
	var out []CategoryCount

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.name, COUNT(p.id) AS product_count
			FROM categories c
			JOIN products p ON p.category_id = c.id
			GROUP BY c.name
			ORDER BY COUNT(p.id) DESC, c.name ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]CategoryCount, 0, 8)
		for rows.Next() {
			var cc CategoryCount
			if err := rows.Scan(&cc.CategoryName, &cc.ProductCount); err != nil {
				return err
			}
			out = append(out, cc)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) AveragePriceByCategory(ctx context.Context) ([]CategoryAverage, error) {
	var out []CategoryAverage

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.name, AVG(p.price) AS average_price
			FROM categories c
			JOIN products p ON p.category_id = c.id
			GROUP BY c.name
			ORDER BY c.name ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]CategoryAverage, 0, 8)
		for rows.Next() {
			var ca CategoryAverage
			if err := rows.Scan(&ca.CategoryName, &ca.AveragePrice); err != nil {
				return err
			}
			ca.AveragePrice = roundAvg(ca.AveragePrice)
			out = append(out, ca)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) HighStock(ctx context.Context, minStock int) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			productSelect+` WHERE p.stock > $1 ORDER BY p.stock DESC, p.seq ASC`, minStock)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			var p Product
			if err := scanProduct(rows, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
