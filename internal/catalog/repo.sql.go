package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateItem(ctx context.Context, item *Item) error {
	var avg string
	err := r.pool.QueryRow(ctx, `INSERT INTO items (name, unit, category)
VALUES ($1,$2,$3) RETURNING id, avg_cost::text, sale_count, created_at, updated_at`,
		item.Name, item.Unit, item.Category).
		Scan(&item.ID, &avg, &item.SaleCount, &item.CreatedAt, &item.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateItemName
	}
	if err != nil {
		return err
	}
	item.AverageCost, err = decimal.NewFromString(avg)
	return err
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	var item Item
	var avg string
	err := r.pool.QueryRow(ctx, `SELECT id, name, unit, category, avg_cost::text, last_sale_at, sale_count, created_at, updated_at
FROM items WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.Unit, &item.Category, &avg,
			&item.LastSaleAt, &item.SaleCount, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	item.AverageCost, err = decimal.NewFromString(avg)
	return item, err
}

func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET name=$1, unit=$2, category=$3, updated_at=now() WHERE id=$4`,
		item.Name, item.Unit, item.Category, item.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateItemName
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrItemReferenced
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repository) ListItems(ctx context.Context, limit, offset int) ([]Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM items`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit, category, avg_cost::text, last_sale_at, sale_count, created_at, updated_at
FROM items ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		var avg string
		if err := rows.Scan(&item.ID, &item.Name, &item.Unit, &item.Category, &avg,
			&item.LastSaleAt, &item.SaleCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if item.AverageCost, err = decimal.NewFromString(avg); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *Repository) CreateCustomer(ctx context.Context, customer *Customer) error {
	return r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, email)
VALUES ($1,$2,$3) RETURNING id, created_at, updated_at`,
		customer.Name, customer.Phone, customer.Email).
		Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
}

func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var customer Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, email, created_at, updated_at
FROM customers WHERE id=$1`, id).
		Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.CreatedAt, &customer.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, err
}

func (r *Repository) UpdateCustomer(ctx context.Context, customer Customer) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET name=$1, phone=$2, email=$3, updated_at=now() WHERE id=$4`,
		customer.Name, customer.Phone, customer.Email, customer.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *Repository) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *Repository) ListCustomers(ctx context.Context, limit, offset int) ([]Customer, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, email, created_at, updated_at
FROM customers ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		var customer Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email,
			&customer.CreatedAt, &customer.UpdatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, customer)
	}
	return customers, total, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
