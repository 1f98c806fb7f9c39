package products

import (
	"context"
	"database/sql"
	"errors"

	"github.com/viniciusfon/order-saga-demo/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyProcessed  = errors.New("event already processed")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock
		FROM products.products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Price, &product.Stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM products.products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Price, &product.Stock); err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

func (r *Repository) Create(ctx context.Context, product *domain.Product) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO products.products (name, price, stock)
		VALUES ($1, $2, $3)
		RETURNING id
	`, product.Name, product.Price, product.Stock).Scan(&product.ID)
}

// ReduceStock performs the whole reservation as one transaction: record the
// event id (duplicate delivery -> ErrAlreadyProcessed, no decrement),
// conditionally decrement stock (never below zero, even with concurrent
// consumers), run publish, then commit. A publish failure rolls everything
// back so a redelivery retries the full step.
func (r *Repository) ReduceStock(ctx context.Context, eventID string, productID int64, quantity int, publish func() error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO products.processed_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrAlreadyProcessed
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE products.products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrInsufficientStock
	}

	if publish != nil {
		if err := publish(); err != nil {
			return err
		}
	}

	return tx.Commit()
}
