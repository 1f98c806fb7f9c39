package orders

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/viniciusfon/order-saga-demo/internal/domain"
	"github.com/viniciusfon/order-saga-demo/internal/messaging"
	"github.com/viniciusfon/order-saga-demo/internal/outbox"
)

type Repository struct {
	db     *sql.DB
	outbox *outbox.Repository
}

func NewRepository(db *sql.DB, outboxRepo *outbox.Repository) *Repository {
	return &Repository{db: db, outbox: outboxRepo}
}

// Create persists the order and its order.created outbox row in one
// transaction, so a crash after commit can never lose the event.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders.orders (product_id, product_name, quantity, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, order.ProductID, order.ProductName, order.Quantity, order.TotalAmount, order.Status, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return err
	}

	event := domain.OrderCreatedEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.ID,
		ProductID:   order.ProductID,
		Quantity:    order.Quantity,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	}

	payload, err := messaging.Encode(&event)
	if err != nil {
		return err
	}

	if err := r.outbox.SaveTx(ctx, tx, messaging.RoutingKeyOrderCreated, payload); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, quantity, total_amount, status, created_at
		FROM orders.orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.ProductID, &order.ProductName, &order.Quantity, &order.TotalAmount, &order.Status, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, total_amount, status, created_at
		FROM orders.orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.ProductID, &order.ProductName, &order.Quantity, &order.TotalAmount, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// Cancel moves a pending order to Cancelled. Unknown ids and orders already
// in a terminal state report false with no error; the saga treats both as a
// completed no-op.
func (r *Repository) Cancel(ctx context.Context, id int64) (bool, error) {
	return r.setStatus(ctx, id, domain.OrderStatusCancelled)
}

// Complete moves a pending order to Completed, closing the saga's happy path.
func (r *Repository) Complete(ctx context.Context, id int64) (bool, error) {
	return r.setStatus(ctx, id, domain.OrderStatusCompleted)
}

func (r *Repository) setStatus(ctx context.Context, id int64, status domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders.orders SET status = $1
		WHERE id = $2 AND status = $3
	`, status, id, domain.OrderStatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
