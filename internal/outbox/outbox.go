package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event is one pending publication, written in the same transaction as the
// state change that produced it.
type Event struct {
	ID         int64
	RoutingKey string
	Payload    []byte
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveTx enqueues an event inside the caller's transaction so the row commits
// or rolls back together with the business write.
func (r *Repository) SaveTx(ctx context.Context, tx *sql.Tx, routingKey string, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders.outbox (routing_key, payload, published, created_at)
		VALUES ($1, $2, FALSE, $3)
	`, routingKey, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save outbox event: %w", err)
	}
	return nil
}

func (r *Repository) FetchUnpublished(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, routing_key, payload
		FROM orders.outbox
		WHERE NOT published
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RoutingKey, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders.outbox SET published = TRUE, published_at = NOW()
		WHERE id = $1
	`, id)
	return err
}
