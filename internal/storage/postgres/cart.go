package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartSQL          = `SELECT updated_at FROM carts WHERE user_id = $1`
	getCartForUpdateSQL = getCartSQL + ` FOR UPDATE`

	getCartItemsSQL = `SELECT id, product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY position`

	upsertCartSQL = `INSERT INTO carts (user_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE user_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (id, user_id, product_id, quantity, position)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	conn
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{conn{pool: pool}}
}

// Get returns the user's cart with its lines in insertion order.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.get(ctx, getCartSQL, userID)
}

// GetForUpdate is Get holding a lock on the cart row.
func (r *CartRepository) GetForUpdate(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.get(ctx, getCartForUpdateSQL, userID)
}

func (r *CartRepository) get(ctx context.Context, sql, userID string) (*cart.Cart, error) {
	c := cart.Cart{UserID: userID}
	if err := r.q(ctx).QueryRow(ctx, sql, userID).Scan(&c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of %q", userID)
	}

	rows, err := r.q(ctx).Query(ctx, getCartItemsSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get cart items of %q", userID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Quantity)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get cart items of %q", userID)
	}
	c.Items = items
	return &c, nil
}

// Save replaces the cart and all of its lines in one batch.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	b := &pgx.Batch{}
	b.Queue(upsertCartSQL, c.UserID, c.UpdatedAt)
	b.Queue(deleteCartItemsSQL, c.UserID)
	for i, it := range c.Items {
		b.Queue(insertCartItemSQL, it.ID, c.UserID, it.ProductID, it.Quantity, i)
	}

	br := r.q(ctx).SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "save cart of %q", c.UserID)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrapf(err, "save cart of %q", c.UserID)
	}
	return nil
}
