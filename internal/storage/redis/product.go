// Package redis provides a read-through cache in front of the catalog.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

const keyPrefix = "storefront:product:"

var _ product.Repository = (*ProductCache)(nil)

// ProductCache caches single-product lookups. Listing and batch reads go
// straight to the wrapped repository, so checkout always sees stored data.
// Writes invalidate the cached entry after they succeed.
type ProductCache struct {
	product.Repository

	rdb redis.UniversalClient
	ttl time.Duration
}

// NewProductCache wraps next with a cache stored in rdb.
func NewProductCache(next product.Repository, rdb redis.UniversalClient, ttl time.Duration) *ProductCache {
	return &ProductCache{Repository: next, rdb: rdb, ttl: ttl}
}

// GetByID serves from cache when possible. A cache failure is logged and
// the lookup falls back to the repository.
func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	lg := zctx.From(ctx)
	key := keyPrefix + id

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		p, decErr := decodeProduct(data)
		if decErr == nil {
			return p, nil
		}
		lg.Warn("Drop corrupt cache entry", zap.String("key", key), zap.Error(decErr))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := c.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encodeProduct(p), c.ttl).Err(); err != nil {
		lg.Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
	return p, nil
}

func (c *ProductCache) Update(ctx context.Context, p *product.Product) error {
	if err := c.Repository.Update(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, p.ID)
	return nil
}

func (c *ProductCache) Delete(ctx context.Context, id string) error {
	if err := c.Repository.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *ProductCache) AdjustStock(ctx context.Context, id string, delta int) error {
	if err := c.Repository.AdjustStock(ctx, id, delta); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Ping reports whether redis is reachable.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *ProductCache) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}

func encodeProduct(p *product.Product) []byte {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("is_available")
	e.Bool(p.IsAvailable)
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updated_at")
	e.Str(p.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(data []byte) (*product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "category":
			p.Category, err = d.Str()
		case "quantity":
			p.Quantity, err = d.Int()
		case "is_available":
			p.IsAvailable, err = d.Bool()
		case "created_at":
			p.CreatedAt, err = decodeTime(d)
		case "updated_at":
			p.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached product")
	}
	return &p, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
