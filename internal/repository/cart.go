package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rivamart/storefront/internal/domain/cart"
)

// cartTTL expires abandoned carts; every save refreshes it.
const cartTTL = 30 * 24 * time.Hour

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository on Redis. One key per user holds
// the JSON-encoded line items; checkout consumes the key.
type CartRepository struct {
	rdb *redis.Client
}

// NewCartRepository returns a CartRepository using the given Redis client.
func NewCartRepository(rdb *redis.Client) *CartRepository {
	return &CartRepository{rdb: rdb}
}

func cartKey(userID string) string {
	return "cart:" + userID
}

// Get returns the user's cart, empty when none exists.
func (r *CartRepository) Get(ctx context.Context, userID string) ([]cart.Item, error) {
	raw, err := r.rdb.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []cart.Item{}, nil
		}
		return nil, fmt.Errorf("loading cart for user %q: %w", userID, err)
	}

	var items []cart.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding cart for user %q: %w", userID, err)
	}
	return items, nil
}

// Save replaces the user's cart and refreshes its TTL.
func (r *CartRepository) Save(ctx context.Context, userID string, items []cart.Item) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding cart for user %q: %w", userID, err)
	}
	if err := r.rdb.Set(ctx, cartKey(userID), raw, cartTTL).Err(); err != nil {
		return fmt.Errorf("saving cart for user %q: %w", userID, err)
	}
	return nil
}

// Clear deletes the user's cart. Deleting an absent cart is not an error.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}
