package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rivamart/storefront/internal/domain/settings"
)

const getSettingSQL = `SELECT value FROM site_settings WHERE key = $1`

const shippingSettingKey = "shipping"

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Repository backed by the
// site_settings JSONB table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Shipping returns the stored shipping configuration, or the fixed defaults
// when no shipping entry exists.
func (r *SettingsRepository) Shipping(ctx context.Context) (settings.Shipping, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, getSettingSQL, shippingSettingKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settings.DefaultShipping(), nil
		}
		return settings.Shipping{}, fmt.Errorf("loading shipping settings: %w", err)
	}

	var s settings.Shipping
	if err := json.Unmarshal(raw, &s); err != nil {
		return settings.Shipping{}, fmt.Errorf("decoding shipping settings: %w", err)
	}
	return s, nil
}
