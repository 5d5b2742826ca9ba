package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"payment-service/internal/domain"
)

// PostgresCatalogRepository reads the CMS-owned magazines table. The CRUD
// side of the catalog lives in the CMS application; this service only needs
// the price for order validation and the sales counter.
type PostgresCatalogRepository struct {
	db *sqlx.DB
}

func NewPostgresCatalogRepository(db *sqlx.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

func (r *PostgresCatalogRepository) GetItem(ctx context.Context, itemID int64) (domain.MagazineItem, error) {
	var m domain.MagazineItem
	const query = `SELECT id, title, price, currency, sales_count FROM magazines WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MagazineItem{}, domain.ErrItemNotFound
		}
		return domain.MagazineItem{}, fmt.Errorf("failed to load magazine %d: %w", itemID, err)
	}
	return m, nil
}

func (r *PostgresCatalogRepository) IncrementSales(ctx context.Context, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `UPDATE magazines SET sales_count = sales_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, itemID); err != nil {
		return fmt.Errorf("failed to increment sales count for magazine %d: %w", itemID, err)
	}
	return nil
}
