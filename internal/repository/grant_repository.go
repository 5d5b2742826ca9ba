package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

type PostgresGrantRepository struct {
	db *sqlx.DB
}

func NewPostgresGrantRepository(db *sqlx.DB) *PostgresGrantRepository {
	return &PostgresGrantRepository{db: db}
}

// Create inserts an active grant for (buyer, item). The partial unique index
// on active grants makes a second insert a no-op; the boolean reports whether
// a new grant was actually created.
func (r *PostgresGrantRepository) Create(ctx context.Context, buyerID string, itemID int64, purchaseID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `
        INSERT INTO access_grants (buyer_id, item_id, purchase_id, active)
        VALUES ($1, $2, $3, true)
        ON CONFLICT (buyer_id, item_id) WHERE active DO NOTHING;
    `
	res, err := r.db.ExecContext(ctx, query, buyerID, itemID, purchaseID)
	if err != nil {
		return false, fmt.Errorf("failed to create access grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		log.WithFields(log.Fields{
			"buyer_id":    buyerID,
			"item_id":     itemID,
			"purchase_id": purchaseID,
		}).Info("Access grant created")
	}
	return n == 1, nil
}

// DeactivateByPurchase revokes the grant issued for a purchase. Grants are
// never deleted, only flipped inactive.
func (r *PostgresGrantRepository) DeactivateByPurchase(ctx context.Context, purchaseID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `UPDATE access_grants SET active = false WHERE purchase_id = $1 AND active`
	if _, err := r.db.ExecContext(ctx, query, purchaseID); err != nil {
		return fmt.Errorf("failed to deactivate grant for purchase %s: %w", purchaseID, err)
	}
	return nil
}

// FindActive returns the active grant for (buyer, item), if any.
func (r *PostgresGrantRepository) FindActive(ctx context.Context, buyerID string, itemID int64) (domain.AccessGrant, bool, error) {
	var g domain.AccessGrant
	const query = `SELECT * FROM access_grants WHERE buyer_id = $1 AND item_id = $2 AND active`
	if err := r.db.GetContext(ctx, &g, query, buyerID, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccessGrant{}, false, nil
		}
		return domain.AccessGrant{}, false, fmt.Errorf("failed to look up access grant: %w", err)
	}
	return g, true, nil
}
