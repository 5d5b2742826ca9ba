package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

type PostgresPurchaseRepository struct {
	db *sqlx.DB
}

func NewPostgresPurchaseRepository(db *sqlx.DB) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{db: db}
}

func (r *PostgresPurchaseRepository) Create(ctx context.Context, p domain.PurchaseOrder) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `
        INSERT INTO purchase_orders
            (id, gateway_order_id, buyer_id, buyer_email, item_id, amount, currency, status, guest)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.GatewayOrderID, p.BuyerID, p.BuyerEmail, p.ItemID, p.Amount, p.Currency, p.Status, p.Guest,
	); err != nil {
		return fmt.Errorf("failed to insert purchase order: %w", err)
	}
	return nil
}

func (r *PostgresPurchaseRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PurchaseOrder, error) {
	var p domain.PurchaseOrder
	const query = `SELECT * FROM purchase_orders WHERE gateway_order_id = $1`
	if err := r.db.GetContext(ctx, &p, query, gatewayOrderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PurchaseOrder{}, domain.ErrOrderNotFound
		}
		return domain.PurchaseOrder{}, fmt.Errorf("failed to load purchase order %s: %w", gatewayOrderID, err)
	}
	return p, nil
}

func (r *PostgresPurchaseRepository) GetByID(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	var p domain.PurchaseOrder
	const query = `SELECT * FROM purchase_orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PurchaseOrder{}, domain.ErrOrderNotFound
		}
		return domain.PurchaseOrder{}, fmt.Errorf("failed to load purchase %s: %w", id, err)
	}
	return p, nil
}

// transition is the single conditional-update primitive every state change
// goes through. The row moves to `to` only if its current status is one of
// `from`; the boolean reports whether THIS call changed the row. Both
// verification channels and the refund path rely on exactly-one-winner
// semantics of this update under concurrent delivery.
func (r *PostgresPurchaseRepository) transition(ctx context.Context, where string, key interface{}, from []domain.PurchaseStatus, to domain.PurchaseStatus, extra string, args ...interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	query := fmt.Sprintf(`
        UPDATE purchase_orders
        SET status = $1, updated_at = now()%s
        WHERE %s = $2 AND status = ANY($3)
    `, extra, where)

	allArgs := append([]interface{}{string(to), key, pq.Array(states)}, args...)
	res, err := r.db.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return false, fmt.Errorf("failed to transition purchase to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// MarkCompleted promotes a pending (or previously failed) order to completed,
// recording the gateway payment id and the verified signature for audit.
// Returns false when another channel already completed the order.
func (r *PostgresPurchaseRepository) MarkCompleted(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	won, err := r.transition(ctx, "gateway_order_id", gatewayOrderID,
		[]domain.PurchaseStatus{domain.StatusPending, domain.StatusFailed},
		domain.StatusCompleted,
		", gateway_payment_id = $4, signature = $5", paymentID, signature)
	if err == nil && won {
		log.WithFields(log.Fields{
			"gateway_order_id":   gatewayOrderID,
			"gateway_payment_id": paymentID,
		}).Info("Purchase order completed")
	}
	return won, err
}

// MarkFailed records a failed verification. Only pending orders move to
// failed; a completed order is never regressed.
func (r *PostgresPurchaseRepository) MarkFailed(ctx context.Context, gatewayOrderID string) (bool, error) {
	return r.transition(ctx, "gateway_order_id", gatewayOrderID,
		[]domain.PurchaseStatus{domain.StatusPending},
		domain.StatusFailed, "")
}

// BeginRefund claims the purchase for refunding. Exactly one concurrent
// refund attempt wins the completed -> refund_pending transition.
func (r *PostgresPurchaseRepository) BeginRefund(ctx context.Context, purchaseID string) (bool, error) {
	return r.transition(ctx, "id", purchaseID,
		[]domain.PurchaseStatus{domain.StatusCompleted},
		domain.StatusRefundPending, "")
}

// FinishRefund commits the terminal refunded state after the gateway has
// confirmed the remote refund.
func (r *PostgresPurchaseRepository) FinishRefund(ctx context.Context, purchaseID string) (bool, error) {
	return r.transition(ctx, "id", purchaseID,
		[]domain.PurchaseStatus{domain.StatusRefundPending},
		domain.StatusRefunded, "")
}

// CancelRefund compensates a refund claim after the remote call failed,
// releasing the row back to completed.
func (r *PostgresPurchaseRepository) CancelRefund(ctx context.Context, purchaseID string) (bool, error) {
	return r.transition(ctx, "id", purchaseID,
		[]domain.PurchaseStatus{domain.StatusRefundPending},
		domain.StatusCompleted, "")
}

// BindBuyer attaches the provisioned identity to a purchase that was created
// as a guest checkout.
func (r *PostgresPurchaseRepository) BindBuyer(ctx context.Context, purchaseID, buyerID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const query = `UPDATE purchase_orders SET buyer_id = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, buyerID, purchaseID); err != nil {
		return fmt.Errorf("failed to bind buyer %s to purchase %s: %w", buyerID, purchaseID, err)
	}
	return nil
}
