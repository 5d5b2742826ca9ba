package service

import (
	"context"

	"payment-service/internal/domain"
)

// Consumer-side views of the repositories. The Postgres implementations live
// in internal/repository; tests substitute in-memory doubles.

type PurchaseRepository interface {
	Create(ctx context.Context, p domain.PurchaseOrder) error
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.PurchaseOrder, error)
	GetByID(ctx context.Context, id string) (domain.PurchaseOrder, error)
	MarkCompleted(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error)
	MarkFailed(ctx context.Context, gatewayOrderID string) (bool, error)
	BeginRefund(ctx context.Context, purchaseID string) (bool, error)
	FinishRefund(ctx context.Context, purchaseID string) (bool, error)
	CancelRefund(ctx context.Context, purchaseID string) (bool, error)
	BindBuyer(ctx context.Context, purchaseID, buyerID string) error
}

type GrantRepository interface {
	Create(ctx context.Context, buyerID string, itemID int64, purchaseID string) (bool, error)
	DeactivateByPurchase(ctx context.Context, purchaseID string) error
	FindActive(ctx context.Context, buyerID string, itemID int64) (domain.AccessGrant, bool, error)
}

type UserRepository interface {
	CreateOrFetch(ctx context.Context, u domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

type Catalog interface {
	GetItem(ctx context.Context, itemID int64) (domain.MagazineItem, error)
	IncrementSales(ctx context.Context, itemID int64) error
}
