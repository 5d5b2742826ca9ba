package service

import (
	"context"
	"errors"
	"testing"

	"payment-service/internal/domain"
)

func TestAccessCheck(t *testing.T) {
	catalog := newMemCatalog(
		domain.MagazineItem{ID: 7, Title: "Quarterly Review", Price: 50000, Currency: "INR"},
		domain.MagazineItem{ID: 8, Title: "Free Sampler", Price: 0, Currency: "INR"},
	)
	grants := &memGrantRepo{}
	grants.Create(context.Background(), "buyer-1", 7, "purchase-1")
	svc := NewAccessService(catalog, grants)

	tests := []struct {
		name      string
		buyerID   string
		itemID    int64
		hasAccess bool
		requires  bool
	}{
		{"free item, anonymous", "", 8, true, false},
		{"free item, known buyer", "buyer-1", 8, true, false},
		{"paid item with grant", "buyer-1", 7, true, false},
		{"paid item without grant", "buyer-2", 7, false, true},
		{"paid item, anonymous", "", 7, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.Check(context.Background(), tt.buyerID, tt.itemID)
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if d.HasAccess != tt.hasAccess || d.RequiresPayment != tt.requires {
				t.Errorf("decision = %+v, want hasAccess=%v requiresPayment=%v", d, tt.hasAccess, tt.requires)
			}
		})
	}
}

func TestAccessCheckUnknownItem(t *testing.T) {
	svc := NewAccessService(newMemCatalog(), &memGrantRepo{})
	_, err := svc.Check(context.Background(), "buyer-1", 999)
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestAccessRevokedAfterRefund(t *testing.T) {
	catalog := newMemCatalog(domain.MagazineItem{ID: 7, Price: 50000, Currency: "INR"})
	grants := &memGrantRepo{}
	grants.Create(context.Background(), "buyer-1", 7, "purchase-1")
	svc := NewAccessService(catalog, grants)

	d, err := svc.Check(context.Background(), "buyer-1", 7)
	if err != nil || !d.HasAccess {
		t.Fatalf("expected access before refund, got %+v err=%v", d, err)
	}

	grants.DeactivateByPurchase(context.Background(), "purchase-1")

	d, err = svc.Check(context.Background(), "buyer-1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if d.HasAccess || !d.RequiresPayment {
		t.Errorf("decision after revocation = %+v, want payment required", d)
	}
}
