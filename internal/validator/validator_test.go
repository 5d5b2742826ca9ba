package validator

import (
	"errors"
	"testing"

	"payment-service/internal/domain"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{"reader@example.com", "a.b+tag@sub.domain.org"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("ValidateEmail(%q) = %v, want nil", email, err)
		}
	}

	invalid := []string{"", "   ", "no-at-sign", "@missing.local", "user@", "user@tld"}
	for _, email := range invalid {
		err := ValidateEmail(email)
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ValidateEmail(%q) = %v, want ValidationError", email, err)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	if err := ValidateAmount(50000); err != nil {
		t.Errorf("ValidateAmount(50000) = %v", err)
	}
	for _, amount := range []int64{0, -1, MaxAmount + 1} {
		if err := ValidateAmount(amount); err == nil {
			t.Errorf("ValidateAmount(%d) = nil, want error", amount)
		}
	}
}

func TestValidateGuestDetails(t *testing.T) {
	ok := domain.GuestDetails{Name: "Reader", Email: "reader@example.com"}
	if err := ValidateGuestDetails(ok); err != nil {
		t.Errorf("valid guest rejected: %v", err)
	}

	if err := ValidateGuestDetails(domain.GuestDetails{Email: "reader@example.com"}); err == nil {
		t.Error("guest without name accepted")
	}
	if err := ValidateGuestDetails(domain.GuestDetails{Name: "Reader"}); err == nil {
		t.Error("guest without email accepted")
	}
}

func TestValidateRefs(t *testing.T) {
	if err := ValidateOrderRef("order_1"); err != nil {
		t.Errorf("ValidateOrderRef = %v", err)
	}
	if err := ValidateOrderRef("  "); err == nil {
		t.Error("blank order ref accepted")
	}
	if err := ValidatePaymentRef(""); err == nil {
		t.Error("empty payment ref accepted")
	}
}
