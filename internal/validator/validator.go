package validator

import (
	"regexp"
	"strings"

	"payment-service/internal/domain"
)

// MaxAmount caps a single purchase at 10,000,000 minor units. Anything above
// is assumed to be a client bug or tampering, not a real magazine price.
const MaxAmount int64 = 10_000_000

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &domain.ValidationError{Field: "email", Reason: "email is empty"}
	}
	if !emailRegex.MatchString(email) {
		return &domain.ValidationError{Field: "email", Reason: "invalid email format"}
	}
	return nil
}

func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return &domain.ValidationError{Field: "amount", Reason: "amount must be greater than 0"}
	}
	if amount > MaxAmount {
		return &domain.ValidationError{Field: "amount", Reason: "amount exceeds maximum allowed"}
	}
	return nil
}

func ValidateOrderRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return &domain.ValidationError{Field: "orderId", Reason: "gateway order id is empty"}
	}
	return nil
}

func ValidatePaymentRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return &domain.ValidationError{Field: "paymentId", Reason: "gateway payment id is empty"}
	}
	return nil
}

// ValidateGuestDetails checks the provisioning data supplied at guest
// checkout. The password may be empty: provisioning then issues an account
// that requires a reset before first login.
func ValidateGuestDetails(g domain.GuestDetails) error {
	if err := ValidateEmail(g.Email); err != nil {
		return err
	}
	if strings.TrimSpace(g.Name) == "" {
		return &domain.ValidationError{Field: "name", Reason: "name is empty"}
	}
	return nil
}
