package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
	"payment-service/internal/validator"
)

// provisioningService turns a GuestProvisioningRequest into a durable
// identity. It runs only after payment success; abandoned checkouts never
// reach it, so no orphan accounts are created.
type provisioningService struct {
	users UserRepository
}

func NewProvisioningService(users UserRepository) *provisioningService {
	return &provisioningService{users: users}
}

// Provision creates the user or binds to the existing identity with the same
// email. The same guest buying a second magazine, or two racing verification
// attempts, both resolve to one identity. details.Password already carries
// the bcrypt hash computed at checkout time.
func (s *provisioningService) Provision(ctx context.Context, details domain.GuestDetails) (domain.User, error) {
	if err := validator.ValidateEmail(details.Email); err != nil {
		return domain.User{}, fmt.Errorf("cannot provision account: %w", err)
	}

	user, err := s.users.CreateOrFetch(ctx, domain.User{
		ID:           uuid.NewString(),
		Email:        details.Email,
		Name:         details.Name,
		Phone:        details.Phone,
		PasswordHash: details.Password,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to provision account for %s: %w", details.Email, err)
	}

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("Guest identity provisioned")
	return user, nil
}
