package service

import (
	"context"
)

type AccessDecision struct {
	HasAccess       bool
	RequiresPayment bool
}

// accessService answers "can buyer B read magazine M". Pure read, never
// mutates anything.
type accessService struct {
	catalog Catalog
	grants  GrantRepository
}

func NewAccessService(catalog Catalog, grants GrantRepository) *accessService {
	return &accessService{catalog: catalog, grants: grants}
}

func (s *accessService) Check(ctx context.Context, buyerID string, itemID int64) (AccessDecision, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return AccessDecision{}, err
	}
	if item.Free() {
		return AccessDecision{HasAccess: true}, nil
	}
	if buyerID == "" {
		return AccessDecision{RequiresPayment: true}, nil
	}

	_, found, err := s.grants.FindActive(ctx, buyerID, itemID)
	if err != nil {
		return AccessDecision{}, err
	}
	if found {
		return AccessDecision{HasAccess: true}, nil
	}
	return AccessDecision{RequiresPayment: true}, nil
}
