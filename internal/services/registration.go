package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eventregistration/internal/domain"
)

type registrationService struct {
	store          domain.EntityStore
	contextTimeout time.Duration
}

// NewRegistrationService returns a read-only RegistrationService. Every read goes to the store.
func NewRegistrationService(store domain.EntityStore, timeout time.Duration) domain.RegistrationService {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &registrationService{store: store, contextTimeout: timeout}
}

func (s *registrationService) GetRegistration(ctx context.Context, kind domain.RegistrationKind, id string) (domain.Registration, error) {
	rc, ok := domain.RegistrationCollectionFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown registration kind %q", domain.ErrInvalidInput, kind)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: registration id is required", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	doc, err := s.store.Get(ctx, rc.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", rc.Collection, id, err)
	}
	return domain.DecodeRegistration(rc, doc)
}
