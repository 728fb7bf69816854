// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libraledger/internal/ledger"
	"libraledger/internal/store"
)

// service implements the Service interface.
type service struct {
	store       store.Store
	rateLimiter *rate.Limiter
	now         func() time.Time
}

// NewService creates a new membership service instance. Registrations are
// rate limited to blunt bulk signups.
func NewService(st store.Store) Service {
	return &service{
		store:       st,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 20),
		now:         time.Now,
	}
}

// RegisterMember creates a member in active standing.
func (s *service) RegisterMember(ctx context.Context, params MemberParams) (*ledger.Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ledger.ErrBusy
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	member := &ledger.Member{
		ID:               uuid.New(),
		Name:             params.Name,
		Email:            params.Email,
		MembershipNumber: params.MembershipNumber,
		Status:           ledger.MemberActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func validateParams(params MemberParams) error {
	if params.Name == "" {
		return fmt.Errorf("name is required: %w", ledger.ErrInvalidArgument)
	}
	if !strings.Contains(params.Email, "@") {
		return fmt.Errorf("email is malformed: %w", ledger.ErrInvalidArgument)
	}
	if params.MembershipNumber == "" {
		return fmt.Errorf("membership number is required: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*ledger.Member, error) {
	return s.store.GetMember(ctx, id)
}

func (s *service) ListMembers(ctx context.Context) ([]*ledger.Member, error) {
	return s.store.ListMembers(ctx)
}

// UpdateMember changes the caller-settable fields; standing is left to
// the circulation engine.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, params MemberParams) (*ledger.Member, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	member, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.Name = params.Name
	member.Email = params.Email
	member.MembershipNumber = params.MembershipNumber
	if err := s.store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	return s.store.GetMember(ctx, id)
}

// RemoveMember deletes the member and, through the store's cascades,
// their transactions and fines.
func (s *service) RemoveMember(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteMember(ctx, id)
}
