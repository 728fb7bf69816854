// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"libraledger/internal/ledger"
)

// MemberParams are the caller-settable fields of a member. Status is
// derived by the circulation engine and never accepted from callers.
type MemberParams struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	MembershipNumber string `json:"membership_number"`
}

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, params MemberParams) (*ledger.Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*ledger.Member, error)
	ListMembers(ctx context.Context) ([]*ledger.Member, error)
	UpdateMember(ctx context.Context, id uuid.UUID, params MemberParams) (*ledger.Member, error)
	RemoveMember(ctx context.Context, id uuid.UUID) error
}
