package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows ListSubscriptions.
type Filter struct {
	UserID *uuid.UUID
	Status *Status
	PlanID *string
}

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// Update persists s guarded by its Version; a stale version yields a
	// Conflict error.
	Update(ctx context.Context, s *Subscription) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Subscription, int, error)
	// ListAll returns every subscription, oldest first. Used by the
	// analytics aggregator.
	ListAll(ctx context.Context) ([]*Subscription, error)
}
