package donations

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

// Authorizer checks rule grants for an actor.
type Authorizer interface {
	Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error
}

// AuditLogger records donation changes.
type AuditLogger interface {
	Log(ctx context.Context, action string, actor shared.Actor, details string)
}

// NewDonation is the input for Record.
type NewDonation struct {
	DonorID    string `json:"donorId" validate:"required"`
	DonorName  string `json:"donorName" validate:"required"`
	BloodGroup string `json:"bloodGroup" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Units      int    `json:"units" validate:"required,min=1,max=10"`
	Location   string `json:"location"`
}

// Service handles donation workflows.
type Service struct {
	repo  *Repository
	guard Authorizer
	audit AuditLogger
	clock shared.Clock
}

// NewService constructs a Service.
func NewService(repo *Repository, guard Authorizer, audit AuditLogger, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, guard: guard, audit: audit, clock: clock}
}

// Record stores a new donation awaiting review.
func (s *Service) Record(ctx context.Context, actor shared.Actor, in NewDonation) (Donation, error) {
	if actor.IsZero() {
		return Donation{}, shared.ErrUnauthenticated
	}
	d := Donation{
		ID:         uuid.NewString(),
		DonorID:    strings.TrimSpace(in.DonorID),
		DonorName:  strings.TrimSpace(in.DonorName),
		BloodGroup: in.BloodGroup,
		Units:      in.Units,
		Location:   strings.TrimSpace(in.Location),
		Status:     StatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Donation{}, err
	}
	s.audit.Log(ctx, ActionCreate, actor, fmt.Sprintf("Recorded %d unit(s) of %s for %s", d.Units, d.BloodGroup, d.DonorName))
	return d, nil
}

// Review approves or rejects a donation.
func (s *Service) Review(ctx context.Context, actor shared.Actor, id string, status Status) error {
	if status == StatusPending {
		return fmt.Errorf("donations: review requires a final status: %w", shared.ErrValidation)
	}
	if err := s.guard.Authorize(ctx, actor, permissions.RuleManageDonations); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, id, status, actor.DisplayName()); err != nil {
		return err
	}
	s.audit.Log(ctx, ActionStatusUpdate, actor, fmt.Sprintf("Marked donation %s %s", id, status))
	return nil
}

// List returns every active donation.
func (s *Service) List(ctx context.Context) ([]Donation, error) {
	return s.repo.List(ctx)
}
