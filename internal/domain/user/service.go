package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/domain/ledger"
)

// Ledger is the part of the ledger a session start needs
type Ledger interface {
	SweepExpiry(ctx context.Context, userID uuid.UUID) (*ledger.SweepResult, error)
	TotalCredits(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Service handles user profile operations
type Service struct {
	repo   Repository
	ledger Ledger
}

// NewService creates user service
func NewService(repo Repository, l Ledger) *Service {
	return &Service{repo: repo, ledger: l}
}

// StartSession records the caller's profile and brings their ledger up to
// date. A busy or failing sweep does not fail the session.
func (s *Service) StartSession(ctx context.Context, id uuid.UUID, name string, role Role) (*SessionResponse, error) {
	u := &User{ID: id, Name: name, Role: role}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, err
	}

	resp := &SessionResponse{Profile: ProfileFromEntity(u)}
	swept, err := s.ledger.SweepExpiry(ctx, id)
	switch {
	case errors.Is(err, ledger.ErrBusy):
		log.Debug().Str("user_id", id.String()).Msg("session sweep skipped, ledger busy")
	case err != nil:
		log.Warn().Err(err).Str("user_id", id.String()).Msg("session sweep failed")
	default:
		resp.Renewed = len(swept.Renewed)
		resp.Expired = len(swept.Expired)
	}

	total, err := s.ledger.TotalCredits(ctx, id)
	if err != nil {
		return nil, err
	}
	resp.TotalCredits = total
	return resp, nil
}

// UpdatePhone sets the number relay messages go to; empty clears it
func (s *Service) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) (*User, error) {
	if err := s.repo.UpdatePhone(ctx, id, sql.NullString{String: phone, Valid: phone != ""}); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
