package service

import (
	"context"
	"fmt"

	"github.com/popup-village/portal-backend/internal/repository"
)

// CitizenService exposes profile reads for the portal.
type CitizenService interface {
	GetByID(ctx context.Context, id int64) (*repository.Citizen, error)
	FindByEmail(ctx context.Context, email string) (*repository.Citizen, error)
}

type citizenService struct {
	citizenRepo repository.CitizenRepository
}

func NewCitizenService(citizenRepo repository.CitizenRepository) CitizenService {
	return &citizenService{citizenRepo: citizenRepo}
}

func (s *citizenService) GetByID(ctx context.Context, id int64) (*repository.Citizen, error) {
	citizen, err := s.citizenRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up citizen: %w", err)
	}
	if citizen == nil {
		return nil, notFoundError("citizen not found")
	}
	return citizen, nil
}

func (s *citizenService) FindByEmail(ctx context.Context, email string) (*repository.Citizen, error) {
	citizen, err := s.citizenRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up citizen: %w", err)
	}
	if citizen == nil {
		return nil, notFoundError("citizen not found")
	}
	return citizen, nil
}
