package program

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	Repository interface {
		CreateProgram(ctx context.Context, p Program) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		QueryAllPrograms(ctx context.Context) ([]Program, error)
		UpdateProgram(ctx context.Context, p Program) (Program, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, np NewProgram) (Program, error) {
	return svc.repo.CreateProgram(ctx, Program{
		ID:        uuid.New().String(),
		Title:     np.Title,
		Price:     np.Price,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Program, error) {
	return svc.repo.QueryAllPrograms(ctx)
}

func (svc *Service) Deactivate(ctx context.Context, id string) (Program, error) {
	p, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return Program{}, err
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	return svc.repo.UpdateProgram(ctx, p)
}
