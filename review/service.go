package review

import "context"

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, leadInvestorID string) ([]Item, error) {
	return s.repo.List(ctx, leadInvestorID)
}

func (s *Service) Resolve(ctx context.Context, leadInvestorID, offerID string) (Item, error) {
	return s.repo.Resolve(ctx, leadInvestorID, offerID)
}
