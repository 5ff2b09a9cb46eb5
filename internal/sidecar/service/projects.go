package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
)

// ProjectService calls the backend project endpoints.
type ProjectService struct {
	gateway *Gateway
}

func NewProjectService(gateway *Gateway) *ProjectService {
	return &ProjectService{gateway: gateway}
}

type projectList struct {
	Items []domain.Project `json:"items"`
}

// List returns the caller's projects. Never nil on success.
func (s *ProjectService) List(ctx context.Context) ([]domain.Project, error) {
	raw, err := s.gateway.RequestJSON(ctx, Request{Method: http.MethodGet, Path: "/projects"})
	if err != nil {
		return nil, err
	}

	list, err := DecodeJSON[projectList](raw)
	if err != nil {
		return nil, err
	}
	if list.Items == nil {
		list.Items = []domain.Project{}
	}
	return list.Items, nil
}

// Create trims the name and description before sending them. An empty name
// is rejected without a backend call.
func (s *ProjectService) Create(ctx context.Context, in domain.CreateProject) (*domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewError(domain.CodeValidation, "Project name is required.")
	}

	body := domain.CreateProject{Name: name}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		body.Description = &desc
	}

	raw, err := s.gateway.RequestJSON(ctx, Request{Method: http.MethodPost, Path: "/projects", Body: body})
	if err != nil {
		return nil, err
	}

	project, err := DecodeJSON[domain.Project](raw)
	if err != nil {
		return nil, err
	}
	return &project, nil
}
