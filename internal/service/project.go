package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/repository"
	"github.com/google/uuid"
)

// ValidationError signals a rejected request payload. Handlers map it to
// a 400 response.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

// ProjectService manages projects and their root CSV documents.
type ProjectService struct {
	projects *repository.ProjectRepository
	logger   *logger.Logger
}

// NewProjectService creates a new ProjectService.
// Parameters:
//   - projects: project repository.
//   - log: logger instance.
// Returns:
//   - *ProjectService: initialized service.
func NewProjectService(projects *repository.ProjectRepository, log *logger.Logger) *ProjectService {
	return &ProjectService{
		projects: projects,
		logger:   log,
	}
}

// Create validates and stores a new project owned by the caller.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated owner.
//   - name: project display name; must be non-blank.
//   - csvContent: root CSV document; non-empty and at most 1 MB.
// Returns:
//   - *domain.Project: created project.
//   - error: ValidationError for rejected payloads.
func (s *ProjectService) Create(ctx context.Context, userID, name, csvContent string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ValidationError("Project name is required.")
	}
	if csvContent == "" {
		return nil, ValidationError("CSV content is required.")
	}
	if len(csvContent) > domain.MaxCSVSize {
		return nil, ValidationError(fmt.Sprintf("CSV content exceeds the maximum size of %d bytes.", domain.MaxCSVSize))
	}

	p := &domain.Project{
		ID:          uuid.New().String(),
		Name:        name,
		CSVContent:  csvContent,
		OwnerUserID: userID,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{logger.FieldSize: len(csvContent)}).
		Info(ctx, "Project created: id=%s, name=%s", p.ID, p.Name)
	return p, nil
}

// Get returns a project owned by the caller.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - id: project ID.
// Returns:
//   - *domain.Project: project row including the CSV document.
//   - error: repository.ErrNotFound when missing or owned by someone else.
func (s *ProjectService) Get(ctx context.Context, userID, id string) (*domain.Project, error) {
	return s.projects.GetByIDForOwner(ctx, id, userID)
}

// List returns the caller's projects, newest first.
func (s *ProjectService) List(ctx context.Context, userID string) ([]domain.Project, error) {
	return s.projects.ListByOwner(ctx, userID)
}

// Delete removes a project and all of its transformations.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - id: project ID.
// Returns:
//   - error: repository.ErrNotFound when not visible to the caller.
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.projects.GetByIDForOwner(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, p.ID); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Project deleted: id=%s", p.ID)
	return nil
}
