package service

import (
	"context"
	"errors"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/repository"
)

// Lineage errors surfaced to callers and recorded on transformations.
var (
	// ErrParentHasNoOutput is returned when a parent transformation was
	// chosen as input source but never completed successfully.
	ErrParentHasNoOutput = errors.New("Parent transformation has no output.")

	// ErrParentNotInProject is returned when the requested parent belongs
	// to a different project (or does not exist).
	ErrParentNotInProject = errors.New("Parent transformation not found in project.")

	// ErrSelfParent is returned when a transformation would reference
	// itself as its input source.
	ErrSelfParent = errors.New("Transformation cannot be its own parent.")
)

// LineageService resolves where a transformation's input CSV comes from:
// the project's root CSV for root transformations, the parent's output for
// chained ones. It also decides the default parent for new submissions.
//
// Policy: branching tree. Submissions are never blocked by in-flight
// transformations; callers may chain off any node explicitly. When no
// parent is given, the latest completed transformation with output becomes
// the default parent so prompts chain naturally off the current result.
type LineageService struct {
	projects        *repository.ProjectRepository
	transformations *repository.TransformationRepository
}

// NewLineageService creates a new LineageService.
// Parameters:
//   - projects: project repository.
//   - transformations: transformation repository.
// Returns:
//   - *LineageService: initialized resolver.
func NewLineageService(projects *repository.ProjectRepository, transformations *repository.TransformationRepository) *LineageService {
	return &LineageService{
		projects:        projects,
		transformations: transformations,
	}
}

// ResolveInputCSV returns the dataset a transformation reads as input.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - t: transformation whose input is resolved.
// Returns:
//   - string: project root CSV (nil parent) or parent's output CSV.
//   - error: ErrParentHasNoOutput when the parent never completed;
//     repository errors otherwise.
func (s *LineageService) ResolveInputCSV(ctx context.Context, t *domain.Transformation) (string, error) {
	if t.ParentID == nil {
		project, err := s.projects.GetByID(ctx, t.ProjectID)
		if err != nil {
			return "", err
		}
		return project.CSVContent, nil
	}

	parent, err := s.transformations.GetByID(ctx, *t.ParentID)
	if err != nil {
		return "", err
	}
	if !parent.HasOutput() {
		return "", ErrParentHasNoOutput
	}
	return *parent.OutputCsv, nil
}

// ResolveDefaultParent picks the parent for a submission that did not name
// one: the latest completed transformation with output, nil when the
// project has no completed transformation yet.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: project being submitted to.
// Returns:
//   - *string: default parent ID, or nil for the project root CSV.
//   - error: non-nil if the lookup fails.
func (s *LineageService) ResolveDefaultParent(ctx context.Context, projectID string) (*string, error) {
	latest, err := s.transformations.LatestCompletedWithOutput(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return &latest.ID, nil
}

// ValidateParent checks that an explicitly chosen parent exists in the
// same project and is not the transformation itself.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: project the parent must belong to.
//   - parentID: chosen parent ID.
//   - selfID: ID of the referencing transformation; empty when not yet allocated.
// Returns:
//   - *domain.Transformation: the parent row.
//   - error: ErrSelfParent or ErrParentNotInProject on violations.
func (s *LineageService) ValidateParent(ctx context.Context, projectID, parentID, selfID string) (*domain.Transformation, error) {
	if selfID != "" && parentID == selfID {
		return nil, ErrSelfParent
	}
	parent, err := s.transformations.GetByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrParentNotInProject
		}
		return nil, err
	}
	if parent.ProjectID != projectID {
		return nil, ErrParentNotInProject
	}
	return parent, nil
}
