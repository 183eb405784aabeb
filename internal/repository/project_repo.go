package repository

import (
	"context"
	"errors"

	"github.com/Laellekoenig/tables/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the caller. Ownership misses map to the same error so that the
// existence of other users' projects never leaks.
var ErrNotFound = errors.New("record not found")

// ProjectRepository handles project data operations.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProjectRepository: repository instance bound to db.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - project: project record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID retrieves a project by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
// Returns:
//   - *domain.Project: project record if found.
//   - error: ErrNotFound if missing, otherwise the query error.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetByIDForOwner retrieves a project by ID, scoped to its owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
//   - ownerUserID: user that must own the project.
// Returns:
//   - *domain.Project: project record if found and owned.
//   - error: ErrNotFound when missing or owned by someone else.
func (r *ProjectRepository) GetByIDForOwner(ctx context.Context, id, ownerUserID string) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).
		First(&project, "id = ? AND owner_user_id = ?", id, ownerUserID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// ListByOwner retrieves all projects owned by a user, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerUserID: owning user ID.
// Returns:
//   - []domain.Project: matching project records.
//   - error: non-nil if the query fails.
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]domain.Project, error) {
	var projects []domain.Project
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// Delete removes a project and all of its transformations.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Transformation{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Project{}, "id = ?", id).Error
	})
}
