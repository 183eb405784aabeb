package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Laellekoenig/tables/internal/domain"
	"gorm.io/gorm"
)

// TransformationRepository handles transformation data operations,
// including lineage-aware cascading deletes and bulk invalidation.
type TransformationRepository struct {
	db *gorm.DB
}

// NewTransformationRepository creates a new TransformationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TransformationRepository: repository instance bound to db.
func NewTransformationRepository(db *gorm.DB) *TransformationRepository {
	return &TransformationRepository{db: db}
}

// Create inserts a new transformation record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - t: transformation record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *TransformationRepository) Create(ctx context.Context, t *domain.Transformation) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// GetByID retrieves a transformation by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
// Returns:
//   - *domain.Transformation: record if found.
//   - error: ErrNotFound if missing, otherwise the query error.
func (r *TransformationRepository) GetByID(ctx context.Context, id string) (*domain.Transformation, error) {
	var t domain.Transformation
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByIDInProject retrieves a transformation scoped to a project. Used by
// the progress feed, which re-validates project scope on every read.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
//   - projectID: project the record must belong to.
// Returns:
//   - *domain.Transformation: record if found in the project.
//   - error: ErrNotFound when missing or in another project.
func (r *TransformationRepository) GetByIDInProject(ctx context.Context, id, projectID string) (*domain.Transformation, error) {
	var t domain.Transformation
	err := r.db.WithContext(ctx).
		First(&t, "id = ? AND project_id = ?", id, projectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListByProject retrieves all transformations of a project.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project ID.
// Returns:
//   - []domain.Transformation: matching records, oldest first.
//   - error: non-nil if the query fails.
func (r *TransformationRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Transformation, error) {
	var rows []domain.Transformation
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestCompletedWithOutput returns the most recent transformation of a
// project that finished successfully and still has output, or nil when the
// project has none. Ordering is LastExecutedAt first, then UpdatedAt, with
// ID as a deterministic tie breaker.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project ID.
// Returns:
//   - *domain.Transformation: newest completed record with output, or nil.
//   - error: non-nil if the query fails.
func (r *TransformationRepository) LatestCompletedWithOutput(ctx context.Context, projectID string) (*domain.Transformation, error) {
	var t domain.Transformation
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ? AND output_csv IS NOT NULL AND output_csv <> ''",
			projectID, domain.TransformationStatusCompleted).
		Order("last_executed_at DESC, updated_at DESC, id DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpdateCode persists generated code and clears any previous error message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
//   - code: generated script text.
// Returns:
//   - error: non-nil if the update fails.
func (r *TransformationRepository) UpdateCode(ctx context.Context, id, code string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Transformation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"code_snippet":  code,
			"error_message": nil,
		}).Error
}

// UpdateStatus sets the status unconditionally.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
//   - status: new status.
// Returns:
//   - error: non-nil if the update fails.
func (r *TransformationRepository) UpdateStatus(ctx context.Context, id string, status domain.TransformationStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Transformation{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// UpdateStatusIf transitions status only when the current status matches
// the expected pre-state, guarding concurrent Run/Decline calls on the same
// row against lost updates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
//   - from: required current status.
//   - to: new status.
// Returns:
//   - bool: true when the transition was applied.
//   - error: non-nil if the update fails.
func (r *TransformationRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.TransformationStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Transformation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"error_message": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExecutionResult captures the terminal outcome of one execution attempt.
type ExecutionResult struct {
	Status         domain.TransformationStatus
	OutputCsv      *string
	ErrorMessage   *string
	LastExecutedAt time.Time
}

// UpdateExecutionResult records the outcome of an execution attempt. The
// output column is only touched on success, so a failed re-run never
// clobbers a previous result.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: transformation ID.
//   - res: execution outcome to persist.
// Returns:
//   - error: non-nil if the update fails.
func (r *TransformationRepository) UpdateExecutionResult(ctx context.Context, id string, res ExecutionResult) error {
	updates := map[string]interface{}{
		"status":           res.Status,
		"error_message":    res.ErrorMessage,
		"last_executed_at": res.LastExecutedAt,
	}
	if res.OutputCsv != nil {
		updates["output_csv"] = *res.OutputCsv
	}
	return r.db.WithContext(ctx).
		Model(&domain.Transformation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkStale bulk-updates the given transformations to the stale status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: transformation IDs to invalidate.
// Returns:
//   - error: non-nil if the update fails.
func (r *TransformationRepository) MarkStale(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Transformation{}).
		Where("id IN ?", ids).
		Update("status", domain.TransformationStatusStale).Error
}

// DeleteCascade removes a transformation and every transitive descendant
// in one logical operation.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - t: root transformation to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *TransformationRepository) DeleteCascade(ctx context.Context, t *domain.Transformation) error {
	rows, err := r.ListByProject(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	ids := append([]string{t.ID}, domain.CollectDescendantIDs(rows, t.ID)...)
	return r.db.WithContext(ctx).
		Delete(&domain.Transformation{}, "id IN ?", ids).Error
}

// DeleteAllForProject removes every transformation of a project.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project ID.
// Returns:
//   - int64: number of deleted rows.
//   - error: non-nil if the delete fails.
func (r *TransformationRepository) DeleteAllForProject(ctx context.Context, projectID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Delete(&domain.Transformation{}, "project_id = ?", projectID)
	return result.RowsAffected, result.Error
}
