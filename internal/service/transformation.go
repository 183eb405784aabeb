package service

import (
	"context"
	"errors"
	"time"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/prompts"
	"github.com/Laellekoenig/tables/internal/repository"
	"github.com/google/uuid"
)

// Orchestrator errors surfaced to callers. Generation and execution
// failures are not among them: those are recorded on the transformation
// row as a terminal error status instead.
var (
	// ErrNoCode is returned when Run is requested before code generation
	// produced a script.
	ErrNoCode = errors.New("No generated code found.")

	// ErrNotAwaitingApproval is returned when Decline is requested for a
	// transformation that is not pending with generated code.
	ErrNotAwaitingApproval = errors.New("Transformation is not awaiting approval.")

	// ErrAlreadyRunning is returned when Run is requested while a previous
	// run of the same transformation is still in flight.
	ErrAlreadyRunning = errors.New("Transformation is already running.")
)

// TransformationService drives the transformation lifecycle: create,
// generate code, approve/decline, execute in the sandbox, cascade
// re-execution over descendants, and cascading invalidation on failure.
// Every LLM and sandbox failure is recorded on the row as an error status
// with a human-readable message; nothing is retried at this layer.
type TransformationService struct {
	projects        *repository.ProjectRepository
	transformations *repository.TransformationRepository
	lineage         *LineageService
	generator       CodeGenerator
	executor        SandboxExecutor
	logger          *logger.Logger
}

// NewTransformationService creates a new TransformationService.
// Parameters:
//   - projects: project repository.
//   - transformations: transformation repository.
//   - lineage: lineage resolver.
//   - generator: code generation service client.
//   - executor: sandbox executor client.
//   - log: logger instance.
// Returns:
//   - *TransformationService: initialized orchestrator.
func NewTransformationService(
	projects *repository.ProjectRepository,
	transformations *repository.TransformationRepository,
	lineage *LineageService,
	generator CodeGenerator,
	executor SandboxExecutor,
	log *logger.Logger,
) *TransformationService {
	return &TransformationService{
		projects:        projects,
		transformations: transformations,
		lineage:         lineage,
		generator:       generator,
		executor:        executor,
		logger:          log,
	}
}

// Create allocates a new pending transformation with no code or output.
// When parentID is nil the latest completed transformation with output
// becomes the parent, so prompts chain off the current result by default.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: owning project.
//   - parentID: explicit input source, or nil for the default parent.
//   - prompt: user's natural-language transformation request.
// Returns:
//   - *domain.Transformation: created row.
//   - error: repository.ErrNotFound when the project is not owned by the
//     caller; lineage errors for invalid parents.
func (s *TransformationService) Create(ctx context.Context, userID, projectID string, parentID *string, prompt string) (*domain.Transformation, error) {
	if _, err := s.projects.GetByIDForOwner(ctx, projectID, userID); err != nil {
		return nil, err
	}

	if parentID == nil {
		defaultParent, err := s.lineage.ResolveDefaultParent(ctx, projectID)
		if err != nil {
			return nil, err
		}
		parentID = defaultParent
	} else {
		if _, err := s.lineage.ValidateParent(ctx, projectID, *parentID, ""); err != nil {
			return nil, err
		}
	}

	t := &domain.Transformation{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ParentID:  parentID,
		Prompt:    prompt,
		Status:    domain.TransformationStatusPending,
	}
	if err := s.transformations.Create(ctx, t); err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Transformation created: id=%s, project=%s", t.ID, projectID)
	return t, nil
}

// GenerateCode runs the code generation stage for a pending transformation.
// It is a no-op returning the unchanged row when code already exists. On
// generation failure the row transitions to error with the service's
// message and the returned row reflects that terminal state.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: owning project.
//   - id: transformation ID.
//   - onDelta: optional sink receiving cumulative generated text as the
//     stream progresses; nil selects one-shot generation.
// Returns:
//   - *domain.Transformation: row after the stage finished.
//   - error: lookup/persistence errors; generation failures are recorded
//     on the row, not returned.
func (s *TransformationService) GenerateCode(ctx context.Context, userID, projectID, id string, onDelta func(code string) error) (*domain.Transformation, error) {
	t, err := s.getOwned(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}

	if t.HasCode() {
		return t, nil
	}
	if t.Status != domain.TransformationStatusPending {
		return nil, ErrNotAwaitingApproval
	}

	inputCsv, err := s.lineage.ResolveInputCSV(ctx, t)
	if err != nil {
		if errors.Is(err, ErrParentHasNoOutput) {
			return s.recordFailure(ctx, id, err.Error())
		}
		return nil, err
	}

	userPrompt := prompts.BuildTransformationUserPrompt(inputCsv, t.Prompt)

	var code string
	var genErr error
	if onDelta != nil {
		code, genErr = s.generator.GenerateStream(ctx, prompts.TransformationSystemPrompt, userPrompt, onDelta)
	} else {
		code, genErr = s.generator.Generate(ctx, prompts.TransformationSystemPrompt, userPrompt)
	}
	if genErr != nil {
		logger.CtxWarn(ctx, "Code generation failed: id=%s, err=%v", id, genErr)
		return s.recordFailure(ctx, id, genErr.Error())
	}

	if err := s.transformations.UpdateCode(ctx, id, code); err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Code generated: id=%s, bytes=%d", id, len(code))
	return s.transformations.GetByID(ctx, id)
}

// Run approves and executes a transformation's generated code against its
// resolved input CSV. A successful run re-executes every descendant with
// stored code against the new output; a descendant failure marks that
// branch's subtree stale. Execution failures of the transformation itself
// are recorded on the returned row, not returned as an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: owning project.
//   - id: transformation ID.
// Returns:
//   - *domain.Transformation: row after the run (completed or error).
//   - error: ErrNoCode without generated code, ErrAlreadyRunning when a
//     run is in flight, lookup/persistence errors otherwise.
func (s *TransformationService) Run(ctx context.Context, userID, projectID, id string) (*domain.Transformation, error) {
	t, err := s.getOwned(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}
	if !t.HasCode() {
		return nil, ErrNoCode
	}
	if t.Status == domain.TransformationStatusRunning {
		return nil, ErrAlreadyRunning
	}

	// Conditional transition guards against a concurrent Run or Decline
	// racing on the same row.
	ok, err := s.transformations.UpdateStatusIf(ctx, id, t.Status, domain.TransformationStatusRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	// Resolution failures are recorded on the row; the status already moved
	// to running and must not be left dangling there.
	inputCsv, err := s.lineage.ResolveInputCSV(ctx, t)
	if err != nil {
		return s.recordFailure(ctx, id, err.Error())
	}

	output, execErr := s.execute(ctx, id, inputCsv, *t.CodeSnippet)
	if execErr != nil {
		return s.transformations.GetByID(ctx, id)
	}

	// Repair the lineage below this node against the new output.
	rows, err := s.transformations.ListByProject(ctx, projectID)
	if err != nil {
		logger.CtxError(ctx, "Skipping cascade, failed to list project transformations: id=%s, err=%v", id, err)
	} else {
		s.cascadeReExecute(ctx, rows, id, output)
	}

	return s.transformations.GetByID(ctx, id)
}

// Decline rejects generated code that has not run. The row transitions to
// error with a sentinel message so the UI can label it "Declined" rather
// than "Failed".
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: owning project.
//   - id: transformation ID.
// Returns:
//   - *domain.Transformation: row in the declined state.
//   - error: ErrNotAwaitingApproval unless pending with code.
func (s *TransformationService) Decline(ctx context.Context, userID, projectID, id string) (*domain.Transformation, error) {
	t, err := s.getOwned(ctx, userID, projectID, id)
	if err != nil {
		return nil, err
	}
	if !t.HasCode() || t.Status != domain.TransformationStatusPending {
		return nil, ErrNotAwaitingApproval
	}

	ok, err := s.transformations.UpdateStatusIf(ctx, id, domain.TransformationStatusPending, domain.TransformationStatusError)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAwaitingApproval
	}

	logger.CtxInfo(ctx, "Execution declined: id=%s", id)
	return s.recordFailure(ctx, id, domain.DeclinedMessage)
}

// CreateAndExecute is the composite submission operation: Create, then
// GenerateCode, then Run, short-circuiting at the first error. The
// returned row carries the best-effort true outcome even when a later
// stage failed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: owning project.
//   - parentID: explicit input source, or nil for the default parent.
//   - prompt: user's natural-language transformation request.
//   - onDelta: optional sink for cumulative generated code.
// Returns:
//   - *domain.Transformation: final row (completed, error, or declined).
//   - error: non-nil only for failures outside the recorded state machine.
func (s *TransformationService) CreateAndExecute(ctx context.Context, userID, projectID string, parentID *string, prompt string, onDelta func(code string) error) (*domain.Transformation, error) {
	t, err := s.Create(ctx, userID, projectID, parentID, prompt)
	if err != nil {
		return nil, err
	}

	t, err = s.GenerateCode(ctx, userID, projectID, t.ID, onDelta)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TransformationStatusError {
		return t, nil
	}

	return s.Run(ctx, userID, projectID, t.ID)
}

// Delete removes a transformation and every transitive descendant. No
// cascading re-execution happens on delete.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - id: transformation ID.
// Returns:
//   - error: repository.ErrNotFound when not visible to the caller.
func (s *TransformationService) Delete(ctx context.Context, userID, id string) error {
	t, err := s.transformations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.projects.GetByIDForOwner(ctx, t.ProjectID, userID); err != nil {
		return err
	}
	return s.transformations.DeleteCascade(ctx, t)
}

// DeleteAllForProject removes every transformation of a project.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller; must own the project.
//   - projectID: project to clear.
// Returns:
//   - int64: number of deleted rows.
//   - error: repository.ErrNotFound when the project is not owned.
func (s *TransformationService) DeleteAllForProject(ctx context.Context, userID, projectID string) (int64, error) {
	if _, err := s.projects.GetByIDForOwner(ctx, projectID, userID); err != nil {
		return 0, err
	}
	return s.transformations.DeleteAllForProject(ctx, projectID)
}

// List returns a project's transformations, oldest first.
func (s *TransformationService) List(ctx context.Context, userID, projectID string) ([]domain.Transformation, error) {
	if _, err := s.projects.GetByIDForOwner(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.transformations.ListByProject(ctx, projectID)
}

// Tree returns a project's transformations grouped into a forest.
func (s *TransformationService) Tree(ctx context.Context, userID, projectID string) ([]*domain.TransformationTree, error) {
	rows, err := s.List(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return domain.BuildTree(rows), nil
}

// Get returns one transformation scoped to an owned project.
func (s *TransformationService) Get(ctx context.Context, userID, projectID, id string) (*domain.Transformation, error) {
	return s.getOwned(ctx, userID, projectID, id)
}

// getOwned loads a transformation after verifying project ownership.
// Ownership misses surface as repository.ErrNotFound.
func (s *TransformationService) getOwned(ctx context.Context, userID, projectID, id string) (*domain.Transformation, error) {
	if _, err := s.projects.GetByIDForOwner(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.transformations.GetByIDInProject(ctx, id, projectID)
}

// execute runs one script in the sandbox and records the terminal outcome.
// The status is forced to running first so observers see the phase; the
// output column stays untouched on failure.
func (s *TransformationService) execute(ctx context.Context, id, inputCsv, code string) (string, error) {
	if err := s.transformations.UpdateStatus(ctx, id, domain.TransformationStatusRunning); err != nil {
		return "", err
	}

	started := time.Now()
	output, execErr := s.executor.Execute(ctx, inputCsv, code)
	now := time.Now()

	if execErr != nil {
		msg := execErr.Error()
		logger.With(logger.Fields{logger.FieldDurationMs: now.Sub(started).Milliseconds()}).
			Warn(ctx, "Execution failed: id=%s, err=%s", id, msg)
		if err := s.transformations.UpdateExecutionResult(ctx, id, repository.ExecutionResult{
			Status:         domain.TransformationStatusError,
			ErrorMessage:   &msg,
			LastExecutedAt: now,
		}); err != nil {
			return "", err
		}
		return "", execErr
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: now.Sub(started).Milliseconds(),
		logger.FieldSize:       len(output),
	}).Info(ctx, "Execution completed: id=%s", id)

	if err := s.transformations.UpdateExecutionResult(ctx, id, repository.ExecutionResult{
		Status:         domain.TransformationStatusCompleted,
		OutputCsv:      &output,
		LastExecutedAt: now,
	}); err != nil {
		// The sandbox already ran; the caller still gets the true result.
		return output, nil
	}
	return output, nil
}

// cascadeReExecute re-runs every direct child holding code against the new
// parent output, recursing on success. When a child's execution fails its
// entire subtree is marked stale and that branch is not descended further.
func (s *TransformationService) cascadeReExecute(ctx context.Context, rows []domain.Transformation, parentID, parentOutput string) {
	for _, child := range rows {
		if child.ParentID == nil || *child.ParentID != parentID {
			continue
		}
		if child.CodeSnippet == nil || *child.CodeSnippet == "" {
			continue
		}

		output, err := s.execute(ctx, child.ID, parentOutput, *child.CodeSnippet)
		if err != nil {
			descendants := domain.CollectDescendantIDs(rows, child.ID)
			if len(descendants) > 0 {
				if staleErr := s.transformations.MarkStale(ctx, descendants); staleErr != nil {
					logger.CtxError(ctx, "Failed to mark descendants stale: id=%s, err=%v", child.ID, staleErr)
				}
			}
			continue
		}

		s.cascadeReExecute(ctx, rows, child.ID, output)
	}
}

// recordFailure marks a transformation as failed with a message and
// returns the refreshed row.
func (s *TransformationService) recordFailure(ctx context.Context, id, message string) (*domain.Transformation, error) {
	if err := s.transformations.UpdateExecutionResult(ctx, id, repository.ExecutionResult{
		Status:         domain.TransformationStatusError,
		ErrorMessage:   &message,
		LastExecutedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	return s.transformations.GetByID(ctx, id)
}
