package domain

import "time"

// DeclinedMessage is the sentinel error message recorded when a user
// declines execution of generated code. It distinguishes "Declined" from
// a generic execution failure in phase labels and UI surfaces.
const DeclinedMessage = "Execution declined by user."

// TransformationStatus represents the lifecycle status of a transformation.
// Values include TransformationStatusPending, TransformationStatusRunning,
// TransformationStatusCompleted, TransformationStatusError, and
// TransformationStatusStale.
type TransformationStatus string

const (
	TransformationStatusPending   TransformationStatus = "pending"
	TransformationStatusRunning   TransformationStatus = "running"
	TransformationStatusCompleted TransformationStatus = "completed"
	TransformationStatusError     TransformationStatus = "error"
	TransformationStatusStale     TransformationStatus = "stale"
)

// IsTerminal reports whether the status ends a transformation's lifecycle.
// Parameters: none.
// Returns:
//   - bool: true for completed, error, and stale.
func (s TransformationStatus) IsTerminal() bool {
	switch s {
	case TransformationStatusCompleted, TransformationStatusError, TransformationStatusStale:
		return true
	}
	return false
}

// Transformation is one user-requested, code-generated, sandbox-executed
// data transformation step. Transformations form a forest per project:
// a nil ParentID means the input is the project's root CSV, otherwise the
// input is the parent transformation's OutputCsv.
type Transformation struct {
	ID             string               `gorm:"type:text;primaryKey" json:"id"`
	ProjectID      string               `gorm:"column:project_id;type:text;not null;index:idx_transformations_project" json:"project_id"`
	ParentID       *string              `gorm:"column:parent_id;type:text;index:idx_transformations_parent" json:"parent_id"`
	Prompt         string               `gorm:"type:text;not null" json:"prompt"`
	CodeSnippet    *string              `gorm:"column:code_snippet;type:text" json:"code_snippet"`
	OutputCsv      *string              `gorm:"column:output_csv;type:text" json:"output_csv"`
	Status         TransformationStatus `gorm:"type:text;not null;index:idx_transformations_status;default:pending" json:"status"`
	ErrorMessage   *string              `gorm:"column:error_message;type:text" json:"error_message"`
	LastExecutedAt *time.Time           `gorm:"column:last_executed_at" json:"last_executed_at"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// TableName returns the database table name for Transformation.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Transformation) TableName() string {
	return "transformations"
}

// HasCode reports whether generated code has been persisted.
func (t *Transformation) HasCode() bool {
	return t.CodeSnippet != nil && *t.CodeSnippet != ""
}

// HasOutput reports whether a successful execution result is present.
func (t *Transformation) HasOutput() bool {
	return t.OutputCsv != nil && *t.OutputCsv != ""
}

// IsDeclined reports whether the transformation ended in the declined state.
func (t *Transformation) IsDeclined() bool {
	return t.Status == TransformationStatusError &&
		t.ErrorMessage != nil && *t.ErrorMessage == DeclinedMessage
}

// PhaseLabel returns the human-readable progress phase for a
// transformation, refining pending/running into the fine-grained phases
// used by the live progress feed.
// Parameters: none.
// Returns:
//   - string: phase label for display.
func (t *Transformation) PhaseLabel() string {
	switch t.Status {
	case TransformationStatusPending:
		if t.HasCode() {
			return "Awaiting approval"
		}
		return "Generating transformation code"
	case TransformationStatusRunning:
		return "Executing transformation"
	case TransformationStatusCompleted:
		return "Completed"
	case TransformationStatusError:
		if t.IsDeclined() {
			return "Declined"
		}
		return "Failed"
	}
	return "Stale"
}
