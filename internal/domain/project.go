package domain

import "time"

// MaxCSVSize is the upper bound for a project's root CSV content in bytes.
const MaxCSVSize = 1_000_000

// Project represents a user-owned dataset. The CSV content uploaded at
// creation time is the root of the project's transformation tree and is
// never mutated afterwards.
type Project struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	CSVContent  string    `gorm:"column:csv_content;type:text;not null" json:"csv_content"`
	OwnerUserID string    `gorm:"column:owner_user_id;type:text;not null;index:idx_projects_owner" json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Project.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Project) TableName() string {
	return "projects"
}
