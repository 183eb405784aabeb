package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *TransformationRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Project{}, &domain.Transformation{}))
	return NewTransformationRepository(db)
}

func TestUpdateStatusIf(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID:        "t1",
		ProjectID: "p1",
		Prompt:    "step",
		Status:    domain.TransformationStatusPending,
	}))

	ok, err := repo.UpdateStatusIf(ctx, "t1", domain.TransformationStatusPending, domain.TransformationStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	// The pre-state no longer matches; the second transition is a no-op.
	ok, err = repo.UpdateStatusIf(ctx, "t1", domain.TransformationStatusPending, domain.TransformationStatusRunning)
	require.NoError(t, err)
	assert.False(t, ok)

	row, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransformationStatusRunning, row.Status)
}

func TestUpdateStatusIfClearsErrorMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	msg := "previous failure"
	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID:           "t1",
		ProjectID:    "p1",
		Prompt:       "step",
		Status:       domain.TransformationStatusError,
		ErrorMessage: &msg,
	}))

	ok, err := repo.UpdateStatusIf(ctx, "t1", domain.TransformationStatusError, domain.TransformationStatusRunning)
	require.NoError(t, err)
	require.True(t, ok)

	row, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, row.ErrorMessage)
}

func TestLatestCompletedWithOutput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	latest, err := repo.LatestCompletedWithOutput(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	out := "a\n1\n"

	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID: "old", ProjectID: "p1", Prompt: "old",
		Status: domain.TransformationStatusCompleted, OutputCsv: &out, LastExecutedAt: &older,
	}))
	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID: "new", ProjectID: "p1", Prompt: "new",
		Status: domain.TransformationStatusCompleted, OutputCsv: &out, LastExecutedAt: &newer,
	}))
	// Completed but output-less rows never become the default parent.
	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID: "hollow", ProjectID: "p1", Prompt: "hollow",
		Status: domain.TransformationStatusCompleted,
	}))
	// Neither do rows from other projects.
	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID: "foreign", ProjectID: "p2", Prompt: "foreign",
		Status: domain.TransformationStatusCompleted, OutputCsv: &out, LastExecutedAt: &newer,
	}))

	latest, err = repo.LatestCompletedWithOutput(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.ID)
}

func TestUpdateExecutionResultKeepsOutputOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	out := "a\n1\n"
	require.NoError(t, repo.Create(ctx, &domain.Transformation{
		ID: "t1", ProjectID: "p1", Prompt: "step",
		Status: domain.TransformationStatusCompleted, OutputCsv: &out,
	}))

	msg := "boom"
	require.NoError(t, repo.UpdateExecutionResult(ctx, "t1", ExecutionResult{
		Status:         domain.TransformationStatusError,
		ErrorMessage:   &msg,
		LastExecutedAt: time.Now(),
	}))

	row, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransformationStatusError, row.Status)
	require.NotNil(t, row.OutputCsv)
	assert.Equal(t, out, *row.OutputCsv)
}

func TestDeleteCascadeRemovesSubtreeOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &domain.Transformation{ID: "a", ProjectID: "p1", Prompt: "a", Status: domain.TransformationStatusCompleted}
	require.NoError(t, repo.Create(ctx, a))
	aID := a.ID
	require.NoError(t, repo.Create(ctx, &domain.Transformation{ID: "b", ProjectID: "p1", Prompt: "b", ParentID: &aID, Status: domain.TransformationStatusPending}))
	bID := "b"
	require.NoError(t, repo.Create(ctx, &domain.Transformation{ID: "c", ProjectID: "p1", Prompt: "c", ParentID: &bID, Status: domain.TransformationStatusPending}))
	require.NoError(t, repo.Create(ctx, &domain.Transformation{ID: "d", ProjectID: "p1", Prompt: "d", Status: domain.TransformationStatusPending}))

	b, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, repo.DeleteCascade(ctx, b))

	_, err = repo.GetByID(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)

	// Siblings and the parent survive.
	_, err = repo.GetByID(ctx, "a")
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, "d")
	assert.NoError(t, err)
}
