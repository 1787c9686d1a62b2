package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslab/capstone-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestTopicFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "technology", "complexity", "submitter_id", "status", "feedback", "created_at", "updated_at"}).
		AddRow("t1", "Compiler", "Build one", "Go", "HARD", "teach1", "PENDING", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, technology, complexity, submitter_id, status, feedback, created_at, updated_at FROM project_topics WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(rows)

	topic, err := repo.FindByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusPending, topic.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicCreateStartsPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	mock.ExpectExec("INSERT INTO project_topics").WillReturnResult(sqlmock.NewResult(1, 1))

	topic := &models.ProjectTopic{Title: "Compiler", Description: "Build one", Technology: "Go", Complexity: models.ComplexityHard, SubmitterID: "teach1"}
	err := repo.Create(context.Background(), topic)
	require.NoError(t, err)
	assert.NotEmpty(t, topic.ID)
	assert.Equal(t, models.TopicStatusPending, topic.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicUpdateReviewGuardsPendingState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE project_topics SET status = $2, feedback = $3, updated_at = $4 WHERE id = $1 AND status = $5")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateReview(context.Background(), "t1", models.TopicStatusApproved, nil)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicUpdateReviewAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE project_topics SET status = $2, feedback = $3, updated_at = $4 WHERE id = $1 AND status = $5")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.UpdateReview(context.Background(), "t1", models.TopicStatusRejected, nil)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicIsAllocated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	allocated, err := repo.IsAllocated(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, allocated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicListApproved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTopicRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "technology", "complexity", "submitter_id", "status", "feedback", "created_at", "updated_at", "submitter_name", "taken"}).
		AddRow("t1", "Compiler", "Build one", "Go", "HARD", "teach1", "APPROVED", nil, now, now, "Prof. Ada", false).
		AddRow("t2", "Scheduler", "Cron", "Go", "MEDIUM", "teach1", "APPROVED", nil, now, now, "Prof. Ada", true)
	mock.ExpectQuery("SELECT t.id, t.title").
		WithArgs(string(models.TopicStatusApproved)).
		WillReturnRows(rows)

	topics, err := repo.ListApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.False(t, topics[0].Taken)
	assert.True(t, topics[1].Taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
