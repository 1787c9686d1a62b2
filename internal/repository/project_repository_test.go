package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateIndividual(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM project_topics WHERE id = $1 FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1")).
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO student_projects").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	projects, err := repo.Allocate(context.Background(), "t1", []string{"u1"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "u1", projects[0].StudentID)
	assert.Equal(t, "t1", projects[0].TopicID)
	assert.Equal(t, 0, projects[0].Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateGroupInsertsEveryMember(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM project_topics WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1")).
		WillReturnError(sql.ErrNoRows)
	for _, id := range []string{"u1", "u2", "u3"} {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1")).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)
	}
	for range []string{"u1", "u2", "u3"} {
		mock.ExpectExec("INSERT INTO student_projects").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	projects, err := repo.Allocate(context.Background(), "t1", []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, projects, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateRefusesUnapprovedTopic(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM project_topics WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectRollback()

	_, err := repo.Allocate(context.Background(), "t1", []string{"u1"})
	require.ErrorIs(t, err, ErrTopicNotSelectable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateRefusesTakenTopic(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM project_topics WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Allocate(context.Background(), "t1", []string{"u1"})
	require.ErrorIs(t, err, ErrTopicAllocated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocateRefusesBusyStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM project_topics WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1")).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Allocate(context.Background(), "t1", []string{"u2"})
	var busy *StudentAllocatedError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "u2", busy.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pq.Error{Code: "40001"}))
	assert.False(t, IsSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
	assert.False(t, IsSerializationFailure(nil))
}

func TestUpdateProjectProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_projects SET progress = $2, updated_at = $3 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProgress(context.Background(), "p1", 75)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1")).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsForStudent(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
