package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslab/capstone-api/internal/models"
)

func TestCreateWithMembershipsSetsGroupRefs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO student_groups").WillReturnResult(sqlmock.NewResult(1, 1))
	for range []int{0, 1, 2} {
		mock.ExpectExec("INSERT INTO group_memberships").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET group_id = $2, updated_at = $3 WHERE id = $1")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	now := time.Now().UTC()
	group := &models.StudentGroup{Name: "Team", FacultyID: "f1", CreatorID: "u1"}
	memberships := []models.GroupMembership{
		{UserID: "u1", Status: models.MembershipStatusAccepted, InvitedAt: now, RespondedAt: &now},
		{UserID: "u2", Status: models.MembershipStatusPending, InvitedAt: now},
		{UserID: "u3", Status: models.MembershipStatusPending, InvitedAt: now},
	}

	err := repo.CreateWithMemberships(context.Background(), group, memberships)
	require.NoError(t, err)
	assert.NotEmpty(t, group.ID)
	for _, m := range memberships {
		assert.Equal(t, group.ID, m.GroupID)
		assert.NotEmpty(t, m.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMembershipKeepsNonEmptyGroup(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_memberships WHERE id = $1")).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET group_id = NULL, updated_at = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM group_memberships WHERE group_id = $1")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	deleted, err := repo.RemoveMembership(context.Background(), "m1", "u1", "g1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMembershipDeletesEmptyGroup(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_memberships WHERE id = $1")).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET group_id = NULL, updated_at = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM group_memberships WHERE group_id = $1")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_groups WHERE id = $1")).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.RemoveMembership(context.Background(), "m1", "u1", "g1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptMembership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE group_memberships SET status = $2, responded_at = $3 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AcceptMembership(context.Background(), "m1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "group_id", "user_id", "status", "invited_at", "responded_at", "full_name", "email", "enrollment_number"}).
		AddRow("m1", "g1", "u1", "ACCEPTED", now, now, "Ana", "ana@uni.edu", "EN001").
		AddRow("m2", "g1", "u2", "PENDING", now, nil, "Ben", "ben@uni.edu", "EN002")
	mock.ExpectQuery("SELECT m.id, m.group_id").
		WithArgs("g1").
		WillReturnRows(rows)

	members, err := repo.ListMembers(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.MembershipStatusAccepted, members[0].Status)
	assert.Equal(t, models.MembershipStatusPending, members[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
