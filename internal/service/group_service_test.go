package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuslab/capstone-api/internal/models"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
)

type mockGroupRepo struct {
	groups       map[string]*models.StudentGroup
	details      map[string]*models.GroupDetail
	memberships  map[string]*models.GroupMembership // keyed by user id
	members      map[string][]models.GroupMemberDetail
	created      *models.StudentGroup
	createdRows  []models.GroupMembership
	accepted     []string
	removed      []string
	groupDeleted bool
}

func (m *mockGroupRepo) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	if g, ok := m.groups[id]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) FindDetailByID(ctx context.Context, id string) (*models.GroupDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	if g, ok := m.groups[id]; ok {
		return &models.GroupDetail{StudentGroup: *g}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) CreateWithMemberships(ctx context.Context, group *models.StudentGroup, memberships []models.GroupMembership) error {
	group.ID = "g1"
	m.created = group
	m.createdRows = memberships
	if m.groups == nil {
		m.groups = make(map[string]*models.StudentGroup)
	}
	m.groups[group.ID] = group
	return nil
}

func (m *mockGroupRepo) FindMembershipByUser(ctx context.Context, userID string) (*models.GroupMembership, error) {
	if ms, ok := m.memberships[userID]; ok {
		return ms, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) FindMembership(ctx context.Context, groupID, userID string) (*models.GroupMembership, error) {
	if ms, ok := m.memberships[userID]; ok && ms.GroupID == groupID {
		return ms, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) ListMembers(ctx context.Context, groupID string) ([]models.GroupMemberDetail, error) {
	return m.members[groupID], nil
}

func (m *mockGroupRepo) AcceptMembership(ctx context.Context, id string) error {
	m.accepted = append(m.accepted, id)
	return nil
}

func (m *mockGroupRepo) RemoveMembership(ctx context.Context, membershipID, userID, groupID string) (bool, error) {
	m.removed = append(m.removed, membershipID)
	return m.groupDeleted, nil
}

type mockGroupUsers struct {
	byID         map[string]*models.User
	byEnrollment map[string]*models.User
}

func (m *mockGroupUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupUsers) FindByEnrollmentNumber(ctx context.Context, enrollment string) (*models.User, error) {
	if u, ok := m.byEnrollment[enrollment]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	dispatched map[string]string
}

func (m *mockNotifier) Dispatch(userID, message string) {
	if m.dispatched == nil {
		m.dispatched = make(map[string]string)
	}
	m.dispatched[userID] = message
}

func studentUser(id, enrollment string) *models.User {
	e := enrollment
	return &models.User{ID: id, FullName: "Student " + id, Role: models.RoleStudent, EnrollmentNumber: &e, Active: true}
}

func newGroupFixture() (*mockGroupRepo, *mockGroupUsers, *mockNotifier) {
	creator := studentUser("u1", "EN001")
	repo := &mockGroupRepo{
		groups:      map[string]*models.StudentGroup{},
		details:     map[string]*models.GroupDetail{},
		memberships: map[string]*models.GroupMembership{},
		members:     map[string][]models.GroupMemberDetail{},
	}
	users := &mockGroupUsers{
		byID: map[string]*models.User{
			"u1": creator,
			"f1": {ID: "f1", FullName: "Dr. Mentor", Role: models.RoleTeacher, Active: true},
		},
		byEnrollment: map[string]*models.User{
			"EN001": creator,
			"EN002": studentUser("u2", "EN002"),
			"EN003": studentUser("u3", "EN003"),
			"EN004": studentUser("u4", "EN004"),
			"EN005": studentUser("u5", "EN005"),
			"EN006": studentUser("u6", "EN006"),
		},
	}
	return repo, users, &mockNotifier{}
}

func TestGroupCreateInvitesPendingAndNotifies(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	group, err := svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name:              "Team Rocket",
		FacultyID:         "f1",
		EnrollmentNumbers: []string{"EN002", "EN003"},
	})
	require.NoError(t, err)
	require.NotNil(t, group)

	require.Len(t, repo.createdRows, 3)
	assert.Equal(t, "u1", repo.createdRows[0].UserID)
	assert.Equal(t, models.MembershipStatusAccepted, repo.createdRows[0].Status)
	for _, row := range repo.createdRows[1:] {
		assert.Equal(t, models.MembershipStatusPending, row.Status)
	}

	assert.Len(t, notifier.dispatched, 2)
	assert.Contains(t, notifier.dispatched, "u2")
	assert.Contains(t, notifier.dispatched, "u3")
	assert.NotContains(t, notifier.dispatched, "u1")
}

func TestGroupCreateInviteeBounds(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name: "Solo", FacultyID: "f1", EnrollmentNumbers: []string{"EN002"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name: "Crowd", FacultyID: "f1",
		EnrollmentNumbers: []string{"EN002", "EN003", "EN004", "EN005", "EN006"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestGroupCreateRejectsGroupedCreator(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.memberships["u1"] = &models.GroupMembership{ID: "m1", GroupID: "g0", UserID: "u1", Status: models.MembershipStatusAccepted}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name: "Second", FacultyID: "f1", EnrollmentNumbers: []string{"EN002", "EN003"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGroupCreateRejectsGroupedInvitee(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g0", UserID: "u2", Status: models.MembershipStatusPending}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name: "Team", FacultyID: "f1", EnrollmentNumbers: []string{"EN002", "EN003"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, notifier.dispatched)
}

func TestGroupCreateFacultyMustBeTeacher(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	users.byID["f1"].Role = models.RoleAdmin
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "u1", CreateGroupRequest{
		Name: "Team", FacultyID: "f1", EnrollmentNumbers: []string{"EN002", "EN003"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAcceptInviteFlipsPending(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.groups["g1"] = &models.StudentGroup{ID: "g1", Name: "Team", CreatorID: "u1"}
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Status: models.MembershipStatusPending}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	group, err := svc.AcceptInvite(context.Background(), "u2", "g1")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusAccepted, group.MyStatus)
	assert.Equal(t, []string{"m2"}, repo.accepted)
}

func TestAcceptInviteIdempotent(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.groups["g1"] = &models.StudentGroup{ID: "g1", Name: "Team", CreatorID: "u1"}
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Status: models.MembershipStatusAccepted}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.AcceptInvite(context.Background(), "u2", "g1")
	require.NoError(t, err)
	assert.Empty(t, repo.accepted)
}

func TestAcceptInviteWithoutInvitation(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.AcceptInvite(context.Background(), "u9", "g1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRejectInviteRemovesPendingRow(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Status: models.MembershipStatusPending}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	err := svc.RejectInvite(context.Background(), "u2", "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, repo.removed)
}

func TestRejectInviteAfterAccepting(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Status: models.MembershipStatusAccepted}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	err := svc.RejectInvite(context.Background(), "u2", "g1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.removed)
}

func TestLeaveGroupDeletesEmptyGroup(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.memberships["u1"] = &models.GroupMembership{ID: "m1", GroupID: "g1", UserID: "u1", Status: models.MembershipStatusAccepted}
	repo.groupDeleted = true
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	deleted, err := svc.Leave(context.Background(), "u1", "g1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"m1"}, repo.removed)
}

func TestMyGroupReportsOwnStatus(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	repo.groups["g1"] = &models.StudentGroup{ID: "g1", Name: "Team", CreatorID: "u1"}
	repo.memberships["u2"] = &models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Status: models.MembershipStatusPending}
	repo.members["g1"] = []models.GroupMemberDetail{
		{GroupMembership: models.GroupMembership{UserID: "u1", Status: models.MembershipStatusAccepted}, FullName: "Student u1"},
		{GroupMembership: models.GroupMembership{UserID: "u2", Status: models.MembershipStatusPending}, FullName: "Student u2"},
	}
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	group, err := svc.MyGroup(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusPending, group.MyStatus)
	assert.Len(t, group.Members, 2)
}

func TestMyGroupWithoutMembership(t *testing.T) {
	repo, users, notifier := newGroupFixture()
	svc := NewGroupService(repo, users, notifier, 2, 4, validator.New(), zap.NewNop())

	_, err := svc.MyGroup(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
