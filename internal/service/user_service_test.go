package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuslab/capstone-api/internal/models"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
)

type mockUserRepo struct {
	byEmail      map[string]*models.User
	byID         map[string]*models.User
	byEnrollment map[string]*models.User
	roleCounts   map[models.UserRole]int
	created      *models.User
	updated      *models.User
	auditLogs    []*models.AuditLog
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEnrollmentNumber(ctx context.Context, enrollment string) (*models.User, error) {
	if u, ok := m.byEnrollment[enrollment]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return m.roleCounts[role], nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.updated = user
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users := make([]models.User, 0, len(m.byID))
	for _, u := range m.byID {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byEmail:      map[string]*models.User{},
		byID:         map[string]*models.User{},
		byEnrollment: map[string]*models.User{},
		roleCounts:   map[models.UserRole]int{},
	}
}

func TestRegisterStudent(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email: "ana@uni.edu", Password: "secret1", FullName: "Ana",
		Role: models.RoleStudent, EnrollmentNumber: "EN001",
	})
	require.NoError(t, err)
	assert.True(t, user.Active)
	require.NotNil(t, user.EnrollmentNumber)
	assert.Equal(t, "EN001", *user.EnrollmentNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
	assert.Len(t, repo.auditLogs, 1)
}

func TestRegisterStudentRequiresEnrollment(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "ana@uni.edu", Password: "secret1", FullName: "Ana", Role: models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegisterTeacherRejectsEnrollment(t *testing.T) {
	repo := newUserRepo()
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "prof@uni.edu", Password: "secret1", FullName: "Prof",
		Role: models.RoleTeacher, EnrollmentNumber: "EN001",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newUserRepo()
	repo.byEmail["ana@uni.edu"] = &models.User{ID: "u1", Email: "ana@uni.edu"}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "ana@uni.edu", Password: "secret1", FullName: "Ana",
		Role: models.RoleStudent, EnrollmentNumber: "EN001",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegisterDuplicateEnrollmentNumber(t *testing.T) {
	repo := newUserRepo()
	repo.byEnrollment["EN001"] = &models.User{ID: "u1"}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "ben@uni.edu", Password: "secret1", FullName: "Ben",
		Role: models.RoleStudent, EnrollmentNumber: "EN001",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegisterSecondCoordinatorRefused(t *testing.T) {
	repo := newUserRepo()
	repo.roleCounts[models.RoleCoordinator] = 1
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "coord2@uni.edu", Password: "secret1", FullName: "Second",
		Role: models.RoleCoordinator,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestRegisterSecondAdminRefused(t *testing.T) {
	repo := newUserRepo()
	repo.roleCounts[models.RoleAdmin] = 1
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "admin2@uni.edu", Password: "secret1", FullName: "Second",
		Role: models.RoleAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegisterManyTeachersAllowed(t *testing.T) {
	repo := newUserRepo()
	repo.roleCounts[models.RoleTeacher] = 40
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email: "prof41@uni.edu", Password: "secret1", FullName: "Prof 41",
		Role: models.RoleTeacher,
	})
	require.NoError(t, err)
}

func TestUpdateUserEmailConflict(t *testing.T) {
	repo := newUserRepo()
	repo.byID["u1"] = &models.User{ID: "u1", Email: "old@uni.edu", FullName: "Old"}
	repo.byEmail["taken@uni.edu"] = &models.User{ID: "u2", Email: "taken@uni.edu"}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	active := true
	_, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		Email: "taken@uni.edu", FullName: "New", Active: &active,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
