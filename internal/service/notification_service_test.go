package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuslab/capstone-api/internal/models"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
	"github.com/campuslab/capstone-api/pkg/jobs"
)

type mockNotificationRepo struct {
	mu       sync.Mutex
	stored   []*models.Notification
	byUser   map[string][]models.Notification
	markedOK bool
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, notification)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	return m.byUser[userID], nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	return m.markedOK, nil
}

func (m *mockNotificationRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func TestDispatchPersistsThroughWorkers(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, jobs.QueueConfig{Workers: 1, BufferSize: 4}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Dispatch("u2", "you have been invited")
	svc.Dispatch("u3", "you have been invited")

	assert.Eventually(t, func() bool {
		return repo.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchBeforeStartDoesNotPanic(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, jobs.QueueConfig{}, zap.NewNop())

	svc.Dispatch("u2", "dropped silently")
	assert.Zero(t, repo.count())
}

func TestListReturnsEmptySlice(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(repo, jobs.QueueConfig{}, zap.NewNop())

	notifications, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, notifications)
	assert.Empty(t, notifications)
}

func TestMarkReadUnknownNotification(t *testing.T) {
	repo := &mockNotificationRepo{markedOK: false}
	svc := NewNotificationService(repo, jobs.QueueConfig{}, zap.NewNop())

	err := svc.MarkRead(context.Background(), "u1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
