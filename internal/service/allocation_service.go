package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/campuslab/capstone-api/internal/models"
	"github.com/campuslab/capstone-api/internal/repository"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
)

type allocationProjectRepository interface {
	Allocate(ctx context.Context, topicID string, studentIDs []string) ([]models.StudentProject, error)
	FindByID(ctx context.Context, id string) (*models.StudentProject, error)
	FindDetailByStudent(ctx context.Context, studentID string) (*models.ProjectDetail, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
}

type allocationTopicReader interface {
	FindByID(ctx context.Context, id string) (*models.ProjectTopic, error)
}

type allocationGroupReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
	FindMembershipByUser(ctx context.Context, userID string) (*models.GroupMembership, error)
	ListMembers(ctx context.Context, groupID string) ([]models.GroupMemberDetail, error)
}

type allocationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AllocationService binds approved topics to students and tracks project
// progress afterwards.
type AllocationService struct {
	projects allocationProjectRepository
	topics   allocationTopicReader
	groups   allocationGroupReader
	users    allocationUserReader
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewAllocationService constructs AllocationService.
func NewAllocationService(projects allocationProjectRepository, topics allocationTopicReader, groups allocationGroupReader, users allocationUserReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{projects: projects, topics: topics, groups: groups, users: users, cache: cache, metrics: metrics, logger: logger}
}

// SelectTopic allocates the topic to the caller, or to every accepted member
// of the caller's group when the caller is the group creator. The whole
// allocation is one transaction in the repository; this layer resolves who
// gets the topic and maps the transaction's refusals onto API errors.
func (s *AllocationService) SelectTopic(ctx context.Context, callerID, topicID string) ([]models.StudentProject, error) {
	topic, err := s.topics.FindByID(ctx, topicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAllocation("not_found")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	if topic.Status != models.TopicStatusApproved {
		s.metrics.RecordAllocation("not_approved")
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved topics can be selected")
	}

	studentIDs, err := s.resolveRecipients(ctx, callerID)
	if err != nil {
		return nil, err
	}

	projects, err := s.projects.Allocate(ctx, topicID, studentIDs)
	if repository.IsSerializationFailure(err) {
		// Two allocations raced; one of them lost the serializable
		// transaction. Retry once so the survivor's outcome is visible
		// before we answer.
		s.logger.Info("allocation serialization conflict, retrying",
			zap.String("topic_id", topicID))
		projects, err = s.projects.Allocate(ctx, topicID, studentIDs)
	}
	if err != nil {
		return nil, s.mapAllocationError(ctx, err)
	}

	s.metrics.RecordAllocation("success")
	if err := s.cache.Invalidate(ctx, TopicCachePattern); err != nil {
		s.logger.Warn("failed to invalidate topic cache", zap.Error(err))
	}
	return projects, nil
}

// resolveRecipients decides whose projects the allocation creates. Grouped
// callers must be the creator and allocate for every accepted member;
// invitees who have not responded yet are left out of the allocation.
func (s *AllocationService) resolveRecipients(ctx context.Context, callerID string) ([]string, error) {
	membership, err := s.groups.FindMembershipByUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{callerID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}

	group, err := s.groups.FindByID(ctx, membership.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if group.CreatorID != callerID {
		s.metrics.RecordAllocation("forbidden")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the group creator may select a topic for the group")
	}

	members, err := s.groups.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}

	studentIDs := make([]string, 0, len(members))
	for _, member := range members {
		if member.Status != models.MembershipStatusAccepted {
			continue
		}
		studentIDs = append(studentIDs, member.UserID)
	}
	return studentIDs, nil
}

func (s *AllocationService) mapAllocationError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordAllocation("not_found")
		return appErrors.Clone(appErrors.ErrNotFound, "topic not found")
	case errors.Is(err, repository.ErrTopicNotSelectable):
		s.metrics.RecordAllocation("not_approved")
		return appErrors.Clone(appErrors.ErrInvalidState, "only approved topics can be selected")
	case errors.Is(err, repository.ErrTopicAllocated):
		s.metrics.RecordAllocation("topic_taken")
		return appErrors.Clone(appErrors.ErrConflict, "topic has already been taken")
	}

	var allocated *repository.StudentAllocatedError
	if errors.As(err, &allocated) {
		s.metrics.RecordAllocation("student_busy")
		name := allocated.StudentID
		if user, lookupErr := s.users.FindByID(ctx, allocated.StudentID); lookupErr == nil {
			name = user.FullName
		}
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("%s already has a project", name))
	}

	s.metrics.RecordAllocation("error")
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate topic")
}

// UpdateProgress sets a project's completion percentage. Only the owning
// student or an admin may do it.
func (s *AllocationService) UpdateProgress(ctx context.Context, callerID string, callerRole models.UserRole, projectID string, progress int) (*models.StudentProject, error) {
	if progress < 0 || progress > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "progress must be between 0 and 100")
	}

	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if project.StudentID != callerID && callerRole != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may only update your own project")
	}

	if err := s.projects.UpdateProgress(ctx, projectID, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	project.Progress = progress
	return project, nil
}

// MyProject returns the caller's project with topic context.
func (s *AllocationService) MyProject(ctx context.Context, studentID string) (*models.ProjectDetail, error) {
	detail, err := s.projects.FindDetailByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "you have not selected a topic yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	withStatus := detail.WithStatus()
	return &withStatus, nil
}
