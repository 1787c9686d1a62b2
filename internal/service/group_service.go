package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuslab/capstone-api/internal/models"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
)

type groupRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
	FindDetailByID(ctx context.Context, id string) (*models.GroupDetail, error)
	CreateWithMemberships(ctx context.Context, group *models.StudentGroup, memberships []models.GroupMembership) error
	FindMembershipByUser(ctx context.Context, userID string) (*models.GroupMembership, error)
	FindMembership(ctx context.Context, groupID, userID string) (*models.GroupMembership, error)
	ListMembers(ctx context.Context, groupID string) ([]models.GroupMemberDetail, error)
	AcceptMembership(ctx context.Context, id string) error
	RemoveMembership(ctx context.Context, membershipID, userID, groupID string) (bool, error)
}

type groupUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEnrollmentNumber(ctx context.Context, enrollmentNumber string) (*models.User, error)
}

// inviteNotifier delivers fire-and-forget invitation messages.
type inviteNotifier interface {
	Dispatch(userID, message string)
}

// CreateGroupRequest describes group formation.
type CreateGroupRequest struct {
	Name              string   `json:"name" validate:"required,max=100"`
	Description       string   `json:"description"`
	FacultyID         string   `json:"faculty_id" validate:"required"`
	EnrollmentNumbers []string `json:"enrollment_numbers" validate:"required"`
}

// GroupService orchestrates group formation and membership state.
type GroupService struct {
	repo        groupRepository
	users       groupUserReader
	notifier    inviteNotifier
	minInvitees int
	maxInvitees int
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGroupService constructs GroupService.
func NewGroupService(repo groupRepository, users groupUserReader, notifier inviteNotifier, minInvitees, maxInvitees int, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if minInvitees <= 0 {
		minInvitees = 2
	}
	if maxInvitees <= 0 || maxInvitees > models.MaxGroupSize-1 {
		maxInvitees = models.MaxGroupSize - 1
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, users: users, notifier: notifier, minInvitees: minInvitees, maxInvitees: maxInvitees, validator: validate, logger: logger}
}

// Create forms a new group. The creator becomes the sole accepted member;
// every invitee gets a pending membership and a notification.
func (s *GroupService) Create(ctx context.Context, creatorID string, req CreateGroupRequest) (*models.GroupDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	if len(req.EnrollmentNumbers) < s.minInvitees || len(req.EnrollmentNumbers) > s.maxInvitees {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("a group requires between %d and %d invitees", s.minInvitees, s.maxInvitees))
	}

	creator, err := s.users.FindByID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "creator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load creator")
	}
	if !creator.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may create groups")
	}
	if _, err := s.repo.FindMembershipByUser(ctx, creatorID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already belong to a group")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check creator membership")
	}

	faculty, err := s.users.FindByID(ctx, req.FacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty mentor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty mentor")
	}
	if faculty.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty mentor not found")
	}

	seen := make(map[string]struct{}, len(req.EnrollmentNumbers))
	invitees := make([]*models.User, 0, len(req.EnrollmentNumbers))
	for _, enrollment := range req.EnrollmentNumbers {
		if _, dup := seen[enrollment]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate invitee %s", enrollment))
		}
		seen[enrollment] = struct{}{}

		invitee, err := s.users.FindByEnrollmentNumber(ctx, enrollment)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no student with enrollment number %s", enrollment))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve invitee")
		}
		if !invitee.IsStudent() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a student", enrollment))
		}
		if invitee.ID == creatorID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "you cannot invite yourself")
		}
		if _, err := s.repo.FindMembershipByUser(ctx, invitee.ID); err == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s already belongs to a group", enrollment))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check invitee membership")
		}
		invitees = append(invitees, invitee)
	}

	group := &models.StudentGroup{
		Name:        req.Name,
		Description: req.Description,
		FacultyID:   req.FacultyID,
		CreatorID:   creatorID,
	}

	now := time.Now().UTC()
	memberships := make([]models.GroupMembership, 0, len(invitees)+1)
	memberships = append(memberships, models.GroupMembership{
		UserID:      creatorID,
		Status:      models.MembershipStatusAccepted,
		InvitedAt:   now,
		RespondedAt: &now,
	})
	for _, invitee := range invitees {
		memberships = append(memberships, models.GroupMembership{
			UserID:    invitee.ID,
			Status:    models.MembershipStatusPending,
			InvitedAt: now,
		})
	}

	if err := s.repo.CreateWithMemberships(ctx, group, memberships); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}

	if s.notifier != nil {
		message := fmt.Sprintf("%s invited you to join group %q", creator.FullName, group.Name)
		for _, invitee := range invitees {
			s.notifier.Dispatch(invitee.ID, message)
		}
	}

	return s.detail(ctx, group.ID, models.MembershipStatusAccepted)
}

// AcceptInvite flips the caller's pending membership to accepted. Accepting
// an already-accepted membership is a no-op.
func (s *GroupService) AcceptInvite(ctx context.Context, userID, groupID string) (*models.GroupDetail, error) {
	membership, err := s.repo.FindMembership(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no invitation for this group")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}

	if membership.Status != models.MembershipStatusAccepted {
		if err := s.repo.AcceptMembership(ctx, membership.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept invite")
		}
	}

	return s.detail(ctx, groupID, models.MembershipStatusAccepted)
}

// RejectInvite deletes the caller's pending membership and clears the group
// reference, leaving the caller free to join or create elsewhere.
func (s *GroupService) RejectInvite(ctx context.Context, userID, groupID string) error {
	membership, err := s.repo.FindMembership(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no invitation for this group")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	if membership.Status != models.MembershipStatusPending {
		return appErrors.Clone(appErrors.ErrInvalidState, "invitation already accepted; leave the group instead")
	}

	if _, err := s.repo.RemoveMembership(ctx, membership.ID, userID, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject invite")
	}
	return nil
}

// Leave removes the caller's membership regardless of status. When the last
// membership goes, the group record goes with it.
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) (bool, error) {
	membership, err := s.repo.FindMembership(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "you are not a member of this group")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}

	groupDeleted, err := s.repo.RemoveMembership(ctx, membership.ID, userID, groupID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave group")
	}
	if groupDeleted {
		s.logger.Info("group deleted after last member left", zap.String("group_id", groupID))
	}
	return groupDeleted, nil
}

// MyGroup returns the caller's group with members and the caller's own
// membership status.
func (s *GroupService) MyGroup(ctx context.Context, userID string) (*models.GroupDetail, error) {
	membership, err := s.repo.FindMembershipByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "you do not belong to a group")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return s.detail(ctx, membership.GroupID, membership.Status)
}

func (s *GroupService) detail(ctx context.Context, groupID string, myStatus models.MembershipStatus) (*models.GroupDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	members, err := s.repo.ListMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}
	detail.Members = members
	detail.MyStatus = myStatus
	return detail, nil
}
