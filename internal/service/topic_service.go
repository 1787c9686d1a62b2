package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuslab/capstone-api/internal/models"
	appErrors "github.com/campuslab/capstone-api/pkg/errors"
)

// topicCatalogCacheKey stores the shared approved-topic listing; the
// per-student fields of the catalog are always computed fresh.
const topicCatalogCacheKey = "topics:approved"

// TopicCachePattern matches every cached topic payload for invalidation.
const TopicCachePattern = "topics:*"

type topicRepository interface {
	FindByID(ctx context.Context, id string) (*models.ProjectTopic, error)
	Create(ctx context.Context, topic *models.ProjectTopic) error
	UpdateReview(ctx context.Context, id string, status models.TopicStatus, feedback *string) (bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error)
	ListApproved(ctx context.Context) ([]models.TopicDetail, error)
	IsAllocated(ctx context.Context, topicID string) (bool, error)
}

type topicUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type topicProjectReader interface {
	FindByStudent(ctx context.Context, studentID string) (*models.StudentProject, error)
}

// SubmitTopicRequest describes a teacher's topic submission.
type SubmitTopicRequest struct {
	Title       string                 `json:"title" validate:"required,max=200"`
	Description string                 `json:"description" validate:"required"`
	Technology  string                 `json:"technology" validate:"required"`
	Complexity  models.TopicComplexity `json:"complexity" validate:"required,oneof=EASY MEDIUM HARD"`
}

// ReviewTopicRequest carries the coordinator's decision.
type ReviewTopicRequest struct {
	Decision models.TopicStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Feedback string             `json:"feedback"`
}

// TopicService orchestrates the topic registry.
type TopicService struct {
	repo      topicRepository
	users     topicUserReader
	projects  topicProjectReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTopicService constructs TopicService.
func NewTopicService(repo topicRepository, users topicUserReader, projects topicProjectReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TopicService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicService{repo: repo, users: users, projects: projects, cache: cache, validator: validate, logger: logger}
}

// Submit registers a new pending topic for a teacher.
func (s *TopicService) Submit(ctx context.Context, submitterID string, req SubmitTopicRequest) (*models.ProjectTopic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}

	submitter, err := s.users.FindByID(ctx, submitterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submitter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitter")
	}
	if submitter.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers may submit topics")
	}

	topic := &models.ProjectTopic{
		Title:       req.Title,
		Description: req.Description,
		Technology:  req.Technology,
		Complexity:  req.Complexity,
		SubmitterID: submitterID,
		Status:      models.TopicStatusPending,
	}
	if err := s.repo.Create(ctx, topic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create topic")
	}
	return topic, nil
}

// Review records the coordinator's decision. Pending is the only reviewable
// state; approved and rejected are terminal.
func (s *TopicService) Review(ctx context.Context, id string, req ReviewTopicRequest) (*models.ProjectTopic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	topic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	if topic.Status != models.TopicStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic has already been reviewed")
	}

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}

	updated, err := s.repo.UpdateReview(ctx, id, req.Decision, feedback)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "topic has already been reviewed")
	}

	if err := s.cache.Invalidate(ctx, TopicCachePattern); err != nil {
		s.logger.Warn("failed to invalidate topic cache", zap.Error(err))
	}

	topic.Status = req.Decision
	topic.Feedback = feedback
	return topic, nil
}

// List returns topics with pagination metadata.
func (s *TopicService) List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, *models.Pagination, error) {
	topics, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return topics, pagination, nil
}

// Catalog builds the student-facing approved-topic view: the caller's own
// topic if allocated, plus every other approved topic split into available
// and taken.
func (s *TopicService) Catalog(ctx context.Context, studentID string) (*models.TopicCatalog, error) {
	var approved []models.TopicDetail
	hit, err := s.cache.Get(ctx, topicCatalogCacheKey, &approved)
	if err != nil || !hit {
		approved, err = s.repo.ListApproved(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved topics")
		}
		if err := s.cache.Set(ctx, topicCatalogCacheKey, approved, 0); err != nil {
			s.logger.Warn("failed to cache topic catalog", zap.Error(err))
		}
	}

	catalog := &models.TopicCatalog{
		AvailableTopics: []models.TopicDetail{},
		TakenTopics:     []models.TopicDetail{},
	}

	var myTopicID string
	project, err := s.projects.FindByStudent(ctx, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student project")
	}
	if project != nil {
		catalog.HasSelectedTopic = true
		myTopicID = project.TopicID
	}

	for _, topic := range approved {
		switch {
		case topic.ID == myTopicID:
			t := topic
			catalog.MyTopic = &t
		case topic.Taken:
			catalog.TakenTopics = append(catalog.TakenTopics, topic)
		default:
			catalog.AvailableTopics = append(catalog.AvailableTopics, topic)
		}
	}

	return catalog, nil
}

// Delete removes a topic. Allocated topics stay put; removing one would
// orphan live projects.
func (s *TopicService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}

	allocated, err := s.repo.IsAllocated(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check allocation")
	}
	if allocated {
		return appErrors.Clone(appErrors.ErrConflict, "topic is allocated to a project and cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete topic")
	}

	if err := s.cache.Invalidate(ctx, TopicCachePattern); err != nil {
		s.logger.Warn("failed to invalidate topic cache", zap.Error(err))
	}
	return nil
}
