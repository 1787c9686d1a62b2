package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuslab/capstone-api/internal/models"
)

// TopicRepository handles persistence of project topics.
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository constructs the repository.
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// FindByID returns a topic by its ID.
func (r *TopicRepository) FindByID(ctx context.Context, id string) (*models.ProjectTopic, error) {
	const query = `SELECT id, title, description, technology, complexity, submitter_id, status, feedback, created_at, updated_at FROM project_topics WHERE id = $1`
	var topic models.ProjectTopic
	if err := r.db.GetContext(ctx, &topic, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find topic: %w", err)
	}
	return &topic, nil
}

// Create persists a new topic. Topics always start pending.
func (r *TopicRepository) Create(ctx context.Context, topic *models.ProjectTopic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = now
	}
	topic.UpdatedAt = now
	if topic.Status == "" {
		topic.Status = models.TopicStatusPending
	}
	const query = `INSERT INTO project_topics (id, title, description, technology, complexity, submitter_id, status, feedback, created_at, updated_at)
        VALUES (:id, :title, :description, :technology, :complexity, :submitter_id, :status, :feedback, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, topic); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// UpdateReview records the coordinator's decision and feedback. The WHERE
// clause guards the pending precondition so a lost-update race cannot flip a
// terminal status; callers must treat zero affected rows as a state conflict.
func (r *TopicRepository) UpdateReview(ctx context.Context, id string, status models.TopicStatus, feedback *string) (bool, error) {
	const query = `UPDATE project_topics SET status = $2, feedback = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, feedback, time.Now().UTC(), models.TopicStatusPending)
	if err != nil {
		return false, fmt.Errorf("update topic review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update topic review affected rows: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a topic permanently.
func (r *TopicRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM project_topics WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// List returns topics filtered by the provided criteria.
func (r *TopicRepository) List(ctx context.Context, filter models.TopicFilter) ([]models.TopicDetail, int, error) {
	base := `FROM project_topics t
LEFT JOIN users u ON u.id = t.submitter_id`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.SubmitterID != "" {
		conditions = append(conditions, fmt.Sprintf("t.submitter_id = $%d", len(args)+1))
		args = append(args, filter.SubmitterID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(t.title) LIKE $%d OR LOWER(t.technology) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "t.created_at",
		"title":      "t.title",
		"complexity": "t.complexity",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "t.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT t.id, t.title, t.description, t.technology, t.complexity, t.submitter_id, t.status, t.feedback, t.created_at, t.updated_at,
        COALESCE(u.full_name, '') AS submitter_name,
        EXISTS (SELECT 1 FROM student_projects sp WHERE sp.topic_id = t.id) AS taken
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var topics []models.TopicDetail
	if err := r.db.SelectContext(ctx, &topics, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list topics: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count topics: %w", err)
	}
	return topics, total, nil
}

// ListApproved returns every approved topic with its allocation state, used
// to build the student catalog.
func (r *TopicRepository) ListApproved(ctx context.Context) ([]models.TopicDetail, error) {
	const query = `SELECT t.id, t.title, t.description, t.technology, t.complexity, t.submitter_id, t.status, t.feedback, t.created_at, t.updated_at,
        COALESCE(u.full_name, '') AS submitter_name,
        EXISTS (SELECT 1 FROM student_projects sp WHERE sp.topic_id = t.id) AS taken
        FROM project_topics t
        LEFT JOIN users u ON u.id = t.submitter_id
        WHERE t.status = $1
        ORDER BY t.created_at DESC`
	var topics []models.TopicDetail
	if err := r.db.SelectContext(ctx, &topics, query, models.TopicStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved topics: %w", err)
	}
	return topics, nil
}

// IsAllocated reports whether any student project references the topic.
func (r *TopicRepository) IsAllocated(ctx context.Context, topicID string) (bool, error) {
	const query = `SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, topicID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check topic allocation: %w", err)
	}
	return true, nil
}
