package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuslab/capstone-api/internal/models"
)

// Allocation sentinels surfaced by Allocate. They report the exact invariant
// the transaction refused to violate.
var (
	ErrTopicNotSelectable = errors.New("topic is not approved")
	ErrTopicAllocated     = errors.New("topic is already allocated")
)

// StudentAllocatedError names the member that already holds a project.
type StudentAllocatedError struct {
	StudentID string
}

func (e *StudentAllocatedError) Error() string {
	return fmt.Sprintf("student %s already has a project", e.StudentID)
}

// ProjectRepository handles persistence of student projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Allocate binds the topic to every listed student as one allocation event.
// The whole check-then-insert sequence runs in a serializable transaction
// with the topic row locked, so two concurrent callers cannot both claim the
// same topic and a member cannot be double-booked mid-flight.
func (r *ProjectRepository) Allocate(ctx context.Context, topicID string, studentIDs []string) ([]models.StudentProject, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin allocation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status models.TopicStatus
	err = tx.GetContext(ctx, &status, `SELECT status FROM project_topics WHERE id = $1 FOR UPDATE`, topicID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock topic: %w", err)
	}
	if status != models.TopicStatusApproved {
		return nil, ErrTopicNotSelectable
	}

	var taken int
	err = tx.GetContext(ctx, &taken, `SELECT 1 FROM student_projects WHERE topic_id = $1 LIMIT 1`, topicID)
	if err == nil {
		return nil, ErrTopicAllocated
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check topic allocation: %w", err)
	}

	for _, studentID := range studentIDs {
		var busy int
		err = tx.GetContext(ctx, &busy, `SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1`, studentID)
		if err == nil {
			return nil, &StudentAllocatedError{StudentID: studentID}
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("check student allocation: %w", err)
		}
	}

	now := time.Now().UTC()
	projects := make([]models.StudentProject, 0, len(studentIDs))
	const insertQuery = `INSERT INTO student_projects (id, student_id, topic_id, progress, assigned_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, studentID := range studentIDs {
		project := models.StudentProject{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			TopicID:    topicID,
			Progress:   0,
			AssignedAt: now,
			UpdatedAt:  now,
		}
		if _, err := tx.ExecContext(ctx, insertQuery, project.ID, project.StudentID, project.TopicID, project.Progress, project.AssignedAt, project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return projects, nil
}

// IsSerializationFailure reports whether the error is a Postgres
// serialization failure worth retrying.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}

// FindByID returns a project by its ID.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.StudentProject, error) {
	const query = `SELECT id, student_id, topic_id, progress, assigned_at, updated_at FROM student_projects WHERE id = $1`
	var project models.StudentProject
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return &project, nil
}

// FindByStudent returns the student's project, if any.
func (r *ProjectRepository) FindByStudent(ctx context.Context, studentID string) (*models.StudentProject, error) {
	const query = `SELECT id, student_id, topic_id, progress, assigned_at, updated_at FROM student_projects WHERE student_id = $1 LIMIT 1`
	var project models.StudentProject
	if err := r.db.GetContext(ctx, &project, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by student: %w", err)
	}
	return &project, nil
}

// FindDetailByStudent returns the student's project with topic context.
func (r *ProjectRepository) FindDetailByStudent(ctx context.Context, studentID string) (*models.ProjectDetail, error) {
	const query = `SELECT p.id, p.student_id, p.topic_id, p.progress, p.assigned_at, p.updated_at,
        t.title AS topic_title, t.technology, u.full_name AS student_name
        FROM student_projects p
        JOIN project_topics t ON t.id = p.topic_id
        JOIN users u ON u.id = p.student_id
        WHERE p.student_id = $1 LIMIT 1`
	var detail models.ProjectDetail
	if err := r.db.GetContext(ctx, &detail, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project detail: %w", err)
	}
	return &detail, nil
}

// ExistsForStudent checks whether the student already holds a project.
func (r *ProjectRepository) ExistsForStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM student_projects WHERE student_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student project: %w", err)
	}
	return true, nil
}

// UpdateProgress stores a new progress value for the project.
func (r *ProjectRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	const query = `UPDATE student_projects SET progress = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, progress, time.Now().UTC()); err != nil {
		return fmt.Errorf("update project progress: %w", err)
	}
	return nil
}
