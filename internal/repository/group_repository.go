package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuslab/capstone-api/internal/models"
)

// GroupRepository handles persistence of student groups and memberships.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByID returns a group by its ID.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	const query = `SELECT id, name, description, faculty_id, creator_id, created_at FROM student_groups WHERE id = $1`
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// FindDetailByID returns a group with faculty and creator names resolved.
func (r *GroupRepository) FindDetailByID(ctx context.Context, id string) (*models.GroupDetail, error) {
	const query = `SELECT g.id, g.name, g.description, g.faculty_id, g.creator_id, g.created_at,
        COALESCE(f.full_name, '') AS faculty_name, COALESCE(c.full_name, '') AS creator_name
        FROM student_groups g
        LEFT JOIN users f ON f.id = g.faculty_id
        LEFT JOIN users c ON c.id = g.creator_id
        WHERE g.id = $1`
	var detail models.GroupDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group detail: %w", err)
	}
	return &detail, nil
}

// CreateWithMemberships inserts the group, its membership rows, and the group
// reference on every involved user inside a single transaction. The creator
// row arrives accepted, invitee rows pending.
func (r *GroupRepository) CreateWithMemberships(ctx context.Context, group *models.StudentGroup, memberships []models.GroupMembership) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create group: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const groupQuery = `INSERT INTO student_groups (id, name, description, faculty_id, creator_id, created_at)
        VALUES (:id, :name, :description, :faculty_id, :creator_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, groupQuery, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	const memberQuery = `INSERT INTO group_memberships (id, group_id, user_id, status, invited_at, responded_at)
        VALUES (:id, :group_id, :user_id, :status, :invited_at, :responded_at)`
	const userQuery = `UPDATE users SET group_id = $2, updated_at = $3 WHERE id = $1`
	now := time.Now().UTC()
	for i := range memberships {
		memberships[i].GroupID = group.ID
		if memberships[i].ID == "" {
			memberships[i].ID = uuid.NewString()
		}
		if memberships[i].InvitedAt.IsZero() {
			memberships[i].InvitedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, memberQuery, memberships[i]); err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		if _, err := tx.ExecContext(ctx, userQuery, memberships[i].UserID, group.ID, now); err != nil {
			return fmt.Errorf("set member group ref: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create group: %w", err)
	}
	return nil
}

// FindMembershipByUser returns the user's single membership row, if any.
func (r *GroupRepository) FindMembershipByUser(ctx context.Context, userID string) (*models.GroupMembership, error) {
	const query = `SELECT id, group_id, user_id, status, invited_at, responded_at FROM group_memberships WHERE user_id = $1 LIMIT 1`
	var membership models.GroupMembership
	if err := r.db.GetContext(ctx, &membership, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find membership by user: %w", err)
	}
	return &membership, nil
}

// FindMembership returns the membership row for a user in a specific group.
func (r *GroupRepository) FindMembership(ctx context.Context, groupID, userID string) (*models.GroupMembership, error) {
	const query = `SELECT id, group_id, user_id, status, invited_at, responded_at FROM group_memberships WHERE group_id = $1 AND user_id = $2 LIMIT 1`
	var membership models.GroupMembership
	if err := r.db.GetContext(ctx, &membership, query, groupID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &membership, nil
}

// ListMembers returns all membership rows for a group with member identity.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]models.GroupMemberDetail, error) {
	const query = `SELECT m.id, m.group_id, m.user_id, m.status, m.invited_at, m.responded_at,
        u.full_name, u.email, u.enrollment_number
        FROM group_memberships m
        JOIN users u ON u.id = m.user_id
        WHERE m.group_id = $1
        ORDER BY m.invited_at ASC`
	var members []models.GroupMemberDetail
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// AcceptMembership flips a pending membership to accepted.
func (r *GroupRepository) AcceptMembership(ctx context.Context, id string) error {
	const query = `UPDATE group_memberships SET status = $2, responded_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.MembershipStatusAccepted, time.Now().UTC()); err != nil {
		return fmt.Errorf("accept membership: %w", err)
	}
	return nil
}

// RemoveMembership deletes the membership row, clears the user's group
// reference, and deletes the group when no memberships remain. The empty
// group cascade is deliberate: nothing at the schema level provides it, and
// leaving empty groups behind would clutter the available-group listing.
// Returns true when the group itself was removed.
func (r *GroupRepository) RemoveMembership(ctx context.Context, membershipID, userID, groupID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin remove membership: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_memberships WHERE id = $1`, membershipID); err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET group_id = NULL, updated_at = $2 WHERE id = $1`, userID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("clear member group ref: %w", err)
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM group_memberships WHERE group_id = $1`, groupID); err != nil {
		return false, fmt.Errorf("count remaining members: %w", err)
	}

	groupDeleted := false
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM student_groups WHERE id = $1`, groupID); err != nil {
			return false, fmt.Errorf("delete empty group: %w", err)
		}
		groupDeleted = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit remove membership: %w", err)
	}
	return groupDeleted, nil
}
