package models

import "time"

// MembershipStatus represents the state of a group membership row.
type MembershipStatus string

const (
	MembershipStatusPending  MembershipStatus = "PENDING"
	MembershipStatusAccepted MembershipStatus = "ACCEPTED"
)

// MaxGroupSize is the hard cap on members per group including the creator.
const MaxGroupSize = 5

// StudentGroup is a student-formed capstone team.
type StudentGroup struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	CreatorID   string    `db:"creator_id" json:"creator_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// GroupMembership links a student to a group. A student holds at most one
// membership row at any time, across all groups.
type GroupMembership struct {
	ID          string           `db:"id" json:"id"`
	GroupID     string           `db:"group_id" json:"group_id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Status      MembershipStatus `db:"status" json:"status"`
	InvitedAt   time.Time        `db:"invited_at" json:"invited_at"`
	RespondedAt *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
}

// GroupMemberDetail enriches a membership with the member's identity.
type GroupMemberDetail struct {
	GroupMembership
	FullName         string  `db:"full_name" json:"full_name"`
	Email            string  `db:"email" json:"email"`
	EnrollmentNumber *string `db:"enrollment_number" json:"enrollment_number,omitempty"`
}

// GroupDetail is the full group view returned to members.
type GroupDetail struct {
	StudentGroup
	FacultyName string              `db:"faculty_name" json:"faculty_name"`
	CreatorName string              `db:"creator_name" json:"creator_name"`
	Members     []GroupMemberDetail `json:"members"`
	MyStatus    MembershipStatus    `json:"my_status,omitempty"`
}
