package models

import "time"

// ProjectStatus is derived from progress, never stored independently.
type ProjectStatus string

const (
	ProjectStatusInProgress ProjectStatus = "IN_PROGRESS"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
)

// StudentProject binds one student to one approved topic. A group allocation
// creates one row per accepted member, all sharing the topic; the topic-level
// uniqueness check treats them as a single allocation event.
type StudentProject struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	TopicID    string    `db:"topic_id" json:"topic_id"`
	Progress   int       `db:"progress" json:"progress"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Status derives the lifecycle state from progress.
func (p *StudentProject) Status() ProjectStatus {
	if p != nil && p.Progress >= 100 {
		return ProjectStatusCompleted
	}
	return ProjectStatusInProgress
}

// ProjectDetail enriches a project with topic and student context.
type ProjectDetail struct {
	StudentProject
	TopicTitle  string        `db:"topic_title" json:"topic_title"`
	Technology  string        `db:"technology" json:"technology"`
	StudentName string        `db:"student_name" json:"student_name"`
	Status      ProjectStatus `json:"status"`
}

// WithStatus fills the derived status field.
func (d ProjectDetail) WithStatus() ProjectDetail {
	d.Status = d.StudentProject.Status()
	return d
}
