package models

import "time"

// TopicStatus represents the review lifecycle of a project topic.
type TopicStatus string

// Topic lifecycle: PENDING is the only initial state; APPROVED and REJECTED
// are terminal. Re-review requires admin deletion and resubmission.
const (
	TopicStatusPending  TopicStatus = "PENDING"
	TopicStatusApproved TopicStatus = "APPROVED"
	TopicStatusRejected TopicStatus = "REJECTED"
)

// TopicComplexity is the submitting teacher's effort estimate.
type TopicComplexity string

const (
	ComplexityEasy   TopicComplexity = "EASY"
	ComplexityMedium TopicComplexity = "MEDIUM"
	ComplexityHard   TopicComplexity = "HARD"
)

// ProjectTopic is a capstone topic submitted by a teacher.
type ProjectTopic struct {
	ID          string          `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Technology  string          `db:"technology" json:"technology"`
	Complexity  TopicComplexity `db:"complexity" json:"complexity"`
	SubmitterID string          `db:"submitter_id" json:"submitter_id"`
	Status      TopicStatus     `db:"status" json:"status"`
	Feedback    *string         `db:"feedback" json:"feedback,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// TopicDetail enriches a topic with submitter info and allocation state.
type TopicDetail struct {
	ProjectTopic
	SubmitterName string `db:"submitter_name" json:"submitter_name"`
	Taken         bool   `db:"taken" json:"taken"`
}

// TopicFilter provides filters for listing topics.
type TopicFilter struct {
	Status      TopicStatus
	SubmitterID string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// TopicCatalog is the student-facing view of approved topics, categorized
// server-side into available and taken.
type TopicCatalog struct {
	HasSelectedTopic bool          `json:"has_selected_topic"`
	MyTopic          *TopicDetail  `json:"my_topic,omitempty"`
	AvailableTopics  []TopicDetail `json:"available_topics"`
	TakenTopics      []TopicDetail `json:"taken_topics"`
}
