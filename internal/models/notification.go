package models

import "time"

type NotificationType string

const (
	NotificationNewInvestment       NotificationType = "new_investment"
	NotificationInvestmentCompleted NotificationType = "investment_completed"
	NotificationProjectApproved     NotificationType = "project_approved"
	NotificationProjectRejected     NotificationType = "project_rejected"
	NotificationProjectFunded       NotificationType = "project_funded"
	NotificationProjectFailed       NotificationType = "project_failed"
	NotificationNewMessage          NotificationType = "new_message"
	NotificationProjectUpdate       NotificationType = "project_update"
	NotificationNewComment          NotificationType = "new_comment"
	NotificationProjectDeadline     NotificationType = "project_deadline"
	NotificationWelcome             NotificationType = "welcome"
	NotificationSystem              NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewInvestment, NotificationInvestmentCompleted, NotificationProjectApproved,
		NotificationProjectRejected, NotificationProjectFunded, NotificationProjectFailed,
		NotificationNewMessage, NotificationProjectUpdate, NotificationNewComment,
		NotificationProjectDeadline, NotificationWelcome, NotificationSystem:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification belongs to exactly one user. Rows are produced by business
// events outside the messaging core; here they are only pushed and marked read.
type Notification struct {
	ID           string           `json:"id" db:"id" bson:"_id"`
	UserID       string           `json:"user_id" db:"user_id" bson:"userId"`
	Type         NotificationType `json:"notification_type" db:"notification_type" bson:"notificationType"`
	Title        string           `json:"title" db:"title" bson:"title"`
	Message      string           `json:"message" db:"message" bson:"message"`
	Link         string           `json:"link,omitempty" db:"link" bson:"link,omitempty"`
	ProjectID    *string          `json:"project_id,omitempty" db:"project_id" bson:"projectId,omitempty"`
	InvestmentID *string          `json:"investment_id,omitempty" db:"investment_id" bson:"investmentId,omitempty"`
	IsRead       bool             `json:"is_read" db:"is_read" bson:"isRead"`
	ReadAt       *time.Time       `json:"read_at,omitempty" db:"read_at" bson:"readAt,omitempty"`
	Priority     Priority         `json:"priority" db:"priority" bson:"priority"`
	EmailSent    bool             `json:"-" db:"email_sent" bson:"emailSent"`
	EmailSentAt  *time.Time       `json:"-" db:"email_sent_at" bson:"emailSentAt,omitempty"`
	PushSent     bool             `json:"-" db:"push_sent" bson:"pushSent"`
	PushSentAt   *time.Time       `json:"-" db:"push_sent_at" bson:"pushSentAt,omitempty"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at" bson:"createdAt"`
}
