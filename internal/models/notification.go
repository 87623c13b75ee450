package models

import "time"

// Notification types.
const (
	// NotificationTypeEvaluation is used for notifications emitted after grading.
	NotificationTypeEvaluation = "evaluation"
	// NotificationTypeGeneric is assumed when a relayed event carries no type.
	NotificationTypeGeneric = "generic"
)

// Notification represents a message targeted to a specific user.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Type      string    `gorm:"size:64" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllModels lists every table managed by migrations.
func AllModels() []interface{} {
	return []interface{}{
		&Experiment{},
		&Task{},
		&Question{},
		&Submission{},
		&Evaluation{},
		&Notification{},
	}
}
