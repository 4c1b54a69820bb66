package models

import "time"

/************************************************
/**** MARK: STATUS JOB STATUS ****/
/************************************************/
const STATUS_JOB_PENDING = "pending"
const STATUS_JOB_PROCESSING = "processing"
const STATUS_JOB_DONE = "done"
const STATUS_JOB_SKIPPED = "skipped"

// StatusJob is a scheduled local status transition for a message that has no
// provider behind it. It enters as "pending" and the worker applies it once
// ScheduledAt has passed.
type StatusJob struct {
	ID           int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	MessageID    string     `gorm:"not null;index" json:"message_id"`
	ThreadID     string     `gorm:"not null;index" json:"thread_id"`
	TargetStatus string     `gorm:"not null" json:"target_status"`
	Status       string     `gorm:"not null;default:'pending';index" json:"status"`
	ScheduledAt  *time.Time `gorm:"index" json:"scheduled_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}
