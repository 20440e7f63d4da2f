package models

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DateLayout is the wire format of Task.DueDate.
const DateLayout = "2006-01-02"

var (
	TaskStatuses   = []string{StatusPending, StatusInProgress, StatusCompleted}
	TaskPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}
)

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID  `json:"user" gorm:"type:uuid;not null;index"`
	Title       string     `json:"title" gorm:"size:255;not null"`
	Description *string    `json:"description"`
	Status      string     `json:"status" gorm:"size:20;not null;default:'pending';index"`
	Priority    string     `json:"priority" gorm:"size:10;not null;default:'medium';index"`
	DueDate     *time.Time `json:"-" gorm:"type:date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// DueDateString renders the due date in DateLayout, or nil when unset.
func (t *Task) DueDateString() *string {
	if t.DueDate == nil {
		return nil
	}
	s := t.DueDate.Format(DateLayout)
	return &s
}

func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		DueDate *string `json:"due_date"`
	}{plain(t), t.DueDateString()})
}
