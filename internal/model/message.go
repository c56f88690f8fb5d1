package model

import "time"

// MessageKind selects the substitution source of a message.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageDateTime MessageKind = "datetime"
	MessageTask     MessageKind = "task"
	MessageRandom   MessageKind = "random"
)

// Message is user-authored display text with placeholders.
type Message struct {
	ID       string      `json:"id" db:"id"`
	UserID   string      `json:"user_id" db:"user_id"`
	Kind     MessageKind `json:"kind" db:"kind"`
	Nickname string      `json:"nickname" db:"nickname"`
	Text     string      `json:"text" db:"text"`

	// DateFormat is a strftime pattern for datetime messages.
	DateFormat string `json:"dateformat,omitempty" db:"dateformat"`
	// Timezone is an IANA zone name for datetime messages.
	Timezone string `json:"timezone,omitempty" db:"timezone"`

	// TaskID binds a task message to its task.
	TaskID *string `json:"task_id,omitempty" db:"task_id"`

	// Choices are the candidate texts of a random message.
	Choices StringList `json:"choices,omitempty" db:"choices"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
