package importer

import (
	"time"

	"gorm.io/gorm"
)

// ExperimentRow is the analytical projection of one experiment.
type ExperimentRow struct {
	ID         string `gorm:"primaryKey"`
	Label      string
	Status     string
	AgentA     string
	AgentB     string
	MaxTurns   int
	Profile    string
	Threshold  float64
	Action     string
	ImportedAt time.Time
}

// TableName overrides the default pluralization.
func (ExperimentRow) TableName() string { return "experiments" }

// ConversationRow is the analytical projection of one conversation.
type ConversationRow struct {
	ID           string `gorm:"primaryKey"`
	ExperimentID string `gorm:"index"`
	Status       string
	EndReason    string
	Turns        int
	FinalScore   float64
	TotalCost    float64
	TotalTokens  int
}

// TableName overrides the default pluralization.
func (ConversationRow) TableName() string { return "conversations" }

// TurnRow is the analytical projection of one scored turn.
type TurnRow struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"uniqueIndex:idx_turns_conversation_turn"`
	TurnIndex      int    `gorm:"uniqueIndex:idx_turns_conversation_turn"`
	Combined       float64
	Trend          float64
	Content        float64
	Structure      float64
	Sentences      float64
	Length         float64
	Punctuation    float64
}

// TableName overrides the default pluralization.
func (TurnRow) TableName() string { return "turns" }

// MessageRow is the analytical projection of one completed agent reply.
type MessageRow struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID   string `gorm:"index"`
	Sequence         int
	Speaker          string
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	LatencyMS        int64
	Timestamp        time.Time
}

// TableName overrides the default pluralization.
func (MessageRow) TableName() string { return "messages" }

// EventRow preserves every raw event for ad-hoc analysis.
type EventRow struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	Type           string
	Timestamp      time.Time
	Payload        string
}

// TableName overrides the default pluralization.
func (EventRow) TableName() string { return "events" }

// Migrate creates or updates the analytical schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ExperimentRow{},
		&ConversationRow{},
		&TurnRow{},
		&MessageRow{},
		&EventRow{},
	)
}
