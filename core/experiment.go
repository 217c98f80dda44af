package core

import (
	"time"
)

// ExperimentStatus enumerates the lifecycle states of an experiment. The
// post-processing phase sits between conversation completion and import.
type ExperimentStatus string

const (
	// ExperimentPending: created but no conversation has started.
	ExperimentPending ExperimentStatus = "pending"
	// ExperimentRunning: at least one conversation is executing.
	ExperimentRunning ExperimentStatus = "running"
	// ExperimentPostProcessing: all conversations are terminal; import has
	// not completed.
	ExperimentPostProcessing ExperimentStatus = "post-processing"
	// ExperimentCompleted: all conversations terminal and projection
	// imported.
	ExperimentCompleted ExperimentStatus = "completed"
	// ExperimentFailed: the experiment could not run to completion.
	ExperimentFailed ExperimentStatus = "failed"
)

// Valid reports whether s is a member of the closed status set.
func (s ExperimentStatus) Valid() bool {
	switch s {
	case ExperimentPending, ExperimentRunning, ExperimentPostProcessing,
		ExperimentCompleted, ExperimentFailed:
		return true
	}
	return false
}

// Experiment groups conversations that share one configuration. The manifest
// is its durable projection.
type Experiment struct {
	ID            string             `json:"id"`
	Label         string             `json:"label"`
	Status        ExperimentStatus   `json:"status"`
	AgentA        string             `json:"agent_a"`
	AgentB        string             `json:"agent_b"`
	Config        ConversationConfig `json:"config"`
	Conversations []string           `json:"conversations"`
	Created       time.Time          `json:"created"`
}

// NewExperiment creates a pending experiment with the given label.
func NewExperiment(label, agentA, agentB string, cfg ConversationConfig) *Experiment {
	return &Experiment{
		ID:      NewID(),
		Label:   label,
		Status:  ExperimentPending,
		AgentA:  agentA,
		AgentB:  agentB,
		Config:  cfg,
		Created: time.Now().UTC(),
	}
}

// ManifestConversation is the per-conversation summary row in a manifest.
type ManifestConversation struct {
	ID        string             `json:"id"`
	Turns     int                `json:"turns"`
	Status    ConversationStatus `json:"status"`
	EndReason EndReason          `json:"end_reason,omitempty"`
}

// Manifest is the durable summary document for one experiment. It must never
// be observable in a torn state: writers rebuild it fully and swap it into
// place atomically.
type Manifest struct {
	ExperimentID  string                 `json:"experiment_id"`
	Label         string                 `json:"label"`
	Status        ExperimentStatus       `json:"status"`
	AgentA        string                 `json:"agent_a"`
	AgentB        string                 `json:"agent_b"`
	Config        ConversationConfig     `json:"config"`
	Conversations []ManifestConversation `json:"conversations"`
	Updated       time.Time              `json:"updated"`
}
