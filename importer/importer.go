package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/eventlog"
	"github.com/hupe1980/duologue/logging"
)

// ErrNotTerminal is returned when an experiment directory still contains
// non-terminal conversations; the importer never races the runner.
var ErrNotTerminal = errors.New("importer: experiment has non-terminal conversations")

// Open opens (creating if necessary) the SQLite analytical store at path and
// migrates the schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open analytical store %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate analytical store %s: %w", path, err)
	}
	return db, nil
}

// Options holds dependency overrides passed to New().
type Options struct {
	// Logger receives per-experiment import diagnostics.
	Logger logging.Logger
}

// Importer loads finished event logs into the analytical store.
type Importer struct {
	db     *gorm.DB
	logger logging.Logger
}

// New constructs an Importer over an opened analytical store.
func New(db *gorm.DB, optFns ...func(o *Options)) *Importer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Importer{db: db, logger: opts.Logger}
}

// ImportExperiment projects one experiment directory into the analytical
// store. Already imported experiments are skipped unless force is set. The
// projection for the experiment is cleared and rebuilt inside one
// transaction, so a retry after a crash cannot produce duplicate rows.
func (i *Importer) ImportExperiment(ctx context.Context, dir string, force bool) error {
	manifest, err := eventlog.NewFileManifestStore(dir).Load()
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	for _, mc := range manifest.Conversations {
		if !mc.Status.Terminal() {
			return fmt.Errorf("%w: conversation %s is %s", ErrNotTerminal, mc.ID, mc.Status)
		}
	}

	imported := eventlog.ImportedMarkerPath(dir)
	if _, err := os.Stat(imported); err == nil {
		if !force {
			i.logger.Info("skipping already imported experiment experiment_id=%s", manifest.ExperimentID)
			return nil
		}
		if err := os.Remove(imported); err != nil {
			return core.NewPersistenceError("remove", imported, err)
		}
	}

	// Phase one: the importing marker must be durable before any projection
	// work starts. A crash from here on leaves it behind, signalling retry.
	if err := writeMarker(eventlog.ImportingMarkerPath(dir)); err != nil {
		return err
	}

	start := time.Now()
	conversations, events, err := i.project(ctx, dir, manifest)
	if err != nil {
		i.logger.Error("import failed experiment_id=%s: %v", manifest.ExperimentID, err)
		return err
	}

	// Phase two: only after the projection fully committed is the marker
	// renamed. The rename is atomic; there is no observable in-between state.
	if err := os.Rename(eventlog.ImportingMarkerPath(dir), imported); err != nil {
		return core.NewPersistenceError("rename", imported, err)
	}

	i.logger.Info("import completed experiment_id=%s conversations=%d events=%d duration=%s",
		manifest.ExperimentID, conversations, events, time.Since(start))

	return nil
}

// project clears and rebuilds the experiment's projection in one transaction.
// It returns the number of conversations and events projected.
func (i *Importer) project(ctx context.Context, dir string, manifest *core.Manifest) (int, int, error) {
	totalEvents := 0

	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearExperiment(tx, manifest.ExperimentID); err != nil {
			return err
		}

		exp := ExperimentRow{
			ID:         manifest.ExperimentID,
			Label:      manifest.Label,
			Status:     string(manifest.Status),
			AgentA:     manifest.AgentA,
			AgentB:     manifest.AgentB,
			MaxTurns:   manifest.Config.MaxTurns,
			Profile:    manifest.Config.Profile,
			Threshold:  manifest.Config.Threshold,
			Action:     string(manifest.Config.Action),
			ImportedAt: time.Now().UTC(),
		}
		if err := tx.Create(&exp).Error; err != nil {
			return fmt.Errorf("insert experiment %s: %w", exp.ID, err)
		}

		for _, mc := range manifest.Conversations {
			n, err := projectConversation(tx, dir, manifest.ExperimentID, mc.ID)
			if err != nil {
				return err
			}
			totalEvents += n
		}

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return len(manifest.Conversations), totalEvents, nil
}

func clearExperiment(tx *gorm.DB, experimentID string) error {
	var convIDs []string
	if err := tx.Model(&ConversationRow{}).Where("experiment_id = ?", experimentID).Pluck("id", &convIDs).Error; err != nil {
		return fmt.Errorf("list prior conversations: %w", err)
	}
	if len(convIDs) > 0 {
		for _, model := range []any{&TurnRow{}, &MessageRow{}, &EventRow{}} {
			if err := tx.Where("conversation_id IN ?", convIDs).Delete(model).Error; err != nil {
				return fmt.Errorf("clear prior projection: %w", err)
			}
		}
	}
	if err := tx.Where("experiment_id = ?", experimentID).Delete(&ConversationRow{}).Error; err != nil {
		return fmt.Errorf("clear prior conversations: %w", err)
	}
	if err := tx.Where("id = ?", experimentID).Delete(&ExperimentRow{}).Error; err != nil {
		return fmt.Errorf("clear prior experiment: %w", err)
	}
	return nil
}

// projectConversation replays one event log read-only and derives the
// conversation, turn, message and raw event rows.
func projectConversation(tx *gorm.DB, dir, experimentID, conversationID string) (int, error) {
	path := eventlog.EventLogPath(dir, conversationID)

	f, err := os.Open(path)
	if err != nil {
		return 0, core.NewPersistenceError("open", path, err)
	}
	defer f.Close()

	events, err := eventlog.ReadEvents(f)
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", path, err)
	}

	conv := ConversationRow{ID: conversationID, ExperimentID: experimentID, Status: string(core.StatusCreated)}
	sequence := 0

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		row := EventRow{
			ID:             ev.ID,
			ConversationID: conversationID,
			Type:           string(ev.Type),
			Timestamp:      ev.Timestamp,
			Payload:        string(payload),
		}
		if err := tx.Create(&row).Error; err != nil {
			return 0, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}

		switch ev.Type {
		case core.EventConversationStart:
			conv.Status = string(core.StatusRunning)

		case core.EventMessageComplete:
			msg := MessageRow{
				ConversationID: conversationID,
				Sequence:       sequence,
				Speaker:        string(ev.Speaker),
				Text:           ev.Text,
				Cost:           ev.Cost,
				LatencyMS:      ev.LatencyMS,
				Timestamp:      ev.Timestamp,
			}
			if ev.Usage != nil {
				msg.PromptTokens = ev.Usage.PromptTokens
				msg.CompletionTokens = ev.Usage.CompletionTokens
				msg.TotalTokens = ev.Usage.TotalTokens
				conv.TotalTokens += ev.Usage.TotalTokens
			}
			conv.TotalCost += ev.Cost
			sequence++
			if err := tx.Create(&msg).Error; err != nil {
				return 0, fmt.Errorf("insert message: %w", err)
			}

		case core.EventTurnComplete:
			if ev.Turn == nil || ev.Scores == nil || ev.Combined == nil {
				return 0, fmt.Errorf("turn-complete event %s missing payload", ev.ID)
			}
			turn := TurnRow{
				ConversationID: conversationID,
				TurnIndex:      *ev.Turn,
				Combined:       *ev.Combined,
				Content:        ev.Scores.Content,
				Structure:      ev.Scores.Structure,
				Sentences:      ev.Scores.Sentences,
				Length:         ev.Scores.Length,
				Punctuation:    ev.Scores.Punctuation,
			}
			if ev.Trend != nil {
				turn.Trend = *ev.Trend
			}
			conv.Turns++
			if err := tx.Create(&turn).Error; err != nil {
				return 0, fmt.Errorf("insert turn: %w", err)
			}

		case core.EventConversationEnd:
			// Validate() already resolved legacy aliases to canonical reasons.
			conv.EndReason = string(ev.EndReason)
			if ev.FinalScore != nil {
				conv.FinalScore = *ev.FinalScore
			}
			switch ev.EndReason {
			case core.EndReasonInterrupted:
				conv.Status = string(core.StatusInterrupted)
			case core.EndReasonConvergence, core.EndReasonMaxTurns:
				conv.Status = string(core.StatusCompleted)
			default:
				conv.Status = string(core.StatusFailed)
			}
		}
	}

	if err := tx.Create(&conv).Error; err != nil {
		return 0, fmt.Errorf("insert conversation %s: %w", conversationID, err)
	}

	return len(events), nil
}

// writeMarker durably creates a phase marker file.
func writeMarker(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return core.NewPersistenceError("open", path, err)
	}
	if _, err := fmt.Fprintln(f, time.Now().UTC().Format(time.RFC3339)); err != nil {
		f.Close()
		return core.NewPersistenceError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return core.NewPersistenceError("sync", path, err)
	}
	return f.Close()
}
