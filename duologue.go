// Package duologue provides a high-level façade over the engine, event log
// and importer for running convergence experiments: batches of two-agent
// conversations that are scored turn by turn, stopped on linguistic
// convergence, persisted as append-only event logs and finally projected into
// a queryable analytical store. Most applications interact with this package
// by:
//  1. Creating a Duologue via New() with two core.Agent implementations
//  2. Running an experiment with RunExperiment()
//  3. Querying the analytical store populated by the import step
//
// The façade delegates orchestration to engine.Engine and projection to
// importer.Importer while keeping setup ergonomics concise. All defaults are
// safe for local development; production runs typically supply a structured
// logger and provider-backed agents.
package duologue

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hupe1980/duologue/convergence"
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/engine"
	"github.com/hupe1980/duologue/eventlog"
	"github.com/hupe1980/duologue/importer"
	"github.com/hupe1980/duologue/logging"
)

// Options configures the Duologue instance.
type Options struct {
	// OutputDir is the root under which each experiment gets its own
	// directory named <label>-<timestamp>.
	OutputDir string

	// DatabasePath locates the SQLite analytical store. Empty disables the
	// import step; experiment directories can be imported later with Import.
	DatabasePath string

	// Profile overrides the convergence profile resolved from the
	// conversation configuration. Required for custom weight profiles.
	Profile *convergence.Profile

	// MaxConcurrent bounds how many conversations execute at once.
	MaxConcurrent int

	// RequestsPerSecond paces outbound agent calls across the experiment;
	// zero disables pacing.
	RequestsPerSecond float64

	// RequestTimeout bounds each outbound agent call.
	RequestTimeout time.Duration

	// MaxRetries bounds local retries for retryable provider failures.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Duologue is the high-level façade aggregating the engine and the importer.
type Duologue struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Duologue for the given agent pair with optional overrides.
func New(agentA, agentB core.Agent, optFns ...func(o *Options)) *Duologue {
	opts := Options{
		OutputDir:      "experiments",
		MaxConcurrent:  4,
		RequestTimeout: 60 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(agentA, agentB, func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Profile = opts.Profile
		o.MaxConcurrent = opts.MaxConcurrent
		o.RequestsPerSecond = opts.RequestsPerSecond
		o.RequestTimeout = opts.RequestTimeout
		o.MaxRetries = opts.MaxRetries
		o.InitialBackoff = opts.InitialBackoff
		o.MaxBackoff = opts.MaxBackoff
	})

	return &Duologue{opts: opts, engine: e}
}

// RunExperiment runs n conversations under the given label, then imports the
// finished experiment into the analytical store when one is configured. The
// experiment result is returned even when some conversations failed; the
// error aggregates those failures.
func (d *Duologue) RunExperiment(ctx context.Context, label string, n int, cfg core.ConversationConfig) (*engine.Result, error) {
	dir := d.experimentDir(label)

	result, runErr := d.engine.RunExperiment(ctx, dir, label, n, cfg)
	if result == nil {
		return nil, runErr
	}

	if result.Experiment.Status == core.ExperimentPostProcessing && d.opts.DatabasePath != "" {
		if err := d.Import(ctx, dir, false); err != nil {
			return result, fmt.Errorf("import experiment %s: %w", result.Experiment.ID, err)
		}
		if err := d.completeExperiment(dir); err != nil {
			return result, err
		}
		result.Experiment.Status = core.ExperimentCompleted
	}

	return result, runErr
}

// Import projects one experiment directory into the analytical store. Safe to
// retry; already imported directories are skipped unless force is set.
func (d *Duologue) Import(ctx context.Context, dir string, force bool) error {
	db, err := importer.Open(d.opts.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	imp := importer.New(db, func(o *importer.Options) {
		o.Logger = d.opts.Logger
	})
	return imp.ImportExperiment(ctx, dir, force)
}

// Interrupt requests cooperative cancellation of the running experiment's
// conversations.
func (d *Duologue) Interrupt() { d.engine.Interrupt() }

// Pause suspends all running conversations at their next suspension points.
func (d *Duologue) Pause() { d.engine.Pause() }

// Resume releases all paused conversations.
func (d *Duologue) Resume() { d.engine.Resume() }

// experimentDir computes the directory for a new experiment run. The label is
// combined with a timestamp so repeated runs never collide.
func (d *Duologue) experimentDir(label string) string {
	return filepath.Join(d.opts.OutputDir, fmt.Sprintf("%s-%s", label, time.Now().UTC().Format("20060102-150405")))
}

// completeExperiment flips the persisted manifest to completed after a
// successful import.
func (d *Duologue) completeExperiment(dir string) error {
	store := eventlog.NewFileManifestStore(dir)
	m, err := store.Load()
	if err != nil {
		return err
	}
	m.Status = core.ExperimentCompleted
	m.Updated = time.Now().UTC()
	return store.Save(m)
}
