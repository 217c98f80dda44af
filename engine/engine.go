package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/duologue/convergence"
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/eventlog"
	"github.com/hupe1980/duologue/logging"
	"github.com/hupe1980/duologue/runner"
)

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Logger receives experiment and conversation diagnostics. Defaults to a
	// no-op logger.
	Logger logging.Logger

	// Profile overrides the convergence profile resolved from the
	// conversation configuration, which only covers the built-ins. Required
	// for custom weight profiles.
	Profile *convergence.Profile

	// MaxConcurrent bounds how many conversations execute at once.
	MaxConcurrent int

	// RequestsPerSecond paces outbound agent calls across all conversations
	// of the experiment; zero disables pacing.
	RequestsPerSecond float64

	// RequestTimeout bounds each outbound agent call.
	RequestTimeout time.Duration

	// MaxRetries bounds local retries for retryable provider failures.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Engine runs experiments: batches of conversations between one fixed pair of
// agents, persisted to one experiment directory. Conversations run
// concurrently under a worker limit; a failing conversation never aborts its
// siblings, because each conversation is an independent trial whose event log
// has value on its own.
type Engine struct {
	agentA core.Agent
	agentB core.Agent
	opts   Options

	mu      sync.Mutex
	runners []*runner.Runner
}

// New creates an Engine for the given agent pair.
func New(agentA, agentB core.Agent, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		MaxConcurrent:  4,
		RequestTimeout: 60 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Engine{agentA: agentA, agentB: agentB, opts: opts}
}

// Result summarizes a finished experiment run.
type Result struct {
	Experiment    *core.Experiment
	Conversations []*core.Conversation
	// Failed counts conversations that ended failed; their errors are also
	// aggregated into RunExperiment's returned error.
	Failed int
}

// RunExperiment executes n conversations in dir and drives the manifest from
// pending through running to post-processing. The returned error aggregates
// per-conversation failures; a non-nil error with a non-nil Result means the
// experiment directory is still complete and importable.
func (e *Engine) RunExperiment(ctx context.Context, dir, label string, n int, cfg core.ConversationConfig) (*Result, error) {
	if n <= 0 {
		return nil, core.NewConfigError("conversations", "must be positive")
	}

	scorer, err := e.scorer(cfg)
	if err != nil {
		return nil, err
	}

	exp := core.NewExperiment(label, e.agentA.Name(), e.agentB.Name(), cfg)
	store, err := eventlog.NewFileStore(dir, func(o *eventlog.FileStoreOptions) {
		o.Logger = e.opts.Logger
	})
	if err != nil {
		return nil, err
	}
	defer store.Close()
	manifests := eventlog.NewFileManifestStore(dir)

	var pacer *rate.Limiter
	if e.opts.RequestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(e.opts.RequestsPerSecond), 1)
	}

	runners := make([]*runner.Runner, 0, n)
	for range n {
		conv := core.NewConversation(e.agentA.Name(), e.agentB.Name(), cfg)
		exp.Conversations = append(exp.Conversations, conv.ID)

		r, err := runner.New(conv, e.agentA, e.agentB, func(o *runner.Options) {
			o.EventStore = store
			o.Scorer = scorer
			o.Logger = e.opts.Logger
			o.RequestTimeout = e.opts.RequestTimeout
			o.MaxRetries = e.opts.MaxRetries
			o.InitialBackoff = e.opts.InitialBackoff
			o.MaxBackoff = e.opts.MaxBackoff
			o.Pacer = pacer
			o.OnTransition = func(*core.Conversation) {
				e.saveManifest(exp, runners, manifests)
			}
		})
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}

	e.mu.Lock()
	e.runners = runners
	e.mu.Unlock()

	exp.Status = core.ExperimentPending
	if err := e.saveManifest(exp, runners, manifests); err != nil {
		return nil, err
	}

	e.opts.Logger.Info("experiment started experiment_id=%s label=%s conversations=%d dir=%s",
		exp.ID, label, n, dir)

	exp.Status = core.ExperimentRunning

	// The group context is deliberately not used for the runners: one
	// conversation failing must not cancel its siblings. Interruption and the
	// caller's ctx still reach every runner directly.
	g := new(errgroup.Group)
	g.SetLimit(e.opts.MaxConcurrent)

	for _, r := range runners {
		g.Go(func() error {
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("conversation %s: %w", r.Conversation().ID, err)
			}
			return nil
		})
	}

	runErr := g.Wait()

	result := &Result{Experiment: exp}
	for _, r := range runners {
		conv := r.Conversation()
		result.Conversations = append(result.Conversations, conv)
		if conv.Status == core.StatusFailed {
			result.Failed++
		}
	}

	exp.Status = core.ExperimentPostProcessing
	if !e.allTerminal(runners) {
		// A runner returned without reaching a terminal state; the directory
		// cannot be trusted for import.
		exp.Status = core.ExperimentFailed
	}
	if err := e.saveManifest(exp, runners, manifests); err != nil {
		runErr = errors.Join(runErr, err)
	}

	e.opts.Logger.Info("experiment finished experiment_id=%s status=%s failed=%d",
		exp.ID, exp.Status, result.Failed)

	if exp.Status == core.ExperimentFailed {
		return result, errors.Join(runErr, fmt.Errorf("experiment %s: non-terminal conversation", exp.ID))
	}
	return result, runErr
}

// Interrupt requests cooperative cancellation of every conversation of the
// running experiment.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	runners := e.runners
	e.mu.Unlock()
	for _, r := range runners {
		r.Interrupt()
	}
}

// Pause suspends every running conversation at its next suspension point.
// Conversations not in the running state are skipped.
func (e *Engine) Pause() {
	e.mu.Lock()
	runners := e.runners
	e.mu.Unlock()
	for _, r := range runners {
		if err := r.Pause(); err != nil {
			e.opts.Logger.Debug("pause skipped conversation_id=%s: %v", r.Conversation().ID, err)
		}
	}
}

// Resume releases every paused conversation.
func (e *Engine) Resume() {
	e.mu.Lock()
	runners := e.runners
	e.mu.Unlock()
	for _, r := range runners {
		if err := r.Resume(); err != nil {
			e.opts.Logger.Debug("resume skipped conversation_id=%s: %v", r.Conversation().ID, err)
		}
	}
}

// scorer resolves the convergence engine for the experiment's conversations.
func (e *Engine) scorer(cfg core.ConversationConfig) (runner.Scorer, error) {
	if e.opts.Profile != nil {
		return convergence.NewEngine(*e.opts.Profile), nil
	}
	profile, err := convergence.BuiltinProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	return convergence.NewEngine(profile), nil
}

// saveManifest rebuilds and atomically persists the experiment manifest.
// Serialized by e.mu because transitions arrive from concurrent runners.
func (e *Engine) saveManifest(exp *core.Experiment, runners []*runner.Runner, store core.ManifestStore) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &core.Manifest{
		ExperimentID: exp.ID,
		Label:        exp.Label,
		Status:       exp.Status,
		AgentA:       exp.AgentA,
		AgentB:       exp.AgentB,
		Config:       exp.Config,
		Updated:      time.Now().UTC(),
	}
	for _, r := range runners {
		conv := r.Snapshot()
		m.Conversations = append(m.Conversations, core.ManifestConversation{
			ID:        conv.ID,
			Turns:     conv.Turns,
			Status:    conv.Status,
			EndReason: conv.EndReason,
		})
	}

	if err := store.Save(m); err != nil {
		e.opts.Logger.Error("manifest save failed experiment_id=%s: %v", exp.ID, err)
		return err
	}
	return nil
}

func (e *Engine) allTerminal(runners []*runner.Runner) bool {
	for _, r := range runners {
		if !r.Conversation().Status.Terminal() {
			return false
		}
	}
	return true
}
