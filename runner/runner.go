package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/duologue/convergence"
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/eventlog"
	"github.com/hupe1980/duologue/logging"
)

// errInterrupted signals that an external interruption was observed at a
// suspension point.
var errInterrupted = errors.New("runner: interrupted")

// Scorer computes the convergence result for one message pair, threading the
// caller-supplied running state. *convergence.Engine satisfies this.
type Scorer interface {
	Score(messageA, messageB string, state convergence.State) (convergence.Result, convergence.State)
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventStore receives the durable record of everything that happens.
	EventStore core.EventStore
	// Scorer drives the stop policy. Defaults to an engine with the
	// conversation's configured profile resolved from the built-ins.
	Scorer Scorer
	// Logger receives turn and agent-call diagnostics.
	Logger logging.Logger
	// RequestTimeout bounds each outbound agent call.
	RequestTimeout time.Duration
	// MaxRetries bounds local retries for retryable provider failures.
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential retry delay.
	MaxBackoff time.Duration
	// Pacer optionally spaces outbound agent calls to respect provider rate
	// limits shared across concurrent conversations.
	Pacer *rate.Limiter
	// OnTransition is invoked after every conversation-level transition,
	// typically to refresh the experiment manifest.
	OnTransition func(c *core.Conversation)
}

// Runner executes one conversation between two agents. Public methods are
// safe for concurrent use: Pause, Resume and Interrupt may be invoked from
// outside the loop while Run is blocked inside it.
type Runner struct {
	conv   *core.Conversation
	agentA core.Agent
	agentB core.Agent

	store  core.EventStore
	scorer Scorer
	logger logging.Logger

	requestTimeout time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	pacer          *rate.Limiter
	onTransition   func(c *core.Conversation)

	mu          sync.Mutex
	paused      bool
	resumeCh    chan struct{}
	interrupted chan struct{}
	intOnce     sync.Once

	history []core.Message
	turns   []core.Turn
	state   convergence.State
}

// New constructs a Runner for the conversation with optional overrides.
func New(conv *core.Conversation, agentA, agentB core.Agent, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		EventStore:     eventlog.NewInMemoryStore(),
		Logger:         logging.NoOpLogger{},
		RequestTimeout: 60 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Scorer == nil {
		profile, err := convergence.BuiltinProfile(conv.Config.Profile)
		if err != nil {
			return nil, err
		}
		opts.Scorer = convergence.NewEngine(profile)
	}
	if !conv.Config.Action.Valid() {
		return nil, core.NewConfigError("action", fmt.Sprintf("unknown convergence action %q", conv.Config.Action))
	}
	if conv.Config.MaxTurns <= 0 {
		return nil, core.NewConfigError("max_turns", "must be positive")
	}

	return &Runner{
		conv:           conv,
		agentA:         agentA,
		agentB:         agentB,
		store:          opts.EventStore,
		scorer:         opts.Scorer,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		pacer:          opts.Pacer,
		onTransition:   opts.OnTransition,
		interrupted:    make(chan struct{}),
	}, nil
}

// Conversation returns the conversation owned by this runner.
func (r *Runner) Conversation() *core.Conversation { return r.conv }

// Snapshot returns a consistent copy of the conversation's current state,
// safe to read while the turn loop is executing.
func (r *Runner) Snapshot() core.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.conv
}

// Turns returns a copy of the completed turns.
func (r *Runner) Turns() []core.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := make([]core.Turn, len(r.turns))
	copy(turns, r.turns)
	return turns
}

// Run starts the conversation and drives the turn loop to a terminal state.
// It requires status created and always leaves the conversation terminal,
// returning the error that caused a failed outcome (nil for completed and
// interrupted ones).
func (r *Runner) Run(ctx context.Context) error {
	if err := r.transition(core.StatusRunning, ""); err != nil {
		return err
	}

	if r.conv.Config.InitialPrompt != "" {
		// The seed prompt enters history attributed to agent B, so agent A
		// treats it as the incoming utterance that opens turn 0.
		r.history = append(r.history, core.Message{
			Speaker:   core.SpeakerB,
			Text:      r.conv.Config.InitialPrompt,
			Timestamp: time.Now().UTC(),
		})
	}

	if err := r.append(core.NewConversationStartEvent(r.conv.ID)); err != nil {
		return r.fail(err, core.EndReasonException)
	}

	for {
		done, err := r.advanceTurn(ctx)
		if err != nil || done {
			return err
		}
	}
}

// advanceTurn executes one full turn: reply from A, reply from B, scoring,
// stop policy. It reports done=true once the conversation is terminal.
func (r *Runner) advanceTurn(ctx context.Context) (done bool, err error) {
	if err := r.waitIfSuspended(ctx); err != nil {
		return true, r.finalizeSuspension(err)
	}

	replyA, err := r.callAgent(ctx, r.agentA, core.SpeakerA)
	if err != nil {
		return true, r.agentFailure(r.agentA, err)
	}
	msgA, err := r.recordMessage(core.SpeakerA, replyA)
	if err != nil {
		return true, r.fail(err, core.EndReasonException)
	}

	if err := r.waitIfSuspended(ctx); err != nil {
		// A partial turn exists: agent A's reply is already durable. The
		// turn itself is never constructed, so turn indexes stay contiguous.
		return true, r.finalizeSuspension(err)
	}

	replyB, err := r.callAgent(ctx, r.agentB, core.SpeakerB)
	if err != nil {
		return true, r.agentFailure(r.agentB, err)
	}
	msgB, err := r.recordMessage(core.SpeakerB, replyB)
	if err != nil {
		return true, r.fail(err, core.EndReasonException)
	}

	result, next := r.scorer.Score(msgA.Text, msgB.Text, r.state)
	r.state = next

	turn := core.Turn{
		Index:    r.conv.Turns,
		MessageA: msgA,
		MessageB: msgB,
		Scores:   result.Scores,
		Combined: result.Combined,
		Trend:    result.Trend,
		CostA:    replyA.Cost,
		CostB:    replyB.Cost,
		UsageA:   replyA.Usage,
		UsageB:   replyB.Usage,
	}

	r.mu.Lock()
	r.turns = append(r.turns, turn)
	r.conv.Turns++
	r.mu.Unlock()

	if err := r.append(core.NewTurnCompleteEvent(r.conv.ID, &turn)); err != nil {
		return true, r.fail(err, core.EndReasonException)
	}

	r.logger.Debug("turn completed conversation_id=%s turn=%d combined=%.4f trend=%+.4f",
		r.conv.ID, turn.Index, turn.Combined, turn.Trend)

	if stop, err := r.applyStopPolicy(&turn); stop || err != nil {
		return true, err
	}

	// Interruption received while the turn was in flight takes precedence
	// over any natural stop decision.
	if r.isInterrupted() {
		return true, r.finalize(core.StatusInterrupted, core.EndReasonInterrupted)
	}

	if r.conv.Turns >= r.conv.Config.MaxTurns {
		return true, r.finalize(core.StatusCompleted, core.EndReasonMaxTurns)
	}

	return false, nil
}

// applyStopPolicy evaluates the configured convergence action against the
// turn's combined score. It reports stop=true when the conversation was
// finalized.
func (r *Runner) applyStopPolicy(turn *core.Turn) (stop bool, err error) {
	if turn.Combined < r.conv.Config.Threshold {
		return false, nil
	}

	switch r.conv.Config.Action {
	case core.ActionStop:
		if r.isInterrupted() {
			return true, r.finalize(core.StatusInterrupted, core.EndReasonInterrupted)
		}
		return true, r.finalize(core.StatusCompleted, core.EndReasonConvergence)
	case core.ActionWarn:
		r.logger.Warn("convergence threshold reached conversation_id=%s turn=%d combined=%.4f",
			r.conv.ID, turn.Index, turn.Combined)
		if err := r.append(core.NewConvergenceEvent(core.EventConvergenceWarning, r.conv.ID, turn.Index, turn.Combined)); err != nil {
			return true, r.fail(err, core.EndReasonException)
		}
	case core.ActionNotify:
		if err := r.append(core.NewConvergenceEvent(core.EventConvergenceNotification, r.conv.ID, turn.Index, turn.Combined)); err != nil {
			return true, r.fail(err, core.EndReasonException)
		}
	case core.ActionContinue:
		// Threshold has no effect.
	}

	return false, nil
}

// Pause suspends the turn loop at its next suspension point. It requires
// status running.
func (r *Runner) Pause() error {
	r.mu.Lock()
	if r.conv.Status != core.StatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("runner: cannot pause conversation in status %s", r.conv.Status)
	}
	if r.paused {
		r.mu.Unlock()
		return nil
	}
	r.paused = true
	r.resumeCh = make(chan struct{})
	if err := r.conv.Transition(core.StatusPaused, ""); err != nil {
		r.paused = false
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()
	r.notifyTransition()
	return nil
}

// Resume releases a paused turn loop.
func (r *Runner) Resume() error {
	r.mu.Lock()
	if !r.paused {
		r.mu.Unlock()
		return fmt.Errorf("runner: cannot resume conversation in status %s", r.conv.Status)
	}
	if err := r.conv.Transition(core.StatusRunning, ""); err != nil {
		r.mu.Unlock()
		return err
	}
	r.paused = false
	close(r.resumeCh)
	r.mu.Unlock()
	r.notifyTransition()
	return nil
}

// Interrupt requests cooperative cancellation. It may be invoked from any
// non-terminal state; the loop honors it at the next suspension point. A call
// already blocked on a provider completes or times out first.
func (r *Runner) Interrupt() {
	r.intOnce.Do(func() { close(r.interrupted) })
}

func (r *Runner) isInterrupted() bool {
	select {
	case <-r.interrupted:
		return true
	default:
		return false
	}
}

// waitIfSuspended is the cooperative suspension point checked before each
// agent call. It blocks while paused and reports interruption or context
// cancellation.
func (r *Runner) waitIfSuspended(ctx context.Context) error {
	for {
		if r.isInterrupted() {
			return errInterrupted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.mu.Lock()
		paused := r.paused
		resume := r.resumeCh
		r.mu.Unlock()

		if !paused {
			return nil
		}

		select {
		case <-resume:
		case <-r.interrupted:
			return errInterrupted
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// callAgent performs one outbound call with pacing, per-call timeout and
// bounded retries for retryable provider failures.
func (r *Runner) callAgent(ctx context.Context, agent core.Agent, speaker core.Speaker) (*core.Reply, error) {
	history := r.historyCopy()

	backoff := r.initialBackoff
	var lastErr *core.ProviderError

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-r.interrupted:
				timer.Stop()
				return nil, errInterrupted
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			backoff = min(backoff*2, r.maxBackoff)
		}

		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
		start := time.Now()
		reply, err := agent.Reply(callCtx, history)
		cancel()

		if err == nil {
			if reply.Latency == 0 {
				reply.Latency = time.Since(start)
			}
			r.logger.Debug("agent reply conversation_id=%s speaker=%s latency=%s tokens=%d",
				r.conv.ID, speaker, reply.Latency, reply.Usage.TotalTokens)
			return reply, nil
		}

		lastErr = core.AsProviderError(err, agent.Name())
		if !lastErr.Retryable() {
			return nil, lastErr
		}
		r.logger.Warn("retrying agent call conversation_id=%s speaker=%s attempt=%d code=%s",
			r.conv.ID, speaker, attempt+1, lastErr.Code)
	}

	return nil, lastErr
}

// recordMessage durably records a completed reply before the runner is
// allowed to act on it: the reply has not "happened" until its
// message-complete event is committed.
func (r *Runner) recordMessage(speaker core.Speaker, reply *core.Reply) (core.Message, error) {
	if err := r.append(core.NewMessageCompleteEvent(r.conv.ID, speaker, reply)); err != nil {
		return core.Message{}, err
	}
	msg := core.Message{Speaker: speaker, Text: reply.Text, Timestamp: time.Now().UTC()}
	r.history = append(r.history, msg)
	return msg, nil
}

func (r *Runner) historyCopy() []core.Message {
	history := make([]core.Message, len(r.history))
	copy(history, r.history)
	return history
}

// agentFailure maps a provider failure (or interruption observed mid-retry)
// to the conversation's terminal state.
func (r *Runner) agentFailure(agent core.Agent, err error) error {
	if errors.Is(err, errInterrupted) {
		return r.finalize(core.StatusInterrupted, core.EndReasonInterrupted)
	}
	if errors.Is(err, context.Canceled) {
		return r.finalize(core.StatusInterrupted, core.EndReasonInterrupted)
	}

	pe := core.AsProviderError(err, agent.Name())
	r.logger.Error("agent call failed conversation_id=%s agent=%s code=%s: %v",
		r.conv.ID, agent.Name(), pe.Code, pe)

	errEv := core.NewConversationErrorEvent(r.conv.ID, string(pe.Code), pe.Error())
	if appendErr := r.append(errEv); appendErr != nil {
		r.logger.Error("failed to record error event conversation_id=%s: %v", r.conv.ID, appendErr)
	}

	if finErr := r.finalize(core.StatusFailed, pe.EndReason()); finErr != nil {
		return finErr
	}
	return pe
}

// finalizeSuspension maps a suspension-point signal to the terminal state.
func (r *Runner) finalizeSuspension(err error) error {
	if errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled) {
		return r.finalize(core.StatusInterrupted, core.EndReasonInterrupted)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return r.fail(err, core.EndReasonTimeout)
	}
	return r.fail(err, core.EndReasonException)
}

// fail records the error and finalizes the conversation as failed. It returns
// the original error.
func (r *Runner) fail(err error, reason core.EndReason) error {
	r.logger.Error("conversation failed conversation_id=%s reason=%s: %v", r.conv.ID, reason, err)

	errEv := core.NewConversationErrorEvent(r.conv.ID, string(reason), err.Error())
	if appendErr := r.append(errEv); appendErr != nil {
		r.logger.Error("failed to record error event conversation_id=%s: %v", r.conv.ID, appendErr)
	}

	if finErr := r.finalize(core.StatusFailed, reason); finErr != nil {
		return finErr
	}
	return err
}

// finalize transitions the conversation to a terminal state and records the
// conversation-end event. The end event is written best-effort even when the
// store is the failing component, so the log carries whatever truth survives.
func (r *Runner) finalize(status core.ConversationStatus, reason core.EndReason) error {
	finalScore := r.state.PrevCombined

	endEv := core.NewConversationEndEvent(r.conv.ID, reason, finalScore)
	if err := r.append(endEv); err != nil {
		r.logger.Error("failed to record end event conversation_id=%s: %v", r.conv.ID, err)
	}

	if err := r.transition(status, reason); err != nil {
		return err
	}

	r.logger.Info("conversation finished conversation_id=%s status=%s reason=%s turns=%d final=%.4f",
		r.conv.ID, status, reason, r.conv.Turns, finalScore)

	return nil
}

func (r *Runner) transition(status core.ConversationStatus, reason core.EndReason) error {
	r.mu.Lock()
	err := r.conv.Transition(status, reason)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.notifyTransition()
	return nil
}

func (r *Runner) notifyTransition() {
	if r.onTransition != nil {
		r.onTransition(r.conv)
	}
}

func (r *Runner) append(ev core.Event) error {
	return r.store.Append(ev)
}
