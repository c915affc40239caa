// Package runner drives a live assessment session. A single goroutine owns
// the session; user commands and one-second clock ticks are serialized
// through its select loop, so the session itself needs no locking.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/assessment"
)

// ErrStopped is returned for commands sent to a runner that has exited.
var ErrStopped = errors.New("runner stopped")

// Action names a user intent forwarded to the session.
type Action string

const (
	ActionSelect      Action = "select"
	ActionClear       Action = "clear"
	ActionGoTo        Action = "goto"
	ActionNext        Action = "next"
	ActionPrevious    Action = "previous"
	ActionToggleFlag  Action = "flag"
	ActionNextFlagged Action = "next_flagged"
	ActionSubmit      Action = "submit"
	ActionSnapshot    Action = "snapshot"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionSelect, ActionClear, ActionGoTo, ActionNext, ActionPrevious,
		ActionToggleFlag, ActionNextFlagged, ActionSubmit, ActionSnapshot:
		return true
	}
	return false
}

// Command is one user intent. Question and Option are used by select/clear/flag,
// Index by goto.
type Command struct {
	Action   Action `json:"action"`
	Question int    `json:"question"`
	Option   int    `json:"option"`
	Index    int    `json:"index"`
}

// Reply is the state after a command was applied.
type Reply struct {
	Snapshot   assessment.Snapshot
	Submission *assessment.Submission
}

// Hooks observe the session from inside the loop goroutine.
// They must not call back into the runner.
type Hooks struct {
	OnTick func(assessment.Snapshot)
	// OnChange runs after a select, clear or flag command on a running
	// session, before the next command is taken.
	OnChange func(Command, assessment.Snapshot)
	OnSubmit func(*assessment.Submission)
}

// changes reports whether a mutates a question's answer or flag.
func (a Action) changes() bool {
	return a == ActionSelect || a == ActionClear || a == ActionToggleFlag
}

// Ticker is the clock source. It matches the subset of *time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop() { r.t.Stop() }

// NewTicker returns a wall-clock ticker.
func NewTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

type request struct {
	cmd   Command
	reply chan Reply
}

// Runner owns one session.
type Runner struct {
	session   *assessment.Session
	hooks     Hooks
	newTicker func(time.Duration) Ticker
	log       zerolog.Logger

	cmds    chan request
	done    chan struct{}
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTicker replaces the wall clock, mainly for tests.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(r *Runner) { r.newTicker = f }
}

// New wraps session in a runner. Call Start to begin the clock.
func New(session *assessment.Session, hooks Hooks, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		session:   session,
		hooks:     hooks,
		newTicker: NewTicker,
		log:       log.With().Str("component", "runner").Logger(),
		cmds:      make(chan request),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the loop. Calls after the first, or after Stop, are no-ops.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.stopped {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop ends the loop and its clock, waiting for the loop to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		close(r.done)
		return
	}
	cancel()
	<-r.done
}

// Done is closed once the loop has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Do applies cmd on the loop goroutine and returns the resulting state.
func (r *Runner) Do(ctx context.Context, cmd Command) (Reply, error) {
	req := request{cmd: cmd, reply: make(chan Reply, 1)}

	select {
	case r.cmds <- req:
	case <-r.done:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-r.done:
		// The loop may have replied just before exiting.
		select {
		case rep := <-req.reply:
			return rep, nil
		default:
			return Reply{}, ErrStopped
		}
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	var ticks <-chan time.Time
	var ticker Ticker
	if r.session.Status() == assessment.StatusInProgress {
		ticker = r.newTicker(time.Second)
		ticks = ticker.C()
	}
	stopClock := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		ticks = nil
	}
	defer stopClock()

	for {
		select {
		case <-ctx.Done():
			r.log.Debug().Msg("Runner stopped")
			return

		case <-ticks:
			forced := r.session.Tick()
			if r.hooks.OnTick != nil {
				r.hooks.OnTick(r.session.Snapshot())
			}
			if forced {
				r.log.Info().Msg("Time expired, submission forced")
				stopClock()
				r.submitted()
			}

		case req := <-r.cmds:
			wasRunning := r.session.Status() == assessment.StatusInProgress
			r.apply(req.cmd)
			switch {
			case wasRunning && r.session.Status() == assessment.StatusSubmitted:
				stopClock()
				r.submitted()
			case wasRunning && req.cmd.Action.changes() && r.hooks.OnChange != nil:
				r.hooks.OnChange(req.cmd, r.session.Snapshot())
			}
			sub, _ := r.session.Submission()
			req.reply <- Reply{Snapshot: r.session.Snapshot(), Submission: sub}
		}
	}
}

func (r *Runner) submitted() {
	if r.hooks.OnSubmit == nil {
		return
	}
	if sub, ok := r.session.Submission(); ok {
		r.hooks.OnSubmit(sub)
	}
}

func (r *Runner) apply(cmd Command) {
	s := r.session
	switch cmd.Action {
	case ActionSelect:
		s.SelectAnswer(cmd.Question, cmd.Option)
	case ActionClear:
		s.ClearAnswer(cmd.Question)
	case ActionGoTo:
		s.GoTo(cmd.Index)
	case ActionNext:
		s.Next()
	case ActionPrevious:
		s.Previous()
	case ActionToggleFlag:
		s.ToggleFlag(cmd.Question)
	case ActionNextFlagged:
		s.NextFlagged()
	case ActionSubmit:
		s.Submit()
	case ActionSnapshot:
	default:
		r.log.Warn().Str("action", string(cmd.Action)).Msg("Unknown action ignored")
	}
}
