// README: Per-incident radius-expansion state machine driven by the injected clock.
package radius

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"

	"herodispatch/internal/metrics"
	"herodispatch/internal/types"
)

// Expander applies a step to an incident. It returns false when the
// incident is no longer active, which stops the engine.
type Expander interface {
	Expand(ctx context.Context, incidentID types.ID, step Step) (bool, error)
}

type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateStopped   State = "stopped"
)

type Engine struct {
	incidentID types.ID
	createdAt  time.Time
	steps      []Step
	clock      clock.Clock
	expander   Expander
	logger     zerolog.Logger

	mu    sync.Mutex
	ctx   context.Context
	state State
	idx   int
	timer *clock.Timer
}

func NewEngine(incidentID types.ID, createdAt time.Time, steps []Step, clk clock.Clock, expander Expander, logger zerolog.Logger) *Engine {
	return &Engine{
		incidentID: incidentID,
		createdAt:  createdAt,
		steps:      steps,
		clock:      clk,
		expander:   expander,
		logger:     logger.With().Str("component", "radius_engine").Str("incident_id", incidentID.String()).Logger(),
		state:      StateIdle,
	}
}

// Start applies the step in force right now synchronously, then arms a timer
// for the next one. Steps are timed from the incident's creation, so an
// engine restarted for an older incident resumes at the right level. ctx
// must outlive the incident; later steps run with it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle || len(e.steps) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.ctx = ctx
	e.state = StateSearching
	e.idx = indexAt(e.steps, e.clock.Now().Sub(e.createdAt))
	step := e.steps[e.idx]
	e.mu.Unlock()

	active, err := e.expander.Expand(ctx, e.incidentID, step)
	e.afterStep(step, active, err)
	return err
}

// Stop cancels the pending step. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.state = StateStopped
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Status reports the state and the level of the last applied step.
func (e *Engine) Status() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.steps) == 0 {
		return e.state, 0
	}
	return e.state, e.steps[e.idx].Level
}

func (e *Engine) tick() {
	e.mu.Lock()
	e.timer = nil
	if e.state != StateSearching || e.idx+1 >= len(e.steps) {
		e.mu.Unlock()
		return
	}
	e.idx++
	step := e.steps[e.idx]
	ctx := e.ctx
	e.mu.Unlock()

	active, err := e.expander.Expand(ctx, e.incidentID, step)
	e.afterStep(step, active, err)
}

// afterStep arms the next timer unless the incident left active, the engine
// was stopped meanwhile, or the last step was applied. Expander errors are
// logged and do not stop the schedule.
func (e *Engine) afterStep(step Step, active bool, err error) {
	if err != nil {
		e.logger.Error().Err(err).Int("level", step.Level).Msg("radius step failed")
		active = true
	} else if active {
		metrics.RadiusExpansions.WithLabelValues(strconv.Itoa(step.Level)).Inc()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSearching {
		return
	}
	if !active || e.idx+1 >= len(e.steps) {
		e.stopLocked()
		return
	}
	wait := e.steps[e.idx+1].At - e.clock.Now().Sub(e.createdAt)
	if wait < 0 {
		wait = 0
	}
	e.timer = e.clock.AfterFunc(wait, e.tick)
}
