// Package progress keeps the bounded four-step progress model of a run and
// fans every change out to presentation sinks.
package progress

import (
	"sync"
	"time"

	"esign-orchestrator/core/models"
)

// AnimationTick is the interval between animated percentage increments
const AnimationTick = 50 * time.Millisecond

// CancelledMessage is shown after an operator cancels a run
const CancelledMessage = "Process cancelled"

// Sink receives progress updates. Sinks are called synchronously in update
// order and must not call back into the Reporter.
type Sink interface {
	Update(state models.ProgressState)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(state models.ProgressState)

// Update calls f(state)
func (f SinkFunc) Update(state models.ProgressState) { f(state) }

// Reporter owns the progress state of one run.
type Reporter struct {
	mu    sync.Mutex
	state models.ProgressState
	sinks []Sink

	anim *animation
}

type animation struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (a *animation) halt() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

// New creates a reporter at 0%, step 1, idle
func New(sinks ...Sink) *Reporter {
	return &Reporter{
		state: models.ProgressState{Step: models.StepValidate, Phase: models.PhaseIdle},
		sinks: sinks,
	}
}

// Subscribe adds a sink. It receives updates from now on.
func (r *Reporter) Subscribe(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Snapshot returns the current state
func (r *Reporter) Snapshot() models.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Begin moves an idle reporter into the running phase at step 1.
func (r *Reporter) Begin(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != models.PhaseIdle {
		return
	}
	r.state = models.ProgressState{Step: models.StepValidate, Message: message, Phase: models.PhaseRunning}
	r.emit()
}

// Step moves to step and raises the percentage to at least pct.
func (r *Reporter) Step(step, pct int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase.IsTerminal() {
		return
	}
	if step > r.state.Step && step <= models.StepComplete {
		r.state.Step = step
	}
	r.set(pct, message)
}

// Advance raises the percentage to pct. Percentages never go backwards
// while running.
func (r *Reporter) Advance(pct int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase.IsTerminal() {
		return
	}
	r.set(pct, message)
}

// set must be called with mu held.
func (r *Reporter) set(pct int, message string) {
	if pct > 99 {
		pct = 99
	}
	if pct > r.state.Percentage {
		r.state.Percentage = pct
	}
	if message != "" {
		r.state.Message = message
	}
	r.state.Phase = models.PhaseRunning
	r.emit()
}

// Animate increments the percentage by one every AnimationTick until it
// reaches to, a terminal phase is entered or the returned stop func is
// called. Starting a new animation stops the previous one.
func (r *Reporter) Animate(to int) (stop func()) {
	r.stopAnimation()

	a := &animation{stop: make(chan struct{}), done: make(chan struct{})}
	r.mu.Lock()
	r.anim = a
	r.mu.Unlock()

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(AnimationTick)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				r.mu.Lock()
				if r.state.Phase.IsTerminal() || r.state.Percentage >= to || r.state.Percentage >= 99 {
					r.mu.Unlock()
					return
				}
				r.state.Percentage++
				r.emit()
				r.mu.Unlock()
			}
		}
	}()

	return func() {
		a.halt()
		r.mu.Lock()
		if r.anim == a {
			r.anim = nil
		}
		r.mu.Unlock()
	}
}

func (r *Reporter) stopAnimation() {
	r.mu.Lock()
	a := r.anim
	r.anim = nil
	r.mu.Unlock()
	if a != nil {
		a.halt()
	}
}

// Complete sets 100%, step 4. It emits at most once per run.
func (r *Reporter) Complete(message string) {
	r.finish(models.ProgressState{
		Percentage: 100,
		Step:       models.StepComplete,
		Message:    message,
		Phase:      models.PhaseCompleted,
	})
}

// Fail moves to the error phase and resets the percentage.
func (r *Reporter) Fail(message string) {
	r.mu.Lock()
	step := r.state.Step
	r.mu.Unlock()
	r.finish(models.ProgressState{Step: step, Message: message, Phase: models.PhaseError})
}

// Cancel resets progress to 0%, step 1. Repeated calls are no-ops.
func (r *Reporter) Cancel() {
	r.finish(models.ProgressState{
		Step:    models.StepValidate,
		Message: CancelledMessage,
		Phase:   models.PhaseCancelled,
	})
}

func (r *Reporter) finish(next models.ProgressState) {
	r.stopAnimation()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase.IsTerminal() {
		return
	}
	r.state = next
	r.emit()
}

// emit must be called with mu held.
func (r *Reporter) emit() {
	for _, s := range r.sinks {
		s.Update(r.state)
	}
}
