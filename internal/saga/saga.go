// Package saga runs multi-step writes against the store as an ordered list of
// steps, undoing completed steps in reverse order when a later one fails.
package saga

import (
	"context"
	"fmt"

	"github.com/zavolah/marketplace/internal/logging"
)

// Step is one forward action with an optional compensation.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	// Compensate undoes Do. Nil means the step has nothing to undo.
	Compensate func(ctx context.Context) error
}

// Recorder counts compensations. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordSagaCompensation(saga string)
}

// Saga is a named sequence of steps.
type Saga struct {
	name     string
	steps    []Step
	logger   *logging.Logger
	recorder Recorder
}

// New creates an empty saga.
func New(name string, logger *logging.Logger, recorder Recorder) *Saga {
	if logger == nil {
		logger = logging.Default()
	}
	return &Saga{name: name, logger: logger, recorder: recorder}
}

// Step appends a step.
func (s *Saga) Step(name string, do, compensate func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Do: do, Compensate: compensate})
	return s
}

// Error reports a failed saga. Err is the failure of step Step; Compensation
// collects any failures while undoing earlier steps.
type Error struct {
	Saga         string
	Step         string
	Err          error
	Compensation []error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("saga %s: step %s: %v", e.Saga, e.Step, e.Err)
	if len(e.Compensation) > 0 {
		msg += fmt.Sprintf(" (%d compensation failures)", len(e.Compensation))
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run executes the steps in order. On the first failure, the steps that
// already succeeded are compensated newest first, and an *Error wrapping the
// failure is returned. Compensation still runs after ctx is cancelled.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			serr := &Error{Saga: s.name, Step: step.Name, Err: err}
			serr.Compensation = s.compensate(context.WithoutCancel(ctx), s.steps[:i])
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"saga":                  s.name,
				"step":                  step.Name,
				"compensated_steps":     i,
				"compensation_failures": len(serr.Compensation),
			}).WithError(err).Warn("saga step failed")
			return serr
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step) []error {
	if len(done) > 0 && s.recorder != nil {
		s.recorder.RecordSagaCompensation(s.name)
	}

	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"saga": s.name,
				"step": step.Name,
			}).WithError(err).Error("saga compensation failed")
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	return errs
}
