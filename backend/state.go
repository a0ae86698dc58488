package backend

import (
	"context"
	"fmt"

	"github.com/etnz/app-packager/logger"
)

// State is a step of a backend pipeline.
type State string

const (
	StateStage            State = "stage"
	StatePopulate         State = "populate"
	StateGenerateMetadata State = "generate-metadata"
	StateInvokeTool       State = "invoke-tool"
	StateCleanup          State = "cleanup"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// stepRank orders the working states. A pipeline only ever moves forward.
var stepRank = map[State]int{
	"":                    0,
	StateStage:            1,
	StatePopulate:         2,
	StateGenerateMetadata: 3,
	StateInvokeTool:       4,
}

func isAllowedTransition(from, to State) bool {
	switch to {
	case StateFailed:
		// A run canceled before its first step fails from the initial state.
		_, working := stepRank[from]
		return working
	case StateCleanup:
		_, working := stepRank[from]
		return working || from == StateFailed
	case StateDone:
		return from == StateCleanup
	}
	toRank, ok := stepRank[to]
	if !ok {
		return false
	}
	fromRank, working := stepRank[from]
	return working && toRank > fromRank
}

// step is one state of a pipeline and the work done while in it.
type step struct {
	state State
	run   func(ctx context.Context) error
}

// pipeline drives a backend through its states.
// A failed step moves it to Failed, the remaining steps are skipped, and
// cleanup runs in every case. Cleanup errors are reported but never returned.
type pipeline struct {
	backend  string
	listener Listener

	current State
	failed  bool
	states  []State
}

func newPipeline(backend string, l Listener) *pipeline {
	if l == nil {
		l = func(fmt.Stringer) {}
	}
	return &pipeline{backend: backend, listener: l}
}

func (p *pipeline) enter(s State) error {
	if !isAllowedTransition(p.current, s) || (s == StateDone && p.failed) {
		return fmt.Errorf("%s: disallowed transition %q -> %q", p.backend, p.current, s)
	}
	logger.Logger().Debugf("%s: %s", p.backend, s)
	p.current = s
	p.states = append(p.states, s)
	p.listener(EventStateEntered{Backend: p.backend, State: s})
	return nil
}

func (p *pipeline) fail() {
	p.failed = true
	if err := p.enter(StateFailed); err != nil {
		logger.Logger().Debugf("%v", err)
	}
}

// run executes steps in order, then cleanup.
func (p *pipeline) run(ctx context.Context, steps []step, cleanup func() []cleanupError) error {
	log := logger.Logger()

	var err error
	for _, s := range steps {
		if err = ctx.Err(); err != nil {
			p.fail()
			break
		}
		if err = p.enter(s.state); err != nil {
			p.fail()
			break
		}
		if err = s.run(ctx); err != nil {
			err = fmt.Errorf("%s %s: %w", p.backend, s.state, err)
			p.fail()
			break
		}
	}

	if cerr := p.enter(StateCleanup); cerr != nil {
		log.Debugf("%v", cerr)
	}
	if cleanup != nil {
		for _, ce := range cleanup() {
			log.Warnf("%s: cleanup of %s failed: %v", p.backend, ce.path, ce.err)
			p.listener(EventCleanupFailed{Path: ce.path, Error: ce.err.Error()})
		}
	}
	if err != nil {
		return err
	}
	return p.enter(StateDone)
}

// States returns the states entered so far, in order.
func (p *pipeline) States() []State {
	return append([]State(nil), p.states...)
}

// cleanupError is a best-effort cleanup action that failed.
type cleanupError struct {
	path string
	err  error
}
