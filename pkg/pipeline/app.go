package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xhad/newsbot/internal/models"
)

// State is what a front end renders.
type State struct {
	URLs     []string
	Question string
	Stage    Stage
	Status   string
	Answer   string
	Sources  []string
	Err      error
	Busy     bool
}

// App holds the application state around a Pipeline and allows one task at
// a time. It is safe for concurrent use.
type App struct {
	pipeline *Pipeline
	onChange func(State)

	mu    sync.Mutex
	state State
}

// NewApp wraps p. onChange, if set, is called with a snapshot after every
// state change, from the goroutine running the task.
func NewApp(p *Pipeline, onChange func(State)) *App {
	return &App{pipeline: p, onChange: onChange}
}

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *App) snapshot() State {
	s := a.state
	s.URLs = append([]string(nil), a.state.URLs...)
	s.Sources = append([]string(nil), a.state.Sources...)
	return s
}

func (a *App) update(fn func(s *State)) {
	a.mu.Lock()
	fn(&a.state)
	s := a.snapshot()
	a.mu.Unlock()

	if a.onChange != nil {
		a.onChange(s)
	}
}

func (a *App) begin(fn func(s *State)) error {
	a.mu.Lock()
	if a.state.Busy {
		a.mu.Unlock()
		return ErrBusy
	}
	a.state.Busy = true
	a.state.Err = nil
	fn(&a.state)
	s := a.snapshot()
	a.mu.Unlock()

	if a.onChange != nil {
		a.onChange(s)
	}
	return nil
}

func (a *App) track(stage Stage) {
	a.update(func(s *State) {
		s.Stage = stage
		s.Status = stage.Status()
	})
}

// end clears Busy once a task is over, however it ended. A panic in one of
// the pipeline's dependencies becomes the task's error.
func (a *App) end(err *error, done func(s *State)) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrPanic, r)
	}
	a.update(func(s *State) {
		s.Busy = false
		s.Err = *err
		s.Status = ""
		if *err != nil {
			s.Stage = StageIdle
			return
		}
		done(s)
	})
}

// Process runs the process flow for urls unless another task is running.
func (a *App) Process(ctx context.Context, urls []string) (report ProcessReport, err error) {
	if err := a.begin(func(s *State) {
		s.URLs = append([]string(nil), urls...)
	}); err != nil {
		return ProcessReport{}, err
	}
	defer a.end(&err, func(s *State) {
		s.Status = fmt.Sprintf("%s Indexed %d chunks from %d of %d URLs.",
			StagePersisted.Status(), report.Chunks, report.Documents, len(CleanURLs(urls)))
	})

	return a.pipeline.Process(ctx, urls, a.track)
}

// Ask runs the query flow for question unless another task is running.
func (a *App) Ask(ctx context.Context, question string) (result models.QueryResult, err error) {
	if err := a.begin(func(s *State) {
		s.Question = question
		s.Answer = ""
		s.Sources = nil
	}); err != nil {
		return models.QueryResult{}, err
	}
	defer a.end(&err, func(s *State) {
		s.Answer = strings.TrimSpace(result.Answer)
		s.Sources = result.Sources
	})

	return a.pipeline.Query(ctx, question, a.track)
}
