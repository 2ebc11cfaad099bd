package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bcnelson/teamsync/internal/coursespec"
	"github.com/bcnelson/teamsync/internal/directory"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/reconcile"
	"go.uber.org/zap"
)

// MappingSource lists the course specs registered for recurring sync.
type MappingSource interface {
	ListCourseMappings(ctx context.Context) ([]*domain.CourseMapping, error)
}

// RunOptions tunes one driver run.
type RunOptions struct {
	// StopOnFailure ends the run after the first failed course.
	StopOnFailure bool
	// OnStart and OnFinish bracket every course, on the run goroutine.
	OnStart  func(course string)
	OnFinish func(CourseResult)
}

// CourseResult summarizes one course of a run.
type CourseResult struct {
	Course      string
	Team        string
	Succeeded   bool
	Added       int
	FailedUsers int
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Driver runs batches of course specs through the directory and the
// reconciliation engine, one course at a time.
type Driver struct {
	dir    directory.Directory
	engine *reconcile.Engine
	base   string
	logger *zap.Logger
}

// NewDriver creates a Driver resolving groups under base.
func NewDriver(dir directory.Directory, engine *reconcile.Engine, base string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{dir: dir, engine: engine, base: base, logger: logger}
}

// Run syncs every spec in order and streams the labelled progress of each
// course followed by one Summary event. "all" expands to the mappings
// listed once, when the run starts. A failing course is reported and the
// run moves on, unless opts.StopOnFailure is set. The channel is closed
// when the run ends or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, specs []string, mappings MappingSource, opts RunOptions) <-chan domain.ProgressEvent {
	ch := make(chan domain.ProgressEvent)
	go func() {
		defer close(ch)
		d.run(ctx, specs, mappings, opts, func(ev domain.ProgressEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch
}

func (d *Driver) run(ctx context.Context, specs []string, mappings MappingSource, opts RunOptions, send func(domain.ProgressEvent) bool) {
	courses, err := expand(ctx, specs, mappings)
	if err != nil {
		d.logger.Error("failed to load course mappings", zap.Error(err))
		send(domain.Failed(fmt.Sprintf("Failed to load course mappings: %v", err), err))
		return
	}
	if len(courses) == 0 {
		if !send(domain.Info("No course to sync.")) {
			return
		}
	}

	succeeded, failed := 0, 0
	for _, course := range courses {
		if ctx.Err() != nil {
			return
		}
		res := d.syncCourse(ctx, course, opts, send)
		if opts.OnFinish != nil {
			opts.OnFinish(res)
		}
		if ctx.Err() != nil {
			return
		}
		if res.Succeeded {
			succeeded++
			continue
		}
		failed++
		if opts.StopOnFailure {
			break
		}
	}

	send(domain.ProgressEvent{
		Kind:    domain.EventSummary,
		Message: fmt.Sprintf("Sync finished: %d succeeded, %d failed.", succeeded, failed),
		Count:   failed,
	})
}

// expand replaces "all" with the registered mappings. The mapping set is
// read at most once per run.
func expand(ctx context.Context, specs []string, mappings MappingSource) ([]string, error) {
	var (
		courses  []string
		expanded bool
	)
	for _, spec := range specs {
		if !coursespec.IsAll(spec) {
			courses = append(courses, spec)
			continue
		}
		if expanded {
			continue
		}
		if mappings == nil {
			return nil, errors.New("no mapping source to expand all")
		}
		registered, err := mappings.ListCourseMappings(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range registered {
			courses = append(courses, m.Course)
		}
		expanded = true
	}
	return courses, nil
}

func (d *Driver) syncCourse(ctx context.Context, course string, opts RunOptions, send func(domain.ProgressEvent) bool) CourseResult {
	res := CourseResult{Course: course, StartedAt: time.Now()}
	if opts.OnStart != nil {
		opts.OnStart(course)
	}
	emit := func(ev domain.ProgressEvent) bool {
		ev.Course = course
		return send(ev)
	}
	fail := func(msg string, err error) CourseResult {
		d.logger.Warn("course sync failed", zap.String("course", course), zap.Error(err))
		res.Err = err
		res.FinishedAt = time.Now()
		emit(domain.Failed(msg, err))
		return res
	}

	spec, err := coursespec.Parse(course)
	if err != nil {
		return fail(fmt.Sprintf("Invalid course spec %q: %v", course, err), err)
	}
	res.Team = spec.TeamName
	if !emit(domain.Info(fmt.Sprintf("OK, syncing course(s) %s to team %s.", spec.SourceList(), spec.TeamName))) {
		res.Err = ctx.Err()
		res.FinishedAt = time.Now()
		return res
	}

	members, err := d.dir.Resolve(ctx, d.base, spec.Sources)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return fail(fmt.Sprintf("Course %s not found in the directory: %v", course, err), err)
		}
		return fail(fmt.Sprintf("Failed to resolve course %s: %v", course, err), err)
	}

	terminal := false
	for ev := range d.engine.Reconcile(ctx, domain.TeamTarget{Name: spec.TeamName}, members) {
		switch ev.Kind {
		case domain.EventWarning:
			res.FailedUsers = ev.Count
		case domain.EventSucceeded:
			terminal, res.Succeeded, res.Added = true, true, ev.Count
		case domain.EventFailed:
			terminal, res.Err = true, ev.Err
		}
		emit(ev)
	}
	res.FinishedAt = time.Now()
	if !terminal {
		res.Err = ctx.Err()
		return res
	}
	if res.Succeeded {
		emit(domain.Info(fmt.Sprintf("Finished syncing course %s.", course)))
	}
	return res
}
