package beat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is one periodic job submission
type Schedule struct {
	Name           string
	Cron           string
	Worker         string
	TerminalStatus int
	Args           []any
}

// Config holds scheduler dependencies
type Config struct {
	Schedules []Schedule
	Registry  *registry.Registry
	Submitter broker.Submitter
	Location  *time.Location
	Logger    *slog.Logger
}

type entry struct {
	schedule Schedule
	args     []json.RawMessage
	id       cron.EntryID
}

// Scheduler publishes creator requests on cron schedules. Each tick becomes a
// task.task_creator message, so jobs are created by whichever worker serves
// that queue.
type Scheduler struct {
	cron      *cron.Cron
	submitter broker.Submitter
	logger    *slog.Logger
	entries   []*entry
}

// New parses every schedule. Invalid cron expressions and unknown workers are
// startup errors.
func New(cfg Config) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		submitter: cfg.Submitter,
		logger:    cfg.Logger,
	}

	for _, sched := range cfg.Schedules {
		if _, err := cronParser.Parse(sched.Cron); err != nil {
			return nil, fmt.Errorf("schedule %s: invalid cron expression %q: %w", sched.Name, sched.Cron, err)
		}
		if _, err := cfg.Registry.Lookup(sched.Worker); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		if sched.TerminalStatus == 0 {
			sched.TerminalStatus = job.StatusTerminal
		}

		args, err := task.EncodeArgs(sched.Args...)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}

		e := &entry{schedule: sched, args: args}
		id, err := s.cron.AddFunc(sched.Cron, func() { s.fire(e) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", sched.Name, err)
		}
		e.id = id
		s.entries = append(s.entries, e)
	}

	return s, nil
}

// Trigger publishes the creator request for the named schedule immediately
func (s *Scheduler) Trigger(ctx context.Context, name string) (string, error) {
	for _, e := range s.entries {
		if e.schedule.Name == name {
			return s.submit(ctx, e)
		}
	}
	return "", fmt.Errorf("schedule %s not found", name)
}

// Next returns the next activation time of every schedule, keyed by name.
// Times are zero until the scheduler is running.
func (s *Scheduler) Next() map[string]time.Time {
	out := make(map[string]time.Time, len(s.entries))
	for _, e := range s.entries {
		out[e.schedule.Name] = s.cron.Entry(e.id).Next
	}
	return out
}

// Run starts the cron loop and blocks until ctx is done. Running submissions
// are awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Beat scheduler started",
		slog.Int("schedules", len(s.entries)),
	)
	s.cron.Start()

	<-ctx.Done()

	s.logger.Info("Beat scheduler stopping...")
	<-s.cron.Stop().Done()
	s.logger.Info("Beat scheduler stopped")
}

func (s *Scheduler) fire(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.submit(ctx, e); err != nil {
		s.logger.Error("Failed to submit scheduled job",
			slog.String("schedule", e.schedule.Name),
			slog.String("worker", e.schedule.Worker),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) submit(ctx context.Context, e *entry) (string, error) {
	args := make([]json.RawMessage, 0, len(e.args)+2)
	head, err := task.EncodeArgs(e.schedule.Worker, e.schedule.TerminalStatus)
	if err != nil {
		return "", err
	}
	args = append(args, head...)
	args = append(args, e.args...)

	id, err := s.submitter.Submit(ctx, task.NewMessage(task.CreatorTask, args))
	if err != nil {
		return "", fmt.Errorf("failed to submit schedule %s: %w", e.schedule.Name, err)
	}

	s.logger.Info("Scheduled job submitted",
		slog.String("schedule", e.schedule.Name),
		slog.String("worker", e.schedule.Worker),
		slog.String("message_id", id),
	)
	return id, nil
}
