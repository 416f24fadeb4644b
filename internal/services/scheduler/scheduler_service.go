package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
)

// Handler is the work a job performs. ctx is cancelled when the scheduler's
// parent context ends, not when Stop is called.
type Handler func(ctx context.Context) error

// JobStatus reports the state of a registered job
type JobStatus struct {
	Name        string
	Schedule    string
	Description string
	LastRun     *time.Time
	NextRun     *time.Time
	IsRunning   bool
	LastError   string
	Runs        int
	Skipped     int
}

type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     Handler
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
	runs        int
	skipped     int
}

// Service runs registered jobs on cron schedules. A job never overlaps with
// itself: cron ticks go through SkipIfStillRunning and manual triggers are
// dropped while a run is in flight.
type Service struct {
	cron      *cron.Cron
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger

	jobMu   sync.Mutex
	jobs    map[string]*jobEntry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a scheduler. kvStorage may be nil to skip persisting last-run times.
func NewService(kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	cl := cronLogger{logger: logger}
	return &Service{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		kvStorage: kvStorage,
		logger:    logger,
		jobs:      make(map[string]*jobEntry),
	}
}

// ValidateSchedule checks a standard 5-field expression or an @every/@hourly descriptor
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// EveryMinutes returns an @every descriptor for a polling interval
func EveryMinutes(minutes int) string {
	return fmt.Sprintf("@every %dm", minutes)
}

// RegisterJob adds a job. It may be called before or after Start.
func (s *Service) RegisterJob(name, schedule, description string, handler Handler) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// Start begins ticking. Jobs receive a context derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts scheduling and blocks until in-flight runs return
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cancel()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the scheduler is ticking
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// TriggerJob runs a job now in the background. It is a no-op when the job is already running.
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	common.SafeGo(s.logger, &s.wg, "scheduler:"+name, func() {
		s.executeJob(name)
	})
	return nil
}

// GetJobStatus returns a snapshot of a job's state
func (s *Service) GetJobStatus(name string) (*JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
		nextRun = &next
	}

	return &JobStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
		Runs:        entry.runs,
		Skipped:     entry.skipped,
	}, nil
}

func (s *Service) executeJob(name string) {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	if entry.isRunning {
		entry.skipped++
		s.jobMu.Unlock()
		s.logger.Info().Str("job_name", name).Msg("Job still running, skipping this run")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	ctx := s.ctx
	s.jobMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := s.invoke(ctx, name, handler)

	completed := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	entry.runs++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job execution failed")
	} else {
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", time.Since(start)).
			Msg("Job execution completed")
	}

	s.saveLastRun(ctx, name, completed)
}

// invoke converts a handler panic into an error so status tracking still completes
func (s *Service) invoke(ctx context.Context, name string, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", name, r)
		}
	}()
	return handler(ctx)
}

func (s *Service) saveLastRun(ctx context.Context, name string, at time.Time) {
	if s.kvStorage == nil {
		return
	}
	key := "scheduler_last_run:" + name
	if err := s.kvStorage.Set(ctx, key, at.UTC().Format(time.RFC3339), "Last completed run of "+name); err != nil {
		s.logger.Warn().Err(err).Str("job_name", name).Msg("Failed to persist job last run")
	}
}

// LastRun reads the persisted completion time of a job from a previous process
func (s *Service) LastRun(ctx context.Context, name string) (*time.Time, error) {
	if s.kvStorage == nil {
		return nil, nil
	}
	value, err := s.kvStorage.Get(ctx, "scheduler_last_run:"+name)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid last run for %s: %w", name, err)
	}
	return &t, nil
}

// cronLogger routes robfig/cron's logging into arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("kv", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("kv", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
