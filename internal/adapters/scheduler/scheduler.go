package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler fires runs for stored workflows whose trigger is a schedule
// node. The set of cron entries follows the workflow store through Sync.
type Scheduler struct {
	runner    ports.WorkflowRunner
	workflows ports.WorkflowStore
	config    domain.SchedulerConfig
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(runner ports.WorkflowRunner, workflows ports.WorkflowStore, config domain.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	cronLogger := &slogAdapter{logger: logger}
	return &Scheduler{
		runner:    runner,
		workflows: workflows,
		config:    config,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
		baseCtx: context.Background(),
	}
}

// Start syncs once, starts the cron loop, and re-syncs every SyncInterval
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.baseCtx = runCtx
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.Sync(runCtx); err != nil {
		s.logger.Warn("initial schedule sync failed", "error", err.Error())
	}
	s.cron.Start()

	go s.syncLoop(runCtx)

	s.logger.Info("scheduler started", "sync_interval", s.config.SyncInterval)
	return nil
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer close(s.done)

	if s.config.SyncInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn("schedule sync failed", "error", err.Error())
			}
		}
	}
}

// Stop halts the cron loop and waits for in-flight scheduled runs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return domain.ErrNotStarted
	}

	stopped := s.cron.Stop()
	<-stopped.Done()
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}

// Sync reconciles cron entries with the active scheduled workflows in the
// store. Workflows with an unparseable schedule are skipped with a warning.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}

	desired := make(map[string]string, len(workflows))
	for _, wf := range workflows {
		if !wf.IsActive || wf.Definition == nil {
			continue
		}
		if spec, ok := ScheduleSpec(wf.Definition); ok {
			desired[wf.ID] = spec
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, current := range s.entries {
		if spec, ok := desired[id]; !ok || spec != current.spec {
			s.cron.Remove(current.id)
			delete(s.entries, id)
			s.logger.Debug("unscheduled workflow", "workflow_id", id)
		}
	}

	for id, spec := range desired {
		if _, ok := s.entries[id]; ok {
			continue
		}
		workflowID := id
		entryID, err := s.cron.AddFunc(spec, func() { s.fire(workflowID) })
		if err != nil {
			s.logger.Warn("invalid schedule",
				"workflow_id", workflowID,
				"schedule", spec,
				"error", err.Error())
			continue
		}
		s.entries[workflowID] = entry{id: entryID, spec: spec}
		s.logger.Info("scheduled workflow", "workflow_id", workflowID, "schedule", spec)
	}

	return nil
}

// Scheduled returns the cron spec of every registered workflow.
func (s *Scheduler) Scheduled() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.spec
	}
	return out
}

// fire loads the current definition so edits between syncs take effect.
func (s *Scheduler) fire(workflowID string) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	wf, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		s.logger.Warn("scheduled workflow unavailable", "workflow_id", workflowID, "error", err.Error())
		return
	}
	if !wf.IsActive {
		s.logger.Debug("skipping inactive workflow", "workflow_id", workflowID)
		return
	}

	result := s.runner.ExecuteWorkflowWithOptions(ctx, workflowID, wf.Definition, ports.RunOptions{
		TriggerType:    domain.TriggerSchedule,
		TriggerPayload: map[string]interface{}{"scheduledAt": s.now().UTC().Format(time.RFC3339)},
	})
	if !result.Success {
		s.logger.Warn("scheduled run failed",
			"workflow_id", workflowID,
			"run_id", result.RunID,
			"error", result.Error)
	}
}

// ScheduleSpec extracts the cron spec of a definition whose first trigger is
// a schedule node. config.cron wins over config.interval (seconds).
func ScheduleSpec(def *domain.Definition) (string, bool) {
	trigger, ok := def.FindTrigger()
	if !ok || trigger.Type != domain.NodeTypeSchedule {
		return "", false
	}

	if expr, ok := trigger.Config["cron"].(string); ok && strings.TrimSpace(expr) != "" {
		return strings.TrimSpace(expr), true
	}

	seconds, ok := intervalSeconds(trigger.Config["interval"])
	if !ok || seconds <= 0 {
		return "", false
	}
	return fmt.Sprintf("@every %ds", seconds), true
}

func intervalSeconds(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(math.Ceil(n)), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int64(math.Ceil(f)), true
	default:
		return 0, false
	}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
