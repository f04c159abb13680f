package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/minizaps/internal/zaps"
)

// Triggerer starts runs. *WorkflowService satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, req TriggerRequest) (*zaps.RunRecord, error)
}

// SchedulerService triggers workflows on cron schedules.
// It wraps robfig/cron; schedules come from configuration.
type SchedulerService struct {
	cron      *cron.Cron
	trigger   Triggerer
	mu        sync.RWMutex
	schedules map[string]*zaps.Schedule
	entryMap  map[string]cron.EntryID // schedule name → cron entry
}

func NewSchedulerService(trigger Triggerer) *SchedulerService {
	return &SchedulerService{
		cron:      cron.New(cron.WithSeconds()),
		trigger:   trigger,
		schedules: make(map[string]*zaps.Schedule),
		entryMap:  make(map[string]cron.EntryID),
	}
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
func parseCronExpr(expr string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(expr)
}

// AddSchedule validates a schedule and registers its cron job unless it is
// disabled. Schedules are keyed by name, which defaults to the workflow name.
func (s *SchedulerService) AddSchedule(schedule zaps.Schedule) error {
	if schedule.WorkflowName == "" {
		return fmt.Errorf("schedule %q: workflow is required", schedule.Name)
	}
	if schedule.Name == "" {
		schedule.Name = schedule.WorkflowName
	}
	cronSched, err := parseCronExpr(schedule.CronExpr)
	if err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression %q: %w", schedule.Name, schedule.CronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[schedule.Name]; exists {
		return fmt.Errorf("schedule %q: duplicate name", schedule.Name)
	}

	sched := schedule
	s.schedules[sched.Name] = &sched
	if sched.Disabled {
		return nil
	}

	next := cronSched.Next(time.Now())
	sched.NextRunAt = &next
	s.entryMap[sched.Name] = s.cron.Schedule(cronSched, cron.FuncJob(func() {
		s.executeScheduledRun(sched.Name)
	}))
	slog.Info("scheduler: registered cron job",
		"name", sched.Name, "workflow", sched.WorkflowName, "cron", sched.CronExpr)
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled.
func (s *SchedulerService) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("scheduler: started", "schedules", len(s.ListSchedules()))
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	slog.Info("scheduler: stopped")
	return nil
}

// ListSchedules returns all schedules sorted by name.
func (s *SchedulerService) ListSchedules() []zaps.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]zaps.Schedule, 0, len(s.schedules))
	for name, sched := range s.schedules {
		cp := *sched
		if id, ok := s.entryMap[name]; ok {
			if next := s.cron.Entry(id).Next; !next.IsZero() {
				cp.NextRunAt = &next
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// executeScheduledRun is called by cron when a schedule fires.
func (s *SchedulerService) executeScheduledRun(name string) {
	s.mu.RLock()
	sched, ok := s.schedules[name]
	var req TriggerRequest
	if ok {
		req = TriggerRequest{
			WorkflowName: sched.WorkflowName,
			Payload:      sched.Payload,
			MaxRetries:   sched.MaxRetries,
			TriggerType:  zaps.TriggerCron,
		}
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	slog.Info("scheduler: executing scheduled run", "schedule", name, "workflow", req.WorkflowName)
	rec, err := s.trigger.Trigger(context.Background(), req)

	now := time.Now()
	s.mu.Lock()
	sched.LastRunAt = &now
	if rec != nil {
		sched.LastRunID = rec.ID
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("scheduler: trigger failed", "schedule", name, "workflow", req.WorkflowName, "err", err)
	}
}
