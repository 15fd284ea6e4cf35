package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/chainflow/internal/adapters/storage"
	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []ports.RunOptions
	ids   []string
}

func (r *recordingRunner) ExecuteWorkflow(ctx context.Context, workflowID string, def *domain.Definition) domain.RunResult {
	return r.ExecuteWorkflowWithOptions(ctx, workflowID, def, ports.RunOptions{TriggerType: domain.TriggerManual})
}

func (r *recordingRunner) ExecuteWorkflowWithOptions(_ context.Context, workflowID string, _ *domain.Definition, opts ports.RunOptions) domain.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	r.ids = append(r.ids, workflowID)
	return domain.RunResult{Success: true, RunID: "run-" + workflowID}
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func scheduleDef(config map[string]interface{}) *domain.Definition {
	return &domain.Definition{
		Nodes: []domain.Node{
			{ID: "t", Type: domain.NodeTypeSchedule, Config: config},
			{ID: "a", Type: domain.NodeTypeAptosTransfer, Config: map[string]interface{}{}},
		},
		Edges: []domain.Edge{{ID: "e", Source: "t", Target: "a"}},
	}
}

func saveWorkflow(t *testing.T, store ports.WorkflowStore, id string, active bool, def *domain.Definition) {
	t.Helper()
	require.NoError(t, store.SaveWorkflow(context.Background(), &domain.Workflow{
		ID:         id,
		Name:       id,
		Definition: def,
		IsActive:   active,
	}))
}

func TestScheduleSpec(t *testing.T) {
	tests := []struct {
		name string
		def  *domain.Definition
		want string
		ok   bool
	}{
		{"cron expression", scheduleDef(map[string]interface{}{"cron": " */5 * * * * "}), "*/5 * * * *", true},
		{"cron wins over interval", scheduleDef(map[string]interface{}{"cron": "@hourly", "interval": 30.0}), "@hourly", true},
		{"float interval", scheduleDef(map[string]interface{}{"interval": 30.0}), "@every 30s", true},
		{"int interval", scheduleDef(map[string]interface{}{"interval": 45}), "@every 45s", true},
		{"string interval", scheduleDef(map[string]interface{}{"interval": "1.5"}), "@every 2s", true},
		{"zero interval", scheduleDef(map[string]interface{}{"interval": 0.0}), "", false},
		{"no schedule config", scheduleDef(map[string]interface{}{}), "", false},
		{"webhook trigger", &domain.Definition{Nodes: []domain.Node{
			{ID: "w", Type: domain.NodeTypeWebhookTrigger, Config: map[string]interface{}{"interval": 5.0}},
		}}, "", false},
		{"no trigger", &domain.Definition{Nodes: []domain.Node{{ID: "a", Type: domain.NodeTypeAptosTransfer}}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := ScheduleSpec(tt.def)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, spec)
		})
	}
}

func TestScheduler_Sync(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(nil)
	runner := &recordingRunner{}
	s := NewScheduler(runner, store, domain.DefaultSchedulerConfig(), nil)

	saveWorkflow(t, store, "every-minute", true, scheduleDef(map[string]interface{}{"cron": "* * * * *"}))
	saveWorkflow(t, store, "inactive", false, scheduleDef(map[string]interface{}{"interval": 10.0}))
	saveWorkflow(t, store, "broken", true, scheduleDef(map[string]interface{}{"cron": "not a cron"}))
	saveWorkflow(t, store, "interval", true, scheduleDef(map[string]interface{}{"interval": 10.0}))

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, map[string]string{
		"every-minute": "* * * * *",
		"interval":     "@every 10s",
	}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 2)

	saveWorkflow(t, store, "interval", true, scheduleDef(map[string]interface{}{"interval": 20.0}))
	require.NoError(t, store.DeleteWorkflow(ctx, "every-minute"))

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, map[string]string{"interval": "@every 20s"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_Fire(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	runner := &recordingRunner{}
	s := NewScheduler(runner, store, domain.DefaultSchedulerConfig(), nil)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

	saveWorkflow(t, store, "wf", true, scheduleDef(map[string]interface{}{"interval": 60.0}))
	saveWorkflow(t, store, "off", false, scheduleDef(map[string]interface{}{"interval": 60.0}))

	s.fire("wf")
	s.fire("off")
	s.fire("missing")

	require.Equal(t, 1, runner.count())
	assert.Equal(t, "wf", runner.ids[0])
	assert.Equal(t, domain.TriggerSchedule, runner.calls[0].TriggerType)
	assert.Equal(t, "2026-05-01T10:00:00Z", runner.calls[0].TriggerPayload["scheduledAt"])
}

func TestScheduler_StartStop(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	runner := &recordingRunner{}
	cfg := domain.SchedulerConfig{Enabled: true, SyncInterval: 50 * time.Millisecond}
	s := NewScheduler(runner, store, cfg, nil)

	saveWorkflow(t, store, "wf", true, scheduleDef(map[string]interface{}{"interval": 1.0}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrAlreadyStarted)

	require.Eventually(t, func() bool { return runner.count() > 0 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), domain.ErrNotStarted)
}
