// Package taskengine implements the Analysis Task Engine: a persistent task
// table, an in-memory priority queue, a pool of worker goroutines, and three
// task execution modes (CACHED playback, WAITING-on-sibling, and FRESH
// analysis for both stock and option requests).
//
// Grounded on original_source's task_queue.py (TaskQueue: create_task,
// _worker_loop, _process_cached_task, _process_waiting_task,
// _process_stock_analysis, _process_options_analysis — exact progress
// schedules and sleep timings are preserved verbatim) and models.py (the
// AnalysisTask/DailyAnalysisCache/StockAnalysisHistory/
// OptionsAnalysisHistory row shapes, via internal/storage). The lifecycle
// shape (Init/Shutdown with a cancellable context, a WaitGroup of daemon
// goroutines, an idempotent start/stop pair) follows the teacher's
// packages/com.r3e.services.automation/scheduler.go Start/Stop pattern,
// generalized away from that file's framework.ServiceBase/core.Tracer/
// core.Descriptor coupling, which belongs to the teacher's enclave/
// blockchain-oracle runtime and has no analog here.
package taskengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/alphagbm/analysiscore/internal/logging"
	"github.com/alphagbm/analysiscore/internal/storage"
)

// TaskStore is the subset of internal/storage's TaskRepository the engine
// depends on. Declaring it here (rather than importing *storage.TaskRepository
// directly into the engine's signature) keeps the engine decoupled from any
// particular storage engine, per spec's "does not prescribe a storage
// engine" non-goal — Postgres-via-sqlx is the reference implementation of
// this contract, not a requirement the engine's types bake in.
type TaskStore interface {
	Create(ctx context.Context, task *storage.AnalysisTask) error
	Get(ctx context.Context, id uuid.UUID) (*storage.AnalysisTask, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]storage.AnalysisTask, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int, step string) error
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, historyID *int64, historyType, step string) error
	Fail(ctx context.Context, id uuid.UUID, step, errMsg string) error
}

// DailyCacheStore is the subset of internal/storage's DailyCacheRepository
// the engine depends on.
type DailyCacheStore interface {
	Get(ctx context.Context, ticker, style string, date time.Time) (*storage.DailyAnalysisCache, error)
	Insert(ctx context.Context, row *storage.DailyAnalysisCache) error
}

// StockHistoryStore is the subset of internal/storage's StockHistoryRepository
// the engine depends on.
type StockHistoryStore interface {
	Insert(ctx context.Context, row *storage.StockAnalysisHistory) (int64, error)
}

// OptionsHistoryStore is the subset of internal/storage's
// OptionsHistoryRepository the engine depends on.
type OptionsHistoryStore interface {
	Insert(ctx context.Context, row *storage.OptionsAnalysisHistory) (int64, error)
}

// StockAnalysisRunner is the injected *AnalysisRunner* collaborator for
// stock tasks: a pure function from the engine's perspective that
// internally drives the Market-Data Service. It returns a structured
// payload, or an error the engine treats as a task failure.
type StockAnalysisRunner func(ctx context.Context, ticker, style string) (map[string]any, error)

// OptionsRunRequest is the parameter set passed to an OptionsAnalysisRunner.
type OptionsRunRequest struct {
	Symbol           string
	Enhanced         bool
	ExpiryDate       string
	OptionIdentifier string
}

// OptionsAnalysisRunner is the injected *AnalysisRunner* collaborator for
// basic-chain and enhanced options tasks.
type OptionsAnalysisRunner func(ctx context.Context, req OptionsRunRequest) (map[string]any, error)

// WaitConfig tunes the WAITING mode's poll loop.
type WaitConfig struct {
	MaxWait      time.Duration
	PollInterval time.Duration
}

func defaultWaitConfig() WaitConfig {
	return WaitConfig{MaxWait: 300 * time.Second, PollInterval: 2 * time.Second}
}

// Engine is the Analysis Task Engine: task creation/status API plus a pool
// of worker goroutines draining the in-memory priority queue.
type Engine struct {
	tasks          TaskStore
	dailyCache     DailyCacheStore
	stockHistory   StockHistoryStore
	optionsHistory OptionsHistoryStore
	stockRunner    StockAnalysisRunner
	optionsRunner  OptionsAnalysisRunner
	logger         *logging.Logger
	maxWorkers     int
	queue          *descriptorQueue
	waitConfig     WaitConfig

	// QuotaHook, if set, is called once synchronously at the start of
	// CreateTask, before the row insert. A non-nil error aborts task
	// creation with that error and the engine keeps no counter of its own
	// — resolves spec.md §9's open question about quota enforcement
	// ownership.
	QuotaHook func(ctx context.Context, userID string, taskType storage.TaskType) error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Engine. maxWorkers defaults to 3 (the teacher's and the
// Python original's default) when <= 0.
func New(
	tasks TaskStore,
	dailyCache DailyCacheStore,
	stockHistory StockHistoryStore,
	optionsHistory OptionsHistoryStore,
	stockRunner StockAnalysisRunner,
	optionsRunner OptionsAnalysisRunner,
	logger *logging.Logger,
	maxWorkers int,
) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	return &Engine{
		tasks:          tasks,
		dailyCache:     dailyCache,
		stockHistory:   stockHistory,
		optionsHistory: optionsHistory,
		stockRunner:    stockRunner,
		optionsRunner:  optionsRunner,
		logger:         logger,
		maxWorkers:     maxWorkers,
		queue:          newDescriptorQueue(),
		waitConfig:     defaultWaitConfig(),
	}
}

// WithWaitConfig overrides the WAITING mode's poll interval / max wait,
// primarily for tests that would otherwise take minutes to time out.
func (e *Engine) WithWaitConfig(cfg WaitConfig) *Engine {
	e.waitConfig = cfg
	return e
}

// CreateTaskParams is the engine's task-creation contract. The caller (an
// external HTTP layer, out of scope here) has already decided the dispatch
// outcome — FRESH (CacheMode == CacheModeNone), CACHED, or WAITING — per
// spec.md §4.F.1.
type CreateTaskParams struct {
	UserID       string
	TaskType     storage.TaskType
	InputParams  map[string]any
	Priority     int
	CacheMode    CacheMode
	CachedData   map[string]any
	SourceTaskID uuid.UUID
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringParamOr(params map[string]any, key, fallback string) string {
	if v := stringParam(params, key); v != "" {
		return v
	}
	return fallback
}

// validateParams rejects option-analysis task creation synchronously when a
// mode-specific required field is missing, per SPEC_FULL.md's up-front
// validation addition (resolving spec.md §9's open question #2). No row or
// descriptor is created on validation failure.
func validateParams(p CreateTaskParams) error {
	switch p.TaskType {
	case storage.TaskOption:
		if strings.TrimSpace(stringParam(p.InputParams, "expiry_date")) == "" {
			return fmt.Errorf("taskengine: expiry_date is required for %s tasks", storage.TaskOption)
		}
	case storage.TaskOptionEnhanced:
		if strings.TrimSpace(stringParam(p.InputParams, "option_identifier")) == "" {
			return fmt.Errorf("taskengine: option_identifier is required for %s tasks", storage.TaskOptionEnhanced)
		}
	}
	return nil
}

// CreateTask generates a task id, inserts a PENDING row, and pushes a
// descriptor onto the in-memory queue for a worker to pick up.
func (e *Engine) CreateTask(ctx context.Context, p CreateTaskParams) (uuid.UUID, error) {
	if err := validateParams(p); err != nil {
		return uuid.Nil, err
	}

	if e.QuotaHook != nil {
		if err := e.QuotaHook(ctx, p.UserID, p.TaskType); err != nil {
			return uuid.Nil, err
		}
	}

	priority := p.Priority
	if priority == 0 {
		priority = 100
	}

	inputJSON, err := json.Marshal(p.InputParams)
	if err != nil {
		return uuid.Nil, fmt.Errorf("taskengine: marshal input params: %w", err)
	}

	id := uuid.New()
	task := &storage.AnalysisTask{
		ID:          id,
		UserID:      p.UserID,
		TaskType:    string(p.TaskType),
		Status:      storage.TaskPending,
		Priority:    priority,
		InputParams: inputJSON,
		CurrentStep: sql.NullString{String: "Task created, waiting in queue...", Valid: true},
		CreatedAt:   time.Now(),
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("taskengine: create task row: %w", err)
	}

	e.queue.push(taskDescriptor{
		taskID:       id,
		userID:       p.UserID,
		taskType:     string(p.TaskType),
		inputParams:  p.InputParams,
		priority:     priority,
		cacheMode:    p.CacheMode,
		cachedData:   p.CachedData,
		sourceTaskID: p.SourceTaskID,
	})

	e.logger.WithFields(map[string]interface{}{
		"task_id":    id.String(),
		"user_id":    p.UserID,
		"task_type":  p.TaskType,
		"cache_mode": string(p.CacheMode),
	}).Info("task created")

	return id, nil
}

// GetTaskStatus returns a task's current row, or nil if no such task exists.
func (e *Engine) GetTaskStatus(ctx context.Context, id uuid.UUID) (*storage.AnalysisTask, error) {
	return e.tasks.Get(ctx, id)
}

// GetUserTasks returns a user's most recent tasks, capped at 50 per
// spec.md §4.F.7 regardless of the requested limit.
func (e *Engine) GetUserTasks(ctx context.Context, userID string, limit int) ([]storage.AnalysisTask, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return e.tasks.ListByUser(ctx, userID, limit)
}

// Init starts maxWorkers daemon goroutines. It is idempotent.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	for i := 0; i < e.maxWorkers; i++ {
		name := fmt.Sprintf("TaskWorker-%d", i+1)
		e.wg.Add(1)
		go e.workerLoop(runCtx, name)
	}

	e.logger.WithFields(map[string]interface{}{"workers": e.maxWorkers}).Info("task engine started")
	return nil
}

// Shutdown stops accepting new work from the queue and waits for in-flight
// tasks to finish, up to ctx's deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.logger.Info("task engine stopped")
	return nil
}

// ScheduleMaintenance registers a periodic cache cleanup sweep; cleanup
// returns the number of entries it removed (cmd/analysiscore passes the
// market-data cache's CleanupExpired). If sched is
// non-nil it runs on a cron schedule (matching the teacher's scheduling
// idiom); otherwise it falls back to a standalone ticker bound to ctx, so
// the engine works without a cron instance — SPEC_FULL.md §4.F's
// "[ADDED] Cron-driven maintenance".
func (e *Engine) ScheduleMaintenance(ctx context.Context, sched *cron.Cron, cleanup func() int, intervalSeconds int) {
	if cleanup == nil {
		return
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 3600
	}

	run := func() {
		removed := cleanup()
		if removed > 0 {
			e.logger.WithFields(map[string]interface{}{"removed": removed}).Info("expired cache entries swept")
		}
	}

	if sched != nil {
		spec := "@every " + time.Duration(intervalSeconds*int(time.Second)).String()
		sched.AddFunc(spec, run)
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
