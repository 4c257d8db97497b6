package taskengine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alphagbm/analysiscore/internal/storage"
)

// fakeTaskStore is an in-memory TaskStore, exercising the same lifecycle the
// real sqlx-backed TaskRepository persists, without a database.
type fakeTaskStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*storage.AnalysisTask
	order []uuid.UUID
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{rows: make(map[uuid.UUID]*storage.AnalysisTask)}
}

func (s *fakeTaskStore) Create(_ context.Context, task *storage.AnalysisTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.rows[task.ID] = &cp
	s.order = append(s.order, task.ID)
	return nil
}

func (s *fakeTaskStore) Get(_ context.Context, id uuid.UUID) (*storage.AnalysisTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *fakeTaskStore) ListByUser(_ context.Context, userID string, limit int) ([]storage.AnalysisTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.AnalysisTask
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		row := s.rows[s.order[i]]
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.Status = storage.TaskProcessing
	if !row.StartedAt.Valid {
		row.StartedAt.Time = time.Now()
		row.StartedAt.Valid = true
	}
	return nil
}

func (s *fakeTaskStore) UpdateProgress(_ context.Context, id uuid.UUID, percent int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.ProgressPercent = percent
	row.CurrentStep.String = truncate(step, 1000)
	row.CurrentStep.Valid = true
	return nil
}

func (s *fakeTaskStore) Complete(_ context.Context, id uuid.UUID, result json.RawMessage, historyID *int64, historyType, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.Status = storage.TaskCompleted
	row.ProgressPercent = 100
	row.CurrentStep.String = truncate(step, 1000)
	row.CurrentStep.Valid = true
	row.ResultData = result
	if historyID != nil {
		row.RelatedHistoryID.Int64 = *historyID
		row.RelatedHistoryID.Valid = true
	}
	row.RelatedHistoryType.String = historyType
	row.RelatedHistoryType.Valid = historyType != ""
	return nil
}

func (s *fakeTaskStore) Fail(_ context.Context, id uuid.UUID, step, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	row.Status = storage.TaskFailed
	row.ProgressPercent = 0
	row.CurrentStep.String = truncate(step, 1000)
	row.CurrentStep.Valid = true
	row.ErrorMessage.String = truncate(errMsg, 5000)
	row.ErrorMessage.Valid = true
	return nil
}

// fakeDailyCacheStore is an in-memory DailyCacheStore keyed by (ticker,
// style, date); Insert returns storage.ErrCacheConflict on a repeat key,
// mirroring the unique-constraint behavior the real repository maps.
type fakeDailyCacheStore struct {
	mu   sync.Mutex
	rows map[string]*storage.DailyAnalysisCache
}

func newFakeDailyCacheStore() *fakeDailyCacheStore {
	return &fakeDailyCacheStore{rows: make(map[string]*storage.DailyAnalysisCache)}
}

func cacheKey(ticker, style string, date time.Time) string {
	return ticker + "|" + style + "|" + date.Format("2006-01-02")
}

func (s *fakeDailyCacheStore) Get(_ context.Context, ticker, style string, date time.Time) (*storage.DailyAnalysisCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[cacheKey(ticker, style, date)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *fakeDailyCacheStore) Insert(_ context.Context, row *storage.DailyAnalysisCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cacheKey(row.Ticker, row.Style, row.AnalysisDate)
	if _, exists := s.rows[key]; exists {
		return storage.ErrCacheConflict
	}
	cp := *row
	s.rows[key] = &cp
	return nil
}

// fakeStockHistoryStore and fakeOptionsHistoryStore record inserted rows and
// hand back sequential ids, like RETURNING id would.
type fakeStockHistoryStore struct {
	mu   sync.Mutex
	rows []storage.StockAnalysisHistory
}

func (s *fakeStockHistoryStore) Insert(_ context.Context, row *storage.StockAnalysisHistory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *row)
	return int64(len(s.rows)), nil
}

type fakeOptionsHistoryStore struct {
	mu   sync.Mutex
	rows []storage.OptionsAnalysisHistory
}

func (s *fakeOptionsHistoryStore) Insert(_ context.Context, row *storage.OptionsAnalysisHistory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *row)
	return int64(len(s.rows)), nil
}
