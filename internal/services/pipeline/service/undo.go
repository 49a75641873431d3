package service

import (
	"context"
	"slices"
	"sync"

	"detention/internal/platform/logger"
	"detention/internal/services/pipeline/domain"
)

// DefaultUndoCapacity bounds the in-memory undo history
const DefaultUndoCapacity = 100

// UndoStack keeps the most recent mutations, newest last. The oldest entry is
// dropped once the capacity is reached
type UndoStack struct {
	mu    sync.Mutex
	cap   int
	items []domain.UndoRecord
	sink  domain.UndoSink
}

// NewUndoStack builds a stack; sink may be nil
func NewUndoStack(capacity int, sink domain.UndoSink) *UndoStack {
	if capacity <= 0 {
		capacity = DefaultUndoCapacity
	}
	return &UndoStack{cap: capacity, sink: sink}
}

// Push records rec and forwards it to the sink. Sink failures are logged only
func (s *UndoStack) Push(ctx context.Context, rec domain.UndoRecord) {
	s.mu.Lock()
	if len(s.items) == s.cap {
		s.items = slices.Delete(s.items, 0, 1)
	}
	s.items = append(s.items, rec)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.AppendUndo(ctx, rec); err != nil {
			logger.C(ctx).Warn().Err(err).Str("undo_id", rec.ID).Msg("undo sink append failed")
		}
	}
}

// List returns the history newest first
func (s *UndoStack) List() []domain.UndoRecord {
	s.mu.Lock()
	out := slices.Clone(s.items)
	s.mu.Unlock()
	slices.Reverse(out)
	return out
}

// Pop removes and returns the newest record
func (s *UndoStack) Pop() (domain.UndoRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return domain.UndoRecord{}, false
	}
	rec := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return rec, true
}

// Len returns the number of records held
func (s *UndoStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
