// Package repo provides snapshot stores and the decision ledger for batch runs
package repo

import (
	"context"
	"encoding/json"
	"sync"

	perr "detention/internal/platform/errors"
	"detention/internal/services/batch/domain"
)

// Memory keeps the snapshot in process. Values are deep copied through json
type Memory struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemory returns an empty in-process snapshot store
func NewMemory() *Memory { return &Memory{} }

// Load implements domain.SnapshotStore
func (m *Memory) Load(_ context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return nil, nil
	}
	return decode(m.buf)
}

// Save implements domain.SnapshotStore
func (m *Memory) Save(_ context.Context, s domain.Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.buf = b
	m.mu.Unlock()
	return nil
}

// Clear implements domain.SnapshotStore
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.buf = nil
	m.mu.Unlock()
	return nil
}

func encode(s domain.Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "encode snapshot")
	}
	return b, nil
}

func decode(b []byte) (*domain.Snapshot, error) {
	var s domain.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode snapshot")
	}
	return &s, nil
}
