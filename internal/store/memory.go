package store

import (
	"fmt"
	"sort"
	"sync"

	"hostplane/internal/approvals"
)

// Memory is an in-process RequestStore used by tests and the
// single-binary development mode; it provides the same CAS semantics as
// the MySQL implementation
type Memory struct {
	mutex   sync.Mutex
	records map[string]*approvals.Request
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string]*approvals.Request{},
	}
}

func (m *Memory) Create(record *approvals.Request) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.records[record.Id]; exists {
		return fmt.Errorf("failed to create request[%s]: %w", record.Id, ErrorDuplicateEntry)
	}
	m.records[record.Id] = record.Clone()
	return nil
}

func (m *Memory) Get(id string) (*approvals.Request, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record, exists := m.records[id]
	if !exists {
		return nil, fmt.Errorf("failed to get request[%s]: %w", id, ErrorNotFound)
	}
	return record.Clone(), nil
}

func (m *Memory) CompareAndSwap(id string, expectedVersion int64, record *approvals.Request) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	current, exists := m.records[id]
	if !exists {
		return fmt.Errorf("failed to get request[%s]: %w", id, ErrorNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("failed to swap request[%s] at version[%v], stored version is %v: %w", id, expectedVersion, current.Version, ErrorConflict)
	}
	record.Version = expectedVersion + 1
	m.records[id] = record.Clone()
	return nil
}

func (m *Memory) List(filter ListFilter) ([]*approvals.Request, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var results []*approvals.Request
	for _, record := range m.records {
		if filter.Matches(record) {
			results = append(results, record.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}
