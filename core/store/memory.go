package store

import (
	"context"
	"sync"
)

// Memory is an in-process Adapter. Ids are assigned from a per collection
// counter starting at 1 unless the payload carries an id.
type Memory struct {
	mutex       sync.RWMutex
	collections map[string][]Row
	serial      map[string]int64
}

// NewMemory returns an empty in-memory adapter
func NewMemory() *Memory {
	return &Memory{
		collections: map[string][]Row{},
		serial:      map[string]int64{},
	}
}

// Ping always succeeds
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Len returns the number of rows stored in collection
func (m *Memory) Len(collection string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.collections[collection])
}

// Raw returns a copy of the unprojected row with the given id
func (m *Memory) Raw(collection string, id interface{}) Row {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	i := m.find(collection, ByID(id))
	if i < 0 {
		return nil
	}
	return AllFields.apply(m.collections[collection][i])
}

func (m *Memory) find(collection string, filter Filter) int {
	for i, row := range m.collections[collection] {
		if filter.matches(row) {
			return i
		}
	}
	return -1
}

// SelectRows returns rows in insertion order
func (m *Memory) SelectRows(_ context.Context, collection string, projection Projection, filter Filter, limit, offset int) ([]Row, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := []Row{}
	skipped := 0
	for _, row := range m.collections[collection] {
		if len(result) >= limit {
			break
		}
		if !filter.matches(row) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, projection.apply(row))
	}
	return result, nil
}

// SelectOne returns the first row matching filter
func (m *Memory) SelectOne(_ context.Context, collection string, filter Filter, projection Projection) (Row, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	i := m.find(collection, filter)
	if i < 0 {
		return nil, nil
	}
	return projection.apply(m.collections[collection][i]), nil
}

// InsertRow stores a copy of payload
func (m *Memory) InsertRow(_ context.Context, collection string, payload Row, returning Projection) (Row, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	row := AllFields.apply(payload)
	if row == nil {
		row = Row{}
	}
	if _, ok := row[IDColumn]; !ok {
		m.serial[collection]++
		row[IDColumn] = m.serial[collection]
	}
	m.collections[collection] = append(m.collections[collection], row)
	return returning.apply(row), nil
}

// UpdateRow merges payload into the first row matching filter
func (m *Memory) UpdateRow(_ context.Context, collection string, filter Filter, payload Row, returning Projection) (Row, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	i := m.find(collection, filter)
	if i < 0 {
		return nil, nil
	}
	row := AllFields.apply(m.collections[collection][i])
	for k, v := range payload {
		row[k] = v
	}
	m.collections[collection][i] = row
	return returning.apply(row), nil
}

// DeleteRow removes the first row matching filter
func (m *Memory) DeleteRow(_ context.Context, collection string, filter Filter, returning Projection) (Row, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	i := m.find(collection, filter)
	if i < 0 {
		return nil, nil
	}
	rows := m.collections[collection]
	row := rows[i]
	m.collections[collection] = append(rows[:i:i], rows[i+1:]...)
	return returning.apply(row), nil
}
