// persistence/memory.go
package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/thegame/models"
)

// Memory 内存实现，未配置数据库时使用
type Memory struct {
	records  []models.GameRecord
	capacity int
	nextID   uint
	mutex    sync.RWMutex
}

var _ Database = (*Memory)(nil)

// NewMemory keeps at most capacity records, dropping the oldest.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	if err := validate(record); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.nextID++
	record.ID = m.nextID
	m.records = append(m.records, *record)
	if len(m.records) > m.capacity {
		m.records = m.records[len(m.records)-m.capacity:]
	}
	return nil
}

// RecentGameRecords returns newest first.
func (m *Memory) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]models.GameRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
