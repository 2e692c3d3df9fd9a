package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"notification-service/internal/model"
)

// Memory is an in-process Store for single-node dev deployments (no Postgres
// configured) and tests. It enforces the same (correlation id, owner)
// uniqueness as the SQL schema.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*model.Notification
	unique map[string]int64 // "<correlationID>/<ownerUserID>" -> row id
}

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		rows:   make(map[int64]*model.Notification),
		unique: make(map[string]int64),
	}
}

func uniqueKey(correlationID string, ownerUserID int) string {
	return fmt.Sprintf("%s/%d", correlationID, ownerUserID)
}

func (m *Memory) Create(_ context.Context, n *model.Notification) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := uniqueKey(n.CorrelationID, n.OwnerUserID)
	if _, exists := m.unique[key]; exists {
		return 0, ErrDuplicate
	}

	row := *n
	row.ID = m.nextID
	row.IsRead = false
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	m.nextID++
	m.rows[row.ID] = &row
	m.unique[key] = row.ID
	return row.ID, nil
}

func (m *Memory) MarkRead(_ context.Context, ownerUserID int, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok || row.OwnerUserID != ownerUserID {
		return nil
	}
	row.IsRead = true
	return nil
}

func (m *Memory) MarkAllRead(_ context.Context, ownerUserID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.OwnerUserID == ownerUserID {
			row.IsRead = true
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context, ownerUserID int) ([]model.Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []model.Notification
	unread := 0
	for _, row := range m.rows {
		if row.OwnerUserID != ownerUserID {
			continue
		}
		result = append(result, *row)
		if !row.IsRead {
			unread++
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, unread, nil
}
