package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEmailLogRepository struct {
	mu      sync.RWMutex
	entries []*EmailLog
}

func NewMemoryEmailLogRepository() EmailLogRepository {
	return &memoryEmailLogRepository{}
}

func (r *memoryEmailLogRepository) Record(ctx context.Context, entry *EmailLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()

	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memoryEmailLogRepository) ListByReceiver(ctx context.Context, email string, limit int) ([]*EmailLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var entries []*EmailLog
	for i := len(r.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.entries[i].ReceiverEmail == email {
			cp := *r.entries[i]
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}
