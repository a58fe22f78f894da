package repository

import (
	"context"
	"sync"
	"time"
)

type memoryJoinRequestRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*JoinRequest
	byCode map[string]int64
}

func NewMemoryJoinRequestRepository() JoinRequestRepository {
	return &memoryJoinRequestRepository{
		byID:   make(map[int64]*JoinRequest),
		byCode: make(map[string]int64),
	}
}

func (r *memoryJoinRequestRepository) Create(ctx context.Context, request *JoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Codes are unique across all requests, terminal ones included,
	// matching the database constraint.
	if _, exists := r.byCode[request.VerificationCode]; exists {
		return ErrDuplicateCode
	}

	if request.Status == "" {
		request.Status = JoinRequestPending
	}
	r.nextID++
	request.ID = r.nextID
	request.CreatedAt = time.Now()

	cp := *request
	r.byID[request.ID] = &cp
	r.byCode[request.VerificationCode] = request.ID
	return nil
}

func (r *memoryJoinRequestRepository) FindPendingByCode(ctx context.Context, code string) (*JoinRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, nil
	}
	request := r.byID[id]
	if request.Status != JoinRequestPending {
		return nil, nil
	}
	cp := *request
	return &cp, nil
}

func (r *memoryJoinRequestRepository) UpdateStatus(ctx context.Context, id int64, status JoinRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.byID[id]
	if !ok || request.Status != JoinRequestPending {
		return ErrNotFound
	}
	request.Status = status
	return nil
}

func (r *memoryJoinRequestRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if request, ok := r.byID[id]; ok {
		delete(r.byCode, request.VerificationCode)
		delete(r.byID, id)
	}
	return nil
}

func (r *memoryJoinRequestRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for _, request := range r.byID {
		if request.Status == JoinRequestPending && request.CodeExpiration.Before(now) {
			request.Status = JoinRequestExpired
			expired++
		}
	}
	return expired, nil
}
