package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryClusterMemberRepository struct {
	mu            sync.RWMutex
	nextRowID     int64
	nextClusterID int64
	byCitizen     map[int64]*ClusterMember
}

func NewMemoryClusterMemberRepository() ClusterMemberRepository {
	return &memoryClusterMemberRepository{
		byCitizen: make(map[int64]*ClusterMember),
	}
}

func (r *memoryClusterMemberRepository) ClusterOf(ctx context.Context, citizenID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.byCitizen[citizenID]; ok {
		return m.ClusterID, nil
	}
	return 0, nil
}

func (r *memoryClusterMemberRepository) MembersOf(ctx context.Context, clusterID int64) ([]*ClusterMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []*ClusterMember
	for _, m := range r.byCitizen {
		if m.ClusterID == clusterID {
			cp := *m
			members = append(members, &cp)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (r *memoryClusterMemberRepository) AddMember(ctx context.Context, citizenID, clusterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byCitizen[citizenID]; ok {
		if existing.ClusterID == clusterID {
			return nil
		}
		return ErrClusterConflict
	}

	r.nextRowID++
	r.byCitizen[citizenID] = &ClusterMember{
		ID:        r.nextRowID,
		ClusterID: clusterID,
		CitizenID: citizenID,
		JoinedAt:  time.Now(),
	}
	return nil
}

func (r *memoryClusterMemberRepository) RemoveMember(ctx context.Context, citizenID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCitizen[citizenID]; !ok {
		return ErrNotFound
	}
	delete(r.byCitizen, citizenID)
	return nil
}

func (r *memoryClusterMemberRepository) NextClusterID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Never hand out an id that is already in use; callers may have
	// attached members under explicit cluster ids.
	for _, m := range r.byCitizen {
		if m.ClusterID > r.nextClusterID {
			r.nextClusterID = m.ClusterID
		}
	}
	r.nextClusterID++
	return r.nextClusterID, nil
}

func (r *memoryClusterMemberRepository) Merge(ctx context.Context, keepID, discardID int64) error {
	if keepID == discardID {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.byCitizen {
		if m.ClusterID == discardID {
			m.ClusterID = keepID
		}
	}
	return nil
}
