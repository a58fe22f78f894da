package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memoryCitizenRepository backs tests and database-less development.
type memoryCitizenRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*Citizen
	byEmail map[string]int64
}

func NewMemoryCitizenRepository() CitizenRepository {
	return &memoryCitizenRepository{
		byID:    make(map[int64]*Citizen),
		byEmail: make(map[string]int64),
	}
}

func (r *memoryCitizenRepository) Create(ctx context.Context, citizen *Citizen) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	citizen.PrimaryEmail = strings.ToLower(strings.TrimSpace(citizen.PrimaryEmail))
	r.nextID++
	citizen.ID = r.nextID
	citizen.CreatedAt = time.Now()

	cp := *citizen
	r.byID[citizen.ID] = &cp
	r.byEmail[citizen.PrimaryEmail] = citizen.ID
	return nil
}

func (r *memoryCitizenRepository) FindByID(ctx context.Context, id int64) (*Citizen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	citizen, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *citizen
	return &cp, nil
}

func (r *memoryCitizenRepository) FindByEmail(ctx context.Context, email string) (*Citizen, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *memoryCitizenRepository) SetLoginCode(ctx context.Context, id int64, codeHash string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	citizen, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	citizen.LoginCodeHash = &codeHash
	citizen.LoginCodeExpires = &expires
	return nil
}

func (r *memoryCitizenRepository) ClearLoginCode(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if citizen, ok := r.byID[id]; ok {
		citizen.LoginCodeHash = nil
		citizen.LoginCodeExpires = nil
	}
	return nil
}

func (r *memoryCitizenRepository) PurgeExpiredLoginCodes(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for _, citizen := range r.byID {
		if citizen.LoginCodeHash != nil && citizen.LoginCodeExpires != nil && citizen.LoginCodeExpires.Before(now) {
			citizen.LoginCodeHash = nil
			citizen.LoginCodeExpires = nil
			purged++
		}
	}
	return purged, nil
}
