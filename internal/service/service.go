package service

import (
	"context"
	"strings"
	"time"

	"github.com/popup-village/portal-backend/internal/config"
	"github.com/popup-village/portal-backend/internal/repository"
	"github.com/popup-village/portal-backend/internal/socket"
)

// Mailer delivers transactional email. Implementations must report failure
// synchronously; the cluster flow compensates on delivery errors.
type Mailer interface {
	SendClusterVerification(to, code string, expiresIn time.Duration) error
	SendLoginCode(to, code string, expiresIn time.Duration) error
}

// Cache is the subset of the redis wrapper services use. A nil cache
// disables caching.
type Cache interface {
	SetCache(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetCache(ctx context.Context, key string, dest interface{}) error
	InvalidateCache(ctx context.Context, pattern string) error
}

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth    AuthService
	Citizen CitizenService
	Cluster ClusterService
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Config      *config.Config
	Repos       *repository.Repositories
	Mailer      Mailer
	Cache       Cache
	Broadcaster *socket.Broadcaster
}

func NewServices(deps *ServiceDeps) *Services {
	return &Services{
		Auth:    NewAuthService(deps.Config, deps.Repos.CitizenRepo, deps.Repos.EmailLogRepo, deps.Mailer),
		Citizen: NewCitizenService(deps.Repos.CitizenRepo),
		Cluster: NewClusterService(deps.Config, deps.Repos, deps.Mailer, deps.Cache, deps.Broadcaster),
	}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
