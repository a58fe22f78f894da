package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/popup-village/portal-backend/internal/config"
	"github.com/popup-village/portal-backend/internal/repository"
)

// ============================================
// Auth Service
// ============================================

// AuthService implements passwordless login: a short numeric code is emailed
// to the citizen, stored bcrypt-hashed, and exchanged for a JWT.
type AuthService interface {
	RequestLoginCode(ctx context.Context, email string) error
	AuthenticateByCode(ctx context.Context, email, code string) (string, *repository.Citizen, error)
	ValidateToken(token string) (*jwt.Token, error)
	GetCitizenIDFromToken(token *jwt.Token) (int64, error)
}

type authService struct {
	cfg         *config.Config
	citizenRepo repository.CitizenRepository
	emailLogs   repository.EmailLogRepository
	mailer      Mailer
	now         func() time.Time
}

func NewAuthService(cfg *config.Config, citizenRepo repository.CitizenRepository, emailLogs repository.EmailLogRepository, mailer Mailer) AuthService {
	return &authService{
		cfg:         cfg,
		citizenRepo: citizenRepo,
		emailLogs:   emailLogs,
		mailer:      mailer,
		now:         time.Now,
	}
}

func (s *authService) RequestLoginCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	citizen, err := s.citizenRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up citizen: %w", err)
	}
	if citizen == nil {
		return notFoundError(fmt.Sprintf("no account found with email %s", email))
	}

	code := GenerateVerificationCode()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash login code: %w", err)
	}

	expires := s.now().Add(s.cfg.LoginCodeTTL)
	if err := s.citizenRepo.SetLoginCode(ctx, citizen.ID, string(hash), expires); err != nil {
		return fmt.Errorf("failed to store login code: %w", err)
	}

	if err := s.mailer.SendLoginCode(email, code, s.cfg.LoginCodeTTL); err != nil {
		log.Printf("[Auth] ❌ Failed to send login code to %s: %v", email, err)
		s.recordEmail(ctx, email, repository.EmailStatusFailed, citizen.ID)
		if clearErr := s.citizenRepo.ClearLoginCode(ctx, citizen.ID); clearErr != nil {
			log.Printf("[Auth] Failed to clear undeliverable login code for citizen %d: %v", citizen.ID, clearErr)
		}
		return upstreamError(fmt.Sprintf("failed to send login code to %s, please try again later", email))
	}
	s.recordEmail(ctx, email, repository.EmailStatusSuccess, citizen.ID)

	log.Printf("[Auth] Sent login code to %s", email)
	return nil
}

func (s *authService) AuthenticateByCode(ctx context.Context, email, code string) (string, *repository.Citizen, error) {
	email = normalizeEmail(email)

	citizen, err := s.citizenRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up citizen: %w", err)
	}
	if citizen == nil || citizen.LoginCodeHash == nil || citizen.LoginCodeExpires == nil {
		return "", nil, unauthorizedError("invalid or expired login code")
	}
	if s.now().After(*citizen.LoginCodeExpires) {
		return "", nil, unauthorizedError("invalid or expired login code")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*citizen.LoginCodeHash), []byte(code)); err != nil {
		return "", nil, unauthorizedError("invalid or expired login code")
	}

	// Codes are single-use.
	if err := s.citizenRepo.ClearLoginCode(ctx, citizen.ID); err != nil {
		return "", nil, fmt.Errorf("failed to clear login code: %w", err)
	}

	token, err := s.generateToken(citizen.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, citizen, nil
}

func (s *authService) generateToken(citizenID int64) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"citizen_id": citizenID,
		"iat":        now.Unix(),
		"exp":        now.Add(time.Duration(s.cfg.JWTExpiry) * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *authService) ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

var errInvalidToken = errors.New("invalid token claims")

func (s *authService) GetCitizenIDFromToken(token *jwt.Token) (int64, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errInvalidToken
	}
	id, ok := claims["citizen_id"].(float64)
	if !ok {
		return 0, errInvalidToken
	}
	return int64(id), nil
}

func (s *authService) recordEmail(ctx context.Context, to, status string, citizenID int64) {
	err := s.emailLogs.Record(ctx, &repository.EmailLog{
		ReceiverEmail: to,
		Event:         repository.EmailEventLoginCode,
		Status:        status,
		EntityType:    "citizen",
		EntityID:      citizenID,
	})
	if err != nil {
		log.Printf("[Auth] Failed to record email log for %s: %v", to, err)
	}
}
