package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popup-village/portal-backend/internal/repository"
)

type authFixture struct {
	svc    *authService
	repos  *repository.Repositories
	mailer *fakeMailer
	alice  *repository.Citizen
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	repos := repository.NewMemoryRepositories()
	mailer := &fakeMailer{}
	svc := NewAuthService(testConfig(), repos.CitizenRepo, repos.EmailLogRepo, mailer).(*authService)

	alice := &repository.Citizen{PrimaryEmail: "alice@example.com"}
	require.NoError(t, repos.CitizenRepo.Create(context.Background(), alice))

	return &authFixture{svc: svc, repos: repos, mailer: mailer, alice: alice}
}

func TestRequestLoginCode_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.RequestLoginCode(context.Background(), "nobody@example.com")
	assertCode(t, err, CodeNotFound)
	assert.Zero(t, f.mailer.loginSends)
}

func TestRequestLoginCode_StoresHashNotCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, "Alice@Example.com "))
	assert.Equal(t, "alice@example.com", f.mailer.lastLoginTo)
	assert.Len(t, f.mailer.lastLoginCode, VerificationCodeLength)

	stored, err := f.repos.CitizenRepo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LoginCodeHash)
	assert.NotEqual(t, f.mailer.lastLoginCode, *stored.LoginCodeHash)
	require.NotNil(t, stored.LoginCodeExpires)
}

func TestAuthenticateByCode_FullRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com"))

	token, citizen, err := f.svc.AuthenticateByCode(ctx, "alice@example.com", f.mailer.lastLoginCode)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, citizen.ID)

	parsed, err := f.svc.ValidateToken(token)
	require.NoError(t, err)
	id, err := f.svc.GetCitizenIDFromToken(parsed)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, id)
}

func TestAuthenticateByCode_WrongCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com"))

	wrong := "000000"
	if f.mailer.lastLoginCode == wrong {
		wrong = "111111"
	}
	_, _, err := f.svc.AuthenticateByCode(ctx, "alice@example.com", wrong)
	assertCode(t, err, CodeUnauthorized)
}

func TestAuthenticateByCode_SingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com"))
	code := f.mailer.lastLoginCode

	_, _, err := f.svc.AuthenticateByCode(ctx, "alice@example.com", code)
	require.NoError(t, err)

	_, _, err = f.svc.AuthenticateByCode(ctx, "alice@example.com", code)
	assertCode(t, err, CodeUnauthorized)
}

func TestAuthenticateByCode_Expired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }
	require.NoError(t, f.svc.RequestLoginCode(ctx, "alice@example.com"))

	f.svc.now = func() time.Time { return base.Add(f.svc.cfg.LoginCodeTTL + time.Second) }
	_, _, err := f.svc.AuthenticateByCode(ctx, "alice@example.com", f.mailer.lastLoginCode)
	assertCode(t, err, CodeUnauthorized)
}

func TestRequestLoginCode_DeliveryFailureClearsCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.mailer.failLoginSend = true

	err := f.svc.RequestLoginCode(ctx, "alice@example.com")
	assertCode(t, err, CodeUpstream)

	_, _, err = f.svc.AuthenticateByCode(ctx, "alice@example.com", f.mailer.lastLoginCode)
	assertCode(t, err, CodeUnauthorized)

	logs, err := f.repos.EmailLogRepo.ListByReceiver(ctx, "alice@example.com", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, repository.EmailStatusFailed, logs[0].Status)
	assert.Equal(t, repository.EmailEventLoginCode, logs[0].Event)
}

func TestValidateToken_RejectsForgedToken(t *testing.T) {
	f := newAuthFixture(t)

	otherCfg := testConfig()
	otherCfg.JWTSecret = "another-secret"
	other := NewAuthService(otherCfg, f.repos.CitizenRepo, f.repos.EmailLogRepo, f.mailer).(*authService)

	forged, err := other.generateToken(f.alice.ID)
	require.NoError(t, err)

	_, err = f.svc.ValidateToken(forged)
	assert.Error(t, err)
}
