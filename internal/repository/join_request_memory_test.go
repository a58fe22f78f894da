package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingRequest(code string, expiresAt time.Time) *JoinRequest {
	return &JoinRequest{
		InitiatorCitizenID: 1,
		TargetCitizenID:    2,
		VerificationCode:   code,
		CodeExpiration:     expiresAt,
	}
}

func TestJoinRequestCreate_RejectsDuplicateCode(t *testing.T) {
	repo := NewMemoryJoinRequestRepository()
	ctx := context.Background()
	expiresAt := time.Now().Add(15 * time.Minute)

	first := newPendingRequest("123456", expiresAt)
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, JoinRequestPending, first.Status)

	err := repo.Create(ctx, newPendingRequest("123456", expiresAt))
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestJoinRequest_SingleTransitionOutOfPending(t *testing.T) {
	repo := NewMemoryJoinRequestRepository()
	ctx := context.Background()

	request := newPendingRequest("654321", time.Now().Add(15*time.Minute))
	require.NoError(t, repo.Create(ctx, request))

	require.NoError(t, repo.UpdateStatus(ctx, request.ID, JoinRequestVerified))

	// Terminal requests stop matching pending lookups and refuse
	// further transitions.
	found, err := repo.FindPendingByCode(ctx, "654321")
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, request.ID, JoinRequestExpired), ErrNotFound)
}

func TestJoinRequestDelete_FreesCode(t *testing.T) {
	repo := NewMemoryJoinRequestRepository()
	ctx := context.Background()

	request := newPendingRequest("111111", time.Now().Add(15*time.Minute))
	require.NoError(t, repo.Create(ctx, request))
	require.NoError(t, repo.Delete(ctx, request.ID))

	require.NoError(t, repo.Create(ctx, newPendingRequest("111111", time.Now().Add(15*time.Minute))))
}

func TestExpirePending_StrictlyAfterExpiration(t *testing.T) {
	repo := NewMemoryJoinRequestRepository()
	ctx := context.Background()
	now := time.Now()

	stale := newPendingRequest("222222", now.Add(-time.Minute))
	boundary := newPendingRequest("333333", now)
	fresh := newPendingRequest("444444", now.Add(time.Minute))
	for _, request := range []*JoinRequest{stale, boundary, fresh} {
		require.NoError(t, repo.Create(ctx, request))
	}

	count, err := repo.ExpirePending(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// A request expiring exactly now is still redeemable.
	found, err := repo.FindPendingByCode(ctx, "333333")
	require.NoError(t, err)
	assert.NotNil(t, found)

	gone, err := repo.FindPendingByCode(ctx, "222222")
	require.NoError(t, err)
	assert.Nil(t, gone)

	count, err = repo.ExpirePending(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}
