package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popup-village/portal-backend/internal/config"
	"github.com/popup-village/portal-backend/internal/repository"
)

// fakeMailer records every send so tests can read the delivered codes. It
// captures the code before returning the injected failure, mirroring a
// request that reached the mail server but bounced.
type fakeMailer struct {
	mu sync.Mutex

	failClusterSend bool
	failLoginSend   bool

	lastClusterTo   string
	lastClusterCode string
	lastLoginTo     string
	lastLoginCode   string
	clusterSends    int
	loginSends      int
}

func (m *fakeMailer) SendClusterVerification(to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastClusterTo = to
	m.lastClusterCode = code
	m.clusterSends++
	if m.failClusterSend {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (m *fakeMailer) SendLoginCode(to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLoginTo = to
	m.lastLoginCode = code
	m.loginSends++
	if m.failLoginSend {
		return errors.New("smtp unavailable")
	}
	return nil
}

type clusterFixture struct {
	svc    *clusterService
	repos  *repository.Repositories
	mailer *fakeMailer

	alice *repository.Citizen
	bob   *repository.Citizen
	carol *repository.Citizen
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "test-secret",
		JWTExpiry:           24,
		VerificationCodeTTL: 15 * time.Minute,
		LoginCodeTTL:        15 * time.Minute,
		ClusterCacheTTL:     10 * time.Minute,
	}
}

func newClusterFixture(t *testing.T) *clusterFixture {
	t.Helper()
	ctx := context.Background()

	repos := repository.NewMemoryRepositories()
	mailer := &fakeMailer{}
	svc := NewClusterService(testConfig(), repos, mailer, nil, nil).(*clusterService)

	f := &clusterFixture{svc: svc, repos: repos, mailer: mailer}
	for _, c := range []struct {
		email string
		dst   **repository.Citizen
	}{
		{"alice@example.com", &f.alice},
		{"bob@example.com", &f.bob},
		{"carol@example.com", &f.carol},
	} {
		citizen := &repository.Citizen{PrimaryEmail: c.email}
		require.NoError(t, repos.CitizenRepo.Create(ctx, citizen))
		*c.dst = citizen
	}
	return f
}

// link runs the full initiate-then-verify handshake and returns the cluster id.
func (f *clusterFixture) link(t *testing.T, initiator *repository.Citizen, targetEmail string) int64 {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.InitiateLink(ctx, initiator.ID, targetEmail)
	require.NoError(t, err)

	clusterID, err := f.svc.VerifyLink(ctx, f.mailer.lastClusterCode, initiator.ID)
	require.NoError(t, err)
	return clusterID
}

func assertCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.Truef(t, ok, "expected a service error, got %v", err)
	assert.Equal(t, want, code)
}

func TestInitiateLink_TargetNotFound(t *testing.T) {
	f := newClusterFixture(t)

	_, err := f.svc.InitiateLink(context.Background(), f.alice.ID, "nobody@example.com")
	assertCode(t, err, CodeNotFound)
}

func TestInitiateLink_SelfLinkRejected(t *testing.T) {
	f := newClusterFixture(t)

	_, err := f.svc.InitiateLink(context.Background(), f.alice.ID, "Alice@Example.com")
	assertCode(t, err, CodeConflict)
	assert.Zero(t, f.mailer.clusterSends)
}

func TestInitiateLink_AlreadyLinked(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	f.link(t, f.alice, "bob@example.com")

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	assertCode(t, err, CodeConflict)
}

func TestInitiateLink_SendsCodeToTarget(t *testing.T) {
	f := newClusterFixture(t)

	receipt, err := f.svc.InitiateLink(context.Background(), f.alice.ID, "bob@example.com")
	require.NoError(t, err)
	assert.NotZero(t, receipt.RequestID)
	assert.Contains(t, receipt.Message, "bob@example.com")

	assert.Equal(t, "bob@example.com", f.mailer.lastClusterTo)
	assert.Len(t, f.mailer.lastClusterCode, VerificationCodeLength)
}

func TestInitiateLink_DeliveryFailureDeletesRequest(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()
	f.mailer.failClusterSend = true

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	assertCode(t, err, CodeUpstream)

	// The tentative request was rolled back, so the code from the failed
	// send never becomes redeemable.
	_, err = f.svc.VerifyLink(ctx, f.mailer.lastClusterCode, f.alice.ID)
	assertCode(t, err, CodeNotFound)

	logs, err := f.repos.EmailLogRepo.ListByReceiver(ctx, "bob@example.com", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, repository.EmailStatusFailed, logs[0].Status)
}

func TestVerifyLink_InvalidCode(t *testing.T) {
	f := newClusterFixture(t)

	_, err := f.svc.VerifyLink(context.Background(), "000000", f.alice.ID)
	assertCode(t, err, CodeNotFound)
}

func TestVerifyLink_NewClusterForUnlinkedPair(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	clusterID := f.link(t, f.alice, "bob@example.com")
	require.NotZero(t, clusterID)

	for _, citizen := range []*repository.Citizen{f.alice, f.bob} {
		info, err := f.svc.ClusterInfo(ctx, citizen.ID)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, clusterID, info.ClusterID)
		assert.Equal(t, 2, info.MemberCount)
		assert.ElementsMatch(t, []int64{f.alice.ID, f.bob.ID}, info.CitizenIDs)
		require.NotNil(t, info.CreatedAt)
	}
}

func TestVerifyLink_TargetJoinsInitiatorCluster(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, f.alice.ID, 7))

	clusterID := f.link(t, f.alice, "bob@example.com")
	assert.Equal(t, int64(7), clusterID)

	got, err := f.repos.ClusterMemberRepo.ClusterOf(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestVerifyLink_InitiatorJoinsTargetCluster(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, f.bob.ID, 9))

	clusterID := f.link(t, f.alice, "bob@example.com")
	assert.Equal(t, int64(9), clusterID)

	got, err := f.repos.ClusterMemberRepo.ClusterOf(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)
}

func TestVerifyLink_MergeKeepsInitiatorCluster(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	dave := &repository.Citizen{PrimaryEmail: "dave@example.com"}
	require.NoError(t, f.repos.CitizenRepo.Create(ctx, dave))

	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, f.alice.ID, 7))
	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, f.carol.ID, 7))
	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, f.bob.ID, 9))
	require.NoError(t, f.repos.ClusterMemberRepo.AddMember(ctx, dave.ID, 9))

	clusterID := f.link(t, f.alice, "bob@example.com")
	assert.Equal(t, int64(7), clusterID)

	info, err := f.svc.ClusterInfo(ctx, dave.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(7), info.ClusterID)
	assert.Equal(t, 4, info.MemberCount)

	// The absorbed cluster is empty.
	members, err := f.repos.ClusterMemberRepo.MembersOf(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestVerifyLink_OnlyInitiatorMayRedeem(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	require.NoError(t, err)
	code := f.mailer.lastClusterCode

	// Neither the target nor a bystander can redeem the code.
	_, err = f.svc.VerifyLink(ctx, code, f.bob.ID)
	assertCode(t, err, CodeForbidden)
	_, err = f.svc.VerifyLink(ctx, code, f.carol.ID)
	assertCode(t, err, CodeForbidden)

	// The request stays pending for the initiator.
	_, err = f.svc.VerifyLink(ctx, code, f.alice.ID)
	require.NoError(t, err)
}

func TestVerifyLink_SingleRedemption(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	require.NoError(t, err)
	code := f.mailer.lastClusterCode

	_, err = f.svc.VerifyLink(ctx, code, f.alice.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyLink(ctx, code, f.alice.ID)
	assertCode(t, err, CodeNotFound)
}

func TestVerifyLink_RedeemableAtExactDeadline(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return base.Add(f.svc.cfg.VerificationCodeTTL) }
	_, err = f.svc.VerifyLink(ctx, f.mailer.lastClusterCode, f.alice.ID)
	require.NoError(t, err)
}

func TestVerifyLink_ExpiredCode(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	require.NoError(t, err)
	code := f.mailer.lastClusterCode

	f.svc.now = func() time.Time { return base.Add(f.svc.cfg.VerificationCodeTTL + time.Second) }
	_, err = f.svc.VerifyLink(ctx, code, f.alice.ID)
	assertCode(t, err, CodeExpired)

	// The request was finalized as expired; even rolling the clock back
	// cannot revive it.
	f.svc.now = func() time.Time { return base }
	_, err = f.svc.VerifyLink(ctx, code, f.alice.ID)
	assertCode(t, err, CodeNotFound)
}

func TestClusterInfo_NilForUnlinkedCitizen(t *testing.T) {
	f := newClusterFixture(t)

	info, err := f.svc.ClusterInfo(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestLeave_NotInCluster(t *testing.T) {
	f := newClusterFixture(t)

	err := f.svc.Leave(context.Background(), f.alice.ID)
	assertCode(t, err, CodeNotFound)
}

func TestLeave_ThenRelink(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	first := f.link(t, f.alice, "bob@example.com")

	require.NoError(t, f.svc.Leave(ctx, f.alice.ID))

	info, err := f.svc.ClusterInfo(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Nil(t, info)

	// Bob keeps the old cluster; a fresh handshake puts Alice back in it.
	second := f.link(t, f.alice, "bob@example.com")
	assert.Equal(t, first, second)

	info, err = f.svc.ClusterInfo(ctx, f.alice.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 2, info.MemberCount)
}

func TestSweepExpired(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	_, err := f.svc.InitiateLink(ctx, f.alice.ID, "bob@example.com")
	require.NoError(t, err)
	staleCode := f.mailer.lastClusterCode
	_, err = f.svc.InitiateLink(ctx, f.alice.ID, "carol@example.com")
	require.NoError(t, err)

	later := base.Add(f.svc.cfg.VerificationCodeTTL + time.Minute)
	f.svc.now = func() time.Time { return later }

	count, err := f.svc.SweepExpired(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = f.svc.VerifyLink(ctx, staleCode, f.alice.ID)
	assertCode(t, err, CodeNotFound)

	count, err = f.svc.SweepExpired(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, count)
}
