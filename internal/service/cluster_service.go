package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/popup-village/portal-backend/internal/config"
	"github.com/popup-village/portal-backend/internal/repository"
	"github.com/popup-village/portal-backend/internal/socket"
)

// ============================================
// Cluster Service
// ============================================

// LinkRequestReceipt is returned from InitiateLink.
type LinkRequestReceipt struct {
	RequestID int64  `json:"request_id"`
	Message   string `json:"message"`
}

// ClusterInfo describes the cluster a citizen belongs to. CreatedAt is the
// earliest member's join time.
type ClusterInfo struct {
	ClusterID   int64      `json:"cluster_id"`
	CitizenIDs  []int64    `json:"citizen_ids"`
	MemberCount int        `json:"member_count"`
	CreatedAt   *time.Time `json:"created_at"`
}

// ClusterService links citizen accounts into clusters. Linking is a two-step
// handshake: the initiator requests a link to a target email, the target's
// inbox receives a short-lived code, and the initiator redeems it.
type ClusterService interface {
	InitiateLink(ctx context.Context, initiatorID int64, targetEmail string) (*LinkRequestReceipt, error)
	VerifyLink(ctx context.Context, code string, actingCitizenID int64) (int64, error)
	ClusterInfo(ctx context.Context, citizenID int64) (*ClusterInfo, error)
	Leave(ctx context.Context, citizenID int64) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type clusterService struct {
	cfg         *config.Config
	tx          repository.TxManager
	members     repository.ClusterMemberRepository
	requests    repository.JoinRequestRepository
	citizens    repository.CitizenRepository
	emailLogs   repository.EmailLogRepository
	mailer      Mailer
	cache       Cache
	broadcaster *socket.Broadcaster

	now func() time.Time
}

func NewClusterService(
	cfg *config.Config,
	repos *repository.Repositories,
	mailer Mailer,
	cache Cache,
	broadcaster *socket.Broadcaster,
) ClusterService {
	return &clusterService{
		cfg:         cfg,
		tx:          repos.Tx,
		members:     repos.ClusterMemberRepo,
		requests:    repos.JoinRequestRepo,
		citizens:    repos.CitizenRepo,
		emailLogs:   repos.EmailLogRepo,
		mailer:      mailer,
		cache:       cache,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

func (s *clusterService) InitiateLink(ctx context.Context, initiatorID int64, targetEmail string) (*LinkRequestReceipt, error) {
	targetEmail = normalizeEmail(targetEmail)

	target, err := s.citizens.FindByEmail(ctx, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to look up target citizen: %w", err)
	}
	if target == nil {
		return nil, notFoundError(fmt.Sprintf("no account found with email %s", targetEmail))
	}
	if target.ID == initiatorID {
		return nil, conflictError("cannot link account to itself")
	}

	initiatorCluster, err := s.members.ClusterOf(ctx, initiatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve initiator cluster: %w", err)
	}
	targetCluster, err := s.members.ClusterOf(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target cluster: %w", err)
	}
	if initiatorCluster != 0 && initiatorCluster == targetCluster {
		return nil, conflictError("accounts are already linked")
	}

	request := &repository.JoinRequest{
		InitiatorCitizenID: initiatorID,
		TargetCitizenID:    target.ID,
		VerificationCode:   GenerateVerificationCode(),
		CodeExpiration:     s.now().Add(s.cfg.VerificationCodeTTL),
		Status:             repository.JoinRequestPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, conflictError("could not allocate a verification code, please try again")
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	// Tentative write done; the request only survives if the code is
	// actually deliverable.
	if err := s.mailer.SendClusterVerification(targetEmail, request.VerificationCode, s.cfg.VerificationCodeTTL); err != nil {
		log.Printf("[Cluster] ❌ Failed to send verification email to %s: %v", targetEmail, err)
		s.recordEmail(ctx, targetEmail, repository.EmailEventClusterVerification, repository.EmailStatusFailed, request.ID)
		if delErr := s.requests.Delete(ctx, request.ID); delErr != nil {
			log.Printf("[Cluster] Failed to delete undeliverable join request %d: %v", request.ID, delErr)
		}
		return nil, upstreamError(fmt.Sprintf("failed to send verification email to %s, please try again later", targetEmail))
	}
	s.recordEmail(ctx, targetEmail, repository.EmailEventClusterVerification, repository.EmailStatusSuccess, request.ID)

	log.Printf("[Cluster] Sent join verification email to %s for request %d", targetEmail, request.ID)
	return &LinkRequestReceipt{
		RequestID: request.ID,
		Message:   fmt.Sprintf("Verification code sent to %s", targetEmail),
	}, nil
}

func (s *clusterService) VerifyLink(ctx context.Context, code string, actingCitizenID int64) (int64, error) {
	request, err := s.requests.FindPendingByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to look up join request: %w", err)
	}
	if request == nil {
		return 0, notFoundError("invalid verification code")
	}

	// Strictly after the expiration instant; redeeming exactly at the
	// deadline still succeeds.
	if s.now().After(request.CodeExpiration) {
		if err := s.requests.UpdateStatus(ctx, request.ID, repository.JoinRequestExpired); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("failed to expire join request: %w", err)
		}
		return 0, expiredError("verification code has expired")
	}

	// Only the account that initiated the link may redeem the code, not
	// the inbox it was delivered to.
	if actingCitizenID != request.InitiatorCitizenID {
		return 0, forbiddenError("only the account that initiated the link request can verify the code")
	}

	var clusterID int64
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Re-read under the transaction; a concurrent redeem or sweep may
		// have finalized the request since the check above.
		current, err := s.requests.FindPendingByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to re-read join request: %w", err)
		}
		if current == nil {
			return notFoundError("invalid verification code")
		}

		initiatorCluster, err := s.members.ClusterOf(ctx, request.InitiatorCitizenID)
		if err != nil {
			return fmt.Errorf("failed to resolve initiator cluster: %w", err)
		}
		targetCluster, err := s.members.ClusterOf(ctx, request.TargetCitizenID)
		if err != nil {
			return fmt.Errorf("failed to resolve target cluster: %w", err)
		}

		switch {
		case initiatorCluster != 0 && targetCluster != 0:
			// Merge keeps the initiator's id so their cached cluster id
			// stays valid.
			if err := s.members.Merge(ctx, initiatorCluster, targetCluster); err != nil {
				return fmt.Errorf("failed to merge clusters: %w", err)
			}
			clusterID = initiatorCluster

		case initiatorCluster != 0:
			if err := s.members.AddMember(ctx, request.TargetCitizenID, initiatorCluster); err != nil {
				return mapMemberErr(err)
			}
			clusterID = initiatorCluster

		case targetCluster != 0:
			if err := s.members.AddMember(ctx, request.InitiatorCitizenID, targetCluster); err != nil {
				return mapMemberErr(err)
			}
			clusterID = targetCluster

		default:
			fresh, err := s.members.NextClusterID(ctx)
			if err != nil {
				return fmt.Errorf("failed to allocate cluster id: %w", err)
			}
			if err := s.members.AddMember(ctx, request.InitiatorCitizenID, fresh); err != nil {
				return mapMemberErr(err)
			}
			if err := s.members.AddMember(ctx, request.TargetCitizenID, fresh); err != nil {
				return mapMemberErr(err)
			}
			clusterID = fresh
		}

		if err := s.requests.UpdateStatus(ctx, current.ID, repository.JoinRequestVerified); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("invalid verification code")
			}
			return fmt.Errorf("failed to mark join request verified: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[Cluster] Linked citizens %d and %d in cluster %d",
		request.InitiatorCitizenID, request.TargetCitizenID, clusterID)

	s.invalidateClusterCache(ctx, clusterID)
	if s.broadcaster != nil {
		s.broadcaster.ClusterLinked(clusterID, request.InitiatorCitizenID, request.TargetCitizenID)
	}
	return clusterID, nil
}

func (s *clusterService) ClusterInfo(ctx context.Context, citizenID int64) (*ClusterInfo, error) {
	cacheKey := fmt.Sprintf("cluster-info:%d", citizenID)
	if s.cache != nil {
		var cached ClusterInfo
		if err := s.cache.GetCache(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	clusterID, err := s.members.ClusterOf(ctx, citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster: %w", err)
	}
	if clusterID == 0 {
		return nil, nil
	}

	members, err := s.members.MembersOf(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}

	info := &ClusterInfo{
		ClusterID:   clusterID,
		MemberCount: len(members),
	}
	for _, m := range members {
		info.CitizenIDs = append(info.CitizenIDs, m.CitizenID)
	}
	if len(members) > 0 {
		joined := members[0].JoinedAt
		info.CreatedAt = &joined
	}

	if s.cache != nil {
		if err := s.cache.SetCache(ctx, cacheKey, info, s.cfg.ClusterCacheTTL); err != nil {
			log.Printf("[Cluster] Failed to cache cluster info for citizen %d: %v", citizenID, err)
		}
	}
	return info, nil
}

func (s *clusterService) Leave(ctx context.Context, citizenID int64) error {
	clusterID, err := s.members.ClusterOf(ctx, citizenID)
	if err != nil {
		return fmt.Errorf("failed to resolve cluster: %w", err)
	}
	if clusterID == 0 {
		return notFoundError("you are not in any cluster")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.members.RemoveMember(ctx, citizenID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("you are not in any cluster")
			}
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[Cluster] Citizen %d left cluster %d", citizenID, clusterID)

	s.invalidateClusterCache(ctx, clusterID)
	s.invalidateCitizenCache(ctx, citizenID)
	if s.broadcaster != nil {
		s.broadcaster.ClusterLeft(clusterID, citizenID)
	}
	return nil
}

func (s *clusterService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.requests.ExpirePending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire join requests: %w", err)
	}
	if expired > 0 {
		log.Printf("[Cluster] Marked %d expired cluster join requests", expired)
	}
	return expired, nil
}

func mapMemberErr(err error) error {
	if errors.Is(err, repository.ErrClusterConflict) {
		return conflictError("citizen is already linked to a different cluster")
	}
	return fmt.Errorf("failed to add cluster member: %w", err)
}

// invalidateClusterCache drops cached cluster info for every current member
// of clusterID. After a merge this covers the absorbed members too, since
// they now carry the surviving id.
func (s *clusterService) invalidateClusterCache(ctx context.Context, clusterID int64) {
	if s.cache == nil {
		return
	}
	members, err := s.members.MembersOf(ctx, clusterID)
	if err != nil {
		log.Printf("[Cluster] Cache invalidation skipped for cluster %d: %v", clusterID, err)
		return
	}
	for _, m := range members {
		s.invalidateCitizenCache(ctx, m.CitizenID)
	}
}

func (s *clusterService) invalidateCitizenCache(ctx context.Context, citizenID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCache(ctx, fmt.Sprintf("cluster-info:%d", citizenID)); err != nil {
		log.Printf("[Cluster] Failed to invalidate cluster cache for citizen %d: %v", citizenID, err)
	}
}

func (s *clusterService) recordEmail(ctx context.Context, to, event, status string, requestID int64) {
	err := s.emailLogs.Record(ctx, &repository.EmailLog{
		ReceiverEmail: to,
		Event:         event,
		Status:        status,
		EntityType:    "cluster_join_request",
		EntityID:      requestID,
	})
	if err != nil {
		log.Printf("[Cluster] Failed to record email log for %s: %v", to, err)
	}
}
