package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestVerified JoinRequestStatus = "verified"
	JoinRequestExpired  JoinRequestStatus = "expired"
)

// JoinRequest is one time-boxed attempt to link two citizens. It is created
// pending and moves exactly once to verified or expired; both are terminal.
type JoinRequest struct {
	ID                 int64
	InitiatorCitizenID int64
	TargetCitizenID    int64
	VerificationCode   string
	CodeExpiration     time.Time
	Status             JoinRequestStatus
	CreatedAt          time.Time
}

type JoinRequestRepository interface {
	// Create persists a pending request, filling ID and CreatedAt.
	// A verification code collision yields ErrDuplicateCode.
	Create(ctx context.Context, request *JoinRequest) error

	// FindPendingByCode returns the pending request carrying the code, or
	// nil. Verified and expired requests never match, whatever their code.
	FindPendingByCode(ctx context.Context, code string) (*JoinRequest, error)

	// UpdateStatus transitions a pending request to the given status.
	// ErrNotFound when the request is gone or no longer pending, which also
	// guards against double redemption under concurrency.
	UpdateStatus(ctx context.Context, id int64, status JoinRequestStatus) error

	// Delete removes a request outright. Only used to compensate when the
	// verification email could not be delivered.
	Delete(ctx context.Context, id int64) error

	// ExpirePending bulk-transitions pending requests whose expiration is
	// before now. Returns the number of rows transitioned.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type pgJoinRequestRepository struct {
	pool *pgxpool.Pool
}

func NewJoinRequestRepository(pool *pgxpool.Pool) JoinRequestRepository {
	return &pgJoinRequestRepository{pool: pool}
}

func (r *pgJoinRequestRepository) Create(ctx context.Context, request *JoinRequest) error {
	if request.Status == "" {
		request.Status = JoinRequestPending
	}
	query := `
		INSERT INTO cluster_join_requests
			(initiator_citizen_id, target_citizen_id, verification_code, code_expiration, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.q(ctx).QueryRow(ctx, query,
		request.InitiatorCitizenID, request.TargetCitizenID,
		request.VerificationCode, request.CodeExpiration, request.Status,
	).Scan(&request.ID, &request.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	return err
}

func (r *pgJoinRequestRepository) FindPendingByCode(ctx context.Context, code string) (*JoinRequest, error) {
	query := `
		SELECT id, initiator_citizen_id, target_citizen_id, verification_code, code_expiration, status, created_at
		FROM cluster_join_requests
		WHERE verification_code = $1 AND status = 'pending'
	`
	request := &JoinRequest{}
	err := r.q(ctx).QueryRow(ctx, query, code).Scan(
		&request.ID, &request.InitiatorCitizenID, &request.TargetCitizenID,
		&request.VerificationCode, &request.CodeExpiration, &request.Status, &request.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (r *pgJoinRequestRepository) UpdateStatus(ctx context.Context, id int64, status JoinRequestStatus) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE cluster_join_requests SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgJoinRequestRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.q(ctx).Exec(ctx, `DELETE FROM cluster_join_requests WHERE id = $1`, id)
	return err
}

func (r *pgJoinRequestRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE cluster_join_requests SET status = 'expired' WHERE status = 'pending' AND code_expiration < $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgJoinRequestRepository) q(ctx context.Context) querier {
	return queryEngine(ctx, r.pool)
}
