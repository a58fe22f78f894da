package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EmailStatusSuccess = "success"
	EmailStatusFailed  = "failed"

	EmailEventClusterVerification = "account-cluster-verification"
	EmailEventLoginCode           = "auth-citizen-by-code"
)

// EmailLog records one outbound email attempt, successful or not.
type EmailLog struct {
	ID            string
	ReceiverEmail string
	Event         string
	Status        string
	EntityType    string
	EntityID      int64
	CreatedAt     time.Time
}

type EmailLogRepository interface {
	Record(ctx context.Context, entry *EmailLog) error
	ListByReceiver(ctx context.Context, email string, limit int) ([]*EmailLog, error)
}

type pgEmailLogRepository struct {
	pool *pgxpool.Pool
}

func NewEmailLogRepository(pool *pgxpool.Pool) EmailLogRepository {
	return &pgEmailLogRepository{pool: pool}
}

func (r *pgEmailLogRepository) Record(ctx context.Context, entry *EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	query := `
		INSERT INTO email_logs (id, receiver_email, event, status, entity_type, entity_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.q(ctx).QueryRow(ctx, query,
		entry.ID, entry.ReceiverEmail, entry.Event, entry.Status, entry.EntityType, entry.EntityID,
	).Scan(&entry.CreatedAt)
}

func (r *pgEmailLogRepository) ListByReceiver(ctx context.Context, email string, limit int) ([]*EmailLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, receiver_email, event, status, entity_type, entity_id, created_at
		FROM email_logs
		WHERE receiver_email = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*EmailLog
	for rows.Next() {
		e := &EmailLog{}
		if err := rows.Scan(&e.ID, &e.ReceiverEmail, &e.Event, &e.Status, &e.EntityType, &e.EntityID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *pgEmailLogRepository) q(ctx context.Context) querier {
	return queryEngine(ctx, r.pool)
}
