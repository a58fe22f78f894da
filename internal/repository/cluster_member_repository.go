package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClusterMember records the single fact "this citizen belongs to this
// cluster". A cluster itself is not stored anywhere: it exists exactly while
// at least one membership carries its id.
type ClusterMember struct {
	ID        int64
	ClusterID int64
	CitizenID int64
	JoinedAt  time.Time
}

type ClusterMemberRepository interface {
	// ClusterOf returns the citizen's cluster id, or 0 when unclustered.
	ClusterOf(ctx context.Context, citizenID int64) (int64, error)

	// MembersOf lists memberships ordered by joined_at ascending.
	MembersOf(ctx context.Context, clusterID int64) ([]*ClusterMember, error)

	// AddMember inserts a membership. Adding a citizen to the cluster they
	// are already in is a no-op; a different cluster is ErrClusterConflict.
	AddMember(ctx context.Context, citizenID, clusterID int64) error

	// RemoveMember deletes a membership, ErrNotFound when absent.
	RemoveMember(ctx context.Context, citizenID int64) error

	// NextClusterID allocates a fresh cluster id from a dedicated sequence.
	NextClusterID(ctx context.Context) (int64, error)

	// Merge retags every member of discardID with keepID. No-op when equal.
	Merge(ctx context.Context, keepID, discardID int64) error
}

type pgClusterMemberRepository struct {
	pool *pgxpool.Pool
}

func NewClusterMemberRepository(pool *pgxpool.Pool) ClusterMemberRepository {
	return &pgClusterMemberRepository{pool: pool}
}

func (r *pgClusterMemberRepository) ClusterOf(ctx context.Context, citizenID int64) (int64, error) {
	var clusterID int64
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(cluster_id), 0) FROM account_cluster_members WHERE citizen_id = $1`,
		citizenID,
	).Scan(&clusterID)
	if err != nil {
		return 0, err
	}
	return clusterID, nil
}

func (r *pgClusterMemberRepository) MembersOf(ctx context.Context, clusterID int64) ([]*ClusterMember, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, cluster_id, citizen_id, joined_at
		FROM account_cluster_members
		WHERE cluster_id = $1
		ORDER BY joined_at ASC, id ASC
	`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*ClusterMember
	for rows.Next() {
		m := &ClusterMember{}
		if err := rows.Scan(&m.ID, &m.ClusterID, &m.CitizenID, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *pgClusterMemberRepository) AddMember(ctx context.Context, citizenID, clusterID int64) error {
	existing, err := r.ClusterOf(ctx, citizenID)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing == clusterID {
			return nil
		}
		return ErrClusterConflict
	}

	_, err = r.q(ctx).Exec(ctx,
		`INSERT INTO account_cluster_members (cluster_id, citizen_id) VALUES ($1, $2)`,
		clusterID, citizenID,
	)
	if isUniqueViolation(err) {
		// Lost a race on the citizen_id uniqueness constraint.
		return ErrClusterConflict
	}
	return err
}

func (r *pgClusterMemberRepository) RemoveMember(ctx context.Context, citizenID int64) error {
	tag, err := r.q(ctx).Exec(ctx,
		`DELETE FROM account_cluster_members WHERE citizen_id = $1`,
		citizenID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgClusterMemberRepository) NextClusterID(ctx context.Context) (int64, error) {
	var id int64
	err := r.q(ctx).QueryRow(ctx, `SELECT nextval('account_cluster_id_seq')`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *pgClusterMemberRepository) Merge(ctx context.Context, keepID, discardID int64) error {
	if keepID == discardID {
		return nil
	}
	_, err := r.q(ctx).Exec(ctx,
		`UPDATE account_cluster_members SET cluster_id = $1 WHERE cluster_id = $2`,
		keepID, discardID,
	)
	return err
}

func (r *pgClusterMemberRepository) q(ctx context.Context) querier {
	return queryEngine(ctx, r.pool)
}
