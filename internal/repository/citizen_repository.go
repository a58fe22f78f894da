package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Citizen is the portal's view of an account. The cluster subsystem only
// references citizens by id; profile fields exist for display and email.
type Citizen struct {
	ID           int64
	PrimaryEmail string
	FirstName    *string
	LastName     *string
	CreatedAt    time.Time

	// Passwordless login state, hashed at rest.
	LoginCodeHash    *string
	LoginCodeExpires *time.Time
}

type CitizenRepository interface {
	Create(ctx context.Context, citizen *Citizen) error
	FindByID(ctx context.Context, id int64) (*Citizen, error)
	FindByEmail(ctx context.Context, email string) (*Citizen, error)
	SetLoginCode(ctx context.Context, id int64, codeHash string, expires time.Time) error
	ClearLoginCode(ctx context.Context, id int64) error
	PurgeExpiredLoginCodes(ctx context.Context, now time.Time) (int64, error)
}

type pgCitizenRepository struct {
	pool *pgxpool.Pool
}

func NewCitizenRepository(pool *pgxpool.Pool) CitizenRepository {
	return &pgCitizenRepository{pool: pool}
}

func (r *pgCitizenRepository) Create(ctx context.Context, citizen *Citizen) error {
	citizen.PrimaryEmail = strings.ToLower(strings.TrimSpace(citizen.PrimaryEmail))
	query := `
		INSERT INTO citizens (primary_email, first_name, last_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.q(ctx).QueryRow(ctx, query,
		citizen.PrimaryEmail, citizen.FirstName, citizen.LastName,
	).Scan(&citizen.ID, &citizen.CreatedAt)
}

func (r *pgCitizenRepository) FindByID(ctx context.Context, id int64) (*Citizen, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *pgCitizenRepository) FindByEmail(ctx context.Context, email string) (*Citizen, error) {
	return r.findOne(ctx, `WHERE primary_email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *pgCitizenRepository) findOne(ctx context.Context, where string, arg any) (*Citizen, error) {
	query := `
		SELECT id, primary_email, first_name, last_name, login_code_hash, login_code_expires, created_at
		FROM citizens ` + where
	citizen := &Citizen{}
	err := r.q(ctx).QueryRow(ctx, query, arg).Scan(
		&citizen.ID, &citizen.PrimaryEmail, &citizen.FirstName, &citizen.LastName,
		&citizen.LoginCodeHash, &citizen.LoginCodeExpires, &citizen.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return citizen, nil
}

func (r *pgCitizenRepository) SetLoginCode(ctx context.Context, id int64, codeHash string, expires time.Time) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE citizens SET login_code_hash = $2, login_code_expires = $3 WHERE id = $1`,
		id, codeHash, expires,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgCitizenRepository) ClearLoginCode(ctx context.Context, id int64) error {
	_, err := r.q(ctx).Exec(ctx,
		`UPDATE citizens SET login_code_hash = NULL, login_code_expires = NULL WHERE id = $1`,
		id,
	)
	return err
}

func (r *pgCitizenRepository) PurgeExpiredLoginCodes(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE citizens SET login_code_hash = NULL, login_code_expires = NULL
		WHERE login_code_hash IS NOT NULL AND login_code_expires < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgCitizenRepository) q(ctx context.Context) querier {
	return queryEngine(ctx, r.pool)
}
