package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, first_name, last_name, email, password_hash, image_url,
	refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getUser(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	return r.getUser(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (User, error) {
	var user User
	var imageURL, refreshHash sql.NullString
	var refreshExpiry sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash,
		&imageURL, &refreshHash, &refreshExpiry, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	user.ImageURL = imageURL.String
	user.RefreshTokenHash = refreshHash.String
	if refreshExpiry.Valid {
		user.RefreshTokenExpiresAt = refreshExpiry.Time.UTC()
	}

	return user, nil
}

// Create inserts a new user record. A concurrent insert with the same email
// surfaces as ErrUserExists via the unique constraint.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	user.ID = id.String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $7)
	`, user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.ImageURL, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// SetRefreshToken overwrites the stored refresh token hash unconditionally.
// Used on token exchange, where any previously issued refresh token is
// invalidated by design.
func (r *Repository) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = $2, refresh_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, hash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set refresh token hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// RotateRefreshToken replaces the stored hash only if it still equals
// oldHash. The compare-and-set makes rotation single-use: of two concurrent
// rotations with the same stale token, exactly one sees a row update and the
// other gets ErrRefreshTokenMismatch.
func (r *Repository) RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = $3, refresh_token_expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND refresh_token_hash = $2
	`, userID, oldHash, newHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("rotate refresh token hash: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRefreshTokenMismatch
	}

	return nil
}

// ClearExpiredRefreshTokens drops refresh token hashes whose recorded expiry
// has passed. Called from the maintenance cleanup endpoint.
func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE refresh_token_hash IS NOT NULL
			  AND refresh_token_expires_at < NOW()
			ORDER BY refresh_token_expires_at ASC
			LIMIT $1
		)
		UPDATE users u
		SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}
