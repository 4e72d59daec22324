package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
)

const userCols = `id, username, email, role, mentor_id, avatar_url, created_at, disabled_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser scans a row into model.User (column order matches userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.MentorID, &u.AvatarURL, &u.CreatedAt, &u.DisabledAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	return withRetry(ctx, "userRepo.Create", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, username, email, role, mentor_id, avatar_url, created_at, disabled_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			u.ID, u.Username, u.Email, u.Role, u.MentorID, u.AvatarURL, u.CreatedAt, u.DisabledAt,
		)
		if err != nil {
			return fmt.Errorf("userRepo.Create: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	err := withRetry(ctx, "userRepo.GetByID", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
		if err := scanUser(row, u); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("userRepo.GetByID: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetMentees returns the mentees assigned to a mentor.
func (r *UserRepository) GetMentees(ctx context.Context, mentorID string) ([]model.User, error) {
	defer logger.DeferLogDuration("user.GetMentees", time.Now())()
	var users []model.User
	err := withRetry(ctx, "userRepo.GetMentees", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+userCols+` FROM users
			 WHERE mentor_id = $1 AND role = 'mentee' AND disabled_at IS NULL
			 ORDER BY username`, mentorID,
		)
		if err != nil {
			return fmt.Errorf("userRepo.GetMentees query: %w", err)
		}
		defer rows.Close()

		users = users[:0]
		for rows.Next() {
			var u model.User
			if err := scanUser(rows, &u); err != nil {
				return fmt.Errorf("userRepo.GetMentees scan: %w", err)
			}
			users = append(users, u)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("userRepo.GetMentees rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetDisabled deactivates or reactivates an account. Disabled users cannot
// authenticate or open socket sessions.
func (r *UserRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	defer logger.DeferLogDuration("user.SetDisabled", time.Now())()
	return withRetry(ctx, "userRepo.SetDisabled", func(ctx context.Context) error {
		var at *time.Time
		if disabled {
			now := time.Now().UTC()
			at = &now
		}
		_, err := r.pool.Exec(ctx, `UPDATE users SET disabled_at = $1 WHERE id = $2`, at, id)
		if err != nil {
			return fmt.Errorf("userRepo.SetDisabled: %w", err)
		}
		return nil
	})
}
