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

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	return withRetry(ctx, "groupRepo.Create", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO groups (id, name, description, mentor_id, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			g.ID, g.Name, g.Description, g.MentorID, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("groupRepo.Create: %w", err)
		}
		return nil
	})
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	err := withRetry(ctx, "groupRepo.GetByID", func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`SELECT id, name, COALESCE(description,''), mentor_id, created_at
			 FROM groups WHERE id = $1`, id,
		).Scan(&g.ID, &g.Name, &g.Description, &g.MentorID, &g.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("groupRepo.GetByID: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, m *model.GroupMember) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	return withRetry(ctx, "groupRepo.AddMember", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			m.GroupID, m.UserID, m.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("groupRepo.AddMember: %w", err)
		}
		return nil
	})
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.IsMember", time.Now())()
	var isMember bool
	err := withRetry(ctx, "groupRepo.IsMember", func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
			groupID, userID,
		).Scan(&isMember)
		if err != nil {
			return fmt.Errorf("groupRepo.IsMember: %w", err)
		}
		return nil
	})
	return isMember, err
}

func (r *GroupRepository) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.GetMemberIDs", time.Now())()
	var ids []string
	err := withRetry(ctx, "groupRepo.GetMemberIDs", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT user_id FROM group_members WHERE group_id = $1`, groupID,
		)
		if err != nil {
			return fmt.Errorf("groupRepo.GetMemberIDs query: %w", err)
		}
		defer rows.Close()

		ids = ids[:0]
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("groupRepo.GetMemberIDs scan: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("groupRepo.GetMemberIDs rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetUserGroups returns the groups a user belongs to, most recent first.
func (r *GroupRepository) GetUserGroups(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.GetUserGroups", time.Now())()
	var groups []model.Group
	err := withRetry(ctx, "groupRepo.GetUserGroups", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT g.id, g.name, COALESCE(g.description,''), g.mentor_id, g.created_at
			 FROM groups g
			 JOIN group_members gm ON gm.group_id = g.id
			 WHERE gm.user_id = $1
			 ORDER BY g.created_at DESC`, userID,
		)
		if err != nil {
			return fmt.Errorf("groupRepo.GetUserGroups query: %w", err)
		}
		defer rows.Close()

		groups = groups[:0]
		for rows.Next() {
			var g model.Group
			if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.MentorID, &g.CreatedAt); err != nil {
				return fmt.Errorf("groupRepo.GetUserGroups scan: %w", err)
			}
			groups = append(groups, g)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("groupRepo.GetUserGroups rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}
