package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageSelect = `
	SELECT m.id, m.conversation_type, m.conversation_id, m.sender_id, m.sender_role,
	       m.content, m.attachments, m.pinned, m.created_at,
	       u.id, u.username, u.role, u.avatar_url,
	       COALESCE(jsonb_agg(jsonb_build_object('user_id', r.user_id, 'read_at', r.read_at))
	                FILTER (WHERE r.user_id IS NOT NULL), '[]')
	FROM messages m
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN message_reads r ON r.message_id = m.id`

func scanMessage(s interface{ Scan(dest ...any) error }) (*model.Message, error) {
	m := &model.Message{}
	sender := &model.UserPublic{}
	var attachments, reads []byte
	err := s.Scan(&m.ID, &m.ConversationType, &m.ConversationID, &m.SenderID, &m.SenderRole,
		&m.Content, &attachments, &m.Pinned, &m.CreatedAt,
		&sender.ID, &sender.Username, &sender.Role, &sender.AvatarURL, &reads)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if err := json.Unmarshal(reads, &m.ReadBy); err != nil {
		return nil, fmt.Errorf("decode read receipts: %w", err)
	}
	m.Sender = sender
	return m, nil
}

// Create persists a message and seeds the sender's own read receipt in the
// same transaction, so a sender is never "unread" on their own message.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("msgRepo.Create encode attachments: %w", err)
	}
	return withRetry(ctx, "msgRepo.Create", func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("msgRepo.Create begin: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_type, conversation_id, sender_id, sender_role, content, attachments, pinned, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.ConversationType, m.ConversationID, m.SenderID, m.SenderRole, m.Content, attachments, m.Pinned, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.Create insert: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO message_reads (message_id, user_id, read_at)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			m.ID, m.SenderID, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.Create seed receipt: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("msgRepo.Create commit: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	var m *model.Message
	err := withRetry(ctx, "msgRepo.GetByID", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1 GROUP BY m.id, u.id`, id)
		var err error
		m, err = scanMessage(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("msgRepo.GetByID: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetConversationMessages returns one page, newest first. Callers reverse
// the page for chronological delivery.
func (r *MessageRepository) GetConversationMessages(ctx context.Context, convType model.ConversationType, convID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetConversationMessages", time.Now())()
	var messages []model.Message
	err := withRetry(ctx, "msgRepo.GetConversationMessages", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			messageSelect+`
			 WHERE m.conversation_type = $1 AND m.conversation_id = $2
			 GROUP BY m.id, u.id
			 ORDER BY m.created_at DESC
			 LIMIT $3 OFFSET $4`, convType, convID, limit, offset,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.GetConversationMessages query: %w", err)
		}
		defer rows.Close()

		messages = messages[:0]
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return fmt.Errorf("msgRepo.GetConversationMessages scan: %w", err)
			}
			messages = append(messages, *m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("msgRepo.GetConversationMessages rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountConversation returns the total number of messages in a conversation.
func (r *MessageRepository) CountConversation(ctx context.Context, convType model.ConversationType, convID string) (int, error) {
	defer logger.DeferLogDuration("msg.CountConversation", time.Now())()
	var n int
	err := withRetry(ctx, "msgRepo.CountConversation", func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM messages WHERE conversation_type = $1 AND conversation_id = $2`,
			convType, convID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("msgRepo.CountConversation: %w", err)
		}
		return nil
	})
	return n, err
}

// MarkRead appends a read receipt. Idempotent: a second read by the same
// user is a no-op.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	return withRetry(ctx, "msgRepo.MarkRead", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO message_reads (message_id, user_id, read_at)
			 SELECT $1, $2, $3 WHERE EXISTS(SELECT 1 FROM messages WHERE id = $1)
			 ON CONFLICT DO NOTHING`,
			messageID, userID, at,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.MarkRead: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Either already read (fine) or the message does not exist.
			var exists bool
			if err := r.pool.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("msgRepo.MarkRead exists: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
		}
		return nil
	})
}

// SetPinned flips the pinned flag. The flag and read receipts are the only
// mutable parts of a message.
func (r *MessageRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	defer logger.DeferLogDuration("msg.SetPinned", time.Now())()
	return withRetry(ctx, "msgRepo.SetPinned", func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx, `UPDATE messages SET pinned = $1 WHERE id = $2`, pinned, id)
		if err != nil {
			return fmt.Errorf("msgRepo.SetPinned: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
