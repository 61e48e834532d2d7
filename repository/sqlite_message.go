package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/akinalp/parley/database"
	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

// sqliteMessageRepo, MessageRepository interface'inin SQLite implementasyonu.
type sqliteMessageRepo struct {
	db *sql.DB
}

// NewSQLiteMessageRepo, constructor; interface döner.
func NewSQLiteMessageRepo(db *sql.DB) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

const messageColumns = "id, conversation_id, sender_id, content, content_type, created_at"

func (r *sqliteMessageRepo) Append(ctx context.Context, message *models.Message) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			message.ID, message.ConversationID, message.SenderID,
			message.Content, message.ContentType, message.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?",
			message.CreatedAt.UnixNano(), message.ConversationID,
		)
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		} else if n == 0 {
			return fmt.Errorf("%w: conversation %s", pkg.ErrNotFound, message.ConversationID)
		}
		return nil
	})
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListByConversation, (created_at, id) sırasıyla sayfalanmış mesajları döner.
// Sorgu yeniden eskiye çeker, sonuç eskiden yeniye çevrilir.
func (r *sqliteMessageRepo) ListByConversation(ctx context.Context, conversationID, beforeID string, limit int) ([]models.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE conversation_id = ?"
	args := []any{conversationID}

	if beforeID != "" {
		query += ` AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// MarkRead, ON CONFLICT DO NOTHING ile idempotent insert yapar.
// Yeni satır eklendiyse katılımcının last_read_at'i MAX ile ilerletilir, asla geri gitmez.
func (r *sqliteMessageRepo) MarkRead(ctx context.Context, conversationID string, read *models.MessageRead) (bool, error) {
	var inserted bool

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)
			 ON CONFLICT (message_id, user_id) DO NOTHING`,
			read.MessageID, read.UserID, read.ReadAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message read: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to insert message read: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversation_participants
			 SET last_read_at = MAX(COALESCE(last_read_at, 0), ?)
			 WHERE conversation_id = ? AND user_id = ?`,
			read.ReadAt.UnixNano(), conversationID, read.UserID,
		); err != nil {
			return fmt.Errorf("failed to advance last_read_at: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var createdAt int64
	if err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID,
		&msg.Content, &msg.ContentType, &createdAt,
	); err != nil {
		return nil, err
	}
	msg.CreatedAt = fromNanos(createdAt)
	return &msg, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
