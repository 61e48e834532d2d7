package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/parley/database"
	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

type sqliteConversationRepo struct {
	db *sql.DB
}

// NewSQLiteConversationRepo, constructor; interface döner.
func NewSQLiteConversationRepo(db *sql.DB) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

func (r *sqliteConversationRepo) Create(ctx context.Context, conv *models.Conversation, participants []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var title sql.NullString
		if conv.Title != nil {
			title = sql.NullString{String: *conv.Title, Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversations (id, title, kind, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			conv.ID, title, conv.Kind, conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}

		for _, userID := range participants {
			if err := insertParticipant(ctx, tx, conv.ID, userID, conv.CreatedAt.UnixNano()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *sqliteConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var title sql.NullString
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, kind, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &title, &conv.Kind, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if title.Valid {
		conv.Title = &title.String
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return &conv, nil
}

func insertParticipant(ctx context.Context, q database.TxQuerier, conversationID, userID string, joinedAt int64) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		 VALUES (?, ?, ?) ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		conversationID, userID, joinedAt,
	); err != nil {
		return fmt.Errorf("failed to add participant %s: %w", userID, err)
	}
	return nil
}
