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

type sqliteMembershipRepo struct {
	db *sql.DB
}

// NewSQLiteMembershipRepo, constructor; interface döner.
func NewSQLiteMembershipRepo(db *sql.DB) MembershipRepository {
	return &sqliteMembershipRepo{db: db}
}

func (r *sqliteMembershipRepo) ListMembers(ctx context.Context, conversationID string) ([]string, error) {
	return queryStrings(ctx, r.db,
		"SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id",
		conversationID,
	)
}

func (r *sqliteMembershipRepo) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	return queryStrings(ctx, r.db,
		"SELECT conversation_id FROM conversation_participants WHERE user_id = ? ORDER BY conversation_id",
		userID,
	)
}

func (r *sqliteMembershipRepo) Get(ctx context.Context, conversationID, userID string) (*models.Membership, error) {
	var m models.Membership
	var joinedAt int64
	var lastReadAt sql.NullInt64

	err := r.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, joined_at, last_read_at
		 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&m.ConversationID, &m.UserID, &joinedAt, &lastReadAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: membership not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.JoinedAt = fromNanos(joinedAt)
	if lastReadAt.Valid {
		t := fromNanos(lastReadAt.Int64)
		m.LastReadAt = &t
	}
	return &m, nil
}

// queryStrings, tek kolonlu bir sorgunun sonucunu []string olarak döner.
// Hiç satır yoksa boş (nil olmayan) slice döner.
func queryStrings(ctx context.Context, q database.TxQuerier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
