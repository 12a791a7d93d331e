package db

import (
	"context"

	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/websocketdto"

	"github.com/jackc/pgx/v5"
)

type ChatRepo struct {
	db *DB
}

var _ ports.IChatRepo = (*ChatRepo)(nil)

func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) Save(ctx context.Context, msg websocketdto.ChatMessage) (websocketdto.ChatMessage, error) {
	q := `INSERT INTO group_chat_messages (group_id, user_id, user_name, user_profile_image, message, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.pool.QueryRow(ctx, q,
		msg.GroupID,
		msg.UserID,
		msg.UserName,
		msg.UserProfileImage,
		msg.Message,
		string(msg.MessageType),
		msg.CreatedAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return websocketdto.ChatMessage{}, err
	}
	return msg, nil
}

func (r *ChatRepo) ListAfter(ctx context.Context, groupID string, afterID int64, limit int) ([]websocketdto.ChatMessage, error) {
	q := `SELECT id, group_id, user_id, user_name, user_profile_image, message, message_type, created_at
		FROM group_chat_messages
		WHERE group_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := r.db.pool.Query(ctx, q, groupID, afterID, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (websocketdto.ChatMessage, error) {
		var (
			m    websocketdto.ChatMessage
			kind string
		)
		err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.UserName, &m.UserProfileImage, &m.Message, &kind, &m.CreatedAt)
		m.MessageType = websocketdto.ChatKind(kind)
		return m, err
	})
}
