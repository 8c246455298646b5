package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.client/internal/model"
	appErrors "sudooom.im.client/shared/errors"
)

// 正常状态的消息，撤回和删除的不回填
const messageStatusNormal = 0

// MessageRepository 历史消息仓库（只读）
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Recent 获取会话最近 limit 条消息，按时间正序返回
func (r *MessageRepository) Recent(ctx context.Context, selfID int64, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	switch kind, target := model.ParseConversationID(conversationID); kind {
	case model.ConversationPrivate:
		query := `
			SELECT id, from_user_id, msg_type, content, created_at
			FROM messages
			WHERE to_group_id IS NULL AND status = $4
			  AND ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
			ORDER BY id DESC
			LIMIT $3
		`
		rows, err = r.db.Query(ctx, query, selfID, target, limit, messageStatusNormal)
	case model.ConversationGroup:
		query := `
			SELECT id, from_user_id, msg_type, content, created_at
			FROM messages
			WHERE to_group_id = $1 AND status = $3
			ORDER BY id DESC
			LIMIT $2
		`
		rows, err = r.db.Query(ctx, query, target, limit, messageStatusNormal)
	default:
		return nil, appErrors.ErrInvalidParams.Wrap(fmt.Errorf("invalid conversation id %q", conversationID))
	}
	if err != nil {
		return nil, appErrors.ErrDBError.Wrap(err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var (
			msg       model.Message
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.MsgType, &msg.Content, &createdAt); err != nil {
			return nil, appErrors.ErrDBError.Wrap(err)
		}
		msg.ConversationID = conversationID
		msg.CreatedAt = createdAt.UnixMilli()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.ErrDBError.Wrap(err)
	}

	slices.Reverse(messages)
	return messages, nil
}
