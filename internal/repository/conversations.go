package repository

import (
	"context"
	"fmt"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/pkg/utils"
)

func (r DB) CreateConversation(ctx context.Context, userID int64, level models.Level, topic *string) (int64, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Insert("conversations").
		Columns("user_id", "english_level", "topic", "created_at").
		Values(userID, level, topic, utils.NowUTC()).
		Suffix("RETURNING conversation_id")

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, wrap(fmt.Sprintf("build SQL query (user_id: %d)", userID), err)
	}

	var conversationID int64
	if err = r.QueryRowxContext(ctx, sql, args...).Scan(&conversationID); err != nil {
		return 0, wrap(fmt.Sprintf("create conversation (user_id: %d, level: %s)", userID, level), err)
	}

	return conversationID, nil
}

func (r DB) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT conversation_id, user_id, topic, english_level, created_at, total_messages, overall_score
		FROM conversations
		WHERE conversation_id = ?
	`)

	var conv models.Conversation
	if err := r.GetContext(ctx, &conv, query, conversationID); err != nil {
		return nil, wrap(fmt.Sprintf("get conversation (conversation_id: %d)", conversationID), err)
	}

	return &conv, nil
}

func (r DB) UpdateConversationScore(ctx context.Context, conversationID int64, score float64) error {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Update("conversations").
		Set("overall_score", score).
		Where("conversation_id = ?", conversationID)

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (conversation_id: %d)", conversationID), err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return wrap(fmt.Sprintf("update conversation score (conversation_id: %d, score: %.2f)", conversationID, score), err)
	}
	return nil
}
