package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/pkg/utils"
)

// AddMessage stores msg and increments the parent conversation's counter in one
// transaction. Corrections carried by the analysis of a user message are inserted
// in the same transaction, after the message row exists.
func (r DB) AddMessage(ctx context.Context, msg *models.Message, analysis *models.Analysis) (int64, error) {
	msg.WordCount = len(strings.Fields(msg.Content))
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = utils.NowUTC()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	if analysis != nil {
		blob, err := json.Marshal(analysis)
		if err != nil {
			return 0, wrap(fmt.Sprintf("encode analysis (conversation_id: %d)", msg.ConversationID), err)
		}
		s := string(blob)
		msg.AIAnalysis = &s
		msg.Analysis = analysis
	}

	err := r.RunInTx(ctx, func(repo models.Repository) error {
		tx := repo.(*DB)

		id, err := tx.insertMessage(ctx, msg)
		if err != nil {
			return err
		}
		msg.MessageID = id

		if err := tx.incrementMessageCount(ctx, msg.ConversationID); err != nil {
			return err
		}

		if analysis != nil && msg.Role == models.RoleUser && len(analysis.Corrections) > 0 {
			return tx.AddCorrections(ctx, id, analysis.Corrections)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return msg.MessageID, nil
}

func (r DB) insertMessage(ctx context.Context, msg *models.Message) (int64, error) {
	query := r.psql.Insert("messages").
		Columns("conversation_id", "role", "content", "ai_analysis", "created_at", "word_count", "cefr_estimate").
		Values(msg.ConversationID, msg.Role, msg.Content, msg.AIAnalysis, msg.CreatedAt, msg.WordCount, msg.CEFREstimate).
		Suffix("RETURNING message_id")

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, wrap(fmt.Sprintf("build SQL query (conversation_id: %d)", msg.ConversationID), err)
	}

	var id int64
	if err = r.QueryRowxContext(ctx, sql, args...).Scan(&id); err != nil {
		return 0, wrap(fmt.Sprintf("insert message (conversation_id: %d, role: %s)", msg.ConversationID, msg.Role), err)
	}
	return id, nil
}

func (r DB) incrementMessageCount(ctx context.Context, conversationID int64) error {
	query := r.psql.Update("conversations").
		Set("total_messages", squirrel.Expr("total_messages + 1")).
		Where("conversation_id = ?", conversationID)

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (conversation_id: %d)", conversationID), err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return wrap(fmt.Sprintf("increment message count (conversation_id: %d)", conversationID), err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap(fmt.Sprintf("increment message count (conversation_id: %d)", conversationID), models.ErrNotFound)
	}
	return nil
}

// AnnotateMessage replaces the stored analysis of an existing message. Corrections
// carried by the analysis are not inserted.
func (r DB) AnnotateMessage(ctx context.Context, messageID int64, analysis *models.Analysis) error {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	blob, err := json.Marshal(analysis)
	if err != nil {
		return wrap(fmt.Sprintf("encode analysis (message_id: %d)", messageID), err)
	}

	query := r.psql.Update("messages").
		Set("ai_analysis", string(blob)).
		Where("message_id = ?", messageID)

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (message_id: %d)", messageID), err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return wrap(fmt.Sprintf("annotate message (message_id: %d)", messageID), err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap(fmt.Sprintf("annotate message (message_id: %d)", messageID), models.ErrNotFound)
	}
	return nil
}

// LastUserMessageID returns the newest user message of the conversation, or 0 if there is none.
func (r DB) LastUserMessageID(ctx context.Context, conversationID int64) (int64, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Select("COALESCE(MAX(message_id), 0)").
		From("messages").
		Where("conversation_id = ? AND role = ?", conversationID, models.RoleUser)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, wrap(fmt.Sprintf("build SQL query (conversation_id: %d)", conversationID), err)
	}

	var id int64
	if err = r.QueryRowxContext(ctx, sql, args...).Scan(&id); err != nil {
		return 0, wrap(fmt.Sprintf("get last user message (conversation_id: %d)", conversationID), err)
	}
	return id, nil
}

func (r DB) GetRecentUserMessages(ctx context.Context, userID int64, limit int) ([]*models.Message, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT m.message_id, m.conversation_id, m.role, m.content, m.ai_analysis,
		       m.created_at, m.word_count, m.cefr_estimate
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ? AND m.role = ?
		ORDER BY m.created_at DESC, m.message_id DESC
		LIMIT ?
	`)

	var messages []*models.Message
	if err := r.SelectContext(ctx, &messages, query, userID, models.RoleUser, limit); err != nil {
		return nil, wrap(fmt.Sprintf("get recent user messages (user_id: %d)", userID), err)
	}

	for _, m := range messages {
		a := models.DecodeAnalysis(m.AIAnalysis)
		m.Analysis = &a
	}

	return messages, nil
}
