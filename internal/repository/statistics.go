package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/romanzh1/english-tutor/internal/models"
)

var tables = []string{"users", "conversations", "messages", "errors", "learning_progress"}

func (r DB) GetConversationStats(ctx context.Context, userID int64) (*models.ConversationStats, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT COUNT(*) AS total,
		       COALESCE(CAST(AVG(total_messages) AS DOUBLE PRECISION), 0) AS avg_messages,
		       COUNT(DISTINCT english_level) AS levels_practiced
		FROM conversations
		WHERE user_id = ?
	`)

	var stats models.ConversationStats
	if err := r.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, wrap(fmt.Sprintf("get conversation stats (user_id: %d)", userID), err)
	}

	return &stats, nil
}

func (r DB) GetErrorTypeStats(ctx context.Context, userID int64) ([]models.ErrorTypeStat, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT e.error_type,
		       COUNT(*) AS error_count,
		       COALESCE(CAST(AVG(e.confidence_score) AS DOUBLE PRECISION), 0) AS avg_confidence
		FROM errors e
		JOIN messages m ON e.message_id = m.message_id
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ?
		GROUP BY e.error_type
		ORDER BY error_count DESC, e.error_type ASC
	`)

	stats := []models.ErrorTypeStat{}
	if err := r.SelectContext(ctx, &stats, query, userID); err != nil {
		return nil, wrap(fmt.Sprintf("get error type stats (user_id: %d)", userID), err)
	}

	return stats, nil
}

func (r DB) GetVocabularyStats(ctx context.Context, userID int64) (*models.VocabularyStats, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT COUNT(*) AS total_messages,
		       COALESCE(SUM(m.word_count), 0) AS total_words
		FROM messages m
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ? AND m.role = ?
	`)

	var stats models.VocabularyStats
	if err := r.GetContext(ctx, &stats, query, userID, models.RoleUser); err != nil {
		return nil, wrap(fmt.Sprintf("get vocabulary stats (user_id: %d)", userID), err)
	}

	return &stats, nil
}

// GetErrorHistory returns the newest corrections of the user joined with the message
// they annotate. A nil since disables the time window.
func (r DB) GetErrorHistory(ctx context.Context, userID int64, limit int, since *time.Time) ([]models.ErrorHistoryEntry, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Select(
		"e.error_id", "m.content", "e.error_type", "e.severity", "e.original_text",
		"COALESCE(e.correction, '') AS correction", "COALESCE(e.explanation, '') AS explanation",
		"m.created_at", "e.confidence_score",
	).
		From("errors e").
		Join("messages m ON e.message_id = m.message_id").
		Join("conversations c ON m.conversation_id = c.conversation_id").
		Where("c.user_id = ?", userID).
		OrderBy("m.created_at DESC", "e.error_id DESC")

	if since != nil {
		query = query.Where("m.created_at >= ?", since.UTC())
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrap(fmt.Sprintf("build SQL query (user_id: %d)", userID), err)
	}

	history := []models.ErrorHistoryEntry{}
	if err = r.SelectContext(ctx, &history, sql, args...); err != nil {
		return nil, wrap(fmt.Sprintf("get error history (user_id: %d, limit: %d)", userID, limit), err)
	}

	return history, nil
}

func (r DB) GetErrorDistribution(ctx context.Context, userID int64, since time.Time) ([]models.CategoryCount, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT e.error_type, COUNT(*) AS error_count
		FROM errors e
		JOIN messages m ON e.message_id = m.message_id
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ? AND m.created_at >= ?
		GROUP BY e.error_type
		ORDER BY error_count DESC, e.error_type ASC
	`)

	distribution := []models.CategoryCount{}
	if err := r.SelectContext(ctx, &distribution, query, userID, since.UTC()); err != nil {
		return nil, wrap(fmt.Sprintf("get error distribution (user_id: %d)", userID), err)
	}

	return distribution, nil
}

// GetFrequentErrors ranks (original, correction) pairs by how often they occurred.
// Ties are ordered by original text and then correction so the ranking is stable.
func (r DB) GetFrequentErrors(ctx context.Context, userID int64, since time.Time, limit int) ([]models.FrequentError, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT e.original_text, COALESCE(e.correction, '') AS correction, COUNT(*) AS frequency
		FROM errors e
		JOIN messages m ON e.message_id = m.message_id
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ? AND m.created_at >= ?
		GROUP BY e.original_text, COALESCE(e.correction, '')
		ORDER BY frequency DESC, e.original_text ASC, correction ASC
		LIMIT ?
	`)

	frequent := []models.FrequentError{}
	if err := r.SelectContext(ctx, &frequent, query, userID, since.UTC(), limit); err != nil {
		return nil, wrap(fmt.Sprintf("get frequent errors (user_id: %d)", userID), err)
	}

	return frequent, nil
}

// GetErrorTimestamps returns the creation time of the message behind every correction
// in the window, one entry per correction.
func (r DB) GetErrorTimestamps(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT m.created_at
		FROM errors e
		JOIN messages m ON e.message_id = m.message_id
		JOIN conversations c ON m.conversation_id = c.conversation_id
		WHERE c.user_id = ? AND m.created_at >= ?
		ORDER BY m.created_at DESC
	`)

	timestamps := []time.Time{}
	if err := r.SelectContext(ctx, &timestamps, query, userID, since.UTC()); err != nil {
		return nil, wrap(fmt.Sprintf("get error timestamps (user_id: %d)", userID), err)
	}

	return timestamps, nil
}

// TableCounts reports the number of rows in every table of the schema.
func (r DB) TableCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := r.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, wrap(fmt.Sprintf("count rows (table: %s)", table), err)
		}
		counts[table] = n
	}

	return counts, nil
}
