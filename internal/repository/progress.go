package repository

import (
	"context"
	"fmt"

	"github.com/romanzh1/english-tutor/internal/models"
)

const upsertProgressSuffix = `ON CONFLICT (user_id, date) DO UPDATE SET
	messages_sent = learning_progress.messages_sent + 1,
	total_errors = learning_progress.total_errors + excluded.total_errors,
	avg_score = excluded.avg_score,
	unique_words_used = CASE
		WHEN excluded.unique_words_used > learning_progress.unique_words_used THEN excluded.unique_words_used
		ELSE learning_progress.unique_words_used
	END,
	cefr_progress = excluded.cefr_progress`

// UpsertDailyProgress folds one activity event into the (user, date) row; avg_score
// holds the latest turn's score. The unique constraint on (user_id, date) makes the
// insert-or-update atomic.
func (r DB) UpsertDailyProgress(ctx context.Context, userID int64, date string, update models.ProgressUpdate) error {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	label := update.ProficiencyLabel
	if label == "" {
		label = "stable"
	}

	query := r.psql.Insert("learning_progress").
		Columns("user_id", "date", "messages_sent", "total_errors", "avg_score", "unique_words_used", "cefr_progress").
		Values(userID, date, 1, update.ErrorCount, float64(update.Score), update.UniqueWords, label).
		Suffix(upsertProgressSuffix)

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (user_id: %d, date: %s)", userID, date), err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return wrap(fmt.Sprintf("upsert daily progress (user_id: %d, date: %s)", userID, date), err)
	}
	return nil
}

func (r DB) GetDailyProgress(ctx context.Context, userID int64, date string) (*models.DailyProgress, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT progress_id, user_id, date, messages_sent, total_errors, avg_score, unique_words_used, cefr_progress
		FROM learning_progress
		WHERE user_id = ? AND date = ?
	`)

	var progress models.DailyProgress
	if err := r.GetContext(ctx, &progress, query, userID, date); err != nil {
		return nil, wrap(fmt.Sprintf("get daily progress (user_id: %d, date: %s)", userID, date), err)
	}

	return &progress, nil
}

// GetRecentProgress returns up to limit progress rows, newest date first.
func (r DB) GetRecentProgress(ctx context.Context, userID int64, limit int) ([]models.DailyProgress, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT progress_id, user_id, date, messages_sent, total_errors, avg_score, unique_words_used, cefr_progress
		FROM learning_progress
		WHERE user_id = ?
		ORDER BY date DESC
		LIMIT ?
	`)

	progress := []models.DailyProgress{}
	if err := r.SelectContext(ctx, &progress, query, userID, limit); err != nil {
		return nil, wrap(fmt.Sprintf("get recent progress (user_id: %d)", userID), err)
	}

	return progress, nil
}
