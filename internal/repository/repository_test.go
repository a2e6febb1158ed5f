package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db := openTestDB(t, filepath.Join(t.TempDir(), "tutor.db"))
	require.NoError(t, db.Up())
	return db
}

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()

	db, err := NewDB(Config{
		Driver:      DriverSQLite,
		Path:        path,
		OpTimeout:   10 * time.Second,
		BusyTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedConversation(t *testing.T, db *DB, username string) (*models.User, int64) {
	t.Helper()
	ctx := context.Background()

	user, err := db.GetOrCreateUser(ctx, username, models.LevelB1)
	require.NoError(t, err)

	convID, err := db.CreateConversation(ctx, user.UserID, models.LevelB1, nil)
	require.NoError(t, err)

	return user, convID
}

func addUserMessage(t *testing.T, db *DB, convID int64, content string, at time.Time, corrections ...models.Correction) int64 {
	t.Helper()

	msg := &models.Message{ConversationID: convID, Role: models.RoleUser, Content: content, CreatedAt: at}
	var analysis *models.Analysis
	if len(corrections) > 0 {
		analysis = &models.Analysis{Corrections: corrections}
	}

	id, err := db.AddMessage(context.Background(), msg, analysis)
	require.NoError(t, err)
	return id
}

func correction(original, fixed string) models.Correction {
	return models.Correction{
		ErrorType:    "grammar",
		Severity:     models.SeverityMajor,
		OriginalText: original,
		Correction:   fixed,
		Explanation:  "tense",
		Confidence:   0.9,
	}
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.GetOrCreateUser(ctx, "alice", models.LevelA2)
	require.NoError(t, err)

	second, err := db.GetOrCreateUser(ctx, "alice", models.LevelC1)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, models.LevelA2, second.PreferredLevel)
	assert.False(t, second.LastActive.Before(first.LastActive))

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["users"])
}

func TestGetUserNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUser(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Unavailable())
}

func TestUpdateUserLevel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := seedConversation(t, db, "bob")

	require.NoError(t, db.UpdateUserLevel(ctx, user.UserID, models.LevelC2))

	got, err := db.GetUser(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelC2, got.PreferredLevel)

	assert.ErrorIs(t, db.UpdateUserLevel(ctx, 999, models.LevelA1), models.ErrNotFound)
}

func TestAddMessageIncrementsCounter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "carol")

	for _, text := range []string{"one", "two words", "three little words"} {
		addUserMessage(t, db, convID, text, time.Time{})
	}

	conv, err := db.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.TotalMessages)
}

func TestAddMessageStoresAnalysisAndCorrections(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, convID := seedConversation(t, db, "dave")

	score := 75
	msg := &models.Message{ConversationID: convID, Role: models.RoleUser, Content: "Yesterday I go  to school"}
	id, err := db.AddMessage(ctx, msg, &models.Analysis{
		Corrections: []models.Correction{correction("I go", "I went")},
		Score:       &score,
	})
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, 5, msg.WordCount)

	last, err := db.LastUserMessageID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, id, last)

	messages, err := db.GetRecentUserMessages(ctx, user.UserID, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].Analysis)
	assert.Equal(t, 75, messages[0].Analysis.ScoreOr(0))
	require.Len(t, messages[0].Analysis.Corrections, 1)

	history, err := db.GetErrorHistory(ctx, user.UserID, 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "I go", history[0].OriginalText)
	assert.Equal(t, "I went", history[0].Correction)
	assert.Equal(t, "Yesterday I go  to school", history[0].UserMessage)
}

func TestAssistantMessageDoesNotStoreCorrections(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "erin")

	msg := &models.Message{ConversationID: convID, Role: models.RoleAssistant, Content: "Nice!"}
	_, err := db.AddMessage(ctx, msg, &models.Analysis{Corrections: []models.Correction{correction("a", "b")}})
	require.NoError(t, err)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["errors"])

	last, err := db.LastUserMessageID(ctx, convID)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestAddMessageUnknownConversationRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := &models.Message{ConversationID: 404, Role: models.RoleUser, Content: "hello"}
	_, err := db.AddMessage(ctx, msg, nil)
	require.Error(t, err)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["messages"])
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "frank")

	boom := errors.New("boom")
	err := db.RunInTx(ctx, func(repo models.Repository) error {
		_, err := repo.AddMessage(ctx, &models.Message{ConversationID: convID, Role: models.RoleUser, Content: "lost"}, nil)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	conv, err := db.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Zero(t, conv.TotalMessages)
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "grace")

	assert.Panics(t, func() {
		_ = db.RunInTx(ctx, func(repo models.Repository) error {
			_, err := repo.AddMessage(ctx, &models.Message{ConversationID: convID, Role: models.RoleUser, Content: "lost"}, nil)
			require.NoError(t, err)
			panic("boom")
		})
	})

	conv, err := db.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Zero(t, conv.TotalMessages)
}

func TestAddCorrectionsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "heidi")
	msgID := addUserMessage(t, db, convID, "hello", time.Time{})

	require.NoError(t, db.AddCorrections(ctx, 0, []models.Correction{correction("a", "b")}))
	require.NoError(t, db.AddCorrections(ctx, -1, []models.Correction{correction("a", "b")}))
	require.NoError(t, db.AddCorrections(ctx, msgID, nil))

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["errors"])
}

func TestUpsertDailyProgressSingleRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := seedConversation(t, db, "ivan")
	date := "2024-03-01"

	require.NoError(t, db.UpsertDailyProgress(ctx, user.UserID, date, models.ProgressUpdate{ErrorCount: 1, Score: 80, UniqueWords: 5}))
	require.NoError(t, db.UpsertDailyProgress(ctx, user.UserID, date, models.ProgressUpdate{ErrorCount: 2, Score: 70, UniqueWords: 3}))

	progress, err := db.GetDailyProgress(ctx, user.UserID, date)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.MessagesSent)
	assert.Equal(t, 3, progress.TotalErrors)
	assert.InDelta(t, 70.0, progress.AvgScore, 0.001)
	assert.Equal(t, 5, progress.UniqueWordsUsed)
	assert.Equal(t, "stable", progress.CEFRProgress)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["learning_progress"])
}

func TestConcurrentWritersShareOneProgressRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tutor.db")
	first := openTestDB(t, path)
	require.NoError(t, first.Up())
	second := openTestDB(t, path)

	ctx := context.Background()
	user, convID := seedConversation(t, first, "nina")
	date := "2024-03-01"

	const writers = 40
	errs := make(chan error, writers*2)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		db := first
		if i%2 == 1 {
			db = second
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			msg := &models.Message{ConversationID: convID, Role: models.RoleUser, Content: "I go to school yesterday"}
			analysis := &models.Analysis{Corrections: []models.Correction{correction("I go", "I went")}}
			if _, err := db.AddMessage(ctx, msg, analysis); err != nil {
				errs <- err
			}
			if err := db.UpsertDailyProgress(ctx, user.UserID, date, models.ProgressUpdate{ErrorCount: 1, Score: 75}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	progress, err := first.GetDailyProgress(ctx, user.UserID, date)
	require.NoError(t, err)
	assert.Equal(t, writers, progress.MessagesSent)
	assert.Equal(t, writers, progress.TotalErrors)

	conv, err := second.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, writers, conv.TotalMessages)

	counts, err := first.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["learning_progress"])
	assert.Equal(t, writers, counts["messages"])
	assert.Equal(t, writers, counts["errors"])
}

func TestGetRecentProgressOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := seedConversation(t, db, "judy")

	for _, date := range []string{"2024-03-01", "2024-03-03", "2024-03-02"} {
		require.NoError(t, db.UpsertDailyProgress(ctx, user.UserID, date, models.ProgressUpdate{Score: 85}))
	}

	progress, err := db.GetRecentProgress(ctx, user.UserID, 2)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, "2024-03-03", progress[0].Date)
	assert.Equal(t, "2024-03-02", progress[1].Date)
}

func TestErrorQueriesEmpty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := seedConversation(t, db, "ken")
	since := time.Now().AddDate(0, 0, -30)

	distribution, err := db.GetErrorDistribution(ctx, user.UserID, since)
	require.NoError(t, err)
	assert.NotNil(t, distribution)
	assert.Empty(t, distribution)

	frequent, err := db.GetFrequentErrors(ctx, user.UserID, since, 10)
	require.NoError(t, err)
	assert.NotNil(t, frequent)
	assert.Empty(t, frequent)

	timestamps, err := db.GetErrorTimestamps(ctx, user.UserID, since)
	require.NoError(t, err)
	assert.Empty(t, timestamps)

	stats, err := db.GetConversationStats(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.AvgMessages)
}

func TestGetFrequentErrorsRanking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, convID := seedConversation(t, db, "liam")
	now := time.Now()

	addUserMessage(t, db, convID, "m1", now, correction("c", "d"), correction("a", "b"), correction("b", "x"))
	addUserMessage(t, db, convID, "m2", now, correction("a", "b"), correction("a", "c"), correction("b", "x"))
	addUserMessage(t, db, convID, "m3", now, correction("a", "b"), correction("a", "c"))

	frequent, err := db.GetFrequentErrors(ctx, user.UserID, now.AddDate(0, 0, -30), 10)
	require.NoError(t, err)

	assert.Equal(t, []models.FrequentError{
		{OriginalText: "a", Correction: "b", Frequency: 3},
		{OriginalText: "a", Correction: "c", Frequency: 2},
		{OriginalText: "b", Correction: "x", Frequency: 2},
		{OriginalText: "c", Correction: "d", Frequency: 1},
	}, frequent)

	limited, err := db.GetFrequentErrors(ctx, user.UserID, now.AddDate(0, 0, -30), 2)
	require.NoError(t, err)
	assert.Equal(t, frequent[:2], limited)
}

func TestErrorWindowing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, convID := seedConversation(t, db, "mia")
	now := time.Now()

	addUserMessage(t, db, convID, "old", now.AddDate(0, 0, -10), correction("old", "older"))
	addUserMessage(t, db, convID, "new", now, correction("new", "newer"))

	all, err := db.GetErrorHistory(ctx, user.UserID, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].OriginalText)

	since := now.AddDate(0, 0, -7)
	recent, err := db.GetErrorHistory(ctx, user.UserID, 10, &since)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].OriginalText)

	distribution, err := db.GetErrorDistribution(ctx, user.UserID, since)
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{{ErrorType: "grammar", Count: 1}}, distribution)

	timestamps, err := db.GetErrorTimestamps(ctx, user.UserID, since)
	require.NoError(t, err)
	require.Len(t, timestamps, 1)
	assert.WithinDuration(t, now, timestamps[0], time.Second)
}

func TestStatisticsQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, convID := seedConversation(t, db, "noah")

	addUserMessage(t, db, convID, "I has a cat", time.Time{}, correction("I has", "I have"))
	addUserMessage(t, db, convID, "She go home", time.Time{}, correction("She go", "She goes"))
	_, err := db.AddMessage(ctx, &models.Message{ConversationID: convID, Role: models.RoleAssistant, Content: "Good try"}, nil)
	require.NoError(t, err)

	conv, err := db.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.TotalMessages)

	stats, err := db.GetConversationStats(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.InDelta(t, 3.0, stats.AvgMessages, 0.001)
	assert.Equal(t, 1, stats.LevelsPracticed)

	types, err := db.GetErrorTypeStats(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "grammar", types[0].ErrorType)
	assert.Equal(t, 2, types[0].Count)
	assert.InDelta(t, 0.9, types[0].AvgConfidence, 0.001)

	vocab, err := db.GetVocabularyStats(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, vocab.TotalMessages)
	assert.Equal(t, 7, vocab.TotalWords)
}

func TestDataSource(t *testing.T) {
	_, _, err := dataSource(Config{Driver: DriverSQLite})
	assert.Error(t, err)

	_, _, err = dataSource(Config{Driver: DriverPostgres})
	assert.Error(t, err)

	_, _, err = dataSource(Config{Driver: "mysql"})
	assert.Error(t, err)

	name, dsn, err := dataSource(Config{Driver: DriverPostgres, URL: "postgres://localhost/tutor"})
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)
	assert.Equal(t, "postgres://localhost/tutor", dsn)

	name, dsn, err = dataSource(Config{Path: "tutor.db", BusyTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", name)
	assert.Contains(t, dsn, "busy_timeout%282000%29")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestResetClearsTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, convID := seedConversation(t, db, "reset")
	addUserMessage(t, db, convID, "before reset", time.Now())

	require.NoError(t, db.Reset())
	require.NoError(t, db.Up())

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zero(t, n, table)
	}
}
