package models

import (
	"context"
	"time"
)

type Repository interface {
	GetOrCreateUser(ctx context.Context, username string, level Level) (*User, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	UpdateUserLevel(ctx context.Context, userID int64, level Level) error
	RunInTx(ctx context.Context, fn func(Repository) error) error

	CreateConversation(ctx context.Context, userID int64, level Level, topic *string) (int64, error)
	GetConversation(ctx context.Context, conversationID int64) (*Conversation, error)
	UpdateConversationScore(ctx context.Context, conversationID int64, score float64) error

	AddMessage(ctx context.Context, msg *Message, analysis *Analysis) (int64, error)
	AnnotateMessage(ctx context.Context, messageID int64, analysis *Analysis) error
	LastUserMessageID(ctx context.Context, conversationID int64) (int64, error)
	GetRecentUserMessages(ctx context.Context, userID int64, limit int) ([]*Message, error)

	AddCorrections(ctx context.Context, messageID int64, corrections []Correction) error

	UpsertDailyProgress(ctx context.Context, userID int64, date string, update ProgressUpdate) error
	GetDailyProgress(ctx context.Context, userID int64, date string) (*DailyProgress, error)
	GetRecentProgress(ctx context.Context, userID int64, limit int) ([]DailyProgress, error)

	GetConversationStats(ctx context.Context, userID int64) (*ConversationStats, error)
	GetErrorTypeStats(ctx context.Context, userID int64) ([]ErrorTypeStat, error)
	GetVocabularyStats(ctx context.Context, userID int64) (*VocabularyStats, error)
	GetErrorHistory(ctx context.Context, userID int64, limit int, since *time.Time) ([]ErrorHistoryEntry, error)
	GetErrorDistribution(ctx context.Context, userID int64, since time.Time) ([]CategoryCount, error)
	GetFrequentErrors(ctx context.Context, userID int64, since time.Time, limit int) ([]FrequentError, error)
	GetErrorTimestamps(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)

	TableCounts(ctx context.Context) (map[string]int, error)
}

type Service interface {
	ResolveUser(ctx context.Context, username string, level Level) (*User, error)
	StartSession(ctx context.Context, username string, level Level, topic string) (*Session, error)
	ProcessTurn(ctx context.Context, session *Session, text string, onToken func(string)) (*TurnResult, error)
	ResetHistory(session *Session)

	GetStatistics(ctx context.Context, userID int64) (*Statistics, error)
	GetErrorHistory(ctx context.Context, userID int64, limit, days int) ([]ErrorHistoryEntry, error)
	GetErrorPatterns(ctx context.Context, userID int64, days int) (*ErrorPatterns, error)
	Export(ctx context.Context, userID int64) (*Export, error)
	WriteExport(ctx context.Context, userID int64, username, dir string) (string, error)
	CheckStore(ctx context.Context) (map[string]int, error)
}

// Session is the state of one interactive tutoring conversation.
type Session struct {
	User           *User
	ConversationID int64
	Level          Level
	Topic          string
	History        []ChatTurn
	Turns          int
	ScoreSum       int
}

type ChatTurn struct {
	Role    Role
	Content string
}

type TurnResult struct {
	Parsed       ParsedResponse
	MessageID    int64
	ResponseTime time.Duration
}
