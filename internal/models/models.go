package models

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Level is a CEFR proficiency tier, ordered A1 (lowest) to C2 (highest).
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"

	DefaultLevel = LevelB1
)

var levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range levels {
		if l == known {
			return l, true
		}
	}
	return "", false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

type User struct {
	UserID         int64     `db:"user_id" json:"user_id"`
	Username       string    `db:"username" json:"username"`
	PreferredLevel Level     `db:"preferred_level" json:"preferred_level"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastActive     time.Time `db:"last_active" json:"last_active"`
}

type Conversation struct {
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Topic          *string   `db:"topic" json:"topic,omitempty"`
	EnglishLevel   Level     `db:"english_level" json:"english_level"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	TotalMessages  int       `db:"total_messages" json:"total_messages"`
	OverallScore   float64   `db:"overall_score" json:"overall_score"`
}

type Message struct {
	MessageID      int64     `db:"message_id" json:"message_id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	Role           Role      `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	AIAnalysis     *string   `db:"ai_analysis" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	WordCount      int       `db:"word_count" json:"word_count"`
	CEFREstimate   *Level    `db:"cefr_estimate" json:"cefr_estimate,omitempty"`

	Analysis *Analysis `db:"-" json:"analysis,omitempty"`
}

// Correction is one language error found in a user message.
type Correction struct {
	ErrorID      int64    `db:"error_id" json:"error_id,omitempty"`
	MessageID    int64    `db:"message_id" json:"message_id,omitempty"`
	ErrorType    string   `db:"error_type" json:"error_type"`
	Severity     Severity `db:"severity" json:"severity"`
	OriginalText string   `db:"original_text" json:"original_text"`
	Correction   string   `db:"correction" json:"correction"`
	Explanation  string   `db:"explanation" json:"explanation"`
	Confidence   float64  `db:"confidence_score" json:"confidence"`
}

type DailyProgress struct {
	ProgressID      int64   `db:"progress_id" json:"-"`
	UserID          int64   `db:"user_id" json:"-"`
	Date            string  `db:"date" json:"date"`
	MessagesSent    int     `db:"messages_sent" json:"messages_sent"`
	TotalErrors     int     `db:"total_errors" json:"total_errors"`
	AvgScore        float64 `db:"avg_score" json:"avg_score"`
	UniqueWordsUsed int     `db:"unique_words_used" json:"unique_words_used"`
	CEFRProgress    string  `db:"cefr_progress" json:"cefr_progress"`
}

// ProgressUpdate is one activity event folded into the day's DailyProgress row.
type ProgressUpdate struct {
	ErrorCount       int
	Score            int
	ProficiencyLabel string
	UniqueWords      int
}

// ParsedResponse is the structured form of one assembled completion.
type ParsedResponse struct {
	Conversation  string       `json:"conversation"`
	LearningNotes string       `json:"learning_notes"`
	Corrections   []Correction `json:"corrections"`
	Score         int          `json:"score"`
}
