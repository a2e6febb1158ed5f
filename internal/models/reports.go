package models

import "time"

type UserInfo struct {
	Username       string    `json:"username"`
	PreferredLevel Level     `json:"preferred_level"`
	JoinDate       time.Time `json:"join_date"`
	LastActive     time.Time `json:"last_active"`
}

type ConversationStats struct {
	Total           int     `db:"total" json:"total"`
	AvgMessages     float64 `db:"avg_messages" json:"avg_messages"`
	LevelsPracticed int     `db:"levels_practiced" json:"levels_practiced"`
}

type ErrorTypeStat struct {
	ErrorType     string  `db:"error_type" json:"error_type"`
	Count         int     `db:"error_count" json:"count"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}

type VocabularyStats struct {
	TotalMessages int `db:"total_messages" json:"total_messages"`
	TotalWords    int `db:"total_words" json:"total_words"`
}

type Statistics struct {
	UserInfo       UserInfo          `json:"user_info"`
	Conversations  ConversationStats `json:"conversations"`
	Errors         []ErrorTypeStat   `json:"errors"`
	RecentProgress []DailyProgress   `json:"recent_progress"`
	Vocabulary     VocabularyStats   `json:"vocabulary"`
}

// ErrorHistoryEntry is a correction joined with the message it annotates.
type ErrorHistoryEntry struct {
	ErrorID      int64     `db:"error_id" json:"-"`
	UserMessage  string    `db:"content" json:"user_message"`
	ErrorType    string    `db:"error_type" json:"error_type"`
	Severity     Severity  `db:"severity" json:"severity"`
	OriginalText string    `db:"original_text" json:"original_text"`
	Correction   string    `db:"correction" json:"correction"`
	Explanation  string    `db:"explanation" json:"explanation"`
	Timestamp    time.Time `db:"created_at" json:"timestamp"`
	Confidence   float64   `db:"confidence_score" json:"confidence"`
}

type CategoryCount struct {
	ErrorType string `db:"error_type" json:"error_type"`
	Count     int    `db:"error_count" json:"count"`
}

type FrequentError struct {
	OriginalText string `db:"original_text" json:"original_text"`
	Correction   string `db:"correction" json:"correction"`
	Frequency    int    `db:"frequency" json:"frequency"`
}

type DailyErrorCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ErrorPatterns struct {
	Distribution       []CategoryCount   `json:"distribution"`
	FrequentErrors     []FrequentError   `json:"frequent_errors"`
	Trend              []DailyErrorCount `json:"trend"`
	AnalysisPeriodDays int               `json:"analysis_period_days"`
}

func (p *ErrorPatterns) Empty() bool {
	return len(p.Distribution) == 0 && len(p.FrequentErrors) == 0 && len(p.Trend) == 0
}

type ExportedMessage struct {
	Content      string       `json:"content"`
	Timestamp    time.Time    `json:"timestamp"`
	WordCount    int          `json:"word_count"`
	CEFREstimate *Level       `json:"cefr_estimate"`
	Analysis     Analysis     `json:"analysis"`
	Corrections  []Correction `json:"errors"`
	Score        int          `json:"score"`
}

type Export struct {
	Statistics     *Statistics       `json:"statistics"`
	RecentMessages []ExportedMessage `json:"recent_messages"`
	ExportedAt     time.Time         `json:"export_timestamp"`
}
