package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/pkg/utils"
)

const (
	recentProgressDays  = 7
	frequentErrorsLimit = 10
	DefaultPatternDays  = 30
)

func (s *Service) GetStatistics(ctx context.Context, userID int64) (*models.Statistics, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user (user_id: %d): %w", userID, err)
	}

	conversations, err := s.repo.GetConversationStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get conversation stats (user_id: %d): %w", userID, err)
	}
	conversations.AvgMessages = math.Round(conversations.AvgMessages*100) / 100

	errorStats, err := s.repo.GetErrorTypeStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get error type stats (user_id: %d): %w", userID, err)
	}

	progress, err := s.repo.GetRecentProgress(ctx, userID, recentProgressDays)
	if err != nil {
		return nil, fmt.Errorf("get recent progress (user_id: %d): %w", userID, err)
	}

	vocabulary, err := s.repo.GetVocabularyStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get vocabulary stats (user_id: %d): %w", userID, err)
	}

	return &models.Statistics{
		UserInfo: models.UserInfo{
			Username:       user.Username,
			PreferredLevel: user.PreferredLevel,
			JoinDate:       user.CreatedAt,
			LastActive:     user.LastActive,
		},
		Conversations:  *conversations,
		Errors:         errorStats,
		RecentProgress: progress,
		Vocabulary:     *vocabulary,
	}, nil
}

// GetErrorHistory returns up to limit corrections, newest first. days <= 0 disables
// the time window.
func (s *Service) GetErrorHistory(ctx context.Context, userID int64, limit, days int) ([]models.ErrorHistoryEntry, error) {
	var since *time.Time
	if days > 0 {
		t := utils.DaysAgo(s.now(), days)
		since = &t
	}

	history, err := s.repo.GetErrorHistory(ctx, userID, limit, since)
	if err != nil {
		return nil, fmt.Errorf("get error history (user_id: %d, days: %d): %w", userID, days, err)
	}

	return history, nil
}

// GetErrorPatterns summarises the corrections of the last days days. An empty
// window yields empty slices, not an error.
func (s *Service) GetErrorPatterns(ctx context.Context, userID int64, days int) (*models.ErrorPatterns, error) {
	if days <= 0 {
		days = DefaultPatternDays
	}
	since := utils.DaysAgo(s.now(), days)

	distribution, err := s.repo.GetErrorDistribution(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("get error distribution (user_id: %d, days: %d): %w", userID, days, err)
	}

	frequent, err := s.repo.GetFrequentErrors(ctx, userID, since, frequentErrorsLimit)
	if err != nil {
		return nil, fmt.Errorf("get frequent errors (user_id: %d, days: %d): %w", userID, days, err)
	}

	timestamps, err := s.repo.GetErrorTimestamps(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("get error timestamps (user_id: %d, days: %d): %w", userID, days, err)
	}

	return &models.ErrorPatterns{
		Distribution:       distribution,
		FrequentErrors:     frequent,
		Trend:              dailyTrend(timestamps),
		AnalysisPeriodDays: days,
	}, nil
}

// dailyTrend counts timestamps per local calendar date, newest date first.
func dailyTrend(timestamps []time.Time) []models.DailyErrorCount {
	counts := make(map[string]int)
	for _, ts := range timestamps {
		counts[utils.DateKey(ts)]++
	}

	trend := make([]models.DailyErrorCount, 0, len(counts))
	for date, n := range counts {
		trend = append(trend, models.DailyErrorCount{Date: date, Count: n})
	}

	slices.SortFunc(trend, func(a, b models.DailyErrorCount) int {
		return cmp.Compare(b.Date, a.Date)
	})

	return trend
}
