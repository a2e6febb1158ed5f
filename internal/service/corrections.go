package service

import (
	"context"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/pkg/utils"
	"go.uber.org/zap"
)

// RecordCorrections stores the corrections found for a message. Failures are
// logged and dropped so that a lost annotation never aborts a turn.
func (s *Service) RecordCorrections(ctx context.Context, messageID int64, corrections []models.Correction) {
	if messageID <= 0 || len(corrections) == 0 {
		return
	}

	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		return tx.AddCorrections(ctx, messageID, corrections)
	})
	if err != nil {
		zap.S().Errorw("record corrections", zap.Error(err), zap.Int64("message_id", messageID), zap.Int("count", len(corrections)))
	}
}

// UpdateDailyProgress folds one turn into today's progress row. Failures are logged.
func (s *Service) UpdateDailyProgress(ctx context.Context, userID int64, update models.ProgressUpdate) {
	date := utils.DateKey(s.now())

	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		return tx.UpsertDailyProgress(ctx, userID, date, update)
	})
	if err != nil {
		zap.S().Errorw("update daily progress", zap.Error(err), zap.Int64("user_id", userID), zap.String("date", date))
	}
}
