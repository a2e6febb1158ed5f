package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/romanzh1/english-tutor/internal/models"
	"go.uber.org/zap"
)

const exportMessagesLimit = 50

func (s *Service) Export(ctx context.Context, userID int64) (*models.Export, error) {
	stats, err := s.GetStatistics(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.repo.GetRecentUserMessages(ctx, userID, exportMessagesLimit)
	if err != nil {
		return nil, fmt.Errorf("get recent user messages (user_id: %d): %w", userID, err)
	}

	exported := make([]models.ExportedMessage, 0, len(messages))
	for _, m := range messages {
		analysis := models.Analysis{}
		if m.Analysis != nil {
			analysis = *m.Analysis
		}

		corrections := analysis.Corrections
		if corrections == nil {
			corrections = []models.Correction{}
		}

		exported = append(exported, models.ExportedMessage{
			Content:      m.Content,
			Timestamp:    m.CreatedAt,
			WordCount:    m.WordCount,
			CEFREstimate: m.CEFREstimate,
			Analysis:     analysis,
			Corrections:  corrections,
			Score:        analysis.ScoreOr(0),
		})
	}

	return &models.Export{
		Statistics:     stats,
		RecentMessages: exported,
		ExportedAt:     s.now(),
	}, nil
}

// ExportFileName returns english_learning_export_<username>_<YYYYMMDD>.json.
func (s *Service) ExportFileName(username string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, username)

	return fmt.Sprintf("english_learning_export_%s_%s.json", safe, s.now().Format("20060102"))
}

// WriteExport writes the export of the user into dir and returns the file path.
func (s *Service) WriteExport(ctx context.Context, userID int64, username, dir string) (string, error) {
	export, err := s.Export(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("export user data (user_id: %d): %w", userID, err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export (user_id: %d): %w", userID, err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir (dir: %s): %w", dir, err)
	}

	path := filepath.Join(dir, s.ExportFileName(username))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export (path: %s): %w", path, err)
	}

	zap.S().Infow("export written", zap.String("path", path), zap.Int("messages", len(export.RecentMessages)))

	return path, nil
}
