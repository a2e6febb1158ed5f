package repository

import (
	"context"
	"fmt"

	"github.com/romanzh1/english-tutor/internal/models"
)

// AddCorrections inserts the batch as one statement. It is a no-op for an empty
// batch or a non-positive message id.
func (r DB) AddCorrections(ctx context.Context, messageID int64, corrections []models.Correction) error {
	if messageID <= 0 || len(corrections) == 0 {
		return nil
	}

	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Insert("errors").
		Columns("message_id", "error_type", "severity", "original_text", "correction", "explanation", "confidence_score")

	for _, c := range corrections {
		c = normalizeCorrection(c)
		query = query.Values(messageID, c.ErrorType, c.Severity, c.OriginalText, c.Correction, c.Explanation, c.Confidence)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (message_id: %d)", messageID), err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return wrap(fmt.Sprintf("add corrections (message_id: %d, count: %d)", messageID, len(corrections)), err)
	}
	return nil
}

func normalizeCorrection(c models.Correction) models.Correction {
	if c.ErrorType == "" {
		c.ErrorType = "unknown"
	}
	if c.Severity == "" {
		c.Severity = models.SeverityMinor
	}
	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	return c
}
