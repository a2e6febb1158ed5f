package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/romanzh1/english-tutor/internal/models"
)

const (
	errorMarker = "Error found:"

	DefaultScore = 85
	ErrorScore   = 75
)

var (
	delimiterRe     = regexp.MustCompile(`(?m)^[ \t]*-{3,}[ \t\r]*$`)
	delimiterLineRe = regexp.MustCompile(`^[ \t]*-{3,}[ \t\r]*$`)
	correctionRe    = regexp.MustCompile(`Error found:\s*"([^"]+)"\s*→\s*"([^"]+)"\s*-\s*(.+)`)
)

// Parser turns one assembled completion into its structured form.
type Parser interface {
	Parse(raw string) models.ParsedResponse
}

// LearningNotes extracts corrections from the free-text notes that follow the
// first horizontal-rule line of a completion.
type LearningNotes struct{}

func New() *LearningNotes {
	return &LearningNotes{}
}

// Parse never fails. Lines carrying the error marker in an unexpected shape are
// reported as fallback corrections.
func (p *LearningNotes) Parse(raw string) models.ParsedResponse {
	conversation, notes := Split(raw)

	result := models.ParsedResponse{
		Conversation:  conversation,
		LearningNotes: notes,
		Corrections:   []models.Correction{},
		Score:         DefaultScore,
	}

	if notes == "" || !strings.Contains(notes, errorMarker) {
		return result
	}

	for _, line := range strings.Split(notes, "\n") {
		if !strings.Contains(line, errorMarker) {
			continue
		}

		result.Corrections = append(result.Corrections, parseLine(line))
		result.Score = ErrorScore
	}

	return result
}

// Split separates the conversation part from the learning notes at the first
// line made only of three or more dashes.
func Split(raw string) (conversation, notes string) {
	loc := delimiterRe.FindStringIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:loc[0]]), strings.TrimSpace(raw[loc[1]:])
}

// IsDelimiter reports whether a single line separates the conversation from the
// learning notes.
func IsDelimiter(line string) bool {
	return delimiterLineRe.MatchString(line)
}

func parseLine(line string) (c models.Correction) {
	defer func() {
		if r := recover(); r != nil {
			c = fallback(fmt.Sprintf("%v", r))
		}
	}()

	m := correctionRe.FindStringSubmatch(line)
	if m == nil {
		return fallback("line does not match the expected format")
	}

	return models.Correction{
		ErrorType:    "grammar",
		Severity:     models.SeverityMajor,
		OriginalText: strings.TrimSpace(m[1]),
		Correction:   strings.TrimSpace(m[2]),
		Explanation:  strings.TrimSpace(m[3]),
		Confidence:   0.9,
	}
}

func fallback(reason string) models.Correction {
	return models.Correction{
		ErrorType:    "general",
		Severity:     models.SeverityMinor,
		OriginalText: "parsing_error",
		Correction:   "see_full_response",
		Explanation:  "Could not parse error details: " + reason,
		Confidence:   0.5,
	}
}
