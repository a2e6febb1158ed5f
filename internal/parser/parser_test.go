package parser

import (
	"testing"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithoutDelimiter(t *testing.T) {
	got := New().Parse("  Hello! How was your weekend?  \n")

	assert.Equal(t, "Hello! How was your weekend?", got.Conversation)
	assert.Empty(t, got.LearningNotes)
	assert.Empty(t, got.Corrections)
	assert.NotNil(t, got.Corrections)
	assert.Equal(t, DefaultScore, got.Score)
}

func TestParseCorrection(t *testing.T) {
	raw := "Great story!\n---\nError found: \"I go\" → \"I went\" - past tense"

	got := New().Parse(raw)

	assert.Equal(t, "Great story!", got.Conversation)
	assert.Equal(t, `Error found: "I go" → "I went" - past tense`, got.LearningNotes)
	assert.Equal(t, ErrorScore, got.Score)
	require.Len(t, got.Corrections, 1)
	assert.Equal(t, models.Correction{
		ErrorType:    "grammar",
		Severity:     models.SeverityMajor,
		OriginalText: "I go",
		Correction:   "I went",
		Explanation:  "past tense",
		Confidence:   0.9,
	}, got.Corrections[0])
}

func TestParseMalformedMarker(t *testing.T) {
	got := New().Parse("Nice.\n---\nError found: something odd")

	assert.Equal(t, ErrorScore, got.Score)
	require.Len(t, got.Corrections, 1)
	c := got.Corrections[0]
	assert.Equal(t, "general", c.ErrorType)
	assert.Equal(t, models.SeverityMinor, c.Severity)
	assert.Equal(t, "parsing_error", c.OriginalText)
	assert.Equal(t, "see_full_response", c.Correction)
	assert.Contains(t, c.Explanation, "Could not parse error details")
	assert.Equal(t, 0.5, c.Confidence)
}

func TestParseMultipleRecords(t *testing.T) {
	raw := `Sounds fun.
-----
Error found: "He don't" → "He doesn't" - third person
Good use of vocabulary.
Error found: broken
Error found:   " I has "  →  " I have "  -   subject agreement   `

	got := New().Parse(raw)

	assert.Equal(t, ErrorScore, got.Score)
	require.Len(t, got.Corrections, 3)
	assert.Equal(t, "He don't", got.Corrections[0].OriginalText)
	assert.Equal(t, "parsing_error", got.Corrections[1].OriginalText)
	assert.Equal(t, "I has", got.Corrections[2].OriginalText)
	assert.Equal(t, "I have", got.Corrections[2].Correction)
	assert.Equal(t, "subject agreement", got.Corrections[2].Explanation)
}

func TestParseNotesWithoutErrors(t *testing.T) {
	got := New().Parse("Well done!\n---\nPerfect grammar today.")

	assert.Equal(t, "Perfect grammar today.", got.LearningNotes)
	assert.Empty(t, got.Corrections)
	assert.Equal(t, DefaultScore, got.Score)
}

func TestParseMarkerOutsideNotesIsIgnored(t *testing.T) {
	got := New().Parse(`Error found: "a" → "b" - c`)

	assert.Empty(t, got.Corrections)
	assert.Equal(t, DefaultScore, got.Score)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		conversation string
		notes        string
	}{
		{
			name:         "three dashes",
			raw:          "hi\n---\nnotes",
			conversation: "hi",
			notes:        "notes",
		},
		{
			name:         "long rule with spaces",
			raw:          "hi\n   ---------  \nnotes",
			conversation: "hi",
			notes:        "notes",
		},
		{
			name:         "first delimiter wins",
			raw:          "hi\n---\nfirst\n---\nsecond",
			conversation: "hi",
			notes:        "first\n---\nsecond",
		},
		{
			name:         "inline dashes are not a delimiter",
			raw:          "wait --- what?",
			conversation: "wait --- what?",
			notes:        "",
		},
		{
			name:         "two dashes are not a delimiter",
			raw:          "hi\n--\nnotes",
			conversation: "hi\n--\nnotes",
			notes:        "",
		},
		{
			name:         "windows line endings",
			raw:          "hi\r\n---\r\nnotes\r\n",
			conversation: "hi",
			notes:        "notes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conversation, notes := Split(tt.raw)
			assert.Equal(t, tt.conversation, conversation)
			assert.Equal(t, tt.notes, notes)
		})
	}
}

func TestIsDelimiter(t *testing.T) {
	assert.True(t, IsDelimiter("---"))
	assert.True(t, IsDelimiter("  -----\r"))
	assert.False(t, IsDelimiter("--"))
	assert.False(t, IsDelimiter("a ---"))
	assert.False(t, IsDelimiter(""))
}
