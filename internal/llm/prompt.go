package llm

import (
	"fmt"
	"strings"

	"github.com/romanzh1/english-tutor/internal/models"
)

var levelPrompts = map[models.Level]string{
	models.LevelA1: "You are talking to an English beginner. Use simple words (CEFR A1), short sentences and basic grammar.",
	models.LevelA2: "You are talking to an elementary English learner. Use common vocabulary (CEFR A2) and simple compound sentences.",
	models.LevelB1: "You are talking to an intermediate English learner. Use moderate vocabulary (CEFR B1) and some complex sentences.",
	models.LevelB2: "You are talking to an upper-intermediate learner. Use rich vocabulary (CEFR B2) and varied sentence structures.",
	models.LevelC1: "You are talking to an advanced English learner. Use sophisticated vocabulary (CEFR C1) and complex grammar.",
	models.LevelC2: "You are talking to a proficient English speaker. Use native-level vocabulary and natural expressions.",
}

const formatInstruction = `Reply in two parts.

First, a natural, friendly conversation response that stays on the user's topic and asks a follow-up question.

Then, only if the message has one or two errors that hurt communication, add a line with three dashes followed by brief learning notes, one per line, in exactly this form:
---
Error found: "original text" → "correction" - brief explanation

Skip the second part entirely when the message is easy to understand.`

// SystemPrompt builds the instruction sent ahead of the conversation history.
func SystemPrompt(level models.Level, topic string) string {
	levelPrompt, ok := levelPrompts[level]
	if !ok {
		levelPrompt = levelPrompts[models.DefaultLevel]
		level = models.DefaultLevel
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are having a conversation with a %s English learner. %s\n\n", level, levelPrompt)
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, "The conversation topic is: %s.\n\n", topic)
	}
	b.WriteString(formatInstruction)

	return b.String()
}
