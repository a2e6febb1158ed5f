package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/romanzh1/english-tutor/internal/models"
	"go.uber.org/zap"
)

// maxHistory bounds the number of prior turns replayed to the model.
const maxHistory = 20

// ResolveUser looks the user up by name, creating it on first use. An empty
// username becomes user_<unix seconds>.
func (s *Service) ResolveUser(ctx context.Context, username string, level models.Level) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = fmt.Sprintf("user_%d", s.now().Unix())
	}

	level, err := normalizeLevel(level)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetOrCreateUser(ctx, username, level)
	if err != nil {
		return nil, fmt.Errorf("get or create user (username: %s): %w", username, err)
	}

	return user, nil
}

// StartSession resolves the user and opens a new conversation at the given level.
// The level becomes the user's preferred level.
func (s *Service) StartSession(ctx context.Context, username string, level models.Level, topic string) (*models.Session, error) {
	level, err := normalizeLevel(level)
	if err != nil {
		return nil, err
	}

	user, err := s.ResolveUser(ctx, username, level)
	if err != nil {
		return nil, err
	}

	if user.PreferredLevel != level {
		if err := s.repo.UpdateUserLevel(ctx, user.UserID, level); err != nil {
			zap.S().Warnw("update preferred level", zap.Error(err), zap.Int64("user_id", user.UserID))
		} else {
			user.PreferredLevel = level
		}
	}

	topic = strings.TrimSpace(topic)
	var topicPtr *string
	if topic != "" {
		topicPtr = &topic
	}

	conversationID, err := s.repo.CreateConversation(ctx, user.UserID, level, topicPtr)
	if err != nil {
		return nil, fmt.Errorf("create conversation (user_id: %d): %w", user.UserID, err)
	}

	zap.S().Infow("session started", zap.Int64("user_id", user.UserID), zap.Int64("conversation_id", conversationID), zap.String("level", string(level)))

	return &models.Session{
		User:           user,
		ConversationID: conversationID,
		Level:          level,
		Topic:          topic,
	}, nil
}

// ProcessTurn stores the user's message, streams the reply and records what the
// reply says about the message. Only the user message write and the completion
// itself can fail the turn.
func (s *Service) ProcessTurn(ctx context.Context, session *models.Session, text string, onToken func(string)) (*models.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	log := zap.S().With("turn_id", uuid.NewString(), "conversation_id", session.ConversationID)

	userMsg := &models.Message{
		ConversationID: session.ConversationID,
		Role:           models.RoleUser,
		Content:        text,
	}
	userMsgID, err := s.repo.AddMessage(ctx, userMsg, nil)
	if err != nil {
		return nil, fmt.Errorf("add user message (conversation_id: %d): %w", session.ConversationID, err)
	}

	start := time.Now()
	raw, err := s.completer.Stream(ctx, session, text, onToken)
	if err != nil {
		return nil, fmt.Errorf("stream completion (conversation_id: %d): %w", session.ConversationID, err)
	}
	elapsed := time.Since(start)

	parsed := s.parser.Parse(raw)
	log.Debugw("completion parsed", "corrections", len(parsed.Corrections), "score", parsed.Score, "elapsed_ms", elapsed.Milliseconds())

	targetID, err := s.repo.LastUserMessageID(ctx, session.ConversationID)
	if err != nil || targetID <= 0 {
		if err != nil {
			log.Warnw("get last user message", zap.Error(err))
		}
		targetID = userMsgID
	}
	s.RecordCorrections(ctx, targetID, parsed.Corrections)

	score := parsed.Score
	analysis := &models.Analysis{
		Corrections:   parsed.Corrections,
		Score:         &score,
		LearningNotes: parsed.LearningNotes,
	}

	if err := s.repo.AnnotateMessage(ctx, targetID, analysis); err != nil {
		log.Errorw("annotate user message", zap.Error(err), zap.Int64("message_id", targetID))
	}

	assistantMsg := &models.Message{
		ConversationID: session.ConversationID,
		Role:           models.RoleAssistant,
		Content:        parsed.Conversation,
	}
	if _, err := s.repo.AddMessage(ctx, assistantMsg, analysis); err != nil {
		log.Errorw("add assistant message", zap.Error(err))
	}

	s.UpdateDailyProgress(ctx, session.User.UserID, models.ProgressUpdate{
		ErrorCount:       len(parsed.Corrections),
		Score:            parsed.Score,
		ProficiencyLabel: string(session.Level),
		UniqueWords:      UniqueWords(text),
	})

	session.Turns++
	session.ScoreSum += parsed.Score
	overall := float64(session.ScoreSum) / float64(session.Turns)
	if err := s.repo.UpdateConversationScore(ctx, session.ConversationID, overall); err != nil {
		log.Errorw("update conversation score", zap.Error(err))
	}

	session.History = append(session.History,
		models.ChatTurn{Role: models.RoleUser, Content: text},
		models.ChatTurn{Role: models.RoleAssistant, Content: parsed.Conversation},
	)
	if len(session.History) > maxHistory {
		session.History = session.History[len(session.History)-maxHistory:]
	}

	return &models.TurnResult{
		Parsed:       parsed,
		MessageID:    userMsgID,
		ResponseTime: elapsed,
	}, nil
}

func normalizeLevel(level models.Level) (models.Level, error) {
	if level == "" {
		return models.DefaultLevel, nil
	}

	parsed, ok := models.ParseLevel(string(level))
	if !ok {
		return "", fmt.Errorf("invalid level %q, expected one of %v", level, models.Levels())
	}
	return parsed, nil
}

// ResetHistory forgets the turns replayed to the model. Stored messages are kept.
func (s *Service) ResetHistory(session *models.Session) {
	session.History = nil
}

// UniqueWords counts the distinct case-insensitive words of text.
func UniqueWords(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if w == "" {
			continue
		}
		seen[w] = struct{}{}
	}

	return len(seen)
}
