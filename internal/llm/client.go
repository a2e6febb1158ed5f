package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Stream sends the session history plus userText and returns the assembled reply.
// onToken, if set, receives every content delta as it arrives.
func (c *Client) Stream(ctx context.Context, session *models.Session, userText string, onToken func(string)) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    BuildMessages(session, userText),
		Temperature: float32(c.temperature),
		MaxTokens:   c.maxTokens,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create completion stream (model: %s): %w", c.model, err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return b.String(), fmt.Errorf("receive completion chunk (model: %s): %w", c.model, err)
		}

		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		b.WriteString(delta)
		if onToken != nil {
			onToken(delta)
		}
	}

	zap.S().Debugw("completion received", "model", c.model, "chars", b.Len())

	return b.String(), nil
}

// BuildMessages lays out the system prompt, the prior turns and the new user text.
func BuildMessages(session *models.Session, userText string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(session.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(session.Level, session.Topic),
	})

	for _, turn := range session.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})
}
