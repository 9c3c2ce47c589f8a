package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is a base64-encoded inline image attached to a message.
type Image struct {
	MimeType string
	Data     string // base64, no data: prefix
}

// Message is one turn of a chat completion request. Text is always present;
// Images are optional multimodal parts sent alongside it.
type Message struct {
	Role   Role
	Text   string
	Images []Image
}

// Options controls a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// ChatCompletionProvider is the single capability the engines depend on:
// messages in, generated text out. Implementations are non-deterministic
// black boxes that may return malformed JSON; callers must parse defensively.
type ChatCompletionProvider interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ErrBadCredentials marks provider failures that need operator action
// (missing or invalid API key) rather than a retry.
var ErrBadCredentials = errors.New("llm provider rejected credentials")

// credential failures are only distinguishable by message text across
// providers, so classification is keyword-based.
var credentialKeywords = []string{
	"credentials",
	"unauthorized",
	"invalid api key",
	"invalid x-api-key",
	"authentication",
	"401",
}

// ClassifyError wraps credential-shaped provider errors with
// ErrBadCredentials so callers can surface them as a distinct category.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range credentialKeywords {
		if strings.Contains(msg, kw) {
			return fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
	}
	return err
}

func IsCredentialError(err error) bool {
	return errors.Is(err, ErrBadCredentials)
}

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicClient implements ChatCompletionProvider over the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

func NewAnthropicClient(logger *slog.Logger) *AnthropicClient {
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(
		option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	return &AnthropicClient{client: &client, model: model, logger: logger}
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: param.NewOpt(opts.Temperature),
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Text})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Images)+1)
			for _, img := range m.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Data))
			}
			if m.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			}
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", ClassifyError(err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return "", fmt.Errorf("no text content in completion response")
	}
	return responseText, nil
}

func (c *AnthropicClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			c.logger.Warn("retrying completion call", "backoff", backoff, "attempt", attempt+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		// Credential failures will not heal on retry.
		if IsCredentialError(ClassifyError(err)) {
			break
		}
		c.logger.Warn("completion call failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("completion failed after retries: %w", lastErr)
}
