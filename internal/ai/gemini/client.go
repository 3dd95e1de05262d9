package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultChatModel  = "gemini-2.5-flash"
	defaultMaxRetries = 3
	baseBackoff       = time.Second
	maxQuotaDelay     = 30 * time.Second
)

var sleep = time.Sleep

var retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Generator sends single-turn prompts through a Gemini chat and returns the
// concatenated text of the first candidate.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	jsonOutput bool
	logger     *zap.Logger
}

// NewClient builds the genai client shared by the generator and the embedder.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return client, nil
}

// NewGenerator asks the model for JSON output; the evaluator is its only caller.
func NewGenerator(client *genai.Client, model string, maxRetries int, logger *zap.Logger) *Generator {
	if strings.TrimSpace(model) == "" {
		model = defaultChatModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: maxRetries,
		jsonOutput: true,
		logger:     logger,
	}
}

func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if g.jsonOutput {
		cfg.ResponseMIMEType = "application/json"
	}

	var out string
	err := withRetries(ctx, g.logger, g.maxRetries, func() error {
		chat, err := g.chats.Create(ctx, g.model, cfg, nil)
		if err != nil {
			return err
		}

		resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
		if err != nil {
			return err
		}

		out = responseText(resp)
		if out == "" {
			return errors.New("gemini returned empty response")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(sb.String())
}

// withRetries calls fn up to attempts times while the error is temporary.
func withRetries(ctx context.Context, logger *zap.Logger, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts {
			return err
		}

		logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		sleep(delay)
	}

	return err
}

func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return 0, false
		}
		apiErr = *apiErrPtr
	}

	backoff := baseBackoff << (attempt - 1)

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if m := retryDelayPattern.FindStringSubmatch(apiErr.Message); len(m) == 2 {
			seconds, parseErr := strconv.ParseFloat(m[1], 64)
			if parseErr == nil {
				delay := time.Duration(seconds * float64(time.Second))
				if delay > maxQuotaDelay {
					return 0, false
				}
				return delay, true
			}
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	default:
		return 0, false
	}
}
