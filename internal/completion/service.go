package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/entity"
)

var ErrInvalidInput = errors.New("invalid input")

// sampling parameters per mode
var (
	summarizeParams   = ChatRequest{MaxTokens: 400, Temperature: 0.3}
	analyzeParams     = ChatRequest{MaxTokens: 900, Temperature: 0.7}
	findSimilarParams = ChatRequest{MaxTokens: 900, Temperature: 0.5}
)

// Service assembles prompts for the three proxy modes and shapes the replies.
type Service struct {
	client *Client
	logger *zap.SugaredLogger
}

func NewService(client *Client, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{client: client, logger: logger}
}

// Configured reports whether the upstream can be called at all.
func (s *Service) Configured() bool { return s.client.Configured() }

func (s *Service) complete(ctx context.Context, params ChatRequest, msgs []Message) ([]byte, error) {
	params.Messages = msgs
	return s.client.Complete(ctx, params)
}

// Summarize returns a plain-text rolling summary.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	body, err := s.complete(ctx, summarizeParams, buildSummarize(req))
	if err != nil {
		return "", err
	}
	content, err := messageContent(body)
	if err != nil {
		return "", err
	}
	return SanitizeSummary(content), nil
}

// Analyze returns the upstream reply with code fences stripped from every
// choice's message content.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.BlockText) == "" {
		return nil, fmt.Errorf("%w: blockText is required", ErrInvalidInput)
	}
	body, err := s.complete(ctx, analyzeParams, buildAnalyze(req))
	if err != nil {
		return nil, err
	}
	return sanitizeChoices(body)
}

// FindSimilar returns at most a handful of works resembling the dream.
func (s *Service) FindSimilar(ctx context.Context, req FindSimilarRequest) ([]any, error) {
	if strings.TrimSpace(req.DreamText) == "" {
		return nil, fmt.Errorf("%w: dreamText is required", ErrInvalidInput)
	}
	body, err := s.complete(ctx, findSimilarParams, buildFindSimilar(req))
	if err != nil {
		return nil, err
	}
	content, err := messageContent(body)
	if err != nil {
		return nil, err
	}
	items := ParseSimilar(content)
	if len(items) == 1 {
		if _, ok := items[0].(map[string]any); !ok {
			s.logger.Debugw("find_similar reply was not a JSON array", "bytes", len(content))
		}
	}
	out := FlattenSimilar(items)
	if len(out) > entity.MaxArtworks {
		out = out[:entity.MaxArtworks]
	}
	return out, nil
}

func messageContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: reply is not JSON", ErrUpstream)
	}
	c := gjson.GetBytes(body, "choices.0.message.content")
	if !c.Exists() {
		return "", fmt.Errorf("%w: reply has no message content", ErrUpstream)
	}
	return c.String(), nil
}

func sanitizeChoices(body []byte) (json.RawMessage, error) {
	var reply map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode completion reply: %w", err)
	}
	choices, _ := reply["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		msg, ok := choice["message"].(map[string]any)
		if !ok {
			continue
		}
		if content, ok := msg["content"].(string); ok {
			msg["content"] = StripFences(content)
		}
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode completion reply: %w", err)
	}
	return out, nil
}
