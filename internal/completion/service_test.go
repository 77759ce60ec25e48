package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeUpstream records the last request and answers with a fixed reply.
type fakeUpstream struct {
	mu      sync.Mutex
	last    ChatRequest
	auth    string
	status  int
	content string
	raw     string
	delay   time.Duration
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	_ = json.Unmarshal(body, &f.last)
	f.auth = r.Header.Get("Authorization")
	status, content, raw, delay := f.status, f.content, f.raw, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if raw != "" {
		_, _ = io.WriteString(w, raw)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": "cmpl-1",
		"choices": []any{
			map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func (f *fakeUpstream) request() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newUpstream(t *testing.T, f *fakeUpstream, timeout time.Duration) *Service {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{URL: srv.URL, APIKey: "sk-test", Model: "test-model", Timeout: timeout})
	return NewService(client, zap.NewNop().Sugar())
}

func turns(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = Turn{Role: role, Content: "turn"}
	}
	return out
}

func TestSummarize(t *testing.T) {
	up := &fakeUpstream{content: "```\n\"The dreamer flies over a city.\"\n```"}
	svc := newUpstream(t, up, time.Second)

	summary, err := svc.Summarize(context.Background(), SummarizeRequest{
		History:         turns(40),
		BlockText:       strings.Repeat("x", 5000),
		ExistingSummary: "earlier",
	})
	require.NoError(t, err)
	assert.Equal(t, "The dreamer flies over a city.", summary)

	req := up.request()
	assert.Equal(t, "test-model", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, summarizeParams.MaxTokens, req.MaxTokens)
	// persona + previous summary + 30 turns + passage
	require.Len(t, req.Messages, 1+1+SummaryHistoryTurns+1)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "earlier")
	last := req.Messages[len(req.Messages)-1].Content
	assert.Equal(t, MaxContentChars, strings.Count(last, "x"))
	assert.Equal(t, "Bearer sk-test", up.auth)
}

func TestAnalyze(t *testing.T) {
	up := &fakeUpstream{content: "```markdown\nFlying suggests freedom.\n```"}
	svc := newUpstream(t, up, time.Second)

	reply, err := svc.Analyze(context.Background(), AnalyzeRequest{
		BlockText:         "I flew",
		LastTurns:         turns(14),
		RollingSummary:    "so far",
		ExtraSystemPrompt: "be brief",
		DreamSummary:      "flying dream",
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(reply, &out))
	assert.Equal(t, "cmpl-1", out["id"])
	msg := out["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "Flying suggests freedom.", msg["content"])

	req := up.request()
	// persona + extra + dream summary + rolling summary + 10 turns + block
	require.Len(t, req.Messages, 4+AnalyzeTurns+1)
	assert.Equal(t, "I flew", req.Messages[len(req.Messages)-1].Content)
}

func TestAnalyze_RequiresBlockText(t *testing.T) {
	svc := newUpstream(t, &fakeUpstream{}, time.Second)
	_, err := svc.Analyze(context.Background(), AnalyzeRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFindSimilar_FlattensMotifs(t *testing.T) {
	up := &fakeUpstream{content: `[{"motif":"water","works":[{"title":"A","author":"B"},{"title":"C","author":"D"}]}]`}
	svc := newUpstream(t, up, time.Second)

	out, err := svc.FindSimilar(context.Background(), FindSimilarRequest{
		DreamText:                 "I swam in a lake",
		GlobalFinalInterpretation: "renewal",
		BlockInterpretations:      json.RawMessage(`["calm","depth"]`),
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"title":"A","author":"B","desc":"","value":""},{"title":"C","author":"D","desc":"","value":""}]`,
		asJSON(t, out))

	prompt := up.request().Messages[1].Content
	assert.Contains(t, prompt, "I swam in a lake")
	assert.Contains(t, prompt, "renewal")
	assert.Contains(t, prompt, "- depth")
}

func TestAnalyze_KeepsLargeIntegers(t *testing.T) {
	up := &fakeUpstream{raw: `{"id":"cmpl-2","created":9007199254740993,"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`}
	svc := newUpstream(t, up, time.Second)

	reply, err := svc.Analyze(context.Background(), AnalyzeRequest{BlockText: "I flew"})
	require.NoError(t, err)
	assert.Contains(t, string(reply), `"created":9007199254740993`)
}

func TestFindSimilar_CapsFlatReply(t *testing.T) {
	items := make([]string, 8)
	for i := range items {
		items[i] = `{"title":"T","type":"book","author":"A","desc":"","value":""}`
	}
	up := &fakeUpstream{content: "[" + strings.Join(items, ",") + "]"}
	svc := newUpstream(t, up, time.Second)

	out, err := svc.FindSimilar(context.Background(), FindSimilarRequest{DreamText: "I swam"})
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestFindSimilar_RequiresDreamText(t *testing.T) {
	svc := newUpstream(t, &fakeUpstream{}, time.Second)
	_, err := svc.FindSimilar(context.Background(), FindSimilarRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpstreamFailures(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		svc := newUpstream(t, &fakeUpstream{status: http.StatusBadGateway, raw: `{"error":"bad"}`}, time.Second)
		_, err := svc.Summarize(context.Background(), SummarizeRequest{BlockText: "x"})
		assert.ErrorIs(t, err, ErrUpstream)
		assert.NotErrorIs(t, err, ErrUpstreamTimeout)
	})
	t.Run("not json", func(t *testing.T) {
		svc := newUpstream(t, &fakeUpstream{raw: `<html>`}, time.Second)
		_, err := svc.Summarize(context.Background(), SummarizeRequest{BlockText: "x"})
		assert.ErrorIs(t, err, ErrUpstream)
	})
	t.Run("timeout", func(t *testing.T) {
		svc := newUpstream(t, &fakeUpstream{delay: 2 * time.Second}, 50*time.Millisecond)
		_, err := svc.Summarize(context.Background(), SummarizeRequest{BlockText: "x"})
		assert.ErrorIs(t, err, ErrUpstreamTimeout)
	})
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		svc := NewService(NewClient(ClientConfig{URL: url, APIKey: "k", Timeout: time.Second}), nil)
		_, err := svc.Summarize(context.Background(), SummarizeRequest{BlockText: "x"})
		assert.ErrorIs(t, err, ErrUpstream)
	})
}
