package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/companion/backend/internal/config"
	"github.com/mindease/companion/backend/internal/model/chat"
	"github.com/mindease/companion/backend/internal/policy"
)

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func testPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.New(policy.Clinical)
	require.NoError(t, err)
	return p
}

func TestChainGeneratorBuildsPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "  That sounds hard.  "}
	gen, err := NewChainGenerator(context.Background(), fake, testPolicy(t), nil)
	require.NoError(t, err)

	history := []chat.HistoryMessage{
		{Role: chat.SenderUser, Content: "hi"},
		{Role: chat.SenderAssistant, Content: "hello"},
	}
	reply, err := gen.Generate(context.Background(), "I feel low", history, "CBT notes")
	require.NoError(t, err)
	assert.Equal(t, "That sounds hard.", reply)

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, "CBT notes")
	assert.Equal(t, schema.User, fake.input[1].Role)
	assert.Equal(t, schema.Assistant, fake.input[2].Role)
	assert.Equal(t, "I feel low", fake.input[3].Content)
}

func TestChainGeneratorFailures(t *testing.T) {
	gen, err := NewChainGenerator(context.Background(), &fakeChatModel{err: errors.New("boom")}, testPolicy(t), nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "q", nil, "k")
	require.ErrorIs(t, err, ErrGeneratorUnavailable)

	gen, err = NewChainGenerator(context.Background(), &fakeChatModel{reply: "   "}, testPolicy(t), nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "q", nil, "k")
	require.ErrorIs(t, err, ErrGeneratorUnavailable)
}

func TestOpenRouterGenerator(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "MindEase", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"I'm here for you."}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenRouterGenerator(OpenRouterOptions{
		BaseURL:     srv.URL + "/",
		APIKey:      "secret",
		Model:       "openai/gpt-3.5-turbo",
		Title:       "MindEase",
		Temperature: 0.7,
	}, testPolicy(t), nil)

	history := []chat.HistoryMessage{{Role: chat.SenderUser, Content: "earlier"}}
	reply, err := gen.Generate(context.Background(), "now", history, "ctx")
	require.NoError(t, err)
	assert.Equal(t, "I'm here for you.", reply)

	assert.Equal(t, "openai/gpt-3.5-turbo", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "now", got.Messages[2].Content)
}

func TestOpenRouterGeneratorNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen := NewOpenRouterGenerator(OpenRouterOptions{BaseURL: srv.URL, APIKey: "k", Model: "m"}, testPolicy(t), nil)
	_, err := gen.Generate(context.Background(), "q", nil, "k")
	require.ErrorIs(t, err, ErrGeneratorUnavailable)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenRouterGeneratorNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen := NewOpenRouterGenerator(OpenRouterOptions{BaseURL: srv.URL, APIKey: "k", Model: "m"}, testPolicy(t), nil)
	_, err := gen.Generate(context.Background(), "q", nil, "k")
	require.ErrorIs(t, err, ErrGeneratorUnavailable)
}

func TestNewWithoutProviderFallsBack(t *testing.T) {
	gen, err := New(context.Background(), config.AIConfig{}, testPolicy(t), nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "q", nil, "k")
	require.ErrorIs(t, err, ErrGeneratorUnavailable)
}

func TestNewPrefersOpenRouter(t *testing.T) {
	gen, err := New(context.Background(), config.AIConfig{
		OpenRouterAPIKey: "k",
		APIKey:           "ark",
		Model:            "ark-model",
	}, testPolicy(t), nil)
	require.NoError(t, err)

	_, ok := gen.(*OpenRouterGenerator)
	assert.True(t, ok)
}
