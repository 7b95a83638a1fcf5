package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"constellationFinder/core"
)

// GenerateRequest 一次文本生成请求
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// TextGenerator 生成式文本服务
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Name() string
}

func openaiClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// ClientHandle 延迟创建的 OpenAI 兼容客户端，多个 provider 可共享
type ClientHandle = core.Lazy[*openai.Client]

// NewClientHandle fails on first use when apiKey is empty, and retries on the next call.
func NewClientHandle(apiKey, baseURL string) *ClientHandle {
	return core.NewLazy(func() (*openai.Client, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("api key not configured")
		}
		return openaiClient(apiKey, baseURL), nil
	})
}

// OpenAIGenerator 走 OpenAI 兼容的 chat completions 接口
type OpenAIGenerator struct {
	cli     *ClientHandle
	model   string
	timeout time.Duration
	breaker *Breaker
}

func NewOpenAIGenerator(cli *ClientHandle, model string, timeout time.Duration, breaker *Breaker) *OpenAIGenerator {
	return &OpenAIGenerator{cli: cli, model: model, timeout: timeout, breaker: breaker}
}

func (g *OpenAIGenerator) Name() string { return "openai:" + g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	cli, err := g.cli.Get()
	if err != nil {
		return "", fmt.Errorf("llm client: %w", asUpstream(err))
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	reply, err := callThrough(g.breaker, "llm", func() (string, error) {
		resp, err := cli.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in completion response")
		}
		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return "", fmt.Errorf("empty completion")
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", asUpstream(err))
	}
	return reply, nil
}

// asUpstream 把任意远程错误归类为 ErrUpstreamUnavailable
func asUpstream(err error) error {
	if err == nil {
		return nil
	}
	if isUpstream(err) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
}

func isUpstream(err error) bool {
	return errors.Is(err, core.ErrUpstreamUnavailable)
}

// MockGenerator 未配置 API key 时使用，也用于测试
type MockGenerator struct {
	Reply string
	Err   error
	calls atomic.Int32
	last  atomic.Pointer[GenerateRequest]
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	m.calls.Add(1)
	m.last.Store(&req)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "The sky is clear tonight and the stars are bright.\n" +
		"Orion stands in the South.\n" +
		"Ursa Major is high in the North.\n" +
		"Cassiopeia sits in the Northeast.\n" +
		"Cygnus is nearly overhead.\n" +
		"Lyra is in the West.", nil
}

// Calls returns how many times Generate ran.
func (m *MockGenerator) Calls() int { return int(m.calls.Load()) }

// LastRequest returns the most recent request, or nil.
func (m *MockGenerator) LastRequest() *GenerateRequest { return m.last.Load() }
