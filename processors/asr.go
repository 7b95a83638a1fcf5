package processors

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Transcription 语音识别结果
type Transcription struct {
	Text     string
	Language string
}

// Transcriber 把暂存的音频文件转成文字
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (Transcription, error)
	Name() string
}

// WhisperASR 走 OpenAI 兼容的 /audio/transcriptions
type WhisperASR struct {
	cli     *ClientHandle
	model   string
	timeout time.Duration
	breaker *Breaker
}

func NewWhisperASR(cli *ClientHandle, model string, timeout time.Duration, breaker *Breaker) *WhisperASR {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperASR{cli: cli, model: model, timeout: timeout, breaker: breaker}
}

func (w *WhisperASR) Name() string { return "whisper:" + w.model }

func (w *WhisperASR) Transcribe(ctx context.Context, audioPath, language string) (Transcription, error) {
	cli, err := w.cli.Get()
	if err != nil {
		return Transcription{}, fmt.Errorf("asr client: %w", asUpstream(err))
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := callThrough(w.breaker, "asr", func() (Transcription, error) {
		resp, err := cli.CreateTranscription(ctx, openai.AudioRequest{
			Model:    w.model,
			FilePath: audioPath,
			Language: language,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return Transcription{}, err
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return Transcription{}, fmt.Errorf("empty transcription result")
		}
		lang := language
		if resp.Language != "" && lang == "" {
			lang = resp.Language
		}
		return Transcription{Text: text, Language: lang}, nil
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("transcription failed: %w", asUpstream(err))
	}
	return res, nil
}

// MockASR 无 API key 时的占位实现
type MockASR struct {
	Text  string
	Err   error
	calls atomic.Int32
}

func (m *MockASR) Name() string { return "mock" }

func (m *MockASR) Transcribe(_ context.Context, audioPath, language string) (Transcription, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return Transcription{}, m.Err
	}
	text := m.Text
	if text == "" {
		text = "Which constellations can I see tonight?"
	}
	return Transcription{Text: text, Language: language}, nil
}

func (m *MockASR) Calls() int { return int(m.calls.Load()) }
