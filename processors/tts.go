package processors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"constellationFinder/logging"
)

// Synthesizer 文本转语音，返回完整的音频字节
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Name() string
}

// ESpeakTTS 调用本地 espeak-ng，输出 WAV
type ESpeakTTS struct {
	Binary  string
	TempDir string
	Timeout time.Duration
}

func (e *ESpeakTTS) Name() string { return "espeak" }

// Available reports whether the binary can be found on PATH.
func (e *ESpeakTTS) Available() bool {
	_, err := exec.LookPath(e.binary())
	return err == nil
}

func (e *ESpeakTTS) binary() string {
	if e.Binary == "" {
		return "espeak-ng"
	}
	return e.Binary
}

func (e *ESpeakTTS) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp(e.TempDir, "tts-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp audio: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binary(), "-v", language, "-w", path, text)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("stderr", stderr.String()).Msg("espeak-ng failed")
		return nil, fmt.Errorf("espeak-ng: %w", asUpstream(err))
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("espeak-ng produced no audio: %w", asUpstream(io.ErrUnexpectedEOF))
	}
	return audio, nil
}

// OpenAISpeech 走 /audio/speech，输出 MP3
type OpenAISpeech struct {
	cli     *ClientHandle
	model   string
	voice   string
	timeout time.Duration
	breaker *Breaker
}

func NewOpenAISpeech(cli *ClientHandle, model, voice string, timeout time.Duration, breaker *Breaker) *OpenAISpeech {
	return &OpenAISpeech{cli: cli, model: model, voice: voice, timeout: timeout, breaker: breaker}
}

func (o *OpenAISpeech) Name() string { return "openai-speech:" + o.model }

// Synthesize ignores language; the model infers it from the text.
func (o *OpenAISpeech) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	cli, err := o.cli.Get()
	if err != nil {
		return nil, fmt.Errorf("tts client: %w", asUpstream(err))
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	audio, err := callThrough(o.breaker, "tts", func() ([]byte, error) {
		resp, err := cli.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(o.model),
			Input:          text,
			Voice:          openai.SpeechVoice(o.voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return nil, err
		}
		defer resp.Close()
		return io.ReadAll(resp)
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", asUpstream(err))
	}
	return audio, nil
}

// MockTTS 返回固定字节
type MockTTS struct {
	Audio []byte
	Err   error
	calls atomic.Int32
}

func (m *MockTTS) Name() string { return "mock" }

func (m *MockTTS) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Audio != nil {
		return m.Audio, nil
	}
	return []byte("RIFF-mock-" + text), nil
}

func (m *MockTTS) Calls() int { return int(m.calls.Load()) }
