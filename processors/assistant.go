package processors

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"constellationFinder/core"
	"constellationFinder/logging"
)

// SupportedLanguages 语音识别与合成支持的语言
var SupportedLanguages = map[string]bool{"en": true, "hi": true}

const defaultAudioExt = ".webm"

// AssistantApology is returned as a normal reply when the generator fails.
const AssistantApology = "I apologize, but I am having trouble reaching my astronomy knowledge right now. " +
	"Please ask again in a moment. While you wait, remember that on a clear dark night " +
	"you can see two to three thousand stars with the naked eye."

func assistantPrompt(message string) string {
	return `You are a friendly and enthusiastic astronomy guide who loves teaching people about constellations and the night sky.
Help beginners understand stars, constellations and space in a clear and exciting way.
Give helpful, accurate and engaging answers focused on astronomy, especially constellations.
Do not use punctuation marks, emojis or special characters, because your answer will be read aloud by a speech synthesizer.
Speak naturally, as if talking to someone curious about space.
If the question is not about astronomy, gently steer the conversation back to stars, constellations or space exploration.

User question: ` + message
}

// Assistant 无状态的语音/文字问答
type Assistant struct {
	gen        TextGenerator
	asr        Transcriber
	tts        Synthesizer
	stagingDir string
}

func NewAssistant(gen TextGenerator, asr Transcriber, tts Synthesizer, stagingDir string) *Assistant {
	return &Assistant{gen: gen, asr: asr, tts: tts, stagingDir: stagingDir}
}

// Ask never surfaces a provider error; the apology is the reply instead.
func (a *Assistant) Ask(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", core.NewValidationError("Message cannot be empty")
	}
	reply, err := a.gen.Generate(ctx, GenerateRequest{Prompt: assistantPrompt(message)})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("assistant generation failed, replying with apology")
		return AssistantApology, nil
	}
	return reply, nil
}

// NormalizeLanguage 不支持的语言回落到 en
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if SupportedLanguages[lang] {
		return lang
	}
	return "en"
}

// SpeechToText stages the upload and transcribes it.
// The staged file is removed before returning.
func (a *Assistant) SpeechToText(ctx context.Context, audio io.Reader, filename, language string) (Transcription, error) {
	language = NormalizeLanguage(language)

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = defaultAudioExt
	}

	if a.stagingDir != "" {
		if err := os.MkdirAll(a.stagingDir, 0755); err != nil {
			return Transcription{}, fmt.Errorf("create staging dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(a.stagingDir, "audio-*"+ext)
	if err != nil {
		return Transcription{}, fmt.Errorf("stage audio: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	n, err := io.Copy(tmp, audio)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Transcription{}, fmt.Errorf("stage audio: %w", err)
	}
	if n == 0 {
		return Transcription{}, fmt.Errorf("%w: %w", core.ErrInvalidAudio, core.NewValidationError("Uploaded audio file is empty"))
	}

	res, err := a.asr.Transcribe(ctx, path, language)
	if err != nil {
		return Transcription{}, err
	}
	if res.Language == "" {
		res.Language = language
	}
	logging.Ctx(ctx).Info().Str("language", res.Language).Int64("bytes", n).Msg("speech transcribed")
	return res, nil
}

// TextToSpeech 先校验语言再合成
func (a *Assistant) TextToSpeech(ctx context.Context, text, language string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewValidationError("Text cannot be empty")
	}
	if language == "" {
		language = "en"
	}
	if !SupportedLanguages[language] {
		return nil, core.NewValidationError("Unsupported language")
	}
	audio, err := a.tts.Synthesize(ctx, text, language)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}
