package processors

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"constellationFinder/core"
)

func TestAskApologisesOnProviderFailure(t *testing.T) {
	a := NewAssistant(&MockGenerator{Err: errors.New("quota")}, &MockASR{}, &MockTTS{}, t.TempDir())
	reply, err := a.Ask(context.Background(), "What is Orion?")
	if err != nil {
		t.Fatalf("Ask should not fail: %v", err)
	}
	if reply != AssistantApology {
		t.Errorf("reply = %q", reply)
	}
}

func TestAskUsesPersonaPrompt(t *testing.T) {
	gen := &MockGenerator{Reply: "Orion is a hunter"}
	a := NewAssistant(gen, &MockASR{}, &MockTTS{}, t.TempDir())

	if _, err := a.Ask(context.Background(), "   "); core.UserMessage(err, "") != "Message cannot be empty" {
		t.Fatalf("blank message: %v", err)
	}
	if gen.Calls() != 0 {
		t.Fatalf("blank message reached the generator")
	}

	reply, err := a.Ask(context.Background(), "Tell me about Orion")
	if err != nil || reply != "Orion is a hunter" {
		t.Fatalf("Ask = %q, %v", reply, err)
	}
	prompt := gen.LastRequest().Prompt
	if !strings.Contains(prompt, "astronomy guide") || !strings.HasSuffix(prompt, "Tell me about Orion") {
		t.Errorf("unexpected prompt: %s", prompt)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{"en": "en", "hi": "hi", "HI": "hi", "fr": "en", "": "en"}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func stagedFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	return len(entries)
}

func TestSpeechToText(t *testing.T) {
	dir := t.TempDir()
	asr := &MockASR{Text: "show me cassiopeia"}
	a := NewAssistant(&MockGenerator{}, asr, &MockTTS{}, dir)

	res, err := a.SpeechToText(context.Background(), strings.NewReader("webm-bytes"), "clip", "fr")
	if err != nil {
		t.Fatalf("SpeechToText: %v", err)
	}
	if res.Text != "show me cassiopeia" || res.Language != "en" {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := stagedFiles(t, dir); n != 0 {
		t.Errorf("staged file left behind: %d entries", n)
	}
}

func TestSpeechToTextEmptyAudio(t *testing.T) {
	dir := t.TempDir()
	asr := &MockASR{}
	a := NewAssistant(&MockGenerator{}, asr, &MockTTS{}, dir)

	_, err := a.SpeechToText(context.Background(), strings.NewReader(""), "clip.webm", "en")
	if !errors.Is(err, core.ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio, got %v", err)
	}
	if core.UserMessage(err, "") != "Uploaded audio file is empty" {
		t.Errorf("message = %q", core.UserMessage(err, ""))
	}
	if asr.Calls() != 0 {
		t.Errorf("empty audio should not be transcribed")
	}
	if n := stagedFiles(t, dir); n != 0 {
		t.Errorf("staged file left behind: %d entries", n)
	}
}

func TestSpeechToTextProviderFailure(t *testing.T) {
	dir := t.TempDir()
	failing := &MockASR{Err: asUpstream(errors.New("timeout"))}
	a := NewAssistant(&MockGenerator{}, failing, &MockTTS{}, dir)

	_, err := a.SpeechToText(context.Background(), strings.NewReader("data"), "a.wav", "hi")
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if n := stagedFiles(t, dir); n != 0 {
		t.Errorf("staged file left behind: %d entries", n)
	}
}

func TestTextToSpeech(t *testing.T) {
	tts := &MockTTS{Audio: []byte("wav")}
	a := NewAssistant(&MockGenerator{}, &MockASR{}, tts, t.TempDir())
	ctx := context.Background()

	if _, err := a.TextToSpeech(ctx, "", "en"); core.UserMessage(err, "") != "Text cannot be empty" {
		t.Errorf("blank text: %v", err)
	}
	if _, err := a.TextToSpeech(ctx, "hello", "fr"); core.UserMessage(err, "") != "Unsupported language" {
		t.Errorf("unsupported language: %v", err)
	}
	if tts.Calls() != 0 {
		t.Fatalf("synthesizer called before validation passed")
	}

	audio, err := a.TextToSpeech(ctx, "namaste", "hi")
	if err != nil || string(audio) != "wav" {
		t.Fatalf("TextToSpeech = %q, %v", audio, err)
	}
}
