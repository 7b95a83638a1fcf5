package processors

import (
	"strings"

	"constellationFinder/config"
	"constellationFinder/logging"
)

// Providers 所有远程协作方，按配置选择；缺少凭据时不可用，只有显式 mock 才用 Mock
type Providers struct {
	Generator             TextGenerator
	Transcriber           Transcriber
	Synthesizer           Synthesizer
	GeneralDetector       Detector
	ConstellationDetector Detector
	Embedder              Embedder

	breakers []*Breaker
}

func NewProviders(cfg *config.Config) *Providers {
	p := &Providers{}
	settings := BreakerSettings{}

	llmClient := NewClientHandle(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	p.Generator = p.pickGenerator(cfg, llmClient, settings)
	p.Transcriber = p.pickTranscriber(cfg, settings)
	p.Synthesizer = p.pickSynthesizer(cfg, settings)
	p.GeneralDetector, p.ConstellationDetector = p.pickDetectors(cfg, settings)

	if cfg.LLM.EmbeddingModel != "" && cfg.Storage.Backend == "postgres" && hasKey(cfg.LLM.APIKey) {
		p.Embedder = NewOpenAIEmbedder(llmClient, cfg.LLM.EmbeddingModel, cfg.Storage.EmbeddingDim, cfg.LLM.Timeout)
	}
	return p
}

func hasKey(k string) bool { return strings.TrimSpace(k) != "" }

func (p *Providers) breaker(name string, s BreakerSettings) *Breaker {
	b := NewBreaker(name, s)
	p.breakers = append(p.breakers, b)
	return b
}

func (p *Providers) pickGenerator(cfg *config.Config, cli *ClientHandle, s BreakerSettings) TextGenerator {
	if cfg.LLM.Provider == "mock" {
		return &MockGenerator{}
	}
	if !cfg.HasValidAPI() {
		logging.Warn().Msg("LLM API key not configured, narration and chat are unavailable")
		return NewUnavailable("LLM API key not configured")
	}
	return NewOpenAIGenerator(cli, cfg.LLM.Model, cfg.LLM.Timeout, p.breaker("llm", s))
}

func (p *Providers) pickTranscriber(cfg *config.Config, s BreakerSettings) Transcriber {
	if cfg.ASR.Provider == "mock" {
		return &MockASR{}
	}
	if !hasKey(cfg.ASR.APIKey) {
		logging.Warn().Msg("ASR API key not configured, speech-to-text is unavailable")
		return NewUnavailable("ASR API key not configured")
	}
	cli := NewClientHandle(cfg.ASR.APIKey, cfg.ASR.BaseURL)
	return NewWhisperASR(cli, cfg.ASR.Model, cfg.ASR.Timeout, p.breaker("asr", s))
}

func (p *Providers) pickSynthesizer(cfg *config.Config, s BreakerSettings) Synthesizer {
	switch cfg.TTS.Provider {
	case "mock":
		return &MockTTS{}
	case "openai":
		if !hasKey(cfg.TTS.APIKey) {
			logging.Warn().Msg("TTS API key not configured, text-to-speech is unavailable")
			return NewUnavailable("TTS API key not configured")
		}
		cli := NewClientHandle(cfg.TTS.APIKey, cfg.TTS.BaseURL)
		return NewOpenAISpeech(cli, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.Timeout, p.breaker("tts", s))
	default:
		e := &ESpeakTTS{Binary: cfg.TTS.Binary, TempDir: cfg.StagingDir(), Timeout: cfg.TTS.Timeout}
		if !e.Available() {
			logging.Warn().Str("binary", e.binary()).Msg("espeak-ng not found on PATH, text-to-speech is unavailable")
			return NewUnavailable(e.binary() + " not found")
		}
		return e
	}
}

func (p *Providers) pickDetectors(cfg *config.Config, s BreakerSettings) (Detector, Detector) {
	d := cfg.Detector
	if d.Provider == "mock" {
		return &MockDetector{}, &MockDetector{}
	}
	pick := func(name, url string) Detector {
		if strings.TrimSpace(url) == "" {
			logging.Warn().Str("detector", name).Msg("detector endpoint not configured, detection is unavailable")
			return NewUnavailable(name + " endpoint not configured")
		}
		return NewHTTPDetector(url, d.APIKey, d.MinConfidence, d.Timeout, p.breaker(name, s))
	}
	return pick("detector-general", d.GeneralURL), pick("detector-constellation", d.ConstellationURL)
}

// Modes 每个 provider 的实现名，用于 /health
func (p *Providers) Modes() map[string]string {
	modes := map[string]string{
		"llm":                    p.Generator.Name(),
		"asr":                    p.Transcriber.Name(),
		"tts":                    p.Synthesizer.Name(),
		"detector_general":       p.GeneralDetector.Name(),
		"detector_constellation": p.ConstellationDetector.Name(),
		"embedder":               "disabled",
	}
	if p.Embedder != nil {
		modes["embedder"] = "openai"
	}
	return modes
}

// BreakerStates reports every breaker created for these providers.
func (p *Providers) BreakerStates() map[string]string {
	out := make(map[string]string, len(p.breakers))
	for _, b := range p.breakers {
		out[b.Name()] = b.State()
	}
	return out
}

// PipelineSettingsFrom copies the pipeline section of cfg.
func PipelineSettingsFrom(cfg *config.Config) PipelineSettings {
	pc := cfg.Pipeline
	return PipelineSettings{
		StreamMaxBytes:  pc.StreamMaxBytes,
		BatchMaxBytes:   pc.BatchMaxBytes,
		StreamMaxEdge:   pc.StreamMaxEdge,
		StreamThreshold: pc.StreamThreshold,
		BatchThreshold:  pc.BatchThreshold,
		JPEGQuality:     pc.JPEGQuality,
	}
}

// NewFrameThrottleFrom builds the frame throttle from cfg.
func NewFrameThrottleFrom(cfg *config.Config) *FrameThrottle {
	return NewFrameThrottle(cfg.Pipeline.FrameMinInterval)
}
