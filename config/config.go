package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar 指定配置文件路径的环境变量
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix 嵌套配置的环境变量前缀，CF_LLM__API_KEY -> llm.api_key
const EnvPrefix = "CF_"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config/config.yaml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Storage   StorageConfig   `koanf:"storage"`
	LLM       LLMConfig       `koanf:"llm"`
	ASR       ASRConfig       `koanf:"asr"`
	TTS       TTSConfig       `koanf:"tts"`
	Detector  DetectorConfig  `koanf:"detector"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Cache     CacheConfig     `koanf:"cache"`
	Narration NarrationConfig `koanf:"narration"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	OwnerHeader     string        `koanf:"owner_header"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=0"` // 每分钟每IP请求数，0 关闭
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type StorageConfig struct {
	Backend         string        `koanf:"backend" validate:"oneof=memory sqlite postgres"`
	DataRoot        string        `koanf:"data_root" validate:"required"`
	SQLitePath      string        `koanf:"sqlite_path"`
	PostgresURL     string        `koanf:"postgres_url"`
	EmbeddingDim    int           `koanf:"embedding_dim" validate:"min=1"`
	StagingMaxAge   time.Duration `koanf:"staging_max_age" validate:"gt=0"`
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`
}

// LLMConfig 生成式模型配置，默认走 Gemini 的 OpenAI 兼容端点
type LLMConfig struct {
	Provider       string        `koanf:"provider" validate:"oneof=openai mock"`
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Model          string        `koanf:"model" validate:"required"`
	EmbeddingModel string        `koanf:"embedding_model"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	Temperature    float32       `koanf:"temperature" validate:"gte=0,lte=2"`
	InfoMaxTokens  int           `koanf:"info_max_tokens" validate:"min=1"`
}

type ASRConfig struct {
	Provider string        `koanf:"provider" validate:"oneof=whisper mock"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Model    string        `koanf:"model"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

type TTSConfig struct {
	Provider string        `koanf:"provider" validate:"oneof=espeak openai mock"`
	Binary   string        `koanf:"binary"`
	APIKey   string        `koanf:"api_key"`
	BaseURL  string        `koanf:"base_url"`
	Model    string        `koanf:"model"`
	Voice    string        `koanf:"voice"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

type DetectorConfig struct {
	Provider         string        `koanf:"provider" validate:"oneof=http mock"`
	GeneralURL       string        `koanf:"general_url"`
	ConstellationURL string        `koanf:"constellation_url"`
	APIKey           string        `koanf:"api_key"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	MinConfidence    float64       `koanf:"min_confidence" validate:"gte=0,lte=1"`
}

// PipelineConfig 图像标注流水线的策略常量
type PipelineConfig struct {
	StreamMaxBytes    int64         `koanf:"stream_max_bytes" validate:"gt=0"`
	BatchMaxBytes     int64         `koanf:"batch_max_bytes" validate:"gt=0"`
	StreamMaxEdge     int           `koanf:"stream_max_edge" validate:"min=32"`
	StreamThreshold   float64       `koanf:"stream_threshold" validate:"gt=0,lte=1"`
	BatchThreshold    float64       `koanf:"batch_threshold" validate:"gt=0,lte=1"`
	FrameMinInterval  time.Duration `koanf:"frame_min_interval" validate:"gte=0"`
	MaxInflightFrames int           `koanf:"max_inflight_frames" validate:"min=1"`
	JPEGQuality       int           `koanf:"jpeg_quality" validate:"min=1,max=100"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"` // 为空时使用内存模式
	TTL     time.Duration `koanf:"ttl" validate:"gt=0"`
}

type NarrationConfig struct {
	MaxConstellations int `koanf:"max_constellations" validate:"min=1"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			OwnerHeader:     "X-Forwarded-User",
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend:         "memory",
			DataRoot:        "data",
			EmbeddingDim:    768,
			StagingMaxAge:   15 * time.Minute,
			JanitorInterval: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:      "openai",
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:         "gemini-2.0-flash",
			Timeout:       10 * time.Second,
			Temperature:   0.7,
			InfoMaxTokens: 150,
		},
		ASR: ASRConfig{
			Provider: "whisper",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "whisper-1",
			Timeout:  30 * time.Second,
		},
		TTS: TTSConfig{
			Provider: "espeak",
			Binary:   "espeak-ng",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "tts-1",
			Voice:    "alloy",
			Timeout:  20 * time.Second,
		},
		Detector: DetectorConfig{
			Provider:      "http",
			Timeout:       15 * time.Second,
			MinConfidence: 0.25,
		},
		Pipeline: PipelineConfig{
			StreamMaxBytes:    5 << 20,
			BatchMaxBytes:     10 << 20,
			StreamMaxEdge:     640,
			StreamThreshold:   0.75,
			BatchThreshold:    0.87,
			FrameMinInterval:  200 * time.Millisecond,
			MaxInflightFrames: 4,
			JPEGQuality:       85,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Narration: NarrationConfig{
			MaxConstellations: 8,
		},
	}
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	return defaultConfig()
}

// Load 按 默认值 -> YAML 文件 -> 环境变量 的顺序加载配置
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// legacyEnv 兼容旧的扁平环境变量
var legacyEnv = map[string]string{
	"api_key":         "llm.api_key",
	"base_url":        "llm.base_url",
	"chat_model":      "llm.model",
	"embedding_model": "llm.embedding_model",
	"store":           "storage.backend",
	"pgvector_url":    "storage.postgres_url",
	"postgres_url":    "storage.postgres_url",
	"data_root":       "storage.data_root",
	"port":            "server.port",
	"log_level":       "logging.level",
	"log_format":      "logging.format",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Returning "" makes koanf skip the variable.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	}
	return legacyEnv[strings.ToLower(key)]
}

// applyDerived 填充依赖其他字段的默认值
func (c *Config) applyDerived() {
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = c.Storage.DataRoot + "/constellations.db"
	}
	if c.ASR.APIKey == "" {
		c.ASR.APIKey = c.LLM.APIKey
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = c.ASR.APIKey
	}
}

// StagingDir 上传文件的临时目录
func (c *Config) StagingDir() string {
	return c.Storage.DataRoot + "/staging"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.LLM.APIKey) != "" && strings.TrimSpace(c.LLM.BaseURL) != ""
}

// PrintConfigInstructions 打印配置说明
func PrintConfigInstructions() {
	fmt.Println("\n=== 配置说明 ===")
	fmt.Println("Configuration is layered: defaults, then config.yaml (or $CONFIG_PATH), then environment.")
	fmt.Println("Nested keys use the CF_ prefix with __ as separator, e.g. CF_LLM__API_KEY.")
	fmt.Println("1. llm.api_key: 生成式模型 API 密钥 (legacy: API_KEY)")
	fmt.Println("2. llm.base_url: OpenAI 兼容端点 (默认: Gemini)")
	fmt.Println("3. storage.backend: memory | sqlite | postgres (legacy: STORE)")
	fmt.Println("4. storage.postgres_url: PostgreSQL 连接 URL (legacy: PGVECTOR_URL)")
	fmt.Println("5. detector.general_url / detector.constellation_url: 推理端点")
	fmt.Println("6. tts.provider: espeak | openai | mock")
	fmt.Println("\n示例配置 (config.yaml):")
	fmt.Println(`server:
  port: 8080
storage:
  backend: sqlite
llm:
  api_key: your-api-key-here
  model: gemini-2.0-flash
detector:
  general_url: https://detect.example.com/general/1
  constellation_url: https://detect.example.com/constellations/3
  api_key: your-detector-key`)
	fmt.Println("==================")
}
