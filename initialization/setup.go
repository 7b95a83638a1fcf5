package initialization

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"constellationFinder/config"
	"constellationFinder/logging"
	"constellationFinder/processors"
	"constellationFinder/server"
	"constellationFinder/storage"
	"constellationFinder/utils"
)

// SystemInitializer 系统初始化器
type SystemInitializer struct {
	config *config.Config
}

// NewSystemInitializer 创建系统初始化器；cfg 为 nil 时从文件和环境变量加载
func NewSystemInitializer(cfg *config.Config) *SystemInitializer {
	return &SystemInitializer{config: cfg}
}

// InitializationResult 初始化结果
type InitializationResult struct {
	Config    *config.Config
	Store     storage.Store
	InfoCache *storage.InfoCache
	Providers *processors.Providers
	Narration *processors.NarrationService
	Annotator *processors.Annotator
	Throttle  *processors.FrameThrottle
	Gate      *processors.InferenceGate
	Info      *processors.InfoService
	Assistant *processors.Assistant
	Error     error
}

// InitializeSystem 初始化整个系统
func (si *SystemInitializer) InitializeSystem(ctx context.Context) *InitializationResult {
	result := &InitializationResult{}

	// 1. 加载配置
	cfg, err := si.LoadConfig()
	if err != nil {
		result.Error = fmt.Errorf("加载配置失败: %w", err)
		return result
	}
	result.Config = cfg
	si.config = cfg

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	// 2. 创建数据目录
	if err := si.CreateDataDirectories(); err != nil {
		result.Error = fmt.Errorf("创建数据目录失败: %w", err)
		return result
	}

	// 3. 存储
	store, err := storage.NewStore(ctx, cfg)
	if err != nil {
		result.Error = fmt.Errorf("初始化存储失败: %w", err)
		return result
	}
	result.Store = store
	logging.Info().Str("backend", store.Backend()).Msg("store ready")

	// 4. 星座信息缓存，打不开只降级
	var infoCache processors.InfoCache
	if cfg.Cache.Enabled {
		c, err := storage.OpenInfoCache(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			logging.Warn().Err(err).Msg("info cache unavailable, continuing without it")
		} else {
			result.InfoCache = c
			infoCache = c
		}
	}

	// 5. 外部服务
	providers := processors.NewProviders(cfg)
	result.Providers = providers
	for name, mode := range providers.Modes() {
		logging.Debug().Str("provider", name).Str("mode", mode).Msg("provider selected")
	}

	// 6. 业务服务
	opts := []processors.NarrationOption{processors.WithMaxConstellations(cfg.Narration.MaxConstellations)}
	if providers.Embedder != nil {
		opts = append(opts, processors.WithEmbedder(providers.Embedder))
	}
	result.Narration = processors.NewNarrationService(store, providers.Generator, opts...)
	result.Annotator = processors.NewAnnotator(
		providers.GeneralDetector,
		providers.ConstellationDetector,
		processors.PipelineSettingsFrom(cfg),
		cfg.StagingDir(),
	)
	result.Throttle = processors.NewFrameThrottleFrom(cfg)
	result.Gate = processors.NewInferenceGate(cfg.Pipeline.MaxInflightFrames)
	result.Info = processors.NewInfoService(providers.Generator, infoCache, cfg.LLM.Temperature, cfg.LLM.InfoMaxTokens)
	result.Assistant = processors.NewAssistant(providers.Generator, providers.Transcriber, providers.Synthesizer, cfg.StagingDir())

	logging.Info().Str("addr", cfg.Addr()).Bool("llm_configured", cfg.HasValidAPI()).Msg("系统初始化完成")
	return result
}

// LoadConfig 加载配置
func (si *SystemInitializer) LoadConfig() (*config.Config, error) {
	if si.config != nil {
		if err := si.config.Validate(); err != nil {
			return nil, err
		}
		return si.config, nil
	}
	return config.Load()
}

// CreateDataDirectories 创建数据目录
func (si *SystemInitializer) CreateDataDirectories() error {
	cfg := si.config
	dirs := []string{cfg.Storage.DataRoot, cfg.StagingDir()}
	if cfg.Storage.Backend == "sqlite" {
		dirs = append(dirs, filepath.Dir(cfg.Storage.SQLitePath))
	}
	if cfg.Cache.Enabled && cfg.Cache.Path != "" {
		dirs = append(dirs, cfg.Cache.Path)
	}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// ServerDeps 组装 HTTP 层依赖
func (r *InitializationResult) ServerDeps() server.Deps {
	return server.Deps{
		Config:    r.Config,
		Store:     r.Store,
		Narration: r.Narration,
		Annotator: r.Annotator,
		Throttle:  r.Throttle,
		Gate:      r.Gate,
		Info:      r.Info,
		Assistant: r.Assistant,
		Providers: r.Providers,
	}
}

// Cleanup 关闭存储和缓存，并清空暂存目录
func (r *InitializationResult) Cleanup() error {
	var firstErr error
	if r.InfoCache != nil {
		if err := r.InfoCache.Close(); err != nil {
			firstErr = err
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Config != nil {
		staging := r.Config.StagingDir()
		if err := os.RemoveAll(staging); err != nil {
			logging.Warn().Err(err).Str("dir", staging).Msg("清理暂存目录失败")
		}
	}
	return firstErr
}
