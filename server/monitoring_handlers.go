package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"constellationFinder/core"
	"constellationFinder/processors"
	"constellationFinder/storage"
)

// MonitoringHandlers 监控相关的HTTP处理器
type MonitoringHandlers struct {
	store     storage.Store
	providers *processors.Providers
	throttle  *processors.FrameThrottle
	gate      *processors.InferenceGate
}

// NewMonitoringHandlers 创建监控处理器实例
func NewMonitoringHandlers(store storage.Store, providers *processors.Providers, throttle *processors.FrameThrottle, gate *processors.InferenceGate) *MonitoringHandlers {
	return &MonitoringHandlers{
		store:     store,
		providers: providers,
		throttle:  throttle,
		gate:      gate,
	}
}

// HealthCheckHandler 健康检查处理器
func (h *MonitoringHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	services := map[string]string{"store": "active"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		services["store"] = "unreachable"
		health["status"] = "degraded"
	}
	services["store_backend"] = h.store.Backend()
	health["services"] = services

	if h.providers != nil {
		health["providers"] = h.providers.Modes()
	}

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	core.WriteJSON(w, status, health)
}

// StatsHandler 统计信息处理器
func (h *MonitoringHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]interface{}{
		"uptime_seconds": time.Since(startTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc":        m.Alloc,
			"sys":          m.Sys,
			"num_gc":       m.NumGC,
			"heap_objects": m.HeapObjects,
		},
		"runtime": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
			"go_version": runtime.Version(),
		},
		"frames": map[string]interface{}{
			"in_flight":        h.gate.InFlight(),
			"capacity":         h.gate.Capacity(),
			"dropped_busy":     h.gate.Rejected(),
			"dropped_throttle": h.throttle.Throttled(),
		},
		"timestamp": time.Now().Unix(),
	}
	if h.providers != nil {
		stats["breakers"] = h.providers.BreakerStates()
	}

	core.WriteJSON(w, http.StatusOK, stats)
}

// 启动时间记录
var startTime = time.Now()
