package processors

import (
	"context"
	"fmt"
	"strings"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/metrics"
)

// InfoCache is satisfied by storage.InfoCache.
type InfoCache interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, info string) error
}

// 模型不可用时的静态介绍
var basicConstellationInfo = map[string]string{
	"Andromeda":   "Named after the chained princess in Greek mythology. Contains the Andromeda Galaxy, our nearest major galactic neighbor, visible as a fuzzy patch to the naked eye.",
	"Orion":       "The Hunter constellation, featuring bright stars Betelgeuse and Rigel, plus the famous Orion Nebula where new stars are born.",
	"Ursa Major":  "The Great Bear, home to the Big Dipper. Its pointer stars lead to the North Star, making it crucial for navigation.",
	"Cassiopeia":  "The vain Queen forms a distinctive W-shape. This circumpolar constellation is visible year-round from northern latitudes.",
	"Leo":         "The Lion of spring skies. Bright star Regulus marks the lion's heart, while the \"backwards question mark\" forms its mane.",
	"Cygnus":      "The Swan flies along the Milky Way. Features Deneb, one of the most luminous stars known, and is also called the Northern Cross.",
	"Scorpius":    "The Scorpion with red heart Antares. In mythology, it killed Orion, which is why they're never visible together.",
	"Sagittarius": "The Archer points toward our galaxy's center. Rich in star clusters and nebulae, including the beautiful Lagoon Nebula.",
	"Draco":       "The Dragon winds around the north pole. Its star Thuban was the pole star when Egyptian pyramids were built.",
	"Pegasus":     "The Winged Horse features the Great Square. Contains the first exoplanet discovered around a sun-like star.",
}

// BasicConstellationInfo 静态兜底，先按别名规范化名称
func BasicConstellationInfo(name string) string {
	key := strings.TrimSpace(name)
	if canonical, ok := CanonicalName(key); ok {
		key = canonical
	}
	if info, ok := basicConstellationInfo[key]; ok {
		return info
	}
	return fmt.Sprintf("%s is a constellation with rich astronomical and mythological significance, "+
		"containing unique stars and deep-sky objects that have fascinated humanity for millennia.", strings.TrimSpace(name))
}

func infoPrompt(name string) string {
	return fmt.Sprintf(`Provide a brief, interesting description of the %s constellation in under 100 words.
Include its mythology or the story behind its name, its most notable stars, and any famous deep-sky objects.
Write in plain text without formatting.`, name)
}

// InfoService 星座介绍：缓存 -> 模型 -> 静态表
type InfoService struct {
	gen         TextGenerator
	cache       InfoCache
	temperature float32
	maxTokens   int
}

func NewInfoService(gen TextGenerator, cache InfoCache, temperature float32, maxTokens int) *InfoService {
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &InfoService{gen: gen, cache: cache, temperature: temperature, maxTokens: maxTokens}
}

// Lookup never returns an upstream error; provider failures fall back to the static table.
func (s *InfoService) Lookup(ctx context.Context, name string) (*core.ConstellationInfoResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.NewValidationError("Constellation name is required")
	}
	key := name
	if canonical, ok := CanonicalName(name); ok {
		key = canonical
	}
	log := logging.Ctx(ctx)

	if s.cache != nil {
		info, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("constellation", key).Msg("info cache read failed")
		case ok:
			metrics.InfoCacheLookups.WithLabelValues("hit").Inc()
			return &core.ConstellationInfoResponse{Name: name, Info: info}, nil
		default:
			metrics.InfoCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	info, err := s.gen.Generate(ctx, GenerateRequest{
		Prompt:      infoPrompt(key),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Str("constellation", key).Msg("info generation failed, using static text")
		return &core.ConstellationInfoResponse{Name: name, Info: BasicConstellationInfo(name)}, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, info); err != nil {
			log.Warn().Err(err).Str("constellation", key).Msg("info cache write failed")
		}
	}
	return &core.ConstellationInfoResponse{Name: name, Info: info}, nil
}
