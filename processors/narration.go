package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/metrics"
	"constellationFinder/storage"
)

// BuildNarrationPrompt 根据位置和当前时间构造讲解提示词
func BuildNarrationPrompt(lat, lon float64, now time.Time) string {
	return fmt.Sprintf(`Location: Latitude %.4f, Longitude %.4f
Date: %s
Time: %s (%d:00)

Please provide a simple response about constellations visible from this location tonight:

1. Give a brief description (2-3 sentences) of what constellations are visible
2. List 5-7 major constellations that can be seen
3. For each constellation, specify the general compass direction (North, South, East, West, Northeast, Northwest, Southeast, Southwest, or Overhead)
Also say roughly where this location is.
Keep the response simple and practical for someone using a phone compass to find constellations.
Put each constellation on its own line together with its direction.
Format: Just plain text, no special formatting or symbols.`,
		lat, lon, now.Format("2006-01-02"), now.Format("15:04"), now.Hour())
}

// NarrationService 位置存储与星空讲解
type NarrationService struct {
	store    storage.Store
	gen      TextGenerator
	embedder Embedder
	policy   DirectionPolicy
	maxNames int
	now      func() time.Time
}

// NarrationOption customises a NarrationService.
type NarrationOption func(*NarrationService)

func WithEmbedder(e Embedder) NarrationOption {
	return func(s *NarrationService) { s.embedder = e }
}

func WithDirectionPolicy(p DirectionPolicy) NarrationOption {
	return func(s *NarrationService) { s.policy = p }
}

func WithClock(now func() time.Time) NarrationOption {
	return func(s *NarrationService) { s.now = now }
}

func WithMaxConstellations(n int) NarrationOption {
	return func(s *NarrationService) { s.maxNames = n }
}

func NewNarrationService(store storage.Store, gen TextGenerator, opts ...NarrationOption) *NarrationService {
	s := &NarrationService{
		store:    store,
		gen:      gen,
		policy:   DefaultDirectionPolicy(),
		maxNames: DefaultMaxConstellations,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SaveLocation validates and persists one sample.
func (s *NarrationService) SaveLocation(ctx context.Context, owner string, req core.SaveLocationRequest) (*core.LocationSample, error) {
	if req.Latitude == nil || req.Longitude == nil {
		return nil, core.NewValidationError("Latitude and longitude are required")
	}
	if err := core.ValidateStruct(&req); err != nil {
		return nil, err
	}

	loc := &core.LocationSample{
		Owner:     strings.TrimSpace(owner),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if err := s.store.SaveLocation(ctx, loc); err != nil {
		return nil, fmt.Errorf("save location: %w", err)
	}
	logging.Ctx(ctx).Info().Int64("location_id", loc.ID).Bool("owned", loc.Owner != "").Msg("location saved")
	return loc, nil
}

// FindConstellations 生成讲解、提取星座和方位并持久化
// Nothing is persisted when the provider fails.
func (s *NarrationService) FindConstellations(ctx context.Context, locationID int64) (*core.FindConstellationsResponse, error) {
	if locationID <= 0 {
		return nil, core.NewValidationError("Location ID is required")
	}

	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	prompt := BuildNarrationPrompt(loc.Latitude, loc.Longitude, s.now())
	reply, err := s.gen.Generate(ctx, GenerateRequest{Prompt: prompt})
	if err != nil {
		metrics.NarrationsTotal.WithLabelValues("provider_error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Int64("location_id", locationID).Msg("narration provider failed")
		return nil, asUpstream(err)
	}

	names := ExtractConstellationNames(reply, s.maxNames)
	directions := s.policy.Extract(reply, names)

	q := &core.NarrationQuery{
		LocationID:     loc.ID,
		Prompt:         prompt,
		Response:       reply,
		Constellations: names,
	}
	if err := s.store.SaveNarration(ctx, q); err != nil {
		return nil, fmt.Errorf("save narration: %w", err)
	}
	metrics.NarrationsTotal.WithLabelValues("success").Inc()

	s.indexNarration(ctx, q)

	return &core.FindConstellationsResponse{
		Status:                "success",
		Response:              reply,
		VisibleConstellations: names,
		CompassDirections:     directions,
		QueryID:               q.ID,
	}, nil
}

// indexNarration 写入向量，失败只记录日志
func (s *NarrationService) indexNarration(ctx context.Context, q *core.NarrationQuery) {
	if s.embedder == nil {
		return
	}
	sim, ok := s.store.(storage.SimilarityStore)
	if !ok {
		return
	}
	vec, err := s.embedder.Embed(ctx, q.Response)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("query_id", q.ID).Msg("narration embedding failed")
		return
	}
	if err := sim.SaveNarrationEmbedding(ctx, q.ID, vec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("query_id", q.ID).Msg("narration embedding not stored")
	}
}

// SimilarNarrations 需要支持向量检索的存储
func (s *NarrationService) SimilarNarrations(ctx context.Context, queryID int64, k int) ([]core.SimilarNarration, error) {
	sim, ok := s.store.(storage.SimilarityStore)
	if !ok {
		return nil, fmt.Errorf("similarity search requires the postgres store: %w", core.ErrUnsupported)
	}
	if k <= 0 || k > storage.MaxListLimit {
		k = 5
	}
	return sim.SimilarNarrations(ctx, queryID, k)
}

func (s *NarrationService) ListLocations(ctx context.Context, limit int) ([]core.LocationSample, error) {
	return s.store.ListLocations(ctx, limit)
}

func (s *NarrationService) ListNarrations(ctx context.Context, locationID int64, limit int) ([]core.NarrationQuery, error) {
	return s.store.ListNarrations(ctx, locationID, limit)
}

func (s *NarrationService) DeleteLocation(ctx context.Context, id int64) error {
	return s.store.DeleteLocation(ctx, id)
}

func (s *NarrationService) DeleteOwner(ctx context.Context, owner string) (int, error) {
	if strings.TrimSpace(owner) == "" {
		return 0, core.NewValidationError("owner is required")
	}
	return s.store.DeleteOwner(ctx, owner)
}
