package processors

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"constellationFinder/core"
)

// Detector 目标检测服务
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]core.Detection, error)
	Name() string
}

// HTTPDetector 调用托管推理端点
// POST multipart "image" -> {"predictions":[{"class","confidence","x","y","width","height"}]}
// x/y in the response are box centres.
type HTTPDetector struct {
	url           string
	apiKey        string
	minConfidence float64
	client        *http.Client
	breaker       *Breaker
	provider      string
}

func NewHTTPDetector(url, apiKey string, minConfidence float64, timeout time.Duration, breaker *Breaker) *HTTPDetector {
	provider := "detector"
	if breaker != nil {
		provider = breaker.Name()
	}
	return &HTTPDetector{
		url:           url,
		apiKey:        apiKey,
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
		breaker:       breaker,
		provider:      provider,
	}
}

func (d *HTTPDetector) Name() string { return d.provider }

type prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type predictionResponse struct {
	Predictions []prediction `json:"predictions"`
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]core.Detection, error) {
	body, contentType, err := encodeDetectRequest(img, d.minConfidence)
	if err != nil {
		return nil, err
	}

	dets, err := callThrough(d.breaker, d.provider, func() ([]core.Detection, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if d.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+d.apiKey)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		}

		var pr predictionResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
		return toDetections(pr.Predictions, img.Bounds()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.provider, asUpstream(err))
	}
	return dets, nil
}

func encodeDetectRequest(img image.Image, minConfidence float64) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, "", err
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("encode frame: %w", err)
	}
	if err := mw.WriteField("confidence", strconv.FormatFloat(minConfidence, 'f', 2, 64)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// toDetections 中心点坐标转左上角，并裁剪到图像范围内
func toDetections(preds []prediction, bounds image.Rectangle) []core.Detection {
	out := make([]core.Detection, 0, len(preds))
	for _, p := range preds {
		x0 := int(math.Round(p.X - p.Width/2))
		y0 := int(math.Round(p.Y - p.Height/2))
		r := image.Rect(x0, y0, x0+int(math.Round(p.Width)), y0+int(math.Round(p.Height))).
			Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		out = append(out, core.Detection{
			Label:      p.Class,
			Confidence: p.Confidence,
			Box:        core.Box{X: r.Min.X - bounds.Min.X, Y: r.Min.Y - bounds.Min.Y, W: r.Dx(), H: r.Dy()},
		})
	}
	return out
}

// MockDetector 返回固定结果
type MockDetector struct {
	Detections []core.Detection
	Err        error

	mu    sync.Mutex
	calls atomic.Int32
	sizes []image.Point
}

func (m *MockDetector) Name() string { return "mock" }

func (m *MockDetector) Detect(_ context.Context, img image.Image) ([]core.Detection, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.sizes = append(m.sizes, img.Bounds().Size())
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]core.Detection, len(m.Detections))
	copy(out, m.Detections)
	return out, nil
}

func (m *MockDetector) Calls() int { return int(m.calls.Load()) }

// Sizes returns the dimensions of every image passed to Detect.
func (m *MockDetector) Sizes() []image.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]image.Point(nil), m.sizes...)
}
