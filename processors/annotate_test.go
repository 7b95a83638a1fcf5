package processors

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"constellationFinder/core"
)

func testSettings() PipelineSettings {
	return PipelineSettings{
		StreamMaxBytes:  5 << 20,
		BatchMaxBytes:   10 << 20,
		StreamMaxEdge:   640,
		StreamThreshold: 0.75,
		BatchThreshold:  0.87,
		JPEGQuality:     85,
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSelectDetectionsThresholdIsStrict(t *testing.T) {
	general := &MockDetector{Detections: []core.Detection{{Label: "person", Confidence: 0.87}}}
	constellation := &MockDetector{Detections: []core.Detection{{Label: "Orion", Confidence: 0.5}}}
	a := NewAnnotator(general, constellation, testSettings(), t.TempDir())
	img := testImage(32, 32)

	analysis, dets, err := a.SelectDetections(context.Background(), img, 0.87)
	if err != nil {
		t.Fatalf("SelectDetections: %v", err)
	}
	if analysis != core.AnalysisConstellation || dets[0].Label != "Orion" {
		t.Errorf("equal confidence must not select objects: %s %+v", analysis, dets)
	}

	analysis, _, _ = a.SelectDetections(context.Background(), img, 0.75)
	if analysis != core.AnalysisObject {
		t.Errorf("0.87 > 0.75 should select objects, got %s", analysis)
	}
	if constellation.Calls() != 1 {
		t.Errorf("constellation detector calls = %d, want 1", constellation.Calls())
	}
}

func TestDownscaleAndScaleBack(t *testing.T) {
	small, sx, sy := Downscale(testImage(1280, 960), 640)
	if got := small.Bounds().Size(); got != image.Pt(640, 480) {
		t.Fatalf("downscaled size = %v", got)
	}
	if sx != 2 || sy != 2 {
		t.Fatalf("scale = %v,%v", sx, sy)
	}
	dets := ScaleDetections([]core.Detection{{Box: core.Box{X: 10, Y: 20, W: 30, H: 40}}}, sx, sy)
	if dets[0].Box != (core.Box{X: 20, Y: 40, W: 60, H: 80}) {
		t.Errorf("scaled box = %+v", dets[0].Box)
	}

	same, sx, sy := Downscale(testImage(100, 50), 640)
	if same.Bounds().Dx() != 100 || sx != 1 || sy != 1 {
		t.Errorf("small image should not be resized")
	}
}

func TestProcessFrame(t *testing.T) {
	general := &MockDetector{Detections: []core.Detection{
		{Label: "person", Confidence: 0.9, Box: core.Box{X: 10, Y: 10, W: 100, H: 80}},
	}}
	a := NewAnnotator(general, &MockDetector{}, testSettings(), t.TempDir())

	out, err := a.ProcessFrame(context.Background(), pngBytes(t, 1280, 960))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not jpeg: %v", err)
	}
	if got := decoded.Bounds().Size(); got != image.Pt(1280, 960) {
		t.Errorf("annotated frame size = %v, want original resolution", got)
	}
	if sizes := general.Sizes(); len(sizes) != 1 || sizes[0] != image.Pt(640, 480) {
		t.Errorf("detector saw %v, want one 640x480 frame", sizes)
	}
}

func TestProcessFrameRejects(t *testing.T) {
	general := &MockDetector{}
	s := testSettings()
	s.StreamMaxBytes = 64
	a := NewAnnotator(general, &MockDetector{}, s, t.TempDir())

	if _, err := a.ProcessFrame(context.Background(), bytes.Repeat([]byte{1}, 65)); !errors.Is(err, core.ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := a.ProcessFrame(context.Background(), []byte("not an image")); !errors.Is(err, core.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
	if general.Calls() != 0 {
		t.Errorf("detector called for rejected frames")
	}
}

func TestProcessUpload(t *testing.T) {
	dir := t.TempDir()
	general := &MockDetector{Detections: []core.Detection{{Label: "tree", Confidence: 0.4}}}
	constellation := &MockDetector{Detections: []core.Detection{
		{Label: "Orion", Confidence: 0.92, Box: core.Box{X: 5, Y: 5, W: 50, H: 40}},
		{Label: "Taurus", Confidence: 0.61, Box: core.Box{X: 100, Y: 20, W: 40, H: 30}},
	}}
	a := NewAnnotator(general, constellation, testSettings(), dir)

	data := pngBytes(t, 200, 100)
	res, err := a.ProcessUpload(context.Background(), UploadInput{
		File:        bytes.NewReader(data),
		Filename:    "sky.PNG",
		Size:        int64(len(data)),
		Location:    "Ladakh",
		CaptureTime: "2024-03-15T21:30",
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	if res.AnalysisType != core.AnalysisConstellation || res.TotalDetections != 2 {
		t.Errorf("unexpected analysis: %+v", res)
	}
	if res.MaxConfidence != 0.92 {
		t.Errorf("max confidence = %v", res.MaxConfidence)
	}
	if res.ImageDimensions != "200 x 100" || !strings.HasSuffix(res.FileSize, " MB") {
		t.Errorf("dimensions=%q size=%q", res.ImageDimensions, res.FileSize)
	}
	if len(res.DetectedConstellations) != 2 || len(res.DetectedObjects) != 0 {
		t.Errorf("detections misfiled: %+v", res)
	}
	if res.ProcessedImage == "" || res.Location != "Ladakh" {
		t.Errorf("missing result fields: %+v", res)
	}
	if n := stagedFiles(t, dir); n != 0 {
		t.Errorf("staged upload left behind: %d entries", n)
	}
}

func TestProcessUploadRejects(t *testing.T) {
	dir := t.TempDir()
	general := &MockDetector{}
	a := NewAnnotator(general, &MockDetector{}, testSettings(), dir)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      UploadInput
		wantErr error
		wantMsg string
	}{
		{
			name:    "gif extension",
			in:      UploadInput{File: strings.NewReader("GIF89a"), Filename: "sky.gif", Size: 6},
			wantErr: core.ErrInvalidImage,
			wantMsg: MsgInvalidFormat,
		},
		{
			name:    "declared size too large",
			in:      UploadInput{File: strings.NewReader("x"), Filename: "sky.jpg", Size: 11 << 20},
			wantErr: core.ErrPayloadTooLarge,
			wantMsg: MsgFileTooLarge,
		},
		{
			name:    "corrupt image",
			in:      UploadInput{File: strings.NewReader("not really a jpeg"), Filename: "sky.jpg", Size: 17},
			wantErr: core.ErrInvalidImage,
			wantMsg: MsgInvalidImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.ProcessUpload(ctx, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := core.UserMessage(err, ""); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
	if general.Calls() != 0 {
		t.Errorf("detector called for rejected uploads")
	}
	if n := stagedFiles(t, dir); n != 0 {
		t.Errorf("staged upload left behind: %d entries", n)
	}
}

func TestAnnotateDrawsOutline(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	out := Annotate(img, []core.Detection{{Label: "Lyra", Confidence: 0.8, Box: core.Box{X: 20, Y: 40, W: 30, H: 30}}}, core.AnalysisConstellation)

	if got := out.RGBAAt(20, 55); got != constellationColor {
		t.Errorf("left edge pixel = %v, want %v", got, constellationColor)
	}
	if got := out.RGBAAt(35, 55); got != (color.RGBA{}) {
		t.Errorf("box interior should be untouched, got %v", got)
	}
	if img.RGBAAt(20, 55) != (color.RGBA{}) {
		t.Errorf("Annotate modified its input")
	}
}
