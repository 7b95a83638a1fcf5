package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/metrics"
)

// Upload messages shown to the user via flash.
const (
	MsgNoImage        = "No image file uploaded."
	MsgInvalidFormat  = "Invalid file format. Please upload JPG, JPEG, or PNG files only."
	MsgFileTooLarge   = "File size too large. Please upload files smaller than 10MB."
	MsgInvalidImage   = "Invalid image file. Please upload a valid image."
	MsgProcessingFail = "Error processing image. Please try again."
)

var allowedUploadExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

var (
	objectColor        = color.RGBA{R: 0, G: 220, B: 90, A: 255}
	constellationColor = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	labelTextColor     = color.RGBA{A: 255}
)

// PipelineSettings 图像流水线参数
type PipelineSettings struct {
	StreamMaxBytes  int64
	BatchMaxBytes   int64
	StreamMaxEdge   int
	StreamThreshold float64
	BatchThreshold  float64
	JPEGQuality     int
}

// Annotator 检测并标注图像，先跑通用模型，置信度不够再跑星座模型
type Annotator struct {
	general       Detector
	constellation Detector
	settings      PipelineSettings
	stagingDir    string
	now           func() time.Time
}

func NewAnnotator(general, constellation Detector, settings PipelineSettings, stagingDir string) *Annotator {
	if settings.JPEGQuality <= 0 {
		settings.JPEGQuality = 85
	}
	return &Annotator{
		general:       general,
		constellation: constellation,
		settings:      settings,
		stagingDir:    stagingDir,
		now:           time.Now,
	}
}

func (a *Annotator) Settings() PipelineSettings { return a.settings }

// DecodeImage accepts JPEG and PNG.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidImage, err)
	}
	return img, nil
}

// Downscale 长边缩到 maxEdge 以内，返回缩放后图像和回映射系数
func Downscale(img image.Image, maxEdge int) (image.Image, float64, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxEdge <= 0 || longest <= maxEdge {
		return img, 1, 1
	}
	scale := float64(maxEdge) / float64(longest)
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(nw), float64(h) / float64(nh)
}

// ScaleDetections maps boxes from a downscaled frame back to original pixels.
func ScaleDetections(dets []core.Detection, sx, sy float64) []core.Detection {
	if sx == 1 && sy == 1 {
		return dets
	}
	out := make([]core.Detection, len(dets))
	for i, d := range dets {
		d.Box = core.Box{
			X: int(math.Round(float64(d.Box.X) * sx)),
			Y: int(math.Round(float64(d.Box.Y) * sy)),
			W: int(math.Round(float64(d.Box.W) * sx)),
			H: int(math.Round(float64(d.Box.H) * sy)),
		}
		out[i] = d
	}
	return out
}

// SelectDetections 通用检测任一置信度严格大于阈值即为 object，否则走星座检测
func (a *Annotator) SelectDetections(ctx context.Context, img image.Image, threshold float64) (string, []core.Detection, error) {
	general, err := a.general.Detect(ctx, img)
	if err != nil {
		return "", nil, err
	}
	for _, d := range general {
		if d.Confidence > threshold {
			return core.AnalysisObject, general, nil
		}
	}
	constellations, err := a.constellation.Detect(ctx, img)
	if err != nil {
		return "", nil, err
	}
	return core.AnalysisConstellation, constellations, nil
}

// Annotate draws boxes and labels on a copy of img.
func Annotate(img image.Image, dets []core.Detection, analysis string) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	c := objectColor
	if analysis == core.AnalysisConstellation {
		c = constellationColor
	}
	for _, d := range dets {
		r := image.Rect(d.Box.X, d.Box.Y, d.Box.X+d.Box.W, d.Box.Y+d.Box.H).Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		drawOutline(out, r, c, 2)
		drawLabel(out, r, fmt.Sprintf("%s %.2f", d.Label, d.Confidence), c)
	}
	return out
}

func drawOutline(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel 标签放在框上方，放不下时放在框内
func drawLabel(dst *image.RGBA, r image.Rectangle, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := r.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	box := image.Rect(r.Min.X, top, r.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelTextColor),
		Face: face,
		Dot:  fixed.P(box.Min.X+2, box.Min.Y+face.Ascent+1),
	}
	d.DrawString(text)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ProcessFrame 实时帧：缩小后检测，框映射回原图再标注
func (a *Annotator) ProcessFrame(ctx context.Context, data []byte) ([]byte, error) {
	if int64(len(data)) > a.settings.StreamMaxBytes {
		return nil, fmt.Errorf("frame of %d bytes: %w", len(data), core.ErrPayloadTooLarge)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	small, sx, sy := Downscale(img, a.settings.StreamMaxEdge)
	analysis, dets, err := a.SelectDetections(ctx, small, a.settings.StreamThreshold)
	if err != nil {
		return nil, err
	}
	dets = ScaleDetections(dets, sx, sy)
	metrics.DetectionsTotal.WithLabelValues(analysis).Add(float64(len(dets)))

	return encodeJPEG(Annotate(img, dets, analysis), a.settings.JPEGQuality)
}

// UploadInput 批量上传的一张图片
type UploadInput struct {
	File        io.Reader
	Filename    string
	Size        int64
	Location    string
	CaptureTime string
}

func uploadError(sentinel error, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, core.NewValidationError(msg))
}

// ProcessUpload stages, analyses and annotates one uploaded image.
// The staged copy is removed before returning.
func (a *Annotator) ProcessUpload(ctx context.Context, in UploadInput) (*core.UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !allowedUploadExt[ext] {
		return nil, uploadError(core.ErrInvalidImage, MsgInvalidFormat)
	}
	if in.Size > a.settings.BatchMaxBytes {
		return nil, uploadError(core.ErrPayloadTooLarge, MsgFileTooLarge)
	}

	data, err := a.stage(in.File, ext)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > a.settings.BatchMaxBytes {
		return nil, uploadError(core.ErrPayloadTooLarge, MsgFileTooLarge)
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, uploadError(core.ErrInvalidImage, MsgInvalidImage)
	}

	analysis, dets, err := a.SelectDetections(ctx, img, a.settings.BatchThreshold)
	if err != nil {
		return nil, err
	}
	metrics.DetectionsTotal.WithLabelValues(analysis).Add(float64(len(dets)))

	annotated, err := encodeJPEG(Annotate(img, dets, analysis), a.settings.JPEGQuality)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	res := &core.UploadResult{
		ProcessedImage:      base64.StdEncoding.EncodeToString(annotated),
		OriginalFilename:    filepath.Base(in.Filename),
		FileSize:            fmt.Sprintf("%.2f MB", float64(len(data))/(1024*1024)),
		ImageDimensions:     fmt.Sprintf("%d x %d", b.Dx(), b.Dy()),
		Location:            in.Location,
		CaptureTime:         in.CaptureTime,
		AnalysisType:        analysis,
		TotalDetections:     len(dets),
		ProcessingTimestamp: a.now().Format("2006-01-02 15:04:05"),
	}
	for _, d := range dets {
		res.MaxConfidence = math.Max(res.MaxConfidence, d.Confidence)
	}
	res.DetectedConstellations = []core.Detection{}
	res.DetectedObjects = []core.Detection{}
	if analysis == core.AnalysisConstellation {
		res.DetectedConstellations = dets
	} else {
		res.DetectedObjects = dets
	}

	logging.Ctx(ctx).Info().
		Str("file", res.OriginalFilename).
		Str("analysis", analysis).
		Int("detections", len(dets)).
		Msg("upload processed")
	return res, nil
}

// stage 写入暂存目录后读回，读完即删
func (a *Annotator) stage(r io.Reader, ext string) ([]byte, error) {
	if a.stagingDir != "" {
		if err := os.MkdirAll(a.stagingDir, 0755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(a.stagingDir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	// one extra byte so an oversized body is detectable
	_, err = io.Copy(tmp, io.LimitReader(r, a.settings.BatchMaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	return os.ReadFile(path)
}
