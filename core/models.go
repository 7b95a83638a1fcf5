package core

import "time"

// ========== 持久化实体 ==========

// LocationSample 用户上报的一次定位
type LocationSample struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	CreatedAt time.Time `json:"created_at"`
}

// NarrationQuery 一次星空讲解的请求与回复
type NarrationQuery struct {
	ID             int64     `json:"id"`
	LocationID     int64     `json:"location_id"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	Constellations []string  `json:"constellations"`
	CreatedAt      time.Time `json:"created_at"`
}

// SimilarNarration is a past narration ranked by embedding distance.
type SimilarNarration struct {
	NarrationQuery
	Distance float64 `json:"distance"`
}

// ========== 请求/响应 ==========

// SaveLocationRequest uses pointers so that 0 is a legal coordinate.
type SaveLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
}

type SaveLocationResponse struct {
	Status     string `json:"status"`
	LocationID int64  `json:"location_id"`
	Message    string `json:"message"`
}

type FindConstellationsRequest struct {
	LocationID int64 `json:"location_id"`
}

type FindConstellationsResponse struct {
	Status                string            `json:"status"`
	Response              string            `json:"response"`
	VisibleConstellations []string          `json:"visible_constellations"`
	CompassDirections     map[string]string `json:"compass_directions"`
	QueryID               int64             `json:"query_id"`
}

// ErrorEnvelope 定位与讲解接口的错误格式
type ErrorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ConstellationInfoRequest struct {
	ConstellationName string `json:"constellation_name"`
}

type ConstellationInfoResponse struct {
	Name string `json:"name"`
	Info string `json:"info"`
}

type AskRequest struct {
	Message string `json:"message"`
}

type AskResponse struct {
	Reply   string `json:"reply"`
	Success bool   `json:"success"`
}

type SpeechToTextResponse struct {
	Transcript       string `json:"transcript"`
	DetectedLanguage string `json:"detected_language"`
	Success          bool   `json:"success"`
}

type TextToSpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type TextToSpeechResponse struct {
	AudioData string `json:"audio_data"`
	Success   bool   `json:"success"`
}

// ========== 图像检测 ==========

// Box 像素坐标，左上角为原点
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"width"`
	H int `json:"height"`
}

type Detection struct {
	Label      string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Analysis types reported by the annotation pipeline.
const (
	AnalysisObject        = "object"
	AnalysisConstellation = "constellation"
)

// UploadResult 批量上传的分析结果，同时用于结果页渲染
type UploadResult struct {
	ProcessedImage         string      `json:"processed_image"`
	OriginalFilename       string      `json:"original_filename"`
	FileSize               string      `json:"file_size"`
	ImageDimensions        string      `json:"image_dimensions"`
	Location               string      `json:"location"`
	CaptureTime            string      `json:"capture_time"`
	AnalysisType           string      `json:"analysis_type"`
	MaxConfidence          float64     `json:"max_confidence"`
	DetectedConstellations []Detection `json:"detected_constellations"`
	DetectedObjects        []Detection `json:"detected_objects"`
	TotalDetections        int         `json:"total_detections"`
	ProcessingTimestamp    string      `json:"processing_timestamp"`
}
