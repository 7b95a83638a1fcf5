package processors

import (
	"context"
	"fmt"
	"image"

	"constellationFinder/core"
)

// Unavailable 未配置的协作方：每次调用都返回 ErrUpstreamUnavailable，
// 让各服务走自己的兜底（静态介绍、道歉、503）
type Unavailable struct {
	Reason string
}

// NewUnavailable returns a provider that fails every call with reason.
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{Reason: reason}
}

func (u *Unavailable) Name() string { return "unavailable" }

func (u *Unavailable) err() error {
	return fmt.Errorf("%w: %s", core.ErrUpstreamUnavailable, u.Reason)
}

func (u *Unavailable) Generate(context.Context, GenerateRequest) (string, error) {
	return "", u.err()
}

func (u *Unavailable) Transcribe(context.Context, string, string) (Transcription, error) {
	return Transcription{}, u.err()
}

func (u *Unavailable) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, u.err()
}

func (u *Unavailable) Detect(context.Context, image.Image) ([]core.Detection, error) {
	return nil, u.err()
}

var (
	_ TextGenerator = (*Unavailable)(nil)
	_ Transcriber   = (*Unavailable)(nil)
	_ Synthesizer   = (*Unavailable)(nil)
	_ Detector      = (*Unavailable)(nil)
)
