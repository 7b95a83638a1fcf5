package supervisor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"constellationFinder/logging"
)

// StagingJanitor 定期清理暂存目录里残留的上传文件
//
// Handlers remove their own staged files; this only catches leftovers from
// crashes or killed requests.
type StagingJanitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewStagingJanitor(dir string, maxAge, interval time.Duration) *StagingJanitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StagingJanitor{dir: dir, maxAge: maxAge, interval: interval, now: time.Now}
}

// Serve sweeps once at start and then on every tick.
func (j *StagingJanitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		if n, err := j.Sweep(); err != nil {
			logging.Warn().Err(err).Str("dir", j.dir).Msg("staging sweep failed")
		} else if n > 0 {
			logging.Info().Int("removed", n).Str("dir", j.dir).Msg("staging sweep")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep removes regular files older than maxAge and returns how many went.
// A missing directory is not an error.
func (j *StagingJanitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // 已被 handler 删除
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Debug().Err(err).Str("file", e.Name()).Msg("staging remove failed")
			continue
		}
		removed++
	}
	return removed, nil
}

func (j *StagingJanitor) String() string { return "staging-janitor" }
