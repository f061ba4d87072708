// Package diag captures diagnostic artifacts for blocked or challenged
// fetches: the raw response body, a JSON metadata record, and optionally a
// rendered screenshot of the offending URL.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/fetch"
)

// Recorder writes challenge artifacts under a base directory. Implements
// fetch.DiagnosticsSink.
type Recorder struct {
	dir        string
	screenshot bool
	now        func() time.Time
	shooter    Screenshotter
}

// Screenshotter renders a URL to a PNG. Nil disables screenshots.
type Screenshotter interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

func NewRecorder(dir string, screenshot bool) *Recorder {
	r := &Recorder{dir: dir, screenshot: screenshot, now: time.Now}
	if screenshot {
		r.shooter = &chromeShooter{}
	}
	return r
}

type challengeRecord struct {
	Detail     string    `json:"detail"`
	RequestURL string    `json:"request_url"`
	StatusCode int       `json:"status_code"`
	CapturedAt time.Time `json:"captured_at"`
	BodyFile   string    `json:"body_file"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// CaptureChallenge persists the artifacts and returns their paths. Failures
// are logged, never propagated; diagnostics must not break a scan.
func (r *Recorder) CaptureChallenge(ctx context.Context, body []byte, meta fetch.ChallengeMeta) []string {
	if r.dir == "" {
		return nil
	}
	stamp := r.now().UTC().Format("20060102-150405.000")
	base := filepath.Join(r.dir, "challenge-"+stamp)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", r.dir).Msg("failed to create diagnostics dir")
		return nil
	}

	var paths []string

	bodyPath := base + ".html"
	if err := os.WriteFile(bodyPath, body, 0o644); err != nil {
		log.Warn().Err(err).Msg("failed to write challenge body artifact")
	} else {
		paths = append(paths, bodyPath)
	}

	record := challengeRecord{
		Detail:     meta.Detail,
		RequestURL: meta.RequestURL,
		StatusCode: meta.StatusCode,
		CapturedAt: r.now().UTC(),
		BodyFile:   filepath.Base(bodyPath),
	}

	if r.screenshot && r.shooter != nil && meta.RequestURL != "" {
		shotCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		png, err := r.shooter.Capture(shotCtx, meta.RequestURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("failed to capture challenge screenshot")
		} else {
			shotPath := base + ".png"
			if err := os.WriteFile(shotPath, png, 0o644); err != nil {
				log.Warn().Err(err).Msg("failed to write challenge screenshot")
			} else {
				record.Screenshot = filepath.Base(shotPath)
				paths = append(paths, shotPath)
			}
		}
	}

	metaPath := base + ".json"
	data, err := json.MarshalIndent(record, "", "  ")
	if err == nil {
		if err := os.WriteFile(metaPath, data, 0o644); err != nil {
			log.Warn().Err(err).Msg("failed to write challenge metadata")
		} else {
			paths = append(paths, metaPath)
		}
	}

	log.Info().
		Str("detail", meta.Detail).
		Str("url", meta.RequestURL).
		Strs("artifacts", paths).
		Msg("captured challenge artifacts")
	return paths
}

// SaveTrace writes a JSON snapshot of any diagnostic value, named by kind.
func (r *Recorder) SaveTrace(kind string, v any) (string, error) {
	if r.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create diagnostics dir: %w", err)
	}
	stamp := r.now().UTC().Format("20060102-150405.000")
	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.json", kind, stamp))
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s trace: %w", kind, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s trace: %w", kind, err)
	}
	return path, nil
}
