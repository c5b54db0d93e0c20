// Package bootstrap provides dependency initialization for the vertical converter.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/maauso/vertical-converter/internal/config"
	"github.com/maauso/vertical-converter/internal/convert"
	"github.com/maauso/vertical-converter/internal/media"
	"github.com/maauso/vertical-converter/internal/metrics"
	"github.com/maauso/vertical-converter/internal/storage"
)

// ErrEngineNotFound is returned when the ffmpeg binary cannot be resolved.
var ErrEngineNotFound = errors.New("ffmpeg binary not found")

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	ConvertService *convert.Service
	// FFmpegPath and FFprobePath are the resolved binaries. FFprobePath is
	// empty when probing is disabled.
	FFmpegPath  string
	FFprobePath string
}

// NewDependencies creates and initializes all dependencies for the application.
// Engine binaries are resolved once here; request handling never looks them up.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	ffmpegPath, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEngineNotFound, cfg.FFmpegPath, err)
	}

	ffprobePath := resolveProbe(cfg.FFprobePath, logger)

	store, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", store.TempDir()),
	)

	transcoder := media.NewFFmpegTranscoder(ffmpegPath, ffprobePath)
	logger.Info("transcoding engine configured",
		slog.String("ffmpeg_path", ffmpegPath),
		slog.String("ffprobe_path", ffprobePath),
	)

	metrics.InitializeMetrics()

	svc := convert.NewService(
		transcoder,
		store,
		logger,
		convert.WithTranscodeTimeout(cfg.TranscodeTimeout),
	)

	return &Dependencies{
		ConvertService: svc,
		FFmpegPath:     ffmpegPath,
		FFprobePath:    ffprobePath,
	}, nil
}

// resolveProbe returns the ffprobe path, or "" when probing is disabled or
// the binary is missing.
func resolveProbe(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		logger.Warn("ffprobe not found, source probing disabled",
			slog.String("ffprobe_path", path),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return resolved
}
