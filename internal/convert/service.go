package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/vertical-converter/internal/media"
	"github.com/maauso/vertical-converter/internal/metrics"
	"github.com/maauso/vertical-converter/internal/requestid"
	"github.com/maauso/vertical-converter/internal/storage"
	"github.com/maauso/vertical-converter/internal/upload"
)

// Static errors for the conversion pipeline.
var (
	// ErrNoFile is returned when the request carried no file part.
	ErrNoFile = errors.New(`Nenhum arquivo enviado (campo "video")`)
	// ErrEmptyOutput is returned when the engine exits cleanly but writes nothing.
	ErrEmptyOutput = errors.New("transcoding produced an empty file")
)

// Artifact is a converted file waiting to be sent to the client.
type Artifact struct {
	// Path is the temporary file holding the rendition.
	Path string
	// Format is the container the rendition was encoded to.
	Format media.Format
	// Size is the file size in bytes.
	Size int64
}

// Service runs the conversion pipeline for one decoded upload at a time.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	transcoder media.Transcoder
	store      storage.Storage
	logger     *slog.Logger
	// timeout bounds a single engine run; zero means unbounded.
	timeout time.Duration
}

// Option is a function that configures a Service instance.
type Option func(*Service)

// WithTranscodeTimeout bounds each engine run. Zero or negative disables the bound.
func WithTranscodeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a new Service.
func NewService(transcoder media.Transcoder, store storage.Storage, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		transcoder: transcoder,
		store:      store,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decode parses a multipart request body, staging file parts in temporary
// storage. The caller owns the staged files and releases them with Cleanup.
func (s *Service) Decode(ctx context.Context, body io.Reader, contentType string) (*upload.Form, error) {
	form, err := upload.Decode(ctx, s.store, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode multipart: %w", err)
	}
	return form, nil
}

// Convert transcodes the first file of form using options resolved from its
// fields. The returned artifact must be released with Cleanup. On error no
// output file is left behind; the uploaded files stay owned by the caller.
//
// The engine run is detached from ctx cancellation: a client that goes away
// does not stop a transcode that has started.
func (s *Service) Convert(ctx context.Context, form *upload.Form) (*Artifact, error) {
	if form == nil || len(form.Files) == 0 {
		return nil, ErrNoFile
	}

	input := form.Files[0]
	opts := ResolveOptions(form.Fields)
	logger := s.logger.With(slog.String("request_id", requestid.FromContext(ctx)))

	metrics.UploadBytes.Observe(float64(input.Size))

	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.probe(ctx, logger, input.Path)

	output, err := s.store.CreateTemp(ctx, "out."+opts.Format.Extension())
	if err != nil {
		return nil, fmt.Errorf("reserve output file: %w", err)
	}

	logger.Info("transcode started",
		slog.String("filename", input.Filename),
		slog.Int64("input_bytes", input.Size),
		slog.String("fit", string(opts.Fit)),
		slog.String("format", string(opts.Format)),
		slog.Int("fps", opts.FPS),
	)

	start := time.Now()
	metrics.ConversionsInFlight.Inc()
	err = s.transcoder.Transcode(ctx, input.Path, output, opts)
	metrics.ConversionsInFlight.Dec()
	elapsed := time.Since(start)
	metrics.ConversionDuration.WithLabelValues(string(opts.Format)).Observe(elapsed.Seconds())

	if err == nil {
		var size int64
		size, err = s.store.SizeTemp(ctx, output)
		if err == nil && size == 0 {
			err = ErrEmptyOutput
		}
		if err == nil {
			metrics.ConversionsTotal.WithLabelValues(string(opts.Format), string(opts.Fit), metrics.StatusSuccess).Inc()
			metrics.OutputBytes.WithLabelValues(string(opts.Format)).Observe(float64(size))
			logger.Info("transcode finished",
				slog.Duration("duration", elapsed),
				slog.Int64("output_bytes", size),
			)
			return &Artifact{Path: output, Format: opts.Format, Size: size}, nil
		}
	}

	metrics.ConversionsTotal.WithLabelValues(string(opts.Format), string(opts.Fit), metrics.StatusError).Inc()
	s.Cleanup(output)

	var ffErr *media.FFmpegError
	if errors.As(err, &ffErr) {
		logger.Error("transcode failed",
			slog.Duration("duration", elapsed),
			slog.Any("error", ffErr.Err),
			slog.String("stderr", ffErr.Stderr),
		)
	} else {
		logger.Error("transcode failed",
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
	}
	return nil, err
}

// probe logs source geometry and records its duration. Failures are not fatal.
func (s *Service) probe(ctx context.Context, logger *slog.Logger, path string) {
	res, err := s.transcoder.Probe(ctx, path)
	if err != nil {
		if errors.Is(err, media.ErrProbeDisabled) {
			return
		}
		logger.Warn("probe failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if res.Duration > 0 {
		metrics.SourceDuration.Observe(res.Duration)
	}
	logger.Debug("source probed",
		slog.Int("width", res.Width),
		slog.Int("height", res.Height),
		slog.Float64("duration_sec", res.Duration),
	)
}

// Cleanup removes temporary files on a best-effort basis. Errors are logged
// at debug level and otherwise ignored.
func (s *Service) Cleanup(paths ...string) {
	if err := s.store.CleanupTemp(context.Background(), paths); err != nil {
		s.logger.Debug("temp cleanup failed",
			slog.String("error", err.Error()),
		)
	}
}

// Open returns a reader over the artifact content.
// The caller is responsible for closing it.
func (s *Service) Open(ctx context.Context, a *Artifact) (io.ReadCloser, error) {
	return s.store.LoadTemp(context.WithoutCancel(ctx), a.Path)
}
