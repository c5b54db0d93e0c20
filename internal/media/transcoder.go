// Package media wraps the external transcoding engine (ffmpeg) and its
// companion probe tool (ffprobe). It owns the mapping from resolved
// options to an engine invocation.
package media

import "context"

// Transcoder defines the interface for the vertical transcode operation.
// Implementations run an external engine and block until it exits.
type Transcoder interface {
	// Transcode reads the video at input and writes a 1080x1920 rendition
	// to output using the codec profile selected by opts.Format.
	Transcode(ctx context.Context, input, output string, opts Options) error

	// Probe reports the geometry and duration of the first video stream.
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// ProbeResult describes the source video as reported by ffprobe.
type ProbeResult struct {
	Width    int
	Height   int
	Duration float64 // seconds
}
