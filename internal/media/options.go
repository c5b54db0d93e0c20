package media

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Target frame size of every rendition.
const (
	TargetWidth  = 1080
	TargetHeight = 1920
)

// ErrInvalidOptions is returned when Options fail validation.
var ErrInvalidOptions = errors.New("invalid transcode options")

var validate = validator.New()

// Fit is the policy for reconciling the source aspect ratio with the target frame.
type Fit string

const (
	// FitCover scales up until the frame is covered, then crops the overflow.
	FitCover Fit = "cover"
	// FitContain scales down until the video fits, then pads with black.
	FitContain Fit = "contain"
)

// Format is the output container and codec profile.
type Format string

const (
	// FormatMP4 is H.264 video with AAC audio in an MP4 container.
	FormatMP4 Format = "mp4"
	// FormatWebM is VP9 video with Opus audio in a WebM container.
	FormatWebM Format = "webm"
)

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	if f == FormatWebM {
		return "webm"
	}
	return "mp4"
}

// ContentType returns the MIME type of the container.
func (f Format) ContentType() string {
	if f == FormatWebM {
		return "video/webm"
	}
	return "video/mp4"
}

// Filename returns the download name for a converted file.
func (f Format) Filename() string {
	return fmt.Sprintf("converted_%dx%d.%s", TargetWidth, TargetHeight, f.Extension())
}

// Options selects the fit mode, output profile and frame rate of a transcode.
type Options struct {
	Fit    Fit    `validate:"oneof=cover contain"`
	Format Format `validate:"oneof=mp4 webm"`
	FPS    int    `validate:"min=1"`
}

// Validate checks that every field holds a supported value.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

// ScaleFilter returns the video filter chain that maps any source onto the
// target frame. Contain shrinks to fit and pads centered with black; any
// other fit grows to cover and center-crops.
func ScaleFilter(fit Fit) string {
	if fit == FitContain {
		return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
			TargetWidth, TargetHeight, TargetWidth, TargetHeight)
	}
	return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=increase,crop=%d:%d",
		TargetWidth, TargetHeight, TargetWidth, TargetHeight)
}

// BuildArgs returns the ffmpeg argument list for a transcode of input into output.
func BuildArgs(input, output string, opts Options) []string {
	args := []string{
		"-y",        // Overwrite the reserved output file
		"-i", input, // Input file
		"-r", strconv.Itoa(opts.FPS), // Forced output frame rate
		"-vf", ScaleFilter(opts.Fit), // Scale + crop/pad to 1080x1920
	}

	if opts.Format == FormatWebM {
		args = append(args,
			"-c:v", "libvpx-vp9",
			"-c:a", "libopus",
			"-b:v", "0", // Constant quality mode
			"-crf", "30",
			"-pix_fmt", "yuv420p",
			"-movflags", "+faststart",
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-c:a", "aac",
			"-b:a", "128k",
			"-preset", "veryfast",
			"-profile:v", "high",
			"-level", "4.0",
			"-crf", "21",
			"-movflags", "+faststart",
			"-pix_fmt", "yuv420p",
			"-bf", "0", // No B-frames
			"-g", "60", // GOP size
		)
	}

	return append(args, output)
}
