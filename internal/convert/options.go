// Package convert turns an uploaded video into a 1080x1920 rendition. It
// resolves request fields into transcode options and runs the pipeline
// around the external engine.
package convert

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/maauso/vertical-converter/internal/media"
)

// Form field names read by ResolveOptions.
const (
	FieldFit    = "fit"
	FieldFormat = "format"
	FieldFPS    = "fps"
)

// DefaultFPS is used when the fps field has no leading integer or is not positive.
const DefaultFPS = 30

// ResolveOptions derives transcode options from form fields. Unknown fit and
// format values fall back to cover and mp4 rather than being rejected.
func ResolveOptions(fields map[string]string) media.Options {
	opts := media.Options{
		Fit:    media.FitCover,
		Format: media.FormatMP4,
		FPS:    DefaultFPS,
	}

	if strings.ToLower(strings.TrimSpace(fields[FieldFit])) == string(media.FitContain) {
		opts.Fit = media.FitContain
	}

	if strings.ToLower(strings.TrimSpace(fields[FieldFormat])) == string(media.FormatWebM) {
		opts.Format = media.FormatWebM
	}

	if fps, ok := leadingInt(fields[FieldFPS]); ok && fps > 0 {
		opts.FPS = fps
	}

	return opts
}

// leadingInt parses the optionally signed digit run at the start of s after
// leading whitespace, ignoring whatever follows: "24.5" and "24fps" give 24.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
